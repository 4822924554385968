package analysis

import (
	"time"

	"github.com/google/uuid"
)

// CertaintyLevel expresses how confident the diagnosis block is
type CertaintyLevel string

const (
	CertaintyLow      CertaintyLevel = "low"
	CertaintyModerate CertaintyLevel = "moderate"
	CertaintyHigh     CertaintyLevel = "high"
)

// Source identifies where a response actually came from
type Source string

const (
	SourceReal     Source = "real"
	SourceMock     Source = "mock"
	SourceDegraded Source = "degraded"
)

// Mode tags a persisted result with how it was produced
type Mode string

const (
	ModeMock Mode = "mock"
	ModeReal Mode = "real"
)

// Request is the clinical payload submitted by the single-page app
type Request struct {
	Age    int     `json:"age,omitempty"`
	Sex    string  `json:"sex,omitempty"`
	Weight float64 `json:"weight,omitempty"`
	Height float64 `json:"height,omitempty"`

	BloodPressure *BloodPressure `json:"blood_pressure,omitempty"`

	Symptoms           []string `json:"symptoms,omitempty"`
	MedicalHistory     []string `json:"medical_history,omitempty"`
	CurrentMedications []string `json:"current_medications,omitempty"`

	// Diagnosis is optional free text; it drives mock template matching
	// and is normalized before fingerprinting
	Diagnosis string `json:"diagnosis,omitempty"`

	// ForceReal bypasses mock mode for this request only. It does not
	// bypass admission control or the circuit breaker.
	ForceReal bool `json:"forceReal,omitempty"`
}

// BloodPressure is an optional vitals block
type BloodPressure struct {
	Systolic  int `json:"systolic,omitempty"`
	Diastolic int `json:"diastolic,omitempty"`
}

// HasClinicalContent reports whether the request carries enough
// information to attempt an analysis at all
func (r Request) HasClinicalContent() bool {
	return r.Diagnosis != "" || len(r.Symptoms) > 0
}

// Diagnosis is the diagnostic block of a normalized analysis
type Diagnosis struct {
	Suspected      string         `json:"suspected"`
	CertaintyLevel CertaintyLevel `json:"certainty_level"`
	Justification  string         `json:"justification"`
}

// Treatment is a single treatment suggestion
type Treatment struct {
	Name              string   `json:"name"`
	Justification     string   `json:"justification"`
	Dosage            string   `json:"dosage"`
	Duration          string   `json:"duration"`
	Contraindications []string `json:"contraindications"`
	Monitoring        []string `json:"monitoring"`
	EvidenceLevel     string   `json:"evidence_level"`
	Efficacy          float64  `json:"efficacy"`
}

// Alternative is a second-line option with the reason it was not first choice
type Alternative struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// PatientSummary carries both registers of the summary text
type PatientSummary struct {
	PlainLanguage    string `json:"plain_language"`
	ClinicalLanguage string `json:"clinical_language"`
}

// AnalysisMeta identifies what produced the analysis content
type AnalysisMeta struct {
	Model           string  `json:"model"`
	ConfidenceScore float64 `json:"confidence_score"`
}

// NormalizedAnalysis is the output contract guaranteed to the caller.
// Every field is always present with a type-correct value, whatever the
// upstream model returned.
type NormalizedAnalysis struct {
	Diagnosis      Diagnosis      `json:"diagnosis"`
	Treatments     []Treatment    `json:"treatments"`
	Alternatives   []Alternative  `json:"alternatives"`
	RedFlags       []string       `json:"red_flags"`
	PatientSummary PatientSummary `json:"patient_summary"`
	Meta           AnalysisMeta   `json:"meta"`
}

// EmptyAnalysis returns a fully-populated analysis shell with safe defaults
func EmptyAnalysis() NormalizedAnalysis {
	return NormalizedAnalysis{
		Diagnosis: Diagnosis{
			Suspected:      "Unknown",
			CertaintyLevel: CertaintyLow,
			Justification:  "",
		},
		Treatments:   []Treatment{},
		Alternatives: []Alternative{},
		RedFlags:     []string{},
		PatientSummary: PatientSummary{
			PlainLanguage:    "",
			ClinicalLanguage: "",
		},
		Meta: AnalysisMeta{
			Model:           "unknown",
			ConfidenceScore: 0,
		},
	}
}

// Result is the persisted record for one distinct fingerprint
type Result struct {
	ID          string             `json:"id"`
	Fingerprint string             `json:"fingerprint"`
	Input       Request            `json:"input"`
	Output      NormalizedAnalysis `json:"output"`
	Mode        Mode               `json:"mode"`
	Model       string             `json:"model"`
	CreatedAt   time.Time          `json:"created_at"`
}

// NewResult builds a result record ready for insertion
func NewResult(fingerprint string, input Request, output NormalizedAnalysis, mode Mode, model string) *Result {
	return &Result{
		ID:          uuid.New().String(),
		Fingerprint: fingerprint,
		Input:       input,
		Output:      output,
		Mode:        mode,
		Model:       model,
		CreatedAt:   time.Now().UTC(),
	}
}

// ResponseMeta is the envelope metadata returned with every response
type ResponseMeta struct {
	Source            Source   `json:"source"`
	Model             string   `json:"model"`
	RetryAfterSeconds int      `json:"retry_after_seconds,omitempty"`
	Warnings          []string `json:"warnings,omitempty"`
}

// Envelope is the uniform response shape: business failures change the
// meta block, never the structure.
type Envelope struct {
	Data NormalizedAnalysis `json:"data"`
	Meta ResponseMeta       `json:"meta"`
}
