package analysis

import (
	"encoding/json"
	"testing"
)

// TestRepairJSON tests the best-effort cleanup of almost-JSON model output
func TestRepairJSON(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantName string
		wantEff  float64
	}{
		{
			name:     "unquoted key and trailing comma",
			raw:      `{name: "Drug", efficacy: 80,}`,
			wantName: "Drug",
			wantEff:  80,
		},
		{
			name:     "smart quotes",
			raw:      "{“name”: “Drug”, “efficacy”: 80}",
			wantName: "Drug",
			wantEff:  80,
		},
		{
			name:     "single quotes",
			raw:      `{'name': 'Drug', 'efficacy': 80}`,
			wantName: "Drug",
			wantEff:  80,
		},
		{
			name:     "surrounding prose",
			raw:      "Here is the result:\n{\"name\": \"Drug\", \"efficacy\": 80}\nLet me know if you need more.",
			wantName: "Drug",
			wantEff:  80,
		},
		{
			name:     "code fence",
			raw:      "```json\n{\"name\": \"Drug\", \"efficacy\": 80}\n```",
			wantName: "Drug",
			wantEff:  80,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repaired := RepairJSON(tt.raw)

			var obj map[string]any
			if err := json.Unmarshal([]byte(repaired), &obj); err != nil {
				t.Fatalf("repaired text is not valid JSON: %v\n%s", err, repaired)
			}

			if got := obj["name"]; got != tt.wantName {
				t.Errorf("name = %v, want %v", got, tt.wantName)
			}
			if got := obj["efficacy"]; got != tt.wantEff {
				t.Errorf("efficacy = %v, want %v", got, tt.wantEff)
			}
		})
	}
}

// TestNormalizeContractCompleteness tests that every field of the output
// contract is populated whatever the input was
func TestNormalizeContractCompleteness(t *testing.T) {
	inputs := []struct {
		name string
		raw  string
	}{
		{"empty object", `{}`},
		{"null", `null`},
		{"empty string", ``},
		{"plain prose", `I am sorry, I cannot help with that.`},
		{"array instead of object", `[1, 2, 3]`},
		{"deeply malformed", `{{{"diagnosis": [}`},
		{"wrong types", `{"treatments": "none", "red_flags": 42, "diagnosis": 7}`},
	}

	for _, tt := range inputs {
		t.Run(tt.name, func(t *testing.T) {
			out := Normalize(tt.raw)

			if out.Diagnosis.Suspected == "" {
				t.Error("diagnosis.suspected must not be empty")
			}
			switch out.Diagnosis.CertaintyLevel {
			case CertaintyLow, CertaintyModerate, CertaintyHigh:
			default:
				t.Errorf("invalid certainty level %q", out.Diagnosis.CertaintyLevel)
			}
			if out.Treatments == nil {
				t.Error("treatments must be a non-nil list")
			}
			if out.Alternatives == nil {
				t.Error("alternatives must be a non-nil list")
			}
			if out.RedFlags == nil {
				t.Error("red_flags must be a non-nil list")
			}
			if out.Meta.Model == "" {
				t.Error("meta.model must not be empty")
			}
		})
	}
}

// TestNormalizeFieldMapping tests the happy path against the canonical schema
func TestNormalizeFieldMapping(t *testing.T) {
	raw := `{
		"diagnosis": {"suspected": "Essential hypertension", "certainty_level": "high", "justification": "elevated readings"},
		"treatments": [{"name": "Ramipril", "justification": "first line", "dosage": "5mg", "duration": "ongoing", "contraindications": ["pregnancy"], "monitoring": ["renal function"], "evidence_level": "A", "efficacy": 88}],
		"alternatives": [{"name": "Amlodipine", "reason": "if ACE intolerant"}],
		"red_flags": ["chest pain"],
		"patient_summary": {"plain_language": "Your blood pressure is high.", "clinical_language": "Stage 2 hypertension."},
		"meta": {"confidence_score": 0.87}
	}`

	out := Normalize(raw)

	if out.Diagnosis.Suspected != "Essential hypertension" {
		t.Errorf("suspected = %q", out.Diagnosis.Suspected)
	}
	if out.Diagnosis.CertaintyLevel != CertaintyHigh {
		t.Errorf("certainty = %q, want high", out.Diagnosis.CertaintyLevel)
	}
	if len(out.Treatments) != 1 {
		t.Fatalf("expected 1 treatment, got %d", len(out.Treatments))
	}
	tr := out.Treatments[0]
	if tr.Name != "Ramipril" || tr.Efficacy != 88 || tr.EvidenceLevel != "A" {
		t.Errorf("treatment mapped incorrectly: %+v", tr)
	}
	if len(tr.Contraindications) != 1 || tr.Contraindications[0] != "pregnancy" {
		t.Errorf("contraindications = %v", tr.Contraindications)
	}
	if len(out.Alternatives) != 1 || out.Alternatives[0].Name != "Amlodipine" {
		t.Errorf("alternatives = %v", out.Alternatives)
	}
	if len(out.RedFlags) != 1 || out.RedFlags[0] != "chest pain" {
		t.Errorf("red_flags = %v", out.RedFlags)
	}
	if out.PatientSummary.PlainLanguage != "Your blood pressure is high." {
		t.Errorf("plain summary = %q", out.PatientSummary.PlainLanguage)
	}
	if out.Meta.ConfidenceScore != 0.87 {
		t.Errorf("confidence = %v", out.Meta.ConfidenceScore)
	}
}

// TestNormalizeKeyAliases tests the ordered alias fallback chains
func TestNormalizeKeyAliases(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantPlain string
	}{
		{"camelCase summary", `{"patientSummary": "take it easy"}`, "take it easy"},
		{"bare summary", `{"summary": "rest and hydrate"}`, "rest and hydrate"},
		{"nested patient summary", `{"patient": {"summary": "monitor at home"}}`, "monitor at home"},
		{"string patient_summary", `{"patient_summary": "see a doctor"}`, "see a doctor"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Normalize(tt.raw)
			if out.PatientSummary.PlainLanguage != tt.wantPlain {
				t.Errorf("plain summary = %q, want %q", out.PatientSummary.PlainLanguage, tt.wantPlain)
			}
		})
	}
}

// TestNormalizeAlternateSchemas tests fields produced by older model schemas
func TestNormalizeAlternateSchemas(t *testing.T) {
	raw := `{
		"suspected_condition": "Migraine",
		"confidence_level": "moderate",
		"treatment_options": [{"medication": "Sumatriptan", "reason": "acute relief", "efficacy": "75"}],
		"redFlags": ["thunderclap onset"],
		"confidence": 0.6
	}`

	out := Normalize(raw)

	if out.Diagnosis.Suspected != "Migraine" {
		t.Errorf("suspected = %q", out.Diagnosis.Suspected)
	}
	if out.Diagnosis.CertaintyLevel != CertaintyModerate {
		t.Errorf("certainty = %q, want moderate", out.Diagnosis.CertaintyLevel)
	}
	if len(out.Treatments) != 1 {
		t.Fatalf("expected 1 treatment, got %d", len(out.Treatments))
	}
	if out.Treatments[0].Name != "Sumatriptan" {
		t.Errorf("treatment name = %q", out.Treatments[0].Name)
	}
	if out.Treatments[0].Efficacy != 75 {
		t.Errorf("efficacy coercion from string = %v, want 75", out.Treatments[0].Efficacy)
	}
	if len(out.RedFlags) != 1 {
		t.Errorf("redFlags alias not mapped: %v", out.RedFlags)
	}
	if out.Meta.ConfidenceScore != 0.6 {
		t.Errorf("confidence = %v", out.Meta.ConfidenceScore)
	}
}

// TestNormalizeInvalidCertaintyDefaultsLow tests clamping of unknown levels
func TestNormalizeInvalidCertaintyDefaultsLow(t *testing.T) {
	tests := []string{
		`{"diagnosis": {"certainty_level": "very sure"}}`,
		`{"diagnosis": {"certainty_level": 9}}`,
		`{"diagnosis": {"certainty_level": "HIGH-ish"}}`,
	}

	for _, raw := range tests {
		if got := Normalize(raw).Diagnosis.CertaintyLevel; got != CertaintyLow {
			t.Errorf("Normalize(%s) certainty = %q, want low", raw, got)
		}
	}

	if got := Normalize(`{"diagnosis": {"certainty_level": "High"}}`).Diagnosis.CertaintyLevel; got != CertaintyHigh {
		t.Errorf("case-insensitive high clamped to %q", got)
	}
}
