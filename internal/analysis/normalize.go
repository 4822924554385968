package analysis

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// Pre-compiled repair patterns. The upstream model is instructed to return a
// single JSON object but is not trusted to comply.
var (
	codeFenceRegex     = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?([\\s\\S]*?)\\n?```")
	unquotedKeyRegex   = regexp.MustCompile(`([{,]\s*)([a-zA-Z_$][a-zA-Z0-9_$]*)\s*:`)
	smartQuoteRegex    = regexp.MustCompile("[“”]")
	trailingCommaRegex = regexp.MustCompile(`,(\s*[}\]])`)
	leadingProseRegex  = regexp.MustCompile(`^[^{\[]*`)
	trailingProseRegex = regexp.MustCompile(`[^}\]]*$`)
)

// RepairJSON applies a best-effort cleanup to almost-JSON text: code fences
// and surrounding prose are stripped, unquoted object keys are quoted, smart
// and single quotes become double quotes, and trailing commas are removed.
// The result is not guaranteed to parse; callers must re-attempt strictly.
func RepairJSON(raw string) string {
	text := strings.TrimSpace(raw)

	if m := codeFenceRegex.FindStringSubmatch(text); m != nil {
		text = m[1]
	}

	text = leadingProseRegex.ReplaceAllString(text, "")
	text = trailingProseRegex.ReplaceAllString(text, "")

	text = unquotedKeyRegex.ReplaceAllString(text, `$1"$2":`)
	text = smartQuoteRegex.ReplaceAllString(text, `"`)
	text = strings.ReplaceAll(text, "'", `"`)
	text = trailingCommaRegex.ReplaceAllString(text, "$1")

	return text
}

// ParseModelOutput turns raw model text into a generic object. Strict parse
// first, repaired parse second, empty object last — it never fails.
func ParseModelOutput(raw string) map[string]any {
	var obj map[string]any

	if err := json.Unmarshal([]byte(raw), &obj); err == nil && obj != nil {
		return obj
	}

	repaired := RepairJSON(raw)
	if err := json.Unmarshal([]byte(repaired), &obj); err == nil && obj != nil {
		return obj
	}

	return map[string]any{}
}

// accessor extracts a candidate value for one logical field from a parsed
// model object
type accessor func(obj map[string]any) (any, bool)

// path returns an accessor that walks nested object keys
func path(keys ...string) accessor {
	return func(obj map[string]any) (any, bool) {
		var current any = obj
		for _, key := range keys {
			m, ok := current.(map[string]any)
			if !ok {
				return nil, false
			}
			current, ok = m[key]
			if !ok || current == nil {
				return nil, false
			}
		}
		return current, true
	}
}

// firstOf tries each accessor in order until one yields a defined value
func firstOf(obj map[string]any, accessors ...accessor) (any, bool) {
	for _, acc := range accessors {
		if v, ok := acc(obj); ok {
			return v, true
		}
	}
	return nil, false
}

// Alias tables: model snapshots have produced several schemas over time, so
// every logical field is resolved through an ordered list of known key
// spellings, falling through to the contract default.
var (
	suspectedAliases = []accessor{
		path("diagnosis", "suspected"),
		path("diagnosis", "condition"),
		path("suspected_condition"),
		path("condition"),
		path("diagnosis"),
	}
	certaintyAliases = []accessor{
		path("diagnosis", "certainty_level"),
		path("diagnosis", "certainty"),
		path("certainty_level"),
		path("confidence_level"),
	}
	justificationAliases = []accessor{
		path("diagnosis", "justification"),
		path("diagnosis", "reasoning"),
		path("justification"),
	}
	treatmentsAliases = []accessor{
		path("treatments"),
		path("treatment_options"),
		path("recommended_treatments"),
	}
	alternativesAliases = []accessor{
		path("alternatives"),
		path("alternative_treatments"),
	}
	redFlagsAliases = []accessor{
		path("red_flags"),
		path("redFlags"),
		path("warning_signs"),
	}
	plainSummaryAliases = []accessor{
		path("patient_summary", "plain_language"),
		path("patient_summary"),
		path("patientSummary"),
		path("summary"),
		path("patient", "summary"),
	}
	clinicalSummaryAliases = []accessor{
		path("patient_summary", "clinical_language"),
		path("clinical_summary"),
	}
	modelAliases = []accessor{
		path("meta", "model"),
		path("model"),
	}
	confidenceAliases = []accessor{
		path("meta", "confidence_score"),
		path("confidence_score"),
		path("confidence"),
	}
)

// Normalize maps raw model output onto the full NormalizedAnalysis contract.
// Whatever the input — valid JSON, repairable JSON, or garbage — every field
// of the result is populated with a type-correct value.
func Normalize(raw string) NormalizedAnalysis {
	return NormalizeObject(ParseModelOutput(raw))
}

// NormalizeObject normalizes an already-parsed model object
func NormalizeObject(obj map[string]any) NormalizedAnalysis {
	out := EmptyAnalysis()

	if v, ok := firstOf(obj, suspectedAliases...); ok {
		if s := asString(v); s != "" {
			out.Diagnosis.Suspected = s
		}
	}
	if v, ok := firstOf(obj, certaintyAliases...); ok {
		out.Diagnosis.CertaintyLevel = asCertainty(v)
	}
	if v, ok := firstOf(obj, justificationAliases...); ok {
		out.Diagnosis.Justification = asString(v)
	}

	if v, ok := firstOf(obj, treatmentsAliases...); ok {
		out.Treatments = asTreatments(v)
	}
	if v, ok := firstOf(obj, alternativesAliases...); ok {
		out.Alternatives = asAlternatives(v)
	}
	if v, ok := firstOf(obj, redFlagsAliases...); ok {
		out.RedFlags = asStringList(v)
	}

	if v, ok := firstOf(obj, plainSummaryAliases...); ok {
		out.PatientSummary.PlainLanguage = asString(v)
	}
	if v, ok := firstOf(obj, clinicalSummaryAliases...); ok {
		out.PatientSummary.ClinicalLanguage = asString(v)
	}

	if v, ok := firstOf(obj, modelAliases...); ok {
		if s := asString(v); s != "" {
			out.Meta.Model = s
		}
	}
	if v, ok := firstOf(obj, confidenceAliases...); ok {
		out.Meta.ConfidenceScore = asFloat(v)
	}

	return out
}

// --- Coercion helpers ---

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return ""
	}
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
			return f
		}
	}
	return 0
}

func asCertainty(v any) CertaintyLevel {
	switch CertaintyLevel(strings.ToLower(asString(v))) {
	case CertaintyHigh:
		return CertaintyHigh
	case CertaintyModerate:
		return CertaintyModerate
	default:
		return CertaintyLow
	}
}

func asStringList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s := asString(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func asTreatments(v any) []Treatment {
	items, ok := v.([]any)
	if !ok {
		return []Treatment{}
	}

	out := make([]Treatment, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			// A bare string is still a usable treatment name.
			if s := asString(item); s != "" {
				out = append(out, Treatment{
					Name:              s,
					Contraindications: []string{},
					Monitoring:        []string{},
				})
			}
			continue
		}

		t := Treatment{
			Name:              firstString(m, "name", "medication", "drug", "treatment"),
			Justification:     firstString(m, "justification", "indication", "reason"),
			Dosage:            firstString(m, "dosage", "dose"),
			Duration:          firstString(m, "duration"),
			Contraindications: asStringList(m["contraindications"]),
			Monitoring:        asStringList(m["monitoring"]),
			EvidenceLevel:     firstString(m, "evidence_level", "evidenceLevel"),
			Efficacy:          asFloat(m["efficacy"]),
		}
		if t.Name == "" {
			continue
		}
		out = append(out, t)
	}
	return out
}

func asAlternatives(v any) []Alternative {
	items, ok := v.([]any)
	if !ok {
		return []Alternative{}
	}

	out := make([]Alternative, 0, len(items))
	for _, item := range items {
		switch a := item.(type) {
		case map[string]any:
			alt := Alternative{
				Name:   firstString(a, "name", "treatment"),
				Reason: firstString(a, "reason", "justification"),
			}
			if alt.Name != "" {
				out = append(out, alt)
			}
		case string:
			if s := strings.TrimSpace(a); s != "" {
				out = append(out, Alternative{Name: s})
			}
		}
	}
	return out
}

func firstString(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := m[key]; ok {
			if s := asString(v); s != "" {
				return s
			}
		}
	}
	return ""
}
