package analysis

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// NormalizeDiagnosis collapses whitespace and case so trivially different
// diagnosis strings ("Hypertension", " hypertension ") hash identically
func NormalizeDiagnosis(diagnosis string) string {
	return strings.Join(strings.Fields(strings.ToLower(diagnosis)), " ")
}

// Fingerprint derives the de-duplication key for a request.
//
// The request is reduced to a map and marshalled with encoding/json, which
// sorts object keys, giving a canonical serialization. The diagnosis text is
// normalized first; all other fields are hashed as-is. ForceReal is a routing
// flag, not content, and is excluded.
func Fingerprint(req Request) string {
	canonical := map[string]any{
		"diagnosis": NormalizeDiagnosis(req.Diagnosis),
		"patient": map[string]any{
			"age":                 req.Age,
			"sex":                 req.Sex,
			"weight":              req.Weight,
			"height":              req.Height,
			"blood_pressure":      canonicalBloodPressure(req.BloodPressure),
			"symptoms":            canonicalList(req.Symptoms),
			"medical_history":     canonicalList(req.MedicalHistory),
			"current_medications": canonicalList(req.CurrentMedications),
		},
	}

	// Marshalling a map of JSON-safe values cannot fail.
	data, _ := json.Marshal(canonical)

	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func canonicalBloodPressure(bp *BloodPressure) map[string]any {
	if bp == nil {
		return nil
	}
	return map[string]any{
		"systolic":  bp.Systolic,
		"diastolic": bp.Diastolic,
	}
}

// canonicalList pins nil and empty slices to the same serialization
func canonicalList(items []string) []string {
	if len(items) == 0 {
		return []string{}
	}
	return items
}
