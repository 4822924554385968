// Package mocks holds the canned condition templates served in mock mode
// and edited through the Mock Studio.
package mocks

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/clinia-sante/clinia/internal/analysis"
)

//go:embed templates.json
var defaultTemplates []byte

// Template is one canned condition: an ordered keyword rule plus the
// analysis content it expands to. An entry with no keywords is the
// fallback and must come last.
type Template struct {
	ID             string                  `json:"id"`
	Match          []string                `json:"match"`
	Suspected      string                  `json:"suspected"`
	CertaintyLevel string                  `json:"certainty_level"`
	PatientSummary analysis.PatientSummary `json:"patient_summary"`
	Treatments     []analysis.Treatment    `json:"treatments"`
	RedFlags       []string                `json:"red_flags"`
}

// Store holds the template table. Matching is case-insensitive substring,
// evaluated in table order, first match wins.
type Store struct {
	mu        sync.RWMutex
	templates []Template
	path      string // optional persistence target for studio edits
}

// NewStore loads the embedded defaults, overridden by the file at path
// when one is configured and readable.
func NewStore(path string) (*Store, error) {
	s := &Store{path: path}

	data := defaultTemplates
	if path != "" {
		if fileData, err := os.ReadFile(path); err == nil {
			data = fileData
		}
	}

	templates, err := parseTemplates(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load mock templates: %w", err)
	}
	s.templates = templates

	return s, nil
}

// ForText resolves the first template whose keywords appear in the text,
// falling back to the generic entry, and expands it to the full contract
func (s *Store) ForText(text string) analysis.NormalizedAnalysis {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lowered := strings.ToLower(text)

	for _, tpl := range s.templates {
		for _, keyword := range tpl.Match {
			if strings.Contains(lowered, strings.ToLower(keyword)) {
				return tpl.expand()
			}
		}
	}

	for _, tpl := range s.templates {
		if len(tpl.Match) == 0 {
			return tpl.expand()
		}
	}

	// No fallback entry in the table; the contract still holds.
	return analysis.EmptyAnalysis()
}

func (tpl Template) expand() analysis.NormalizedAnalysis {
	out := analysis.EmptyAnalysis()

	if tpl.Suspected != "" {
		out.Diagnosis.Suspected = tpl.Suspected
	}
	out.Diagnosis.CertaintyLevel = certainty(tpl.CertaintyLevel)
	out.PatientSummary = tpl.PatientSummary

	if tpl.Treatments != nil {
		out.Treatments = normalizeTreatments(tpl.Treatments)
	}
	if tpl.RedFlags != nil {
		out.RedFlags = tpl.RedFlags
	}

	return out
}

func certainty(level string) analysis.CertaintyLevel {
	switch analysis.CertaintyLevel(strings.ToLower(level)) {
	case analysis.CertaintyHigh:
		return analysis.CertaintyHigh
	case analysis.CertaintyModerate:
		return analysis.CertaintyModerate
	default:
		return analysis.CertaintyLow
	}
}

// normalizeTreatments pins nil slices inside hand-edited templates
func normalizeTreatments(treatments []analysis.Treatment) []analysis.Treatment {
	out := make([]analysis.Treatment, len(treatments))
	for i, t := range treatments {
		if t.Contraindications == nil {
			t.Contraindications = []string{}
		}
		if t.Monitoring == nil {
			t.Monitoring = []string{}
		}
		out[i] = t
	}
	return out
}

// All returns a copy of the current template table
func (s *Store) All() []Template {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Template, len(s.templates))
	copy(out, s.templates)
	return out
}

// Replace swaps in a new template table after validation, persisting it
// to the configured file when one is set
func (s *Store) Replace(templates []Template) error {
	if err := validate(templates); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path != "" {
		data, err := json.MarshalIndent(templates, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to serialize templates: %w", err)
		}
		if err := os.WriteFile(s.path, data, 0o644); err != nil {
			return fmt.Errorf("failed to persist templates: %w", err)
		}
	}

	s.templates = templates
	return nil
}

func parseTemplates(data []byte) ([]Template, error) {
	var templates []Template
	if err := json.Unmarshal(data, &templates); err != nil {
		return nil, err
	}
	if err := validate(templates); err != nil {
		return nil, err
	}
	return templates, nil
}

func validate(templates []Template) error {
	if len(templates) == 0 {
		return fmt.Errorf("template table must not be empty")
	}

	seen := make(map[string]bool, len(templates))
	for i, tpl := range templates {
		if tpl.ID == "" {
			return fmt.Errorf("template %d: id is required", i)
		}
		if seen[tpl.ID] {
			return fmt.Errorf("template %q: duplicate id", tpl.ID)
		}
		seen[tpl.ID] = true
	}

	return nil
}
