package mocks

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/clinia-sante/clinia/internal/analysis"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore("")
	if err != nil {
		t.Fatalf("load embedded templates: %v", err)
	}
	return s
}

func TestForTextMatching(t *testing.T) {
	s := testStore(t)

	tests := []struct {
		name string
		text string
		want string
	}{
		{"keyword match", "patient presents with hypertension", "hypertension"},
		{"case insensitive", "suspected HYPERTENSION stage 2", "hypertension"},
		{"phrase keyword", "complains of high blood pressure", "hypertension"},
		{"distinct condition", "type 2 diabetes with polyuria", "diabetes"},
		{"substring inside word", "antihypertensive review", "hypertension"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := s.ForText(tt.text)
			if !strings.Contains(strings.ToLower(out.Diagnosis.Suspected), tt.want) {
				t.Errorf("ForText(%q).Suspected = %q, want it to mention %q", tt.text, out.Diagnosis.Suspected, tt.want)
			}
		})
	}
}

func TestForTextFirstMatchWins(t *testing.T) {
	s := testStore(t)

	// Text matching two conditions resolves to the one earlier in the table.
	out := s.ForText("hypertension and diabetes")
	if !strings.Contains(strings.ToLower(out.Diagnosis.Suspected), "hypertension") {
		t.Errorf("suspected = %q, want the earlier hypertension entry", out.Diagnosis.Suspected)
	}
}

func TestForTextFallback(t *testing.T) {
	s := testStore(t)

	out := s.ForText("completely unrecognized complaint")
	// The fallback entry still satisfies the full contract.
	if out.Diagnosis.Suspected == "" {
		t.Error("fallback must provide a suspected condition")
	}
	if out.Diagnosis.CertaintyLevel != analysis.CertaintyLow {
		t.Errorf("fallback certainty = %s, want low", out.Diagnosis.CertaintyLevel)
	}
	if out.Treatments == nil || out.RedFlags == nil || out.Alternatives == nil {
		t.Error("fallback must keep non-nil contract slices")
	}
}

func TestForTextNoFallbackEntry(t *testing.T) {
	s := testStore(t)
	if err := s.Replace([]Template{{ID: "only", Match: []string{"never-matches-xyz"}}}); err != nil {
		t.Fatalf("replace: %v", err)
	}

	out := s.ForText("something else")
	if out.Diagnosis.Suspected != "Unknown" {
		t.Errorf("suspected = %q, want the empty-shell default", out.Diagnosis.Suspected)
	}
}

func TestExpandFillsContract(t *testing.T) {
	s := testStore(t)

	for _, tpl := range s.All() {
		out := tpl.expand()
		if out.Treatments == nil || out.Alternatives == nil || out.RedFlags == nil {
			t.Errorf("template %q: expansion left a nil slice", tpl.ID)
		}
		for i, tr := range out.Treatments {
			if tr.Contraindications == nil || tr.Monitoring == nil {
				t.Errorf("template %q treatment %d: nil treatment slices", tpl.ID, i)
			}
		}
		switch out.Diagnosis.CertaintyLevel {
		case analysis.CertaintyLow, analysis.CertaintyModerate, analysis.CertaintyHigh:
		default:
			t.Errorf("template %q: invalid certainty %q", tpl.ID, out.Diagnosis.CertaintyLevel)
		}
	}
}

func TestReplaceValidation(t *testing.T) {
	s := testStore(t)

	tests := []struct {
		name      string
		templates []Template
	}{
		{"empty table", []Template{}},
		{"missing id", []Template{{Match: []string{"x"}}}},
		{"duplicate id", []Template{{ID: "a"}, {ID: "a"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.Replace(tt.templates); err == nil {
				t.Error("expected validation error")
			}
		})
	}

	// A rejected table leaves the previous one intact.
	if len(s.All()) == 0 {
		t.Error("failed replace must not clear the table")
	}
}

func TestReplacePersistsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.json")

	s, err := NewStore(path)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	edited := []Template{
		{ID: "flu", Match: []string{"influenza", "flu"}, Suspected: "Seasonal influenza", CertaintyLevel: "moderate"},
		{ID: "fallback", Suspected: "Undetermined condition"},
	}
	if err := s.Replace(edited); err != nil {
		t.Fatalf("replace: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read persisted file: %v", err)
	}
	var persisted []Template
	if err := json.Unmarshal(data, &persisted); err != nil {
		t.Fatalf("parse persisted file: %v", err)
	}
	if len(persisted) != 2 || persisted[0].ID != "flu" {
		t.Errorf("persisted = %+v, want the edited table", persisted)
	}

	// A newly constructed store prefers the file over the embedded defaults.
	reloaded, err := NewStore(path)
	if err != nil {
		t.Fatalf("reload store: %v", err)
	}
	out := reloaded.ForText("patient with flu symptoms")
	if out.Diagnosis.Suspected != "Seasonal influenza" {
		t.Errorf("suspected = %q, want the persisted template", out.Diagnosis.Suspected)
	}
}

func TestAllReturnsCopy(t *testing.T) {
	s := testStore(t)

	all := s.All()
	if len(all) == 0 {
		t.Fatal("embedded table should not be empty")
	}
	all[0].Suspected = "tampered"

	if s.All()[0].Suspected == "tampered" {
		t.Error("All must return a copy, not the backing slice")
	}
}
