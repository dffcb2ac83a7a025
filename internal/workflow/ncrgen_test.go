package workflow

import (
	"strings"
	"testing"
)

func TestSeverityForScore(t *testing.T) {
	if sev, ok := severityForScore(1); !ok || sev != SeverityMajor {
		t.Fatalf("score 1 -> %v %v, want MAJOR", sev, ok)
	}
	if sev, ok := severityForScore(2); !ok || sev != SeverityMinor {
		t.Fatalf("score 2 -> %v %v, want MINOR", sev, ok)
	}
	if _, ok := severityForScore(3); ok {
		t.Fatal("score 3 must not qualify")
	}
}

func TestDeriveNonConformities(t *testing.T) {
	assessment := Assessment{ID: "as-1", Title: "Annual internal audit"}
	questions := map[string]AuditQuestion{
		"q-1": {ID: "q-1", SectionID: "sec-4", Number: "4.1-01", Text: "Is context determined?"},
		"q-2": {ID: "q-2", SectionID: "sec-4", Number: "4.1-02", Text: "Are interested parties known?"},
		"q-3": {ID: "q-3", SectionID: "sec-5", Number: "5.1-01", Text: "Is leadership demonstrated?"},
	}
	sections := map[string]StandardSection{
		"sec-4": {ID: "sec-4", Number: "4.1", Title: "Context"},
		"sec-5": {ID: "sec-5", Number: "5.1", Title: "Leadership"},
	}
	one, two, three := 1, 2, 3
	responses := []Response{
		{ID: "r-1", QuestionID: "q-1", SectionID: "sec-4", Score: &one},               // qualifies, MAJOR
		{ID: "r-2", QuestionID: "q-2", SectionID: "sec-4", Score: &two},               // already has an NCR
		{ID: "r-3", QuestionID: "q-3", SectionID: "sec-5", Score: &three},             // passing
		{ID: "r-4", QuestionID: "q-1", SectionID: "sec-4", Score: &one, Draft: true},  // draft
		{ID: "r-5", QuestionID: "q-2", SectionID: "sec-4"},                            // unanswered
	}
	existing := map[string]struct{}{"r-2": {}}

	got := deriveNonConformities(assessment, responses, existing, questions, sections)
	if len(got) != 1 {
		t.Fatalf("expected exactly one derived NCR, got %d", len(got))
	}
	n := got[0]
	if n.ResponseID != "r-1" || n.Severity != SeverityMajor || n.Status != NCROpen {
		t.Fatalf("unexpected NCR: %+v", n)
	}
	if n.AssessmentID != "as-1" {
		t.Fatalf("assessment not linked: %+v", n)
	}
	if !strings.Contains(n.Title, "4.1") || !strings.Contains(n.Title, "4.1-01") {
		t.Fatalf("title missing clause/question reference: %q", n.Title)
	}
	if !strings.Contains(n.Description, "Is context determined?") {
		t.Fatalf("description missing question text: %q", n.Description)
	}
}

func TestDeriveNonConformitiesSecondRunIsEmpty(t *testing.T) {
	assessment := Assessment{ID: "as-1"}
	one := 1
	responses := []Response{{ID: "r-1", QuestionID: "q-1", Score: &one}}
	questions := map[string]AuditQuestion{"q-1": {ID: "q-1", Number: "4.1-01"}}

	first := deriveNonConformities(assessment, responses, nil, questions, nil)
	if len(first) != 1 {
		t.Fatalf("first run: expected 1, got %d", len(first))
	}
	// Simulate persistence of the first batch, then re-run.
	existing := map[string]struct{}{"r-1": {}}
	second := deriveNonConformities(assessment, responses, existing, questions, nil)
	if len(second) != 0 {
		t.Fatalf("second run must create nothing, got %d", len(second))
	}
}
