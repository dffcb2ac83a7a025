package workflow

import "fmt"

// severityForScore maps a failing response score to an NCR severity.
// Score 1 means the requirement is not met at all, score 2 partially.
func severityForScore(score int) (Severity, bool) {
	switch score {
	case 1:
		return SeverityMajor, true
	case 2:
		return SeverityMinor, true
	default:
		return "", false
	}
}

// failingScore reports whether a non-draft response qualifies for NCR
// generation.
func failingScore(r Response) bool {
	if r.Draft || r.Score == nil {
		return false
	}
	_, ok := severityForScore(*r.Score)
	return ok
}

// deriveNonConformities builds OPEN non-conformities for every qualifying
// response that does not already have one. Re-running only fills gaps: a
// response listed in existing is skipped, so the derivation never produces a
// duplicate. The caller persists the batch atomically.
func deriveNonConformities(
	assessment Assessment,
	responses []Response,
	existing map[string]struct{},
	questions map[string]AuditQuestion,
	sections map[string]StandardSection,
) []NonConformity {
	var out []NonConformity
	for _, r := range responses {
		if !failingScore(r) {
			continue
		}
		if _, has := existing[r.ID]; has {
			continue
		}
		severity, _ := severityForScore(*r.Score)
		q := questions[r.QuestionID]
		sec := sections[r.SectionID]

		title := fmt.Sprintf("Non-conformity: clause %s, question %s", sec.Number, q.Number)
		if sec.Number == "" {
			title = fmt.Sprintf("Non-conformity: question %s", q.Number)
		}
		description := fmt.Sprintf(
			"Question %s (%s) scored %d of %d during assessment %q. Requirement: %s",
			q.Number, sec.Title, *r.Score, maxScorePerQuestion, assessment.Title, q.Text,
		)

		out = append(out, NonConformity{
			AssessmentID: assessment.ID,
			ResponseID:   r.ID,
			Title:        title,
			Description:  description,
			Severity:     severity,
			Status:       NCROpen,
		})
	}
	return out
}
