package workflow

import (
	"math"
	"sort"
)

// ScoreSummary is the result of one aggregation pass over an assessment's
// non-draft responses.
type ScoreSummary struct {
	OverallScore  float64        `json:"overall_score"`
	SectionScores []SectionScore `json:"section_scores"`
	Answered      int            `json:"answered_questions"`
}

const maxScorePerQuestion = 3

// ComputeScores aggregates non-draft scored responses into per-section
// percentages and an overall score. Responses without a section land in an
// uncategorized bucket: they count toward the answered total but are excluded
// from the section breakdown and the overall rollup, which is defined over
// sections only. The function is pure; calling it twice over the same input
// yields identical output.
func ComputeScores(responses []Response, sections map[string]StandardSection, questionTotals map[string]int) ScoreSummary {
	type bucket struct {
		actual   int
		answered int
	}
	buckets := make(map[string]*bucket)
	answered := 0

	for _, r := range responses {
		if r.Draft || r.Score == nil {
			continue
		}
		answered++
		if r.SectionID == "" {
			continue
		}
		b := buckets[r.SectionID]
		if b == nil {
			b = &bucket{}
			buckets[r.SectionID] = b
		}
		b.actual += *r.Score
		b.answered++
	}

	var (
		out         []SectionScore
		totalActual int
		totalMax    int
	)
	for sectionID, b := range buckets {
		maxPossible := maxScorePerQuestion * b.answered
		sec := sections[sectionID]
		out = append(out, SectionScore{
			SectionID:     sectionID,
			SectionNumber: sec.Number,
			SectionTitle:  sec.Title,
			Percentage:    round1(float64(b.actual) / float64(maxPossible) * 100),
			ActualScore:   b.actual,
			MaxScore:      maxPossible,
			Answered:      b.answered,
			Total:         questionTotals[sectionID],
		})
		totalActual += b.actual
		totalMax += maxPossible
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].SectionNumber != out[j].SectionNumber {
			return out[i].SectionNumber < out[j].SectionNumber
		}
		return out[i].SectionID < out[j].SectionID
	})

	overall := 0.0
	if totalMax > 0 {
		overall = round1(float64(totalActual) / float64(totalMax) * 100)
	}
	return ScoreSummary{OverallScore: overall, SectionScores: out, Answered: answered}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
