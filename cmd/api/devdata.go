package main

import "conforma.org/internal/workflow"

// A small slice of the clause tree so the in-memory fallback is usable out of
// the box. The full question bank lives in ops/migrations/seeds.
var devSections = []workflow.StandardSection{
	{ID: "sec-4", Number: "4", Title: "Context of the organization", Order: 1},
	{ID: "sec-9", Number: "9", Title: "Performance evaluation", Order: 6},
	{ID: "sec-10", Number: "10", Title: "Improvement", Order: 7},
}

var devQuestions = []workflow.AuditQuestion{
	{
		ID: "q-4-01", SectionID: "sec-4", Number: "4-01",
		Text:      "Has the organization determined the external and internal issues relevant to its purpose?",
		Criteria1: "No systematic analysis of context exists.",
		Criteria2: "Context is analyzed but not reviewed at planned intervals.",
		Criteria3: "Context analysis is documented, current and reviewed.",
		Active:    true,
	},
	{
		ID: "q-9-01", SectionID: "sec-9", Number: "9-01",
		Text:      "Are internal audits conducted at planned intervals by impartial auditors?",
		Criteria1: "No internal audit programme exists.",
		Criteria2: "Audits happen but the programme or impartiality is weak.",
		Criteria3: "A risk-based audit programme runs with tracked results.",
		Active:    true,
	},
	{
		ID: "q-10-01", SectionID: "sec-10", Number: "10-01",
		Text:      "When a nonconformity occurs, does the organization evaluate root cause and act?",
		Criteria1: "Nonconformities are not recorded or actioned.",
		Criteria2: "Corrections are made but root causes are not analyzed.",
		Criteria3: "Root causes are analyzed and action effectiveness reviewed.",
		Active:    true,
	},
}
