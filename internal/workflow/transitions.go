package workflow

// The three state machines are plain adjacency maps checked by one generic
// helper. Keeping the edges as data keeps the machines uniform and lets the
// tests iterate every (from, to) pair.

var assessmentTransitions = map[AssessmentStatus][]AssessmentStatus{
	AssessmentDraft:       {AssessmentInProgress, AssessmentArchived},
	AssessmentInProgress:  {AssessmentUnderReview, AssessmentDraft, AssessmentArchived},
	AssessmentUnderReview: {AssessmentCompleted, AssessmentInProgress, AssessmentArchived},
	AssessmentCompleted:   {AssessmentArchived},
	// ARCHIVED -> DRAFT doubles as the restore operation.
	AssessmentArchived: {AssessmentDraft},
}

var ncrTransitions = map[NCRStatus][]NCRStatus{
	NCROpen:       {NCRInProgress},
	NCRInProgress: {NCRResolved, NCROpen},
	NCRResolved:   {NCRClosed, NCRInProgress},
	NCRClosed:     {}, // terminal
}

var actionTransitions = map[ActionStatus][]ActionStatus{
	ActionPending:    {ActionInProgress},
	ActionInProgress: {ActionCompleted, ActionPending},
	ActionCompleted:  {ActionVerified, ActionInProgress},
	ActionVerified:   {}, // terminal
}

func edgeAllowed[S comparable](table map[S][]S, from, to S) bool {
	for _, next := range table[from] {
		if next == to {
			return true
		}
	}
	return false
}

func statusKnown[S comparable](table map[S][]S, s S) bool {
	_, ok := table[s]
	return ok
}

// CheckAssessmentTransition validates one edge of the assessment machine.
func CheckAssessmentTransition(from, to AssessmentStatus) error {
	if !statusKnown(assessmentTransitions, to) {
		return invalid("unknown assessment status %q", to)
	}
	if !edgeAllowed(assessmentTransitions, from, to) {
		return invalid("cannot transition assessment from %s to %s", from, to)
	}
	return nil
}

// CheckNCRTransition validates one edge of the non-conformity machine.
// Cross-entity guards (actions, root cause) are enforced by the orchestrator.
func CheckNCRTransition(from, to NCRStatus) error {
	if !statusKnown(ncrTransitions, to) {
		return invalid("unknown non-conformity status %q", to)
	}
	if !edgeAllowed(ncrTransitions, from, to) {
		return invalid("cannot transition non-conformity from %s to %s", from, to)
	}
	return nil
}

// CheckActionTransition validates one edge of the corrective-action machine.
// VERIFIED is never reachable here; verification is a distinct operation.
func CheckActionTransition(from, to ActionStatus) error {
	if !statusKnown(actionTransitions, to) {
		return invalid("unknown corrective action status %q", to)
	}
	if to == ActionVerified {
		return invalid("corrective actions are verified through the verify operation, not a status update")
	}
	if !edgeAllowed(actionTransitions, from, to) {
		return invalid("cannot transition corrective action from %s to %s", from, to)
	}
	return nil
}
