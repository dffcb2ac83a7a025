package workflow

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"
)

var (
	qmActor      = Actor{UserID: "u-qm", OrganizationID: "org-1", Role: RoleQualityManager}
	leadActor    = Actor{UserID: "u-lead", OrganizationID: "org-1", Role: RoleInternalAuditor}
	memberActor  = Actor{UserID: "u-aud", OrganizationID: "org-1", Role: RoleInternalAuditor}
	viewerActor  = Actor{UserID: "u-view", OrganizationID: "org-1", Role: RoleViewer}
	foreignActor = Actor{UserID: "u-other", OrganizationID: "org-2", Role: RoleQualityManager}
)

func newTestService(t *testing.T, opts ...ServiceOption) (*Service, *Memory) {
	t.Helper()
	mem := NewMemory()
	mem.SeedStandard(
		[]StandardSection{
			{ID: "sec-4", Number: "4", Title: "Context of the organization", Order: 1},
			{ID: "sec-5", Number: "5", Title: "Leadership", Order: 2},
		},
		[]AuditQuestion{
			{ID: "q-1", SectionID: "sec-4", Number: "4-01", Text: "Is organizational context determined?", Active: true},
			{ID: "q-2", SectionID: "sec-4", Number: "4-02", Text: "Are interested parties identified?", Active: true},
			{ID: "q-3", SectionID: "sec-4", Number: "4-03", Text: "Is the QMS scope documented?", Active: true},
			{ID: "q-4", SectionID: "sec-5", Number: "5-01", Text: "Is leadership commitment demonstrated?", Active: true},
		},
	)
	opts = append([]ServiceOption{WithClock(func() time.Time {
		return time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	})}, opts...)
	svc, err := NewService(mem, opts...)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, mem
}

func createAssessment(t *testing.T, svc *Service) *Assessment {
	t.Helper()
	a, err := svc.CreateAssessment(context.Background(), qmActor, CreateAssessmentInput{
		Title:         "Annual internal audit",
		AuditType:     "internal",
		LeadAuditorID: leadActor.UserID,
	})
	if err != nil {
		t.Fatalf("CreateAssessment: %v", err)
	}
	if err := svc.AddTeamMember(context.Background(), qmActor, a.ID, memberActor.UserID, TeamRoleAuditor); err != nil {
		t.Fatalf("AddTeamMember: %v", err)
	}
	return a
}

func submitScore(t *testing.T, svc *Service, actor Actor, assessmentID, questionID string, score int, draft bool) *Response {
	t.Helper()
	in := ResponseInput{QuestionID: questionID, Score: &score, Draft: draft}
	r, err := svc.UpsertResponse(context.Background(), actor, assessmentID, in)
	if err != nil {
		t.Fatalf("UpsertResponse(%s=%d): %v", questionID, score, err)
	}
	return r
}

func TestAssessmentLifecycle(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	a := createAssessment(t, svc)

	if a.Status != AssessmentDraft {
		t.Fatalf("initial status = %s, want DRAFT", a.Status)
	}

	// DRAFT -> COMPLETED must be rejected and leave the status untouched.
	if _, err := svc.TransitionAssessment(ctx, qmActor, a.ID, AssessmentCompleted); !errors.Is(err, ErrValidation) {
		t.Fatalf("DRAFT->COMPLETED: expected validation error, got %v", err)
	}
	cur, err := svc.GetAssessment(ctx, qmActor, a.ID)
	if err != nil {
		t.Fatalf("GetAssessment: %v", err)
	}
	if cur.Status != AssessmentDraft {
		t.Fatalf("status changed after rejected transition: %s", cur.Status)
	}

	for _, step := range []AssessmentStatus{AssessmentInProgress, AssessmentUnderReview, AssessmentCompleted} {
		if cur, err = svc.TransitionAssessment(ctx, qmActor, a.ID, step); err != nil {
			t.Fatalf("transition to %s: %v", step, err)
		}
	}
	if cur.CompletedAt == nil {
		t.Fatal("entering COMPLETED must stamp the completion time")
	}

	// Archive, then restore through the same entry point.
	if cur, err = svc.TransitionAssessment(ctx, qmActor, a.ID, AssessmentArchived); err != nil {
		t.Fatalf("archive: %v", err)
	}
	if cur, err = svc.TransitionAssessment(ctx, qmActor, a.ID, AssessmentDraft); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if cur.Status != AssessmentDraft {
		t.Fatalf("restore left status %s", cur.Status)
	}
}

func TestCrossTenantLooksLikeNotFound(t *testing.T) {
	svc, _ := newTestService(t)
	a := createAssessment(t, svc)

	_, err := svc.TransitionAssessment(context.Background(), foreignActor, a.ID, AssessmentInProgress)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("cross-tenant access must report not-found, got %v", err)
	}
	if errors.Is(err, ErrAuthorization) {
		t.Fatal("cross-tenant access must not leak as authorization failure")
	}
}

func TestViewerCannotManage(t *testing.T) {
	svc, _ := newTestService(t)
	a := createAssessment(t, svc)

	_, err := svc.TransitionAssessment(context.Background(), viewerActor, a.ID, AssessmentInProgress)
	if !errors.Is(err, ErrAuthorization) {
		t.Fatalf("viewer transition: expected authorization error, got %v", err)
	}
}

func TestResponseWritesRefreshScores(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	a := createAssessment(t, svc)

	submitScore(t, svc, leadActor, a.ID, "q-1", 3, false)
	submitScore(t, svc, leadActor, a.ID, "q-2", 2, false)
	submitScore(t, svc, leadActor, a.ID, "q-3", 3, false)

	cur, err := svc.GetAssessment(ctx, qmActor, a.ID)
	if err != nil {
		t.Fatalf("GetAssessment: %v", err)
	}
	if cur.OverallScore == nil || *cur.OverallScore != 88.9 {
		t.Fatalf("overall = %v, want 88.9", cur.OverallScore)
	}
	if len(cur.SectionScores) != 1 || cur.SectionScores[0].MaxScore != 9 || cur.SectionScores[0].ActualScore != 8 {
		t.Fatalf("section snapshot = %+v", cur.SectionScores)
	}
	if cur.SectionScores[0].Total != 3 {
		t.Fatalf("section question total = %d, want 3", cur.SectionScores[0].Total)
	}

	// A draft write must not move the rollup.
	submitScore(t, svc, leadActor, a.ID, "q-4", 1, true)
	cur, _ = svc.GetAssessment(ctx, qmActor, a.ID)
	if *cur.OverallScore != 88.9 {
		t.Fatalf("draft write changed overall to %v", *cur.OverallScore)
	}

	// Re-scoring the same question upserts, not duplicates.
	submitScore(t, svc, leadActor, a.ID, "q-2", 3, false)
	cur, _ = svc.GetAssessment(ctx, qmActor, a.ID)
	if *cur.OverallScore != 100 {
		t.Fatalf("after rescore overall = %v, want 100", *cur.OverallScore)
	}
}

func TestRecomputeScoresIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	a := createAssessment(t, svc)
	submitScore(t, svc, leadActor, a.ID, "q-1", 2, false)
	submitScore(t, svc, leadActor, a.ID, "q-4", 3, false)

	first, err := svc.RecomputeScores(ctx, qmActor, a.ID)
	if err != nil {
		t.Fatalf("first recompute: %v", err)
	}
	second, err := svc.RecomputeScores(ctx, qmActor, a.ID)
	if err != nil {
		t.Fatalf("second recompute: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("recompute diverged:\n%+v\n%+v", first, second)
	}
}

func TestEmptyAssessmentScoresZero(t *testing.T) {
	svc, _ := newTestService(t)
	a := createAssessment(t, svc)

	summary, err := svc.RecomputeScores(context.Background(), qmActor, a.ID)
	if err != nil {
		t.Fatalf("RecomputeScores: %v", err)
	}
	if summary.OverallScore != 0 || len(summary.SectionScores) != 0 {
		t.Fatalf("expected empty summary, got %+v", summary)
	}
}

// scoreFailStore makes every snapshot write fail while leaving the rest of
// the store intact.
type scoreFailStore struct{ Store }

func (s scoreFailStore) InTx(ctx context.Context, fn func(Store) error) error {
	return s.Store.InTx(ctx, func(inner Store) error {
		return fn(scoreFailStore{inner})
	})
}

func (s scoreFailStore) Assessments(ctx context.Context) AssessmentStore {
	return failingAssessments{s.Store.Assessments(ctx)}
}

type failingAssessments struct{ AssessmentStore }

func (f failingAssessments) SaveScores(context.Context, string, float64, []SectionScore) error {
	return errors.New("snapshot write refused")
}

func TestRecomputeFailureDoesNotFailResponseWrite(t *testing.T) {
	mem := NewMemory()
	mem.SeedStandard(
		[]StandardSection{{ID: "sec-4", Number: "4", Title: "Context"}},
		[]AuditQuestion{{ID: "q-1", SectionID: "sec-4", Number: "4-01", Text: "q", Active: true}},
	)
	var warnings []string
	svc, err := NewService(scoreFailStore{mem}, WithWarnLogger(func(msg string, _ map[string]any) {
		warnings = append(warnings, msg)
	}))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	a, err := svc.CreateAssessment(context.Background(), qmActor, CreateAssessmentInput{Title: "t", LeadAuditorID: "u-lead"})
	if err != nil {
		t.Fatalf("CreateAssessment: %v", err)
	}

	score := 3
	r, err := svc.UpsertResponse(context.Background(), qmActor, a.ID, ResponseInput{QuestionID: "q-1", Score: &score})
	if err != nil {
		t.Fatalf("response write must survive a failed recompute, got %v", err)
	}
	if r == nil || r.Score == nil || *r.Score != 3 {
		t.Fatalf("response not saved: %+v", r)
	}
	if len(warnings) == 0 {
		t.Fatal("swallowed recompute failure must be logged")
	}
}

func TestGenerateNCRs(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	a := createAssessment(t, svc)

	r1 := submitScore(t, svc, leadActor, a.ID, "q-1", 1, false)
	submitScore(t, svc, leadActor, a.ID, "q-2", 2, false)
	submitScore(t, svc, leadActor, a.ID, "q-3", 3, false)
	submitScore(t, svc, leadActor, a.ID, "q-4", 1, true) // draft, excluded

	created, err := svc.GenerateNCRs(ctx, leadActor, a.ID)
	if err != nil {
		t.Fatalf("GenerateNCRs: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("expected 2 NCRs, got %d", len(created))
	}
	bySeverity := map[Severity]int{}
	for _, n := range created {
		if n.Status != NCROpen {
			t.Fatalf("generated NCR not OPEN: %+v", n)
		}
		bySeverity[n.Severity]++
		if n.ResponseID == r1.ID && n.Severity != SeverityMajor {
			t.Fatalf("score 1 must map to MAJOR, got %s", n.Severity)
		}
	}
	if bySeverity[SeverityMajor] != 1 || bySeverity[SeverityMinor] != 1 {
		t.Fatalf("severity split = %v", bySeverity)
	}

	// Second run fills no gaps and is not an error.
	again, err := svc.GenerateNCRs(ctx, leadActor, a.ID)
	if err != nil {
		t.Fatalf("second GenerateNCRs: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("second run created %d NCRs, want 0", len(again))
	}

	counts, err := svc.NCRSummary(ctx, qmActor, a.ID)
	if err != nil {
		t.Fatalf("NCRSummary: %v", err)
	}
	if counts[NCROpen] != 2 {
		t.Fatalf("summary = %v", counts)
	}
}

func TestNCRLifecycleGuards(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	a := createAssessment(t, svc)

	ncr, err := svc.CreateNCR(ctx, leadActor, a.ID, CreateNCRInput{
		Title:       "Scope not documented",
		Description: "QMS scope is missing",
		Severity:    SeverityMajor,
	})
	if err != nil {
		t.Fatalf("CreateNCR: %v", err)
	}

	// OPEN -> RESOLVED skips a state.
	if _, err := svc.TransitionNCR(ctx, leadActor, ncr.ID, NCRResolved); !errors.Is(err, ErrValidation) {
		t.Fatalf("OPEN->RESOLVED: expected validation error, got %v", err)
	}
	if _, err := svc.TransitionNCR(ctx, leadActor, ncr.ID, NCRInProgress); err != nil {
		t.Fatalf("OPEN->IN_PROGRESS: %v", err)
	}

	// RESOLVED needs at least one action.
	if _, err := svc.TransitionNCR(ctx, leadActor, ncr.ID, NCRResolved); !errors.Is(err, ErrValidation) {
		t.Fatalf("resolve without actions: expected validation error, got %v", err)
	}

	act1, err := svc.CreateAction(ctx, leadActor, ncr.ID, CreateActionInput{
		Description: "Document the QMS scope",
		Priority:    PriorityHigh,
		AssigneeID:  memberActor.UserID,
	})
	if err != nil {
		t.Fatalf("CreateAction: %v", err)
	}
	act2, err := svc.CreateAction(ctx, leadActor, ncr.ID, CreateActionInput{
		Description: "Train staff on the scope statement",
		Priority:    PriorityMedium,
	})
	if err != nil {
		t.Fatalf("CreateAction: %v", err)
	}

	// A pending action still blocks RESOLVED.
	if _, err := svc.TransitionNCR(ctx, leadActor, ncr.ID, NCRResolved); !errors.Is(err, ErrValidation) {
		t.Fatalf("resolve with pending action: expected validation error, got %v", err)
	}

	for _, act := range []*CorrectiveAction{act1, act2} {
		if _, err := svc.TransitionAction(ctx, memberActor, act.ID, ActionInProgress); err != nil {
			t.Fatalf("action to IN_PROGRESS: %v", err)
		}
		done, err := svc.TransitionAction(ctx, memberActor, act.ID, ActionCompleted)
		if err != nil {
			t.Fatalf("action to COMPLETED: %v", err)
		}
		if done.CompletedAt == nil {
			t.Fatal("entering COMPLETED must stamp the completion time")
		}
	}

	if _, err := svc.TransitionNCR(ctx, leadActor, ncr.ID, NCRResolved); err != nil {
		t.Fatalf("resolve with completed actions: %v", err)
	}

	// CLOSED requires a documented root cause.
	if _, err := svc.TransitionNCR(ctx, leadActor, ncr.ID, NCRClosed); !errors.Is(err, ErrValidation) {
		t.Fatalf("close without root cause: expected validation error, got %v", err)
	}
	rootCause := "Scope ownership was never assigned"
	if _, err := svc.UpdateNCR(ctx, leadActor, ncr.ID, UpdateNCRInput{RootCause: &rootCause}); err != nil {
		t.Fatalf("UpdateNCR: %v", err)
	}

	// One action verified, one merely completed: close must fail regardless
	// of root cause.
	if _, err := svc.VerifyAction(ctx, leadActor, act1.ID, "effective"); err != nil {
		t.Fatalf("VerifyAction: %v", err)
	}
	if _, err := svc.TransitionNCR(ctx, leadActor, ncr.ID, NCRClosed); !errors.Is(err, ErrValidation) {
		t.Fatalf("close with unverified action: expected validation error, got %v", err)
	}
	cur, _ := svc.ListNCRs(ctx, leadActor, a.ID)
	if cur[0].Status != NCRResolved {
		t.Fatalf("rejected close modified status to %s", cur[0].Status)
	}

	if _, err := svc.VerifyAction(ctx, qmActor, act2.ID, ""); err != nil {
		t.Fatalf("VerifyAction: %v", err)
	}
	closed, err := svc.TransitionNCR(ctx, leadActor, ncr.ID, NCRClosed)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if closed.Status != NCRClosed {
		t.Fatalf("status = %s, want CLOSED", closed.Status)
	}

	// CLOSED is terminal.
	if _, err := svc.TransitionNCR(ctx, leadActor, ncr.ID, NCRInProgress); !errors.Is(err, ErrValidation) {
		t.Fatalf("reopen closed NCR: expected validation error, got %v", err)
	}
}

func TestVerifyRequiresCompletedAndPrivilege(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	a := createAssessment(t, svc)
	ncr, _ := svc.CreateNCR(ctx, leadActor, a.ID, CreateNCRInput{Title: "n", Severity: SeverityMinor})
	act, _ := svc.CreateAction(ctx, leadActor, ncr.ID, CreateActionInput{Description: "fix", Priority: PriorityLow})

	// Not COMPLETED yet.
	if _, err := svc.VerifyAction(ctx, leadActor, act.ID, ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("verify PENDING: expected validation error, got %v", err)
	}
	if _, err := svc.TransitionAction(ctx, memberActor, act.ID, ActionInProgress); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.TransitionAction(ctx, memberActor, act.ID, ActionCompleted); err != nil {
		t.Fatal(err)
	}

	// Generic status update can never reach VERIFIED.
	if _, err := svc.TransitionAction(ctx, leadActor, act.ID, ActionVerified); !errors.Is(err, ErrValidation) {
		t.Fatalf("transition to VERIFIED: expected validation error, got %v", err)
	}

	// A team-member auditor cannot verify.
	if _, err := svc.VerifyAction(ctx, memberActor, act.ID, ""); !errors.Is(err, ErrAuthorization) {
		t.Fatalf("member verify: expected authorization error, got %v", err)
	}

	verified, err := svc.VerifyAction(ctx, leadActor, act.ID, "spot-checked on site")
	if err != nil {
		t.Fatalf("lead verify: %v", err)
	}
	if verified.VerifiedByID != leadActor.UserID || verified.VerifiedAt == nil {
		t.Fatalf("verification metadata missing: %+v", verified)
	}
	if verified.EffectivenessNotes != "spot-checked on site" {
		t.Fatalf("notes = %q", verified.EffectivenessNotes)
	}

	// Verified actions are immutable.
	desc := "changed"
	if _, err := svc.UpdateAction(ctx, qmActor, act.ID, UpdateActionInput{Description: &desc}); !errors.Is(err, ErrValidation) {
		t.Fatalf("update verified action: expected validation error, got %v", err)
	}
	if err := svc.DeleteAction(ctx, qmActor, act.ID); !errors.Is(err, ErrValidation) {
		t.Fatalf("delete verified action: expected validation error, got %v", err)
	}
}

func TestDeleteGuards(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	a := createAssessment(t, svc)
	ncr, _ := svc.CreateNCR(ctx, leadActor, a.ID, CreateNCRInput{Title: "n", Severity: SeverityMinor})

	// Only admins and quality managers may delete.
	if err := svc.DeleteNCR(ctx, leadActor, ncr.ID); !errors.Is(err, ErrAuthorization) {
		t.Fatalf("auditor delete: expected authorization error, got %v", err)
	}

	if _, err := svc.CreateAction(ctx, leadActor, ncr.ID, CreateActionInput{Description: "fix", Priority: PriorityLow}); err != nil {
		t.Fatal(err)
	}
	if err := svc.DeleteNCR(ctx, qmActor, ncr.ID); !errors.Is(err, ErrValidation) {
		t.Fatalf("delete NCR with actions: expected validation error, got %v", err)
	}

	// Live assessments are archived, not deleted.
	if _, err := svc.TransitionAssessment(ctx, qmActor, a.ID, AssessmentInProgress); err != nil {
		t.Fatal(err)
	}
	if err := svc.DeleteAssessment(ctx, qmActor, a.ID); !errors.Is(err, ErrValidation) {
		t.Fatalf("delete live assessment: expected validation error, got %v", err)
	}
}

func TestCloneAssessment(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	a := createAssessment(t, svc)
	submitScore(t, svc, leadActor, a.ID, "q-1", 3, false)

	clone, err := svc.CloneAssessment(ctx, qmActor, a.ID, "")
	if err != nil {
		t.Fatalf("CloneAssessment: %v", err)
	}
	if clone.PreviousAssessmentID != a.ID {
		t.Fatalf("previous link = %q", clone.PreviousAssessmentID)
	}
	if clone.Status != AssessmentDraft || clone.OverallScore != nil {
		t.Fatalf("clone must start fresh: %+v", clone)
	}
	responses, _ := svc.store.Responses(ctx).ListByAssessment(ctx, clone.ID)
	if len(responses) != 0 {
		t.Fatalf("clone copied %d responses", len(responses))
	}
	// Team roster carries over, so the original lead can keep working.
	if _, err := svc.TransitionAssessment(ctx, leadActor, clone.ID, AssessmentInProgress); err != nil {
		t.Fatalf("lead on cloned team: %v", err)
	}
}

func TestBulkUpsertIsAtomic(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	a := createAssessment(t, svc)

	three, bad := 3, 7
	_, err := svc.BulkUpsertResponses(ctx, leadActor, a.ID, []ResponseInput{
		{QuestionID: "q-1", Score: &three},
		{QuestionID: "q-2", Score: &bad},
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for score 7, got %v", err)
	}
	responses, _ := svc.store.Responses(ctx).ListByAssessment(ctx, a.ID)
	if len(responses) != 0 {
		t.Fatalf("failed bulk write persisted %d responses", len(responses))
	}

	two := 2
	out, err := svc.BulkUpsertResponses(ctx, leadActor, a.ID, []ResponseInput{
		{QuestionID: "q-1", Score: &three},
		{QuestionID: "q-2", Score: &two},
	})
	if err != nil {
		t.Fatalf("bulk upsert: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 responses, got %d", len(out))
	}
	cur, _ := svc.GetAssessment(ctx, qmActor, a.ID)
	if cur.OverallScore == nil || *cur.OverallScore != 83.3 {
		t.Fatalf("overall = %v, want 83.3", cur.OverallScore)
	}
}

func TestResponseLinksNCRExactlyOnce(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	a := createAssessment(t, svc)
	r := submitScore(t, svc, leadActor, a.ID, "q-1", 1, false)

	created, err := svc.GenerateNCRs(ctx, leadActor, a.ID)
	if err != nil {
		t.Fatalf("GenerateNCRs: %v", err)
	}
	if len(created) != 1 || created[0].ResponseID != r.ID || created[0].Severity != SeverityMajor {
		t.Fatalf("unexpected generation result: %+v", created)
	}
	ncrs, _ := svc.ListNCRs(ctx, leadActor, a.ID)
	if len(ncrs) != 1 {
		t.Fatalf("expected exactly one NCR, got %d", len(ncrs))
	}
}
