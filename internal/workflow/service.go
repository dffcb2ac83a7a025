package workflow

import (
	"context"
	"errors"
	"strings"
	"time"

	"conforma.org/internal/ids"
)

// Event describes a workflow change of interest to subscribers (SSE
// dashboards, audit trail).
type Event struct {
	Type           string    `json:"type"`
	OrganizationID string    `json:"organization_id"`
	AssessmentID   string    `json:"assessment_id"`
	EntityID       string    `json:"entity_id"`
	Status         string    `json:"status,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// Service is the workflow orchestrator. Every mutating operation resolves
// organization scope first, then an access-gate predicate, then the relevant
// transition table and guards, and only then writes — inside one transaction
// so concurrent transitions on the same entity cannot interleave.
type Service struct {
	store   Store
	now     func() time.Time
	publish func(Event)
	warn    func(msg string, fields map[string]any)
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithEventSink wires a fan-out target for workflow events.
func WithEventSink(fn func(Event)) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.publish = fn
		}
	}
}

// WithWarnLogger wires the logger used for swallowed side-effect failures.
func WithWarnLogger(fn func(msg string, fields map[string]any)) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.warn = fn
		}
	}
}

// NewService constructs the orchestrator.
func NewService(store Store, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("workflow: store is required")
	}
	s := &Service{
		store:   store,
		now:     time.Now,
		publish: func(Event) {},
		warn:    func(string, map[string]any) {},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Service) emit(eventType string, a *Assessment, entityID, status string) {
	s.publish(Event{
		Type:           eventType,
		OrganizationID: a.OrganizationID,
		AssessmentID:   a.ID,
		EntityID:       entityID,
		Status:         status,
		OccurredAt:     s.now().UTC(),
	})
}

// findAssessment resolves an assessment within the caller's organization.
// A cross-tenant hit reports not-found, never forbidden.
func (s *Service) findAssessment(ctx context.Context, st Store, actor Actor, id string) (*Assessment, error) {
	a, err := st.Assessments(ctx).Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role != RoleSystemAdmin && a.OrganizationID != actor.OrganizationID {
		return nil, notFound("assessment " + id)
	}
	return a, nil
}

func (s *Service) acl(ctx context.Context, st Store, a *Assessment) (AssessmentACL, error) {
	team, err := st.Assessments(ctx).Team(ctx, a.ID)
	if err != nil {
		return AssessmentACL{}, err
	}
	return NewAssessmentACL(*a, team), nil
}

// requireManage resolves org scope and the manage predicate in one step.
func (s *Service) requireManage(ctx context.Context, st Store, actor Actor, assessmentID, action string) (*Assessment, error) {
	a, err := s.findAssessment(ctx, st, actor, assessmentID)
	if err != nil {
		return nil, err
	}
	acl, err := s.acl(ctx, st, a)
	if err != nil {
		return nil, err
	}
	if !CanManage(acl, actor.UserID, actor.Role) {
		return nil, forbidden(action)
	}
	return a, nil
}

// --- Assessments -----------------------------------------------------------

// CreateAssessmentInput carries the fields a caller may set at creation.
type CreateAssessmentInput struct {
	Title         string
	AuditType     string
	LeadAuditorID string
	TemplateID    string
	ScheduledAt   *time.Time
	DueAt         *time.Time
}

// CreateAssessment creates a DRAFT assessment in the caller's organization and
// enrolls the lead auditor on the team.
func (s *Service) CreateAssessment(ctx context.Context, actor Actor, in CreateAssessmentInput) (*Assessment, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, invalid("title is required")
	}
	lead := strings.TrimSpace(in.LeadAuditorID)
	if lead == "" {
		lead = actor.UserID
	}
	acl := AssessmentACL{LeadAuditorID: lead}
	if !CanManage(acl, actor.UserID, actor.Role) {
		return nil, forbidden("create assessment")
	}

	now := s.now().UTC()
	a := &Assessment{
		ID:             ids.New(),
		OrganizationID: actor.OrganizationID,
		Title:          title,
		Status:         AssessmentDraft,
		AuditType:      strings.TrimSpace(in.AuditType),
		LeadAuditorID:  lead,
		TemplateID:     strings.TrimSpace(in.TemplateID),
		ScheduledAt:    in.ScheduledAt,
		DueAt:          in.DueAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	err := s.store.InTx(ctx, func(st Store) error {
		if err := st.Assessments(ctx).Create(ctx, a); err != nil {
			return err
		}
		return st.Assessments(ctx).UpsertTeamMember(ctx, TeamMember{
			AssessmentID: a.ID,
			UserID:       lead,
			TeamRole:     TeamRoleLeadAuditor,
			CreatedAt:    now,
		})
	})
	if err != nil {
		return nil, err
	}
	s.emit("assessment.created", a, a.ID, string(a.Status))
	return a, nil
}

// UpdateAssessmentInput carries optional field updates; nil means unchanged.
type UpdateAssessmentInput struct {
	Title         *string
	AuditType     *string
	LeadAuditorID *string
	ScheduledAt   *time.Time
	DueAt         *time.Time
}

// UpdateAssessment mutates descriptive fields. Status changes go through
// TransitionAssessment only.
func (s *Service) UpdateAssessment(ctx context.Context, actor Actor, id string, in UpdateAssessmentInput) (*Assessment, error) {
	var out *Assessment
	err := s.store.InTx(ctx, func(st Store) error {
		a, err := s.requireManage(ctx, st, actor, id, "update assessment")
		if err != nil {
			return err
		}
		if in.Title != nil {
			title := strings.TrimSpace(*in.Title)
			if title == "" {
				return invalid("title is required")
			}
			a.Title = title
		}
		if in.AuditType != nil {
			a.AuditType = strings.TrimSpace(*in.AuditType)
		}
		if in.LeadAuditorID != nil {
			lead := strings.TrimSpace(*in.LeadAuditorID)
			if lead == "" {
				return invalid("lead auditor is required")
			}
			a.LeadAuditorID = lead
			if err := st.Assessments(ctx).UpsertTeamMember(ctx, TeamMember{
				AssessmentID: a.ID,
				UserID:       lead,
				TeamRole:     TeamRoleLeadAuditor,
				CreatedAt:    s.now().UTC(),
			}); err != nil {
				return err
			}
		}
		if in.ScheduledAt != nil {
			a.ScheduledAt = in.ScheduledAt
		}
		if in.DueAt != nil {
			a.DueAt = in.DueAt
		}
		a.UpdatedAt = s.now().UTC()
		if err := st.Assessments(ctx).Update(ctx, a); err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteAssessment removes a DRAFT assessment that has no responses yet.
// Anything live must be archived instead.
func (s *Service) DeleteAssessment(ctx context.Context, actor Actor, id string) error {
	if !CanDelete(actor.Role) {
		return forbidden("delete assessment")
	}
	return s.store.InTx(ctx, func(st Store) error {
		a, err := s.findAssessment(ctx, st, actor, id)
		if err != nil {
			return err
		}
		if a.Status != AssessmentDraft {
			return invalid("cannot delete assessment in %s: archive it instead", a.Status)
		}
		responses, err := st.Responses(ctx).ListByAssessment(ctx, a.ID)
		if err != nil {
			return err
		}
		if len(responses) > 0 {
			return invalid("cannot delete assessment with recorded responses: archive it instead")
		}
		return st.Assessments(ctx).Delete(ctx, a.ID)
	})
}

// CloneAssessment creates a fresh DRAFT copy linked to its source: same
// title/type/template/team, no responses, no scores.
func (s *Service) CloneAssessment(ctx context.Context, actor Actor, id, title string) (*Assessment, error) {
	var clone *Assessment
	err := s.store.InTx(ctx, func(st Store) error {
		src, err := s.requireManage(ctx, st, actor, id, "clone assessment")
		if err != nil {
			return err
		}
		title = strings.TrimSpace(title)
		if title == "" {
			title = src.Title + " (copy)"
		}
		now := s.now().UTC()
		clone = &Assessment{
			ID:                   ids.New(),
			OrganizationID:       src.OrganizationID,
			Title:                title,
			Status:               AssessmentDraft,
			AuditType:            src.AuditType,
			LeadAuditorID:        src.LeadAuditorID,
			TemplateID:           src.TemplateID,
			PreviousAssessmentID: src.ID,
			CreatedAt:            now,
			UpdatedAt:            now,
		}
		if err := st.Assessments(ctx).Create(ctx, clone); err != nil {
			return err
		}
		team, err := st.Assessments(ctx).Team(ctx, src.ID)
		if err != nil {
			return err
		}
		for _, m := range team {
			m.AssessmentID = clone.ID
			m.CreatedAt = now
			if err := st.Assessments(ctx).UpsertTeamMember(ctx, m); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.emit("assessment.cloned", clone, clone.ID, string(clone.Status))
	return clone, nil
}

// TransitionAssessment moves the assessment along one edge of its state
// machine. ARCHIVED -> DRAFT serves as restore. Entering COMPLETED stamps the
// completion time.
func (s *Service) TransitionAssessment(ctx context.Context, actor Actor, id string, target AssessmentStatus) (*Assessment, error) {
	var out *Assessment
	err := s.store.InTx(ctx, func(st Store) error {
		a, err := s.requireManage(ctx, st, actor, id, "transition assessment")
		if err != nil {
			return err
		}
		if err := CheckAssessmentTransition(a.Status, target); err != nil {
			return err
		}
		a.Status = target
		now := s.now().UTC()
		if target == AssessmentCompleted {
			a.CompletedAt = &now
		}
		a.UpdatedAt = now
		if err := st.Assessments(ctx).Update(ctx, a); err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.emit("assessment.status", out, out.ID, string(out.Status))
	return out, nil
}

// AddTeamMember enrolls a user on the assessment team.
func (s *Service) AddTeamMember(ctx context.Context, actor Actor, assessmentID, userID, teamRole string) error {
	teamRole = strings.TrimSpace(teamRole)
	if teamRole != TeamRoleLeadAuditor && teamRole != TeamRoleAuditor {
		return invalid("unknown team role %q", teamRole)
	}
	return s.store.InTx(ctx, func(st Store) error {
		a, err := s.requireManage(ctx, st, actor, assessmentID, "manage assessment team")
		if err != nil {
			return err
		}
		return st.Assessments(ctx).UpsertTeamMember(ctx, TeamMember{
			AssessmentID: a.ID,
			UserID:       strings.TrimSpace(userID),
			TeamRole:     teamRole,
			CreatedAt:    s.now().UTC(),
		})
	})
}

// GetAssessment returns one assessment within the caller's organization.
func (s *Service) GetAssessment(ctx context.Context, actor Actor, id string) (*Assessment, error) {
	return s.findAssessment(ctx, s.store, actor, id)
}

// ListAssessments returns the caller organization's assessments.
func (s *Service) ListAssessments(ctx context.Context, actor Actor) ([]*Assessment, error) {
	return s.store.Assessments(ctx).ListByOrg(ctx, actor.OrganizationID)
}

// --- Scoring ---------------------------------------------------------------

// RecomputeScores aggregates the assessment's non-draft responses and
// persists the snapshot atomically. Safe to call repeatedly: with no
// intervening writes the output is identical.
func (s *Service) RecomputeScores(ctx context.Context, actor Actor, assessmentID string) (ScoreSummary, error) {
	var summary ScoreSummary
	err := s.store.InTx(ctx, func(st Store) error {
		a, err := s.requireManage(ctx, st, actor, assessmentID, "recompute scores")
		if err != nil {
			return err
		}
		summary, err = s.recompute(ctx, st, a)
		return err
	})
	if err != nil {
		return ScoreSummary{}, err
	}
	return summary, nil
}

func (s *Service) recompute(ctx context.Context, st Store, a *Assessment) (ScoreSummary, error) {
	responses, err := st.Responses(ctx).ListByAssessment(ctx, a.ID)
	if err != nil {
		return ScoreSummary{}, err
	}
	sections, totals, err := s.standardIndex(ctx, st)
	if err != nil {
		return ScoreSummary{}, err
	}
	summary := ComputeScores(responses, sections, totals)
	if err := st.Assessments(ctx).SaveScores(ctx, a.ID, summary.OverallScore, summary.SectionScores); err != nil {
		return ScoreSummary{}, err
	}
	return summary, nil
}

func (s *Service) standardIndex(ctx context.Context, st Store) (map[string]StandardSection, map[string]int, error) {
	sections, err := st.Standard(ctx).Sections(ctx)
	if err != nil {
		return nil, nil, err
	}
	secIndex := make(map[string]StandardSection, len(sections))
	for _, sec := range sections {
		secIndex[sec.ID] = sec
	}
	questions, err := st.Standard(ctx).Questions(ctx, true)
	if err != nil {
		return nil, nil, err
	}
	totals := make(map[string]int)
	for _, q := range questions {
		totals[q.SectionID]++
	}
	return secIndex, totals, nil
}

// refreshScoresBestEffort recomputes after a response write. A failure here
// must not fail the write that triggered it; it is logged and counted instead.
func (s *Service) refreshScoresBestEffort(ctx context.Context, a *Assessment) {
	err := s.store.InTx(ctx, func(st Store) error {
		_, err := s.recompute(ctx, st, a)
		return err
	})
	if err != nil {
		s.warn("score recompute failed after response write", map[string]any{
			"assessment_id": a.ID,
			"error":         err.Error(),
		})
	}
}

// --- Responses -------------------------------------------------------------

// ResponseInput is one score submission.
type ResponseInput struct {
	QuestionID    string
	Score         *int
	Justification string
	Draft         bool
}

// UpsertResponse writes one response keyed by (assessment, question),
// denormalizing the section from the question at write time, then refreshes
// scores best-effort when the response is not a draft.
func (s *Service) UpsertResponse(ctx context.Context, actor Actor, assessmentID string, in ResponseInput) (*Response, error) {
	var (
		out        *Response
		assessment *Assessment
	)
	err := s.store.InTx(ctx, func(st Store) error {
		a, err := s.requireManage(ctx, st, actor, assessmentID, "record response")
		if err != nil {
			return err
		}
		r, err := s.buildResponse(ctx, st, a, actor, in)
		if err != nil {
			return err
		}
		if err := st.Responses(ctx).Upsert(ctx, r); err != nil {
			return err
		}
		out = r
		assessment = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !out.Draft {
		s.refreshScoresBestEffort(ctx, assessment)
	}
	return out, nil
}

// SaveDraftResponse records a response without finalizing it. Drafts are
// excluded from scoring and NCR generation.
func (s *Service) SaveDraftResponse(ctx context.Context, actor Actor, assessmentID string, in ResponseInput) (*Response, error) {
	in.Draft = true
	return s.UpsertResponse(ctx, actor, assessmentID, in)
}

// BulkUpsertResponses writes a batch of responses in one transaction and
// refreshes scores once afterwards, best-effort.
func (s *Service) BulkUpsertResponses(ctx context.Context, actor Actor, assessmentID string, inputs []ResponseInput) ([]Response, error) {
	if len(inputs) == 0 {
		return nil, invalid("at least one response is required")
	}
	var (
		out        []Response
		assessment *Assessment
		finalized  bool
	)
	err := s.store.InTx(ctx, func(st Store) error {
		a, err := s.requireManage(ctx, st, actor, assessmentID, "record responses")
		if err != nil {
			return err
		}
		out = out[:0]
		for _, in := range inputs {
			r, err := s.buildResponse(ctx, st, a, actor, in)
			if err != nil {
				return err
			}
			if err := st.Responses(ctx).Upsert(ctx, r); err != nil {
				return err
			}
			if !r.Draft {
				finalized = true
			}
			out = append(out, *r)
		}
		assessment = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	if finalized {
		s.refreshScoresBestEffort(ctx, assessment)
	}
	return out, nil
}

// ListResponses returns the assessment's responses, drafts included.
func (s *Service) ListResponses(ctx context.Context, actor Actor, assessmentID string) ([]Response, error) {
	a, err := s.findAssessment(ctx, s.store, actor, assessmentID)
	if err != nil {
		return nil, err
	}
	return s.store.Responses(ctx).ListByAssessment(ctx, a.ID)
}

func (s *Service) buildResponse(ctx context.Context, st Store, a *Assessment, actor Actor, in ResponseInput) (*Response, error) {
	questionID := strings.TrimSpace(in.QuestionID)
	if questionID == "" {
		return nil, invalid("question_id is required")
	}
	if in.Score != nil && (*in.Score < 1 || *in.Score > maxScorePerQuestion) {
		return nil, invalid("score must be between 1 and %d", maxScorePerQuestion)
	}
	q, err := st.Standard(ctx).Question(ctx, questionID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	return &Response{
		ID:            ids.New(),
		AssessmentID:  a.ID,
		QuestionID:    q.ID,
		SectionID:     q.SectionID,
		Score:         in.Score,
		Justification: strings.TrimSpace(in.Justification),
		Draft:         in.Draft,
		UpdatedByID:   actor.UserID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// --- Non-conformities ------------------------------------------------------

// CreateNCRInput carries the fields for a manually raised non-conformity.
type CreateNCRInput struct {
	ResponseID      string
	Title           string
	Description     string
	Severity        Severity
	RootCause       string
	RootCauseMethod string
}

// CreateNCR raises a non-conformity against an assessment, optionally linked
// to the response that triggered it.
func (s *Service) CreateNCR(ctx context.Context, actor Actor, assessmentID string, in CreateNCRInput) (*NonConformity, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, invalid("title is required")
	}
	if !in.Severity.Valid() {
		return nil, invalid("unknown severity %q", in.Severity)
	}
	var (
		out        *NonConformity
		assessment *Assessment
	)
	err := s.store.InTx(ctx, func(st Store) error {
		a, err := s.requireManage(ctx, st, actor, assessmentID, "create non-conformity")
		if err != nil {
			return err
		}
		responseID := strings.TrimSpace(in.ResponseID)
		if responseID != "" {
			r, err := st.Responses(ctx).Find(ctx, responseID)
			if err != nil {
				return err
			}
			if r.AssessmentID != a.ID {
				return invalid("response %s does not belong to assessment %s", responseID, a.ID)
			}
		}
		now := s.now().UTC()
		out = &NonConformity{
			ID:              ids.New(),
			AssessmentID:    a.ID,
			ResponseID:      responseID,
			Title:           title,
			Description:     strings.TrimSpace(in.Description),
			Severity:        in.Severity,
			Status:          NCROpen,
			RootCause:       strings.TrimSpace(in.RootCause),
			RootCauseMethod: strings.TrimSpace(in.RootCauseMethod),
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		assessment = a
		return st.NonConformities(ctx).Create(ctx, out)
	})
	if err != nil {
		return nil, err
	}
	s.emit("ncr.created", assessment, out.ID, string(out.Status))
	return out, nil
}

// UpdateNCRInput carries optional field updates; nil means unchanged.
// Status is not updatable here; use TransitionNCR.
type UpdateNCRInput struct {
	Title           *string
	Description     *string
	Severity        *Severity
	RootCause       *string
	RootCauseMethod *string
}

// UpdateNCR mutates descriptive fields of a non-conformity.
func (s *Service) UpdateNCR(ctx context.Context, actor Actor, ncrID string, in UpdateNCRInput) (*NonConformity, error) {
	var out *NonConformity
	err := s.store.InTx(ctx, func(st Store) error {
		n, _, err := s.resolveNCR(ctx, st, actor, ncrID, "update non-conformity")
		if err != nil {
			return err
		}
		if in.Title != nil {
			title := strings.TrimSpace(*in.Title)
			if title == "" {
				return invalid("title is required")
			}
			n.Title = title
		}
		if in.Description != nil {
			n.Description = strings.TrimSpace(*in.Description)
		}
		if in.Severity != nil {
			if !in.Severity.Valid() {
				return invalid("unknown severity %q", *in.Severity)
			}
			n.Severity = *in.Severity
		}
		if in.RootCause != nil {
			n.RootCause = strings.TrimSpace(*in.RootCause)
		}
		if in.RootCauseMethod != nil {
			n.RootCauseMethod = strings.TrimSpace(*in.RootCauseMethod)
		}
		n.UpdatedAt = s.now().UTC()
		if err := st.NonConformities(ctx).Update(ctx, n); err != nil {
			return err
		}
		out = n
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteNCR removes a non-conformity that has no corrective actions.
func (s *Service) DeleteNCR(ctx context.Context, actor Actor, ncrID string) error {
	if !CanDelete(actor.Role) {
		return forbidden("delete non-conformity")
	}
	return s.store.InTx(ctx, func(st Store) error {
		n, err := st.NonConformities(ctx).Find(ctx, ncrID)
		if err != nil {
			return err
		}
		if _, err := s.findAssessment(ctx, st, actor, n.AssessmentID); err != nil {
			return err
		}
		actions, err := st.Actions(ctx).ListByNCR(ctx, n.ID)
		if err != nil {
			return err
		}
		if len(actions) > 0 {
			return invalid("cannot delete non-conformity with corrective actions")
		}
		return st.NonConformities(ctx).Delete(ctx, n.ID)
	})
}

// TransitionNCR moves a non-conformity along one edge of its machine,
// enforcing the cross-entity guards at transition time against a fresh read
// of the action set. Guard order: enum membership, edge, RESOLVED condition,
// CLOSED condition; first failure wins and nothing is written.
func (s *Service) TransitionNCR(ctx context.Context, actor Actor, ncrID string, target NCRStatus) (*NonConformity, error) {
	var (
		out        *NonConformity
		assessment *Assessment
	)
	err := s.store.InTx(ctx, func(st Store) error {
		n, a, err := s.resolveNCR(ctx, st, actor, ncrID, "transition non-conformity")
		if err != nil {
			return err
		}
		if err := CheckNCRTransition(n.Status, target); err != nil {
			return err
		}
		actions, err := st.Actions(ctx).ListByNCR(ctx, n.ID)
		if err != nil {
			return err
		}
		switch target {
		case NCRResolved:
			if len(actions) == 0 {
				return invalid("cannot resolve: no corrective actions recorded")
			}
			for _, act := range actions {
				if act.Status != ActionCompleted && act.Status != ActionVerified {
					return invalid("cannot resolve: corrective action %s is %s", act.ID, act.Status)
				}
			}
		case NCRClosed:
			if strings.TrimSpace(n.RootCause) == "" {
				return invalid("cannot close: root cause is not documented")
			}
			for _, act := range actions {
				if act.Status != ActionVerified {
					return invalid("cannot close: corrective actions not all verified")
				}
			}
		}
		n.Status = target
		n.UpdatedAt = s.now().UTC()
		if err := st.NonConformities(ctx).Update(ctx, n); err != nil {
			return err
		}
		out = n
		assessment = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.emit("ncr.status", assessment, out.ID, string(out.Status))
	return out, nil
}

// GenerateNCRs derives OPEN non-conformities from every failing non-draft
// response that does not already have one, in one atomic batch. Running it
// again creates nothing new. A run with no qualifying responses is a success
// with an empty result.
func (s *Service) GenerateNCRs(ctx context.Context, actor Actor, assessmentID string) ([]NonConformity, error) {
	var (
		created    []NonConformity
		assessment *Assessment
	)
	err := s.store.InTx(ctx, func(st Store) error {
		a, err := s.requireManage(ctx, st, actor, assessmentID, "generate non-conformities")
		if err != nil {
			return err
		}
		responses, err := st.Responses(ctx).ListByAssessment(ctx, a.ID)
		if err != nil {
			return err
		}
		existing, err := st.NonConformities(ctx).ResponseRefs(ctx, a.ID)
		if err != nil {
			return err
		}
		sections, _, err := s.standardIndex(ctx, st)
		if err != nil {
			return err
		}
		questions, err := st.Standard(ctx).Questions(ctx, false)
		if err != nil {
			return err
		}
		qIndex := make(map[string]AuditQuestion, len(questions))
		for _, q := range questions {
			qIndex[q.ID] = q
		}

		derived := deriveNonConformities(*a, responses, existing, qIndex, sections)
		if len(derived) == 0 {
			assessment = a
			return nil
		}
		now := s.now().UTC()
		batch := make([]*NonConformity, len(derived))
		for i := range derived {
			derived[i].ID = ids.New()
			derived[i].CreatedAt = now
			derived[i].UpdatedAt = now
			batch[i] = &derived[i]
		}
		if err := st.NonConformities(ctx).CreateBatch(ctx, batch); err != nil {
			return err
		}
		created = derived
		assessment = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, n := range created {
		s.emit("ncr.generated", assessment, n.ID, string(n.Status))
	}
	return created, nil
}

// NCRSummary returns grouped counts by status for one assessment.
func (s *Service) NCRSummary(ctx context.Context, actor Actor, assessmentID string) (map[NCRStatus]int, error) {
	a, err := s.findAssessment(ctx, s.store, actor, assessmentID)
	if err != nil {
		return nil, err
	}
	return s.store.NonConformities(ctx).CountByStatus(ctx, a.ID)
}

// ListNCRs returns the assessment's non-conformities.
func (s *Service) ListNCRs(ctx context.Context, actor Actor, assessmentID string) ([]NonConformity, error) {
	a, err := s.findAssessment(ctx, s.store, actor, assessmentID)
	if err != nil {
		return nil, err
	}
	return s.store.NonConformities(ctx).ListByAssessment(ctx, a.ID)
}

// resolveNCR loads an NCR, checks org scope through its assessment and
// applies the manage predicate.
func (s *Service) resolveNCR(ctx context.Context, st Store, actor Actor, ncrID, action string) (*NonConformity, *Assessment, error) {
	n, err := st.NonConformities(ctx).Find(ctx, ncrID)
	if err != nil {
		return nil, nil, err
	}
	a, err := s.findAssessment(ctx, st, actor, n.AssessmentID)
	if err != nil {
		return nil, nil, err
	}
	acl, err := s.acl(ctx, st, a)
	if err != nil {
		return nil, nil, err
	}
	if !CanManage(acl, actor.UserID, actor.Role) {
		return nil, nil, forbidden(action)
	}
	return n, a, nil
}

// --- Corrective actions ----------------------------------------------------

// CreateActionInput carries the fields for a new corrective action.
type CreateActionInput struct {
	Description string
	Priority    Priority
	AssigneeID  string
	TargetDate  *time.Time
}

// CreateAction records a PENDING corrective action against an NCR.
func (s *Service) CreateAction(ctx context.Context, actor Actor, ncrID string, in CreateActionInput) (*CorrectiveAction, error) {
	description := strings.TrimSpace(in.Description)
	if description == "" {
		return nil, invalid("description is required")
	}
	if !in.Priority.Valid() {
		return nil, invalid("unknown priority %q", in.Priority)
	}
	var (
		out        *CorrectiveAction
		assessment *Assessment
	)
	err := s.store.InTx(ctx, func(st Store) error {
		n, a, err := s.resolveNCR(ctx, st, actor, ncrID, "create corrective action")
		if err != nil {
			return err
		}
		now := s.now().UTC()
		out = &CorrectiveAction{
			ID:              ids.New(),
			NonConformityID: n.ID,
			Description:     description,
			Priority:        in.Priority,
			Status:          ActionPending,
			AssigneeID:      strings.TrimSpace(in.AssigneeID),
			TargetDate:      in.TargetDate,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		assessment = a
		return st.Actions(ctx).Create(ctx, out)
	})
	if err != nil {
		return nil, err
	}
	s.emit("action.created", assessment, out.ID, string(out.Status))
	return out, nil
}

// UpdateActionInput carries optional field updates; nil means unchanged.
type UpdateActionInput struct {
	Description *string
	Priority    *Priority
	AssigneeID  *string
	TargetDate  *time.Time
}

// UpdateAction mutates a corrective action. VERIFIED actions are immutable.
func (s *Service) UpdateAction(ctx context.Context, actor Actor, actionID string, in UpdateActionInput) (*CorrectiveAction, error) {
	var out *CorrectiveAction
	err := s.store.InTx(ctx, func(st Store) error {
		act, _, _, err := s.resolveAction(ctx, st, actor, actionID, "update corrective action")
		if err != nil {
			return err
		}
		if act.Status == ActionVerified {
			return invalid("corrective action %s is verified and immutable", act.ID)
		}
		if in.Description != nil {
			description := strings.TrimSpace(*in.Description)
			if description == "" {
				return invalid("description is required")
			}
			act.Description = description
		}
		if in.Priority != nil {
			if !in.Priority.Valid() {
				return invalid("unknown priority %q", *in.Priority)
			}
			act.Priority = *in.Priority
		}
		if in.AssigneeID != nil {
			act.AssigneeID = strings.TrimSpace(*in.AssigneeID)
		}
		if in.TargetDate != nil {
			act.TargetDate = in.TargetDate
		}
		act.UpdatedAt = s.now().UTC()
		if err := st.Actions(ctx).Update(ctx, act); err != nil {
			return err
		}
		out = act
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AssignAction reassigns a corrective action to a user.
func (s *Service) AssignAction(ctx context.Context, actor Actor, actionID, assigneeID string) (*CorrectiveAction, error) {
	assigneeID = strings.TrimSpace(assigneeID)
	if assigneeID == "" {
		return nil, invalid("assignee is required")
	}
	return s.UpdateAction(ctx, actor, actionID, UpdateActionInput{AssigneeID: &assigneeID})
}

// DeleteAction removes a corrective action that has not been verified.
func (s *Service) DeleteAction(ctx context.Context, actor Actor, actionID string) error {
	if !CanDelete(actor.Role) {
		return forbidden("delete corrective action")
	}
	return s.store.InTx(ctx, func(st Store) error {
		act, err := st.Actions(ctx).Find(ctx, actionID)
		if err != nil {
			return err
		}
		n, err := st.NonConformities(ctx).Find(ctx, act.NonConformityID)
		if err != nil {
			return err
		}
		if _, err := s.findAssessment(ctx, st, actor, n.AssessmentID); err != nil {
			return err
		}
		if act.Status == ActionVerified {
			return invalid("corrective action %s is verified and immutable", act.ID)
		}
		return st.Actions(ctx).Delete(ctx, act.ID)
	})
}

// TransitionAction moves a corrective action along one edge of its machine.
// VERIFIED is not reachable here; entering COMPLETED stamps the completion
// time.
func (s *Service) TransitionAction(ctx context.Context, actor Actor, actionID string, target ActionStatus) (*CorrectiveAction, error) {
	var (
		out        *CorrectiveAction
		assessment *Assessment
	)
	err := s.store.InTx(ctx, func(st Store) error {
		act, _, a, err := s.resolveAction(ctx, st, actor, actionID, "transition corrective action")
		if err != nil {
			return err
		}
		if err := CheckActionTransition(act.Status, target); err != nil {
			return err
		}
		act.Status = target
		now := s.now().UTC()
		if target == ActionCompleted {
			act.CompletedAt = &now
		}
		act.UpdatedAt = now
		if err := st.Actions(ctx).Update(ctx, act); err != nil {
			return err
		}
		out = act
		assessment = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.emit("action.status", assessment, out.ID, string(out.Status))
	return out, nil
}

// VerifyAction performs the elevated terminal confirmation of a COMPLETED
// corrective action, recording verifier, timestamp and effectiveness notes.
func (s *Service) VerifyAction(ctx context.Context, actor Actor, actionID, effectivenessNotes string) (*CorrectiveAction, error) {
	var (
		out        *CorrectiveAction
		assessment *Assessment
	)
	err := s.store.InTx(ctx, func(st Store) error {
		act, _, a, err := s.resolveActionUnmanaged(ctx, st, actor, actionID)
		if err != nil {
			return err
		}
		acl, err := s.acl(ctx, st, a)
		if err != nil {
			return err
		}
		if !CanVerify(acl, actor.UserID, actor.Role) {
			return forbidden("verify corrective action")
		}
		if act.Status != ActionCompleted {
			return invalid("cannot verify corrective action in %s: it must be COMPLETED", act.Status)
		}
		now := s.now().UTC()
		act.Status = ActionVerified
		act.VerifiedByID = actor.UserID
		act.VerifiedAt = &now
		act.EffectivenessNotes = strings.TrimSpace(effectivenessNotes)
		act.UpdatedAt = now
		if err := st.Actions(ctx).Update(ctx, act); err != nil {
			return err
		}
		out = act
		assessment = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.emit("action.verified", assessment, out.ID, string(out.Status))
	return out, nil
}

// ActionSummary returns grouped counts by status for one NCR.
func (s *Service) ActionSummary(ctx context.Context, actor Actor, ncrID string) (map[ActionStatus]int, error) {
	n, err := s.store.NonConformities(ctx).Find(ctx, ncrID)
	if err != nil {
		return nil, err
	}
	if _, err := s.findAssessment(ctx, s.store, actor, n.AssessmentID); err != nil {
		return nil, err
	}
	return s.store.Actions(ctx).CountByStatus(ctx, n.ID)
}

// ListActions returns the NCR's corrective actions.
func (s *Service) ListActions(ctx context.Context, actor Actor, ncrID string) ([]CorrectiveAction, error) {
	n, err := s.store.NonConformities(ctx).Find(ctx, ncrID)
	if err != nil {
		return nil, err
	}
	if _, err := s.findAssessment(ctx, s.store, actor, n.AssessmentID); err != nil {
		return nil, err
	}
	return s.store.Actions(ctx).ListByNCR(ctx, n.ID)
}

func (s *Service) resolveAction(ctx context.Context, st Store, actor Actor, actionID, action string) (*CorrectiveAction, *NonConformity, *Assessment, error) {
	act, n, a, err := s.resolveActionUnmanaged(ctx, st, actor, actionID)
	if err != nil {
		return nil, nil, nil, err
	}
	acl, err := s.acl(ctx, st, a)
	if err != nil {
		return nil, nil, nil, err
	}
	if !CanManage(acl, actor.UserID, actor.Role) {
		return nil, nil, nil, forbidden(action)
	}
	return act, n, a, nil
}

func (s *Service) resolveActionUnmanaged(ctx context.Context, st Store, actor Actor, actionID string) (*CorrectiveAction, *NonConformity, *Assessment, error) {
	act, err := st.Actions(ctx).Find(ctx, actionID)
	if err != nil {
		return nil, nil, nil, err
	}
	n, err := st.NonConformities(ctx).Find(ctx, act.NonConformityID)
	if err != nil {
		return nil, nil, nil, err
	}
	a, err := s.findAssessment(ctx, st, actor, n.AssessmentID)
	if err != nil {
		return nil, nil, nil, err
	}
	return act, n, a, nil
}

