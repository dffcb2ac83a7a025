package workflow

import "context"

// Store describes the persistence operations the workflow core consumes.
// Implementations must return ErrNotFound for missing rows so the orchestrator
// can classify failures without knowing the backend.
type Store interface {
	// InTx runs fn against a store bound to one atomic transaction.
	// Read-modify-write sequences and multi-row inserts in the orchestrator
	// always go through here so a concurrent transition on the same entity
	// cannot interleave.
	InTx(ctx context.Context, fn func(Store) error) error

	Organizations(ctx context.Context) OrganizationStore
	Users(ctx context.Context) UserStore
	Assessments(ctx context.Context) AssessmentStore
	Responses(ctx context.Context) ResponseStore
	NonConformities(ctx context.Context) NonConformityStore
	Actions(ctx context.Context) ActionStore
	Standard(ctx context.Context) StandardStore
}

// OrganizationStore manages tenants.
type OrganizationStore interface {
	Create(ctx context.Context, org *Organization) error
	Find(ctx context.Context, id string) (*Organization, error)
	List(ctx context.Context) ([]*Organization, error)
}

// UserStore manages accounts. Deactivation is an update, never a delete.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	Update(ctx context.Context, u *User) error
}

// AssessmentStore manages audit instances and their team roster.
type AssessmentStore interface {
	Create(ctx context.Context, a *Assessment) error
	Find(ctx context.Context, id string) (*Assessment, error)
	ListByOrg(ctx context.Context, orgID string) ([]*Assessment, error)
	Update(ctx context.Context, a *Assessment) error
	Delete(ctx context.Context, id string) error

	Team(ctx context.Context, assessmentID string) ([]TeamMember, error)
	UpsertTeamMember(ctx context.Context, m TeamMember) error

	// SaveScores persists the overall score and the full section snapshot
	// as one atomic write.
	SaveScores(ctx context.Context, assessmentID string, overall float64, sections []SectionScore) error
}

// ResponseStore manages question responses, unique per (assessment, question).
type ResponseStore interface {
	Upsert(ctx context.Context, r *Response) error
	Find(ctx context.Context, id string) (*Response, error)
	ListByAssessment(ctx context.Context, assessmentID string) ([]Response, error)
}

// NonConformityStore manages NCRs.
type NonConformityStore interface {
	Create(ctx context.Context, n *NonConformity) error
	// CreateBatch inserts all rows or none.
	CreateBatch(ctx context.Context, batch []*NonConformity) error
	Find(ctx context.Context, id string) (*NonConformity, error)
	ListByAssessment(ctx context.Context, assessmentID string) ([]NonConformity, error)
	Update(ctx context.Context, n *NonConformity) error
	Delete(ctx context.Context, id string) error

	// ResponseRefs returns the set of response IDs that already have an NCR
	// within the assessment.
	ResponseRefs(ctx context.Context, assessmentID string) (map[string]struct{}, error)
	CountByStatus(ctx context.Context, assessmentID string) (map[NCRStatus]int, error)
}

// ActionStore manages corrective actions.
type ActionStore interface {
	Create(ctx context.Context, a *CorrectiveAction) error
	Find(ctx context.Context, id string) (*CorrectiveAction, error)
	ListByNCR(ctx context.Context, ncrID string) ([]CorrectiveAction, error)
	Update(ctx context.Context, a *CorrectiveAction) error
	Delete(ctx context.Context, id string) error
	CountByStatus(ctx context.Context, ncrID string) (map[ActionStatus]int, error)
}

// StandardStore reads the seeded clause tree and question bank.
type StandardStore interface {
	Sections(ctx context.Context) ([]StandardSection, error)
	Questions(ctx context.Context, activeOnly bool) ([]AuditQuestion, error)
	Question(ctx context.Context, id string) (*AuditQuestion, error)
}
