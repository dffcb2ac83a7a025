package workflow

import "time"

// Role is the fixed set of user roles. Every user carries exactly one.
type Role string

const (
	RoleSystemAdmin     Role = "SYSTEM_ADMIN"
	RoleQualityManager  Role = "QUALITY_MANAGER"
	RoleInternalAuditor Role = "INTERNAL_AUDITOR"
	RoleDepartmentHead  Role = "DEPARTMENT_HEAD"
	RoleViewer          Role = "VIEWER"
)

var validRoles = map[Role]struct{}{
	RoleSystemAdmin:     {},
	RoleQualityManager:  {},
	RoleInternalAuditor: {},
	RoleDepartmentHead:  {},
	RoleViewer:          {},
}

// Valid reports whether the role belongs to the fixed set.
func (r Role) Valid() bool {
	_, ok := validRoles[r]
	return ok
}

// AssessmentStatus is the lifecycle state of an audit instance.
type AssessmentStatus string

const (
	AssessmentDraft       AssessmentStatus = "DRAFT"
	AssessmentInProgress  AssessmentStatus = "IN_PROGRESS"
	AssessmentUnderReview AssessmentStatus = "UNDER_REVIEW"
	AssessmentCompleted   AssessmentStatus = "COMPLETED"
	AssessmentArchived    AssessmentStatus = "ARCHIVED"
)

// NCRStatus is the lifecycle state of a non-conformity record.
type NCRStatus string

const (
	NCROpen       NCRStatus = "OPEN"
	NCRInProgress NCRStatus = "IN_PROGRESS"
	NCRResolved   NCRStatus = "RESOLVED"
	NCRClosed     NCRStatus = "CLOSED"
)

// ActionStatus is the lifecycle state of a corrective action.
type ActionStatus string

const (
	ActionPending    ActionStatus = "PENDING"
	ActionInProgress ActionStatus = "IN_PROGRESS"
	ActionCompleted  ActionStatus = "COMPLETED"
	ActionVerified   ActionStatus = "VERIFIED"
)

// Severity grades a non-conformity.
type Severity string

const (
	SeverityMinor    Severity = "MINOR"
	SeverityMajor    Severity = "MAJOR"
	SeverityCritical Severity = "CRITICAL"
)

var validSeverities = map[Severity]struct{}{
	SeverityMinor: {}, SeverityMajor: {}, SeverityCritical: {},
}

// Valid reports whether the severity is a known grade.
func (s Severity) Valid() bool {
	_, ok := validSeverities[s]
	return ok
}

// Priority orders corrective actions.
type Priority string

const (
	PriorityLow      Priority = "LOW"
	PriorityMedium   Priority = "MEDIUM"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

var validPriorities = map[Priority]struct{}{
	PriorityLow: {}, PriorityMedium: {}, PriorityHigh: {}, PriorityCritical: {},
}

// Valid reports whether the priority is a known level.
func (p Priority) Valid() bool {
	_, ok := validPriorities[p]
	return ok
}

// Team member role labels within one assessment.
const (
	TeamRoleLeadAuditor = "LEAD_AUDITOR"
	TeamRoleAuditor     = "AUDITOR"
)

// User is a member of exactly one organization with one role.
// Deactivation is a soft flag; users are never deleted.
type User struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Email          string    `json:"email"`
	PasswordHash   string    `json:"-"`
	Name           string    `json:"name"`
	Role           Role      `json:"role"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Organization is the tenant boundary. Every other entity is scoped to one
// organization, directly or through its assessment.
type Organization struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StandardSection is one clause node in the standard's tree. Seeded once,
// immutable afterwards.
type StandardSection struct {
	ID       string `json:"id"`
	ParentID string `json:"parent_id,omitempty"`
	Number   string `json:"number"` // e.g. "4.1"
	Title    string `json:"title"`
	Order    int    `json:"order"`
}

// AuditQuestion belongs to one section and carries per-score criteria text.
// Inactive questions are excluded from new totals; existing responses that
// reference them remain valid.
type AuditQuestion struct {
	ID        string `json:"id"`
	SectionID string `json:"section_id"`
	Number    string `json:"number"`
	Text      string `json:"text"`
	Criteria1 string `json:"criteria_score_1"`
	Criteria2 string `json:"criteria_score_2"`
	Criteria3 string `json:"criteria_score_3"`
	Active    bool   `json:"active"`
}

// Assessment is one audit instance. Mutated only through the orchestrator;
// destroyed only by archival.
type Assessment struct {
	ID                   string           `json:"id"`
	OrganizationID       string           `json:"organization_id"`
	Title                string           `json:"title"`
	Status               AssessmentStatus `json:"status"`
	AuditType            string           `json:"audit_type"`
	LeadAuditorID        string           `json:"lead_auditor_id"`
	TemplateID           string           `json:"template_id,omitempty"`
	PreviousAssessmentID string           `json:"previous_assessment_id,omitempty"`
	OverallScore         *float64         `json:"overall_score"`
	SectionScores        []SectionScore   `json:"section_scores,omitempty"`
	ScheduledAt          *time.Time       `json:"scheduled_at,omitempty"`
	DueAt                *time.Time       `json:"due_at,omitempty"`
	CompletedAt          *time.Time       `json:"completed_at,omitempty"`
	CreatedAt            time.Time        `json:"created_at"`
	UpdatedAt            time.Time        `json:"updated_at"`
}

// TeamMember links a user to an assessment with a team role label.
// Unique per (assessment, user).
type TeamMember struct {
	AssessmentID string    `json:"assessment_id"`
	UserID       string    `json:"user_id"`
	TeamRole     string    `json:"team_role"`
	CreatedAt    time.Time `json:"created_at"`
}

// Response is one user's score + justification for one question within one
// assessment. Unique per (assessment, question). The section reference is
// denormalized from the question at write time.
type Response struct {
	ID           string    `json:"id"`
	AssessmentID string    `json:"assessment_id"`
	QuestionID   string    `json:"question_id"`
	SectionID    string    `json:"section_id,omitempty"`
	Score        *int      `json:"score"` // 1..3, nil when unanswered
	Justification string   `json:"justification,omitempty"`
	Draft        bool      `json:"draft"`
	UpdatedByID  string    `json:"updated_by_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NonConformity documents a requirement that was not met. Created manually or
// by the auto-generator; never hard-deleted once it has a corrective action.
type NonConformity struct {
	ID              string    `json:"id"`
	AssessmentID    string    `json:"assessment_id"`
	ResponseID      string    `json:"response_id,omitempty"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Severity        Severity  `json:"severity"`
	Status          NCRStatus `json:"status"`
	RootCause       string    `json:"root_cause,omitempty"`
	RootCauseMethod string    `json:"root_cause_method,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// CorrectiveAction is a remediation task against one NCR. VERIFIED is
// terminal and immutable except for read.
type CorrectiveAction struct {
	ID                 string       `json:"id"`
	NonConformityID    string       `json:"non_conformity_id"`
	Description        string       `json:"description"`
	Priority           Priority     `json:"priority"`
	Status             ActionStatus `json:"status"`
	AssigneeID         string       `json:"assignee_id,omitempty"`
	TargetDate         *time.Time   `json:"target_date,omitempty"`
	CompletedAt        *time.Time   `json:"completed_at,omitempty"`
	VerifiedByID       string       `json:"verified_by_id,omitempty"`
	VerifiedAt         *time.Time   `json:"verified_at,omitempty"`
	EffectivenessNotes string       `json:"effectiveness_notes,omitempty"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
}

// Evidence is a file or link attached to a response. Leaf entity; link
// metadata only, binary storage lives outside this service.
type Evidence struct {
	ID           string    `json:"id"`
	ResponseID   string    `json:"response_id"`
	UploadedByID string    `json:"uploaded_by_id"`
	Kind         string    `json:"kind"` // "file" or "link"
	Reference    string    `json:"reference"`
	CreatedAt    time.Time `json:"created_at"`
}

// SectionScore is one row of the per-section compliance snapshot persisted on
// the assessment.
type SectionScore struct {
	SectionID     string  `json:"section_id"`
	SectionNumber string  `json:"section_number"`
	SectionTitle  string  `json:"section_title"`
	Percentage    float64 `json:"percentage"`
	ActualScore   int     `json:"actual_score"`
	MaxScore      int     `json:"max_possible_score"`
	Answered      int     `json:"answered_questions"`
	Total         int     `json:"total_questions"`
}

// Actor identifies the caller of an orchestrator operation.
type Actor struct {
	UserID         string
	OrganizationID string
	Role           Role
}
