package workflow

import (
	"context"
	"strings"
	"sync"
)

// Memory implements Store with in-process concurrency safety. It backs the
// API when no database DSN is configured and the orchestrator test suite.
// Durable storage lives in internal/store/pg.
type Memory struct {
	mu sync.Mutex
	d  *memData
}

type memData struct {
	orgs       map[string]Organization
	users      map[string]User
	userEmails map[string]string // email -> user id

	assessments map[string]Assessment
	team        map[string]map[string]TeamMember // assessment id -> user id

	responses    map[string]Response
	responsePair map[string]string // assessment|question -> response id

	ncrs    map[string]NonConformity
	actions map[string]CorrectiveAction

	sections  []StandardSection
	questions map[string]AuditQuestion
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{d: newMemData()}
}

func newMemData() *memData {
	return &memData{
		orgs:         make(map[string]Organization),
		users:        make(map[string]User),
		userEmails:   make(map[string]string),
		assessments:  make(map[string]Assessment),
		team:         make(map[string]map[string]TeamMember),
		responses:    make(map[string]Response),
		responsePair: make(map[string]string),
		ncrs:         make(map[string]NonConformity),
		actions:      make(map[string]CorrectiveAction),
		questions:    make(map[string]AuditQuestion),
	}
}

func (d *memData) clone() *memData {
	c := newMemData()
	for k, v := range d.orgs {
		c.orgs[k] = v
	}
	for k, v := range d.users {
		c.users[k] = v
	}
	for k, v := range d.userEmails {
		c.userEmails[k] = v
	}
	for k, v := range d.assessments {
		c.assessments[k] = v
	}
	for k, members := range d.team {
		inner := make(map[string]TeamMember, len(members))
		for uk, uv := range members {
			inner[uk] = uv
		}
		c.team[k] = inner
	}
	for k, v := range d.responses {
		c.responses[k] = v
	}
	for k, v := range d.responsePair {
		c.responsePair[k] = v
	}
	for k, v := range d.ncrs {
		c.ncrs[k] = v
	}
	for k, v := range d.actions {
		c.actions[k] = v
	}
	c.sections = append(c.sections, d.sections...)
	for k, v := range d.questions {
		c.questions[k] = v
	}
	return c
}

// SeedStandard loads the clause tree and question bank. Reference data is
// seeded once and treated as immutable afterwards.
func (m *Memory) SeedStandard(sections []StandardSection, questions []AuditQuestion) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.d.sections = append([]StandardSection(nil), sections...)
	for _, q := range questions {
		m.d.questions[q.ID] = q
	}
}

// InTx runs fn atomically: on error every change made inside fn is discarded.
func (m *Memory) InTx(ctx context.Context, fn func(Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := m.d.clone()
	if err := fn(&memTx{d: m.d}); err != nil {
		m.d = snapshot
		return err
	}
	return nil
}

func (m *Memory) Organizations(ctx context.Context) OrganizationStore {
	return memOrgStore{d: m.d, mu: &m.mu}
}
func (m *Memory) Users(ctx context.Context) UserStore {
	return memUserStore{d: m.d, mu: &m.mu}
}
func (m *Memory) Assessments(ctx context.Context) AssessmentStore {
	return memAssessmentStore{d: m.d, mu: &m.mu}
}
func (m *Memory) Responses(ctx context.Context) ResponseStore {
	return memResponseStore{d: m.d, mu: &m.mu}
}
func (m *Memory) NonConformities(ctx context.Context) NonConformityStore {
	return memNCRStore{d: m.d, mu: &m.mu}
}
func (m *Memory) Actions(ctx context.Context) ActionStore {
	return memActionStore{d: m.d, mu: &m.mu}
}
func (m *Memory) Standard(ctx context.Context) StandardStore {
	return memStandardStore{d: m.d, mu: &m.mu}
}

// memTx is the view handed to InTx callbacks; the outer mutex is already
// held, so its sub-stores skip locking.
type memTx struct{ d *memData }

func (t *memTx) InTx(ctx context.Context, fn func(Store) error) error { return fn(t) }
func (t *memTx) Organizations(ctx context.Context) OrganizationStore  { return memOrgStore{d: t.d} }
func (t *memTx) Users(ctx context.Context) UserStore                  { return memUserStore{d: t.d} }
func (t *memTx) Assessments(ctx context.Context) AssessmentStore {
	return memAssessmentStore{d: t.d}
}
func (t *memTx) Responses(ctx context.Context) ResponseStore { return memResponseStore{d: t.d} }
func (t *memTx) NonConformities(ctx context.Context) NonConformityStore {
	return memNCRStore{d: t.d}
}
func (t *memTx) Actions(ctx context.Context) ActionStore   { return memActionStore{d: t.d} }
func (t *memTx) Standard(ctx context.Context) StandardStore { return memStandardStore{d: t.d} }

func lockIf(mu *sync.Mutex) func() {
	if mu == nil {
		return func() {}
	}
	mu.Lock()
	return mu.Unlock
}

// --- organizations ---------------------------------------------------------

type memOrgStore struct {
	d  *memData
	mu *sync.Mutex
}

func (s memOrgStore) Create(ctx context.Context, org *Organization) error {
	defer lockIf(s.mu)()
	s.d.orgs[org.ID] = *org
	return nil
}

func (s memOrgStore) Find(ctx context.Context, id string) (*Organization, error) {
	defer lockIf(s.mu)()
	org, ok := s.d.orgs[id]
	if !ok {
		return nil, notFound("organization " + id)
	}
	out := org
	return &out, nil
}

func (s memOrgStore) List(ctx context.Context) ([]*Organization, error) {
	defer lockIf(s.mu)()
	out := make([]*Organization, 0, len(s.d.orgs))
	for _, org := range s.d.orgs {
		o := org
		out = append(out, &o)
	}
	return out, nil
}

// --- users -----------------------------------------------------------------

type memUserStore struct {
	d  *memData
	mu *sync.Mutex
}

func (s memUserStore) Create(ctx context.Context, u *User) error {
	defer lockIf(s.mu)()
	email := strings.ToLower(u.Email)
	if _, exists := s.d.userEmails[email]; exists {
		return invalid("email %s already registered", u.Email)
	}
	s.d.users[u.ID] = *u
	s.d.userEmails[email] = u.ID
	return nil
}

func (s memUserStore) Find(ctx context.Context, id string) (*User, error) {
	defer lockIf(s.mu)()
	u, ok := s.d.users[id]
	if !ok {
		return nil, notFound("user " + id)
	}
	out := u
	return &out, nil
}

func (s memUserStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	defer lockIf(s.mu)()
	id, ok := s.d.userEmails[strings.ToLower(email)]
	if !ok {
		return nil, notFound("user " + email)
	}
	u := s.d.users[id]
	return &u, nil
}

func (s memUserStore) Update(ctx context.Context, u *User) error {
	defer lockIf(s.mu)()
	if _, ok := s.d.users[u.ID]; !ok {
		return notFound("user " + u.ID)
	}
	s.d.users[u.ID] = *u
	return nil
}

// --- assessments -----------------------------------------------------------

type memAssessmentStore struct {
	d  *memData
	mu *sync.Mutex
}

func (s memAssessmentStore) Create(ctx context.Context, a *Assessment) error {
	defer lockIf(s.mu)()
	s.d.assessments[a.ID] = *a
	return nil
}

func (s memAssessmentStore) Find(ctx context.Context, id string) (*Assessment, error) {
	defer lockIf(s.mu)()
	a, ok := s.d.assessments[id]
	if !ok {
		return nil, notFound("assessment " + id)
	}
	out := a
	return &out, nil
}

func (s memAssessmentStore) ListByOrg(ctx context.Context, orgID string) ([]*Assessment, error) {
	defer lockIf(s.mu)()
	var out []*Assessment
	for _, a := range s.d.assessments {
		if a.OrganizationID == orgID {
			item := a
			out = append(out, &item)
		}
	}
	return out, nil
}

func (s memAssessmentStore) Update(ctx context.Context, a *Assessment) error {
	defer lockIf(s.mu)()
	if _, ok := s.d.assessments[a.ID]; !ok {
		return notFound("assessment " + a.ID)
	}
	s.d.assessments[a.ID] = *a
	return nil
}

func (s memAssessmentStore) Delete(ctx context.Context, id string) error {
	defer lockIf(s.mu)()
	if _, ok := s.d.assessments[id]; !ok {
		return notFound("assessment " + id)
	}
	delete(s.d.assessments, id)
	delete(s.d.team, id)
	return nil
}

func (s memAssessmentStore) Team(ctx context.Context, assessmentID string) ([]TeamMember, error) {
	defer lockIf(s.mu)()
	var out []TeamMember
	for _, m := range s.d.team[assessmentID] {
		out = append(out, m)
	}
	return out, nil
}

func (s memAssessmentStore) UpsertTeamMember(ctx context.Context, m TeamMember) error {
	defer lockIf(s.mu)()
	members := s.d.team[m.AssessmentID]
	if members == nil {
		members = make(map[string]TeamMember)
		s.d.team[m.AssessmentID] = members
	}
	members[m.UserID] = m
	return nil
}

func (s memAssessmentStore) SaveScores(ctx context.Context, assessmentID string, overall float64, sections []SectionScore) error {
	defer lockIf(s.mu)()
	a, ok := s.d.assessments[assessmentID]
	if !ok {
		return notFound("assessment " + assessmentID)
	}
	score := overall
	a.OverallScore = &score
	a.SectionScores = append([]SectionScore(nil), sections...)
	s.d.assessments[assessmentID] = a
	return nil
}

// --- responses -------------------------------------------------------------

type memResponseStore struct {
	d  *memData
	mu *sync.Mutex
}

func pairKey(assessmentID, questionID string) string {
	return assessmentID + "|" + questionID
}

func (s memResponseStore) Upsert(ctx context.Context, r *Response) error {
	defer lockIf(s.mu)()
	key := pairKey(r.AssessmentID, r.QuestionID)
	if existingID, ok := s.d.responsePair[key]; ok {
		existing := s.d.responses[existingID]
		r.ID = existing.ID
		r.CreatedAt = existing.CreatedAt
	} else {
		s.d.responsePair[key] = r.ID
	}
	s.d.responses[r.ID] = *r
	return nil
}

func (s memResponseStore) Find(ctx context.Context, id string) (*Response, error) {
	defer lockIf(s.mu)()
	r, ok := s.d.responses[id]
	if !ok {
		return nil, notFound("response " + id)
	}
	out := r
	return &out, nil
}

func (s memResponseStore) ListByAssessment(ctx context.Context, assessmentID string) ([]Response, error) {
	defer lockIf(s.mu)()
	var out []Response
	for _, r := range s.d.responses {
		if r.AssessmentID == assessmentID {
			out = append(out, r)
		}
	}
	return out, nil
}

// --- non-conformities ------------------------------------------------------

type memNCRStore struct {
	d  *memData
	mu *sync.Mutex
}

func (s memNCRStore) Create(ctx context.Context, n *NonConformity) error {
	defer lockIf(s.mu)()
	s.d.ncrs[n.ID] = *n
	return nil
}

func (s memNCRStore) CreateBatch(ctx context.Context, batch []*NonConformity) error {
	defer lockIf(s.mu)()
	for _, n := range batch {
		s.d.ncrs[n.ID] = *n
	}
	return nil
}

func (s memNCRStore) Find(ctx context.Context, id string) (*NonConformity, error) {
	defer lockIf(s.mu)()
	n, ok := s.d.ncrs[id]
	if !ok {
		return nil, notFound("non-conformity " + id)
	}
	out := n
	return &out, nil
}

func (s memNCRStore) ListByAssessment(ctx context.Context, assessmentID string) ([]NonConformity, error) {
	defer lockIf(s.mu)()
	var out []NonConformity
	for _, n := range s.d.ncrs {
		if n.AssessmentID == assessmentID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (s memNCRStore) Update(ctx context.Context, n *NonConformity) error {
	defer lockIf(s.mu)()
	if _, ok := s.d.ncrs[n.ID]; !ok {
		return notFound("non-conformity " + n.ID)
	}
	s.d.ncrs[n.ID] = *n
	return nil
}

func (s memNCRStore) Delete(ctx context.Context, id string) error {
	defer lockIf(s.mu)()
	if _, ok := s.d.ncrs[id]; !ok {
		return notFound("non-conformity " + id)
	}
	delete(s.d.ncrs, id)
	return nil
}

func (s memNCRStore) ResponseRefs(ctx context.Context, assessmentID string) (map[string]struct{}, error) {
	defer lockIf(s.mu)()
	refs := make(map[string]struct{})
	for _, n := range s.d.ncrs {
		if n.AssessmentID == assessmentID && n.ResponseID != "" {
			refs[n.ResponseID] = struct{}{}
		}
	}
	return refs, nil
}

func (s memNCRStore) CountByStatus(ctx context.Context, assessmentID string) (map[NCRStatus]int, error) {
	defer lockIf(s.mu)()
	counts := make(map[NCRStatus]int)
	for _, n := range s.d.ncrs {
		if n.AssessmentID == assessmentID {
			counts[n.Status]++
		}
	}
	return counts, nil
}

// --- corrective actions ----------------------------------------------------

type memActionStore struct {
	d  *memData
	mu *sync.Mutex
}

func (s memActionStore) Create(ctx context.Context, a *CorrectiveAction) error {
	defer lockIf(s.mu)()
	s.d.actions[a.ID] = *a
	return nil
}

func (s memActionStore) Find(ctx context.Context, id string) (*CorrectiveAction, error) {
	defer lockIf(s.mu)()
	a, ok := s.d.actions[id]
	if !ok {
		return nil, notFound("corrective action " + id)
	}
	out := a
	return &out, nil
}

func (s memActionStore) ListByNCR(ctx context.Context, ncrID string) ([]CorrectiveAction, error) {
	defer lockIf(s.mu)()
	var out []CorrectiveAction
	for _, a := range s.d.actions {
		if a.NonConformityID == ncrID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s memActionStore) Update(ctx context.Context, a *CorrectiveAction) error {
	defer lockIf(s.mu)()
	if _, ok := s.d.actions[a.ID]; !ok {
		return notFound("corrective action " + a.ID)
	}
	s.d.actions[a.ID] = *a
	return nil
}

func (s memActionStore) Delete(ctx context.Context, id string) error {
	defer lockIf(s.mu)()
	if _, ok := s.d.actions[id]; !ok {
		return notFound("corrective action " + id)
	}
	delete(s.d.actions, id)
	return nil
}

func (s memActionStore) CountByStatus(ctx context.Context, ncrID string) (map[ActionStatus]int, error) {
	defer lockIf(s.mu)()
	counts := make(map[ActionStatus]int)
	for _, a := range s.d.actions {
		if a.NonConformityID == ncrID {
			counts[a.Status]++
		}
	}
	return counts, nil
}

// --- standard --------------------------------------------------------------

type memStandardStore struct {
	d  *memData
	mu *sync.Mutex
}

func (s memStandardStore) Sections(ctx context.Context) ([]StandardSection, error) {
	defer lockIf(s.mu)()
	return append([]StandardSection(nil), s.d.sections...), nil
}

func (s memStandardStore) Questions(ctx context.Context, activeOnly bool) ([]AuditQuestion, error) {
	defer lockIf(s.mu)()
	var out []AuditQuestion
	for _, q := range s.d.questions {
		if activeOnly && !q.Active {
			continue
		}
		out = append(out, q)
	}
	return out, nil
}

func (s memStandardStore) Question(ctx context.Context, id string) (*AuditQuestion, error) {
	defer lockIf(s.mu)()
	q, ok := s.d.questions[id]
	if !ok {
		return nil, notFound("audit question " + id)
	}
	out := q
	return &out, nil
}

var _ Store = (*Memory)(nil)
var _ Store = (*memTx)(nil)
