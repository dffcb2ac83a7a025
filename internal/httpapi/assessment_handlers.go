package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"conforma.org/internal/workflow"
)

type createAssessmentRequest struct {
	Title         string     `json:"title"`
	AuditType     string     `json:"audit_type"`
	LeadAuditorID string     `json:"lead_auditor_id"`
	TemplateID    string     `json:"template_id"`
	ScheduledAt   *time.Time `json:"scheduled_at"`
	DueAt         *time.Time `json:"due_at"`
}

type updateAssessmentRequest struct {
	Title         *string    `json:"title"`
	AuditType     *string    `json:"audit_type"`
	LeadAuditorID *string    `json:"lead_auditor_id"`
	ScheduledAt   *time.Time `json:"scheduled_at"`
	DueAt         *time.Time `json:"due_at"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type cloneRequest struct {
	Title string `json:"title"`
}

type teamMemberRequest struct {
	UserID   string `json:"user_id"`
	TeamRole string `json:"team_role"`
}

type responseRequest struct {
	QuestionID    string `json:"question_id"`
	Score         *int   `json:"score"`
	Justification string `json:"justification"`
	Draft         bool   `json:"draft"`
}

func (req responseRequest) input() workflow.ResponseInput {
	return workflow.ResponseInput{
		QuestionID:    req.QuestionID,
		Score:         req.Score,
		Justification: req.Justification,
		Draft:         req.Draft,
	}
}

func (a *API) handleAssessmentsCollection(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	switch r.Method {
	case http.MethodGet:
		items, err := a.svc.ListAssessments(r.Context(), actor)
		if err != nil {
			handleWorkflowError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	case http.MethodPost:
		var req createAssessmentRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		created, err := a.svc.CreateAssessment(r.Context(), actor, workflow.CreateAssessmentInput{
			Title:         req.Title,
			AuditType:     req.AuditType,
			LeadAuditorID: req.LeadAuditorID,
			TemplateID:    req.TemplateID,
			ScheduledAt:   req.ScheduledAt,
			DueAt:         req.DueAt,
		})
		if err != nil {
			handleWorkflowError(w, r, err)
			return
		}
		a.audit(r.Context(), "assessment.create", "assessment", created.ID, map[string]string{
			"title": created.Title,
		})
		w.Header().Set("Location", "/v1/assessments/"+created.ID)
		writeJSON(w, http.StatusCreated, created)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleAssessmentResource(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	id, sub := splitResource(r.URL.Path, "/v1/assessments/")
	if id == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch sub {
	case "":
		a.assessmentByID(w, r, actor, id)
	case "status":
		a.assessmentStatus(w, r, actor, id)
	case "clone":
		a.assessmentClone(w, r, actor, id)
	case "team":
		a.assessmentTeam(w, r, actor, id)
	case "scores":
		a.assessmentScores(w, r, actor, id)
	case "responses":
		a.assessmentResponses(w, r, actor, id)
	case "responses/bulk":
		a.assessmentResponsesBulk(w, r, actor, id)
	case "non-conformities":
		a.assessmentNCRs(w, r, actor, id)
	case "non-conformities/generate":
		a.assessmentGenerateNCRs(w, r, actor, id)
	case "non-conformities/summary":
		a.assessmentNCRSummary(w, r, actor, id)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) assessmentByID(w http.ResponseWriter, r *http.Request, actor workflow.Actor, id string) {
	switch r.Method {
	case http.MethodGet:
		item, err := a.svc.GetAssessment(r.Context(), actor, id)
		if err != nil {
			handleWorkflowError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, item)
	case http.MethodPatch:
		var req updateAssessmentRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		item, err := a.svc.UpdateAssessment(r.Context(), actor, id, workflow.UpdateAssessmentInput{
			Title:         req.Title,
			AuditType:     req.AuditType,
			LeadAuditorID: req.LeadAuditorID,
			ScheduledAt:   req.ScheduledAt,
			DueAt:         req.DueAt,
		})
		if err != nil {
			handleWorkflowError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, item)
	case http.MethodDelete:
		if err := a.svc.DeleteAssessment(r.Context(), actor, id); err != nil {
			handleWorkflowError(w, r, err)
			return
		}
		a.audit(r.Context(), "assessment.delete", "assessment", id, nil)
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

func (a *API) assessmentStatus(w http.ResponseWriter, r *http.Request, actor workflow.Actor, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	item, err := a.svc.TransitionAssessment(r.Context(), actor, id, workflow.AssessmentStatus(req.Status))
	if err != nil {
		handleWorkflowError(w, r, err)
		return
	}
	a.audit(r.Context(), "assessment.status", "assessment", id, map[string]string{
		"status": string(item.Status),
	})
	writeJSON(w, http.StatusOK, item)
}

func (a *API) assessmentClone(w http.ResponseWriter, r *http.Request, actor workflow.Actor, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req cloneRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	clone, err := a.svc.CloneAssessment(r.Context(), actor, id, req.Title)
	if err != nil {
		handleWorkflowError(w, r, err)
		return
	}
	a.audit(r.Context(), "assessment.clone", "assessment", clone.ID, map[string]string{
		"source": id,
	})
	w.Header().Set("Location", "/v1/assessments/"+clone.ID)
	writeJSON(w, http.StatusCreated, clone)
}

func (a *API) assessmentTeam(w http.ResponseWriter, r *http.Request, actor workflow.Actor, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req teamMemberRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		writeError(w, r, http.StatusBadRequest, "user_id is required")
		return
	}
	if err := a.svc.AddTeamMember(r.Context(), actor, id, req.UserID, req.TeamRole); err != nil {
		handleWorkflowError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) assessmentScores(w http.ResponseWriter, r *http.Request, actor workflow.Actor, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	summary, err := a.svc.RecomputeScores(r.Context(), actor, id)
	if err != nil {
		handleWorkflowError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *API) assessmentResponses(w http.ResponseWriter, r *http.Request, actor workflow.Actor, id string) {
	switch r.Method {
	case http.MethodGet:
		items, err := a.svc.ListResponses(r.Context(), actor, id)
		if err != nil {
			handleWorkflowError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	case http.MethodPut:
		var req responseRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		item, err := a.svc.UpsertResponse(r.Context(), actor, id, req.input())
		if err != nil {
			handleWorkflowError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, item)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut)
	}
}

func (a *API) assessmentResponsesBulk(w http.ResponseWriter, r *http.Request, actor workflow.Actor, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req struct {
		Items []responseRequest `json:"items"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	inputs := make([]workflow.ResponseInput, 0, len(req.Items))
	for _, item := range req.Items {
		inputs = append(inputs, item.input())
	}
	items, err := a.svc.BulkUpsertResponses(r.Context(), actor, id, inputs)
	if err != nil {
		handleWorkflowError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) assessmentNCRs(w http.ResponseWriter, r *http.Request, actor workflow.Actor, id string) {
	switch r.Method {
	case http.MethodGet:
		items, err := a.svc.ListNCRs(r.Context(), actor, id)
		if err != nil {
			handleWorkflowError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	case http.MethodPost:
		var req createNCRRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		created, err := a.svc.CreateNCR(r.Context(), actor, id, workflow.CreateNCRInput{
			ResponseID:      req.ResponseID,
			Title:           req.Title,
			Description:     req.Description,
			Severity:        workflow.Severity(req.Severity),
			RootCause:       req.RootCause,
			RootCauseMethod: req.RootCauseMethod,
		})
		if err != nil {
			handleWorkflowError(w, r, err)
			return
		}
		a.audit(r.Context(), "ncr.create", "non_conformity", created.ID, map[string]string{
			"assessment_id": id,
			"severity":      string(created.Severity),
		})
		w.Header().Set("Location", "/v1/non-conformities/"+created.ID)
		writeJSON(w, http.StatusCreated, created)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) assessmentGenerateNCRs(w http.ResponseWriter, r *http.Request, actor workflow.Actor, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	created, err := a.svc.GenerateNCRs(r.Context(), actor, id)
	if err != nil {
		handleWorkflowError(w, r, err)
		return
	}
	a.audit(r.Context(), "ncr.generate", "assessment", id, map[string]string{
		"created": strconv.Itoa(len(created)),
	})
	writeJSON(w, http.StatusOK, map[string]any{"items": created})
}

func (a *API) assessmentNCRSummary(w http.ResponseWriter, r *http.Request, actor workflow.Actor, id string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	counts, err := a.svc.NCRSummary(r.Context(), actor, id)
	if err != nil {
		handleWorkflowError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"counts": counts})
}

// splitResource separates "/v1/assessments/<id>/<sub/path>" into id and sub.
func splitResource(path, prefix string) (id, sub string) {
	rest := strings.TrimPrefix(path, prefix)
	rest = strings.TrimSuffix(rest, "/")
	if rest == "" {
		return "", ""
	}
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		return rest[:i], rest[i+1:]
	}
	return rest, ""
}
