package httpapi

import (
	"net/http"
	"time"

	"conforma.org/internal/workflow"
)

type createNCRRequest struct {
	ResponseID      string `json:"response_id"`
	Title           string `json:"title"`
	Description     string `json:"description"`
	Severity        string `json:"severity"`
	RootCause       string `json:"root_cause"`
	RootCauseMethod string `json:"root_cause_method"`
}

type updateNCRRequest struct {
	Title           *string `json:"title"`
	Description     *string `json:"description"`
	Severity        *string `json:"severity"`
	RootCause       *string `json:"root_cause"`
	RootCauseMethod *string `json:"root_cause_method"`
}

type createActionRequest struct {
	Description string     `json:"description"`
	Priority    string     `json:"priority"`
	AssigneeID  string     `json:"assignee_id"`
	TargetDate  *time.Time `json:"target_date"`
}

func (a *API) handleNCRResource(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	id, sub := splitResource(r.URL.Path, "/v1/non-conformities/")
	if id == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch sub {
	case "":
		a.ncrByID(w, r, actor, id)
	case "status":
		a.ncrStatus(w, r, actor, id)
	case "actions":
		a.ncrActions(w, r, actor, id)
	case "actions/summary":
		a.ncrActionSummary(w, r, actor, id)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) ncrByID(w http.ResponseWriter, r *http.Request, actor workflow.Actor, id string) {
	switch r.Method {
	case http.MethodPatch:
		var req updateNCRRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		in := workflow.UpdateNCRInput{
			Title:           req.Title,
			Description:     req.Description,
			RootCause:       req.RootCause,
			RootCauseMethod: req.RootCauseMethod,
		}
		if req.Severity != nil {
			sev := workflow.Severity(*req.Severity)
			in.Severity = &sev
		}
		item, err := a.svc.UpdateNCR(r.Context(), actor, id, in)
		if err != nil {
			handleWorkflowError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, item)
	case http.MethodDelete:
		if err := a.svc.DeleteNCR(r.Context(), actor, id); err != nil {
			handleWorkflowError(w, r, err)
			return
		}
		a.audit(r.Context(), "ncr.delete", "non_conformity", id, nil)
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodPatch, http.MethodDelete)
	}
}

func (a *API) ncrStatus(w http.ResponseWriter, r *http.Request, actor workflow.Actor, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	item, err := a.svc.TransitionNCR(r.Context(), actor, id, workflow.NCRStatus(req.Status))
	if err != nil {
		handleWorkflowError(w, r, err)
		return
	}
	a.audit(r.Context(), "ncr.status", "non_conformity", id, map[string]string{
		"status": string(item.Status),
	})
	writeJSON(w, http.StatusOK, item)
}

func (a *API) ncrActions(w http.ResponseWriter, r *http.Request, actor workflow.Actor, id string) {
	switch r.Method {
	case http.MethodGet:
		items, err := a.svc.ListActions(r.Context(), actor, id)
		if err != nil {
			handleWorkflowError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	case http.MethodPost:
		var req createActionRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		created, err := a.svc.CreateAction(r.Context(), actor, id, workflow.CreateActionInput{
			Description: req.Description,
			Priority:    workflow.Priority(req.Priority),
			AssigneeID:  req.AssigneeID,
			TargetDate:  req.TargetDate,
		})
		if err != nil {
			handleWorkflowError(w, r, err)
			return
		}
		a.audit(r.Context(), "action.create", "corrective_action", created.ID, map[string]string{
			"non_conformity_id": id,
		})
		w.Header().Set("Location", "/v1/corrective-actions/"+created.ID)
		writeJSON(w, http.StatusCreated, created)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) ncrActionSummary(w http.ResponseWriter, r *http.Request, actor workflow.Actor, id string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	counts, err := a.svc.ActionSummary(r.Context(), actor, id)
	if err != nil {
		handleWorkflowError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"counts": counts})
}
