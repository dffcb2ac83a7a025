package httpapi

import (
	"net/http"
	"time"

	"conforma.org/internal/workflow"
)

type updateActionRequest struct {
	Description *string    `json:"description"`
	Priority    *string    `json:"priority"`
	AssigneeID  *string    `json:"assignee_id"`
	TargetDate  *time.Time `json:"target_date"`
}

type verifyActionRequest struct {
	EffectivenessNotes string `json:"effectiveness_notes"`
}

type assignActionRequest struct {
	AssigneeID string `json:"assignee_id"`
}

func (a *API) handleActionResource(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	id, sub := splitResource(r.URL.Path, "/v1/corrective-actions/")
	if id == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch sub {
	case "":
		a.actionByID(w, r, actor, id)
	case "status":
		a.actionStatus(w, r, actor, id)
	case "verify":
		a.actionVerify(w, r, actor, id)
	case "assign":
		a.actionAssign(w, r, actor, id)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) actionByID(w http.ResponseWriter, r *http.Request, actor workflow.Actor, id string) {
	switch r.Method {
	case http.MethodPatch:
		var req updateActionRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		in := workflow.UpdateActionInput{
			Description: req.Description,
			AssigneeID:  req.AssigneeID,
			TargetDate:  req.TargetDate,
		}
		if req.Priority != nil {
			p := workflow.Priority(*req.Priority)
			in.Priority = &p
		}
		item, err := a.svc.UpdateAction(r.Context(), actor, id, in)
		if err != nil {
			handleWorkflowError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, item)
	case http.MethodDelete:
		if err := a.svc.DeleteAction(r.Context(), actor, id); err != nil {
			handleWorkflowError(w, r, err)
			return
		}
		a.audit(r.Context(), "action.delete", "corrective_action", id, nil)
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodPatch, http.MethodDelete)
	}
}

func (a *API) actionStatus(w http.ResponseWriter, r *http.Request, actor workflow.Actor, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	item, err := a.svc.TransitionAction(r.Context(), actor, id, workflow.ActionStatus(req.Status))
	if err != nil {
		handleWorkflowError(w, r, err)
		return
	}
	a.audit(r.Context(), "action.status", "corrective_action", id, map[string]string{
		"status": string(item.Status),
	})
	writeJSON(w, http.StatusOK, item)
}

func (a *API) actionVerify(w http.ResponseWriter, r *http.Request, actor workflow.Actor, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req verifyActionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	item, err := a.svc.VerifyAction(r.Context(), actor, id, req.EffectivenessNotes)
	if err != nil {
		handleWorkflowError(w, r, err)
		return
	}
	a.audit(r.Context(), "action.verify", "corrective_action", id, map[string]string{
		"verified_by": actor.UserID,
	})
	writeJSON(w, http.StatusOK, item)
}

func (a *API) actionAssign(w http.ResponseWriter, r *http.Request, actor workflow.Actor, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req assignActionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	item, err := a.svc.AssignAction(r.Context(), actor, id, req.AssigneeID)
	if err != nil {
		handleWorkflowError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}
