package httpapi

import (
	"net/http"
	"strconv"
)

func (a *API) handleStandardSections(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := a.actor(r); !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	sections, err := a.store.Standard(r.Context()).Sections(r.Context())
	if err != nil {
		handleWorkflowError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": sections})
}

func (a *API) handleStandardQuestions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := a.actor(r); !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	activeOnly := true
	if raw := r.URL.Query().Get("active_only"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "active_only must be a boolean")
			return
		}
		activeOnly = v
	}
	questions, err := a.store.Standard(r.Context()).Questions(r.Context(), activeOnly)
	if err != nil {
		handleWorkflowError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": questions})
}
