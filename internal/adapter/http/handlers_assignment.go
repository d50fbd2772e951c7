package http

import "net/http"

type assignRequest struct {
	UserID string `json:"user_id"`
}

// Assign handles POST /api/v1/leads/{id}/assignments.
func (h *Handlers) Assign(w http.ResponseWriter, r *http.Request) {
	a, ok := actorOf(w, r)
	if !ok {
		return
	}
	req, ok := readJSON[assignRequest](w, r)
	if !ok {
		return
	}
	if !requireField(w, req.UserID, "user_id") {
		return
	}
	l, err := h.Gateway.Assign(r.Context(), a, urlParam(r, "id"), req.UserID)
	if err != nil {
		writeDomainError(w, err, "lead not found")
		return
	}
	writeJSON(w, http.StatusOK, l)
}

// Unassign handles DELETE /api/v1/leads/{id}/assignments/{userID}.
func (h *Handlers) Unassign(w http.ResponseWriter, r *http.Request) {
	a, ok := actorOf(w, r)
	if !ok {
		return
	}
	if err := h.Gateway.Unassign(r.Context(), a, urlParam(r, "id"), urlParam(r, "userID")); err != nil {
		writeDomainError(w, err, "lead not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearAssignments handles DELETE /api/v1/leads/{id}/assignments.
func (h *Handlers) ClearAssignments(w http.ResponseWriter, r *http.Request) {
	a, ok := actorOf(w, r)
	if !ok {
		return
	}
	if err := h.Gateway.Clear(r.Context(), a, urlParam(r, "id")); err != nil {
		writeDomainError(w, err, "lead not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteAssignment handles DELETE /api/v1/assignments/{id}.
func (h *Handlers) DeleteAssignment(w http.ResponseWriter, r *http.Request) {
	handleDelete(h.Gateway.DeleteRecord, "assignment not found")(w, r)
}
