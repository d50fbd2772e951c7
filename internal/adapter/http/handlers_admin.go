package http

import (
	"log/slog"
	"net/http"
)

// ResyncOwners handles POST /api/v1/admin/owners/resync.
func (h *Handlers) ResyncOwners(w http.ResponseWriter, r *http.Request) {
	n, err := h.Binder.ResyncAll(r.Context())
	if err != nil {
		writeInternalError(w, err)
		return
	}
	slog.InfoContext(r.Context(), "owners resynced", "leads", n)
	writeJSON(w, http.StatusOK, map[string]int{"synced": n})
}

type repairRequest struct {
	ContactKey string `json:"contact_key"`
}

// RepairGroup handles POST /api/v1/admin/dedup/repair.
func (h *Handlers) RepairGroup(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[repairRequest](w, r)
	if !ok {
		return
	}
	if !requireField(w, req.ContactKey, "contact_key") {
		return
	}
	if err := h.Dedup.EnqueueRepair(r.Context(), req.ContactKey); err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"contact_key": req.ContactKey, "status": "scheduled"})
}
