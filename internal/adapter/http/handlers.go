package http

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/Strob0t/leadgate/internal/domain/lead"
	"github.com/Strob0t/leadgate/internal/port/database"
	"github.com/Strob0t/leadgate/internal/service"
)

const maxListLimit = 500

// HealthCheck reports whether one dependency is usable.
type HealthCheck func(ctx context.Context) error

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	Leads   *service.LeadService
	Gateway *service.AssignmentGateway
	Binder  *service.AssignmentBinder
	Dedup   *service.DedupIndexer
	Health  map[string]HealthCheck
}

// ListLeads handles GET /api/v1/leads.
func (h *Handlers) ListLeads(w http.ResponseWriter, r *http.Request) {
	a, ok := actorOf(w, r)
	if !ok {
		return
	}
	opts, ok := listOptions(w, r)
	if !ok {
		return
	}
	leads, err := h.Leads.List(r.Context(), a, opts)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	if leads == nil {
		leads = []lead.Lead{}
	}
	writeJSON(w, http.StatusOK, leads)
}

// CreateLead handles POST /api/v1/leads. The body is a flat object of
// field name to value.
func (h *Handlers) CreateLead(w http.ResponseWriter, r *http.Request) {
	a, ok := actorOf(w, r)
	if !ok {
		return
	}
	body, ok := readJSON[map[string]string](w, r)
	if !ok {
		return
	}
	l, err := h.Leads.Create(r.Context(), a, lead.ChangesFromMap(body), service.SaveOptions{})
	if err != nil {
		writeDomainError(w, err, "lead not found")
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

// GetLead handles GET /api/v1/leads/{id}.
func (h *Handlers) GetLead(w http.ResponseWriter, r *http.Request) {
	handleGet(h.Leads.Get, "lead not found")(w, r)
}

// UpdateLead handles PATCH /api/v1/leads/{id}.
func (h *Handlers) UpdateLead(w http.ResponseWriter, r *http.Request) {
	a, ok := actorOf(w, r)
	if !ok {
		return
	}
	body, ok := readJSON[map[string]string](w, r)
	if !ok {
		return
	}
	l, err := h.Leads.Update(r.Context(), a, urlParam(r, "id"), lead.ChangesFromMap(body), service.SaveOptions{})
	if err != nil {
		writeDomainError(w, err, "lead not found")
		return
	}
	writeJSON(w, http.StatusOK, l)
}

// DeleteLead handles DELETE /api/v1/leads/{id}.
func (h *Handlers) DeleteLead(w http.ResponseWriter, r *http.Request) {
	handleDelete(h.Leads.Delete, "lead not found")(w, r)
}

// DuplicateSummary handles GET /api/v1/leads/{id}/duplicates/summary.
func (h *Handlers) DuplicateSummary(w http.ResponseWriter, r *http.Request) {
	handleGet(h.Leads.DuplicateSummary, "lead not found")(w, r)
}

// Duplicates handles GET /api/v1/leads/{id}/duplicates.
func (h *Handlers) Duplicates(w http.ResponseWriter, r *http.Request) {
	handleGet(h.Leads.Duplicates, "lead not found")(w, r)
}

// HealthCheck handles GET /health. Any failing dependency turns the
// response into a 503 listing every check.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.Health))
	for name := range h.Health {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	checks := make(map[string]string, len(names))
	for _, name := range names {
		if err := h.Health[name](ctx); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	writeJSON(w, status, map[string]any{"status": overall, "checks": checks})
}

func listOptions(w http.ResponseWriter, r *http.Request) (database.ListOptions, bool) {
	var opts database.ListOptions
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxListLimit {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and "+strconv.Itoa(maxListLimit))
			return opts, false
		}
		opts.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return opts, false
		}
		opts.Offset = n
	}
	return opts, true
}
