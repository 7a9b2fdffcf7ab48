package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"visitor-router/internal/domain"
	"visitor-router/internal/engine"
	"visitor-router/internal/observability"
	"visitor-router/internal/storage"
)

const maxBodyBytes = 1 << 20

type Handler struct {
	Eng   *engine.Engine
	store storage.Store
}

func NewHandler(eng *engine.Engine, store storage.Store) *Handler {
	return &Handler{Eng: eng, store: store}
}

type targetResponse struct {
	Message string        `json:"message"`
	Target  domain.Target `json:"target"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return domain.Invalid("decode body: %v", err)
	}
	return nil
}

func (h *Handler) AddTarget(w http.ResponseWriter, r *http.Request) {
	var t domain.Target
	if err := decode(w, r, &t); err != nil {
		writeError(w, r, err)
		return
	}
	created, err := h.Eng.Targets().Add(r.Context(), t)
	if err != nil {
		writeError(w, r, err)
		return
	}
	observability.TargetWrites.WithLabelValues("create").Inc()
	writeJSON(w, http.StatusOK, targetResponse{Message: "new target created successfully", Target: created})
}

func (h *Handler) ListTargets(w http.ResponseWriter, r *http.Request) {
	targets, err := h.Eng.Targets().GetAll(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, targets)
}

func (h *Handler) GetTarget(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	t, ok, err := h.Eng.Targets().Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !ok {
		writeError(w, r, domain.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) UpdateTarget(w http.ResponseWriter, r *http.Request) {
	var t domain.Target
	if err := decode(w, r, &t); err != nil {
		writeError(w, r, err)
		return
	}
	updated, err := h.Eng.Targets().Update(r.Context(), chi.URLParam(r, "id"), t)
	if err != nil {
		writeError(w, r, err)
		return
	}
	observability.TargetWrites.WithLabelValues("update").Inc()
	writeJSON(w, http.StatusOK, targetResponse{Message: "target updated successfully", Target: updated})
}

func (h *Handler) Route(w http.ResponseWriter, r *http.Request) {
	var req domain.VisitorRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := domain.Validate(req); err != nil {
		writeError(w, r, err)
		return
	}
	visitor, err := req.Visitor()
	if err != nil {
		writeError(w, r, err)
		return
	}

	decision, err := h.Eng.Decide(r.Context(), visitor)
	if err != nil {
		observability.Decisions.WithLabelValues("error").Inc()
		writeError(w, r, err)
		return
	}
	if decision.Rejected() {
		observability.Decisions.WithLabelValues("reject").Inc()
	} else {
		observability.Decisions.WithLabelValues("accept").Inc()
		hlog.FromRequest(r).Info().Str("target_id", decision.TargetID).Msg("visitor accepted")
	}
	writeJSON(w, http.StatusOK, decision)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), time.Second)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("store health check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "UNAVAILABLE"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "OK"})
}
