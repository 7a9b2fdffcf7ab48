package api

import (
	"net/http"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"visitor-router/internal/domain"
	"visitor-router/internal/observability"
)

func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, "conflict"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// writeError logs err and answers with the status text only; internal
// messages stay in the log.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, kind := statusOf(err)
	observability.RequestErrors.WithLabelValues(kind).Inc()

	var ev *zerolog.Event
	if status >= http.StatusInternalServerError {
		ev = hlog.FromRequest(r).Error()
	} else {
		ev = hlog.FromRequest(r).Warn()
	}
	ev.Err(err).Int("status", status).Msg("request failed")

	writeJSON(w, status, map[string]string{"error": http.StatusText(status)})
}
