package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/chemcloud-org/chemcloud/internal/backend"
	"github.com/chemcloud-org/chemcloud/internal/broker"
	"github.com/chemcloud-org/chemcloud/internal/frontend/auth"
	"github.com/chemcloud-org/chemcloud/internal/models"
)

// Error is an API-layer error with a public detail message.
type Error struct {
	HTTPStatus int
	Detail     string
}

func (e *Error) Error() string { return e.Detail }

func newError(status int, detail string) *Error {
	return &Error{HTTPStatus: status, Detail: detail}
}

// handleError maps the gateway error taxonomy onto HTTP statuses.
// Worker failures never arrive here; they surface as regular outputs.
func (a *API) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	detail := "An unexpected error occurred"

	var apiErr *Error
	var upstream *auth.UpstreamError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatus
		detail = apiErr.Detail
	case errors.As(err, &upstream):
		// Forward the identity provider's status code and body.
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(upstream.StatusCode)
		_, _ = w.Write(upstream.Body)
		return
	case errors.Is(err, models.ErrBatchTooLarge):
		status = http.StatusRequestEntityTooLarge
		detail = err.Error()
	case errors.Is(err, models.ErrUnsupportedCalcType),
		errors.Is(err, models.ErrUnknownOption),
		errors.Is(err, models.ErrInvalidInput):
		status = http.StatusUnprocessableEntity
		detail = err.Error()
	case errors.Is(err, backend.ErrResultNotFound):
		status = http.StatusGone
		detail = "Result has already been deleted from server."
	case errors.Is(err, broker.ErrBrokerUnavailable),
		errors.Is(err, backend.ErrBackendUnavailable):
		status = http.StatusInternalServerError
		detail = "Service temporarily unavailable"
	}

	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
