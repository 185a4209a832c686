package http

import (
	"net/http"

	"github.com/cockroachdb/errors"

	"github.com/robertarktes/cinema-booking/internal/domain"
	"github.com/robertarktes/cinema-booking/internal/observability"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// writeError maps the domain error taxonomy onto HTTP. Anything outside
// the taxonomy is a 500 with a generic message; internals never leak.
func writeError(w http.ResponseWriter, logger observability.Logger, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		writeJSONError(w, http.StatusBadRequest, "validation", err.Error())
	case errors.Is(err, domain.ErrBadRequest):
		writeJSONError(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrConflict):
		writeJSONError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, domain.ErrSerializationFailure):
		writeJSONError(w, http.StatusConflict, "conflict", "conflicting booking in progress, try again")
	case errors.Is(err, domain.ErrUnauthorized):
		writeJSONError(w, http.StatusForbidden, "unauthorized", err.Error())
	case errors.Is(err, domain.ErrExternalService):
		writeJSONError(w, http.StatusBadGateway, "external_service", "payment gateway request failed")
	default:
		logger.WithError(err).Error("internal error")
		writeJSONError(w, http.StatusInternalServerError, "internal", "internal server error")
	}
}

// errorIsPermanent reports whether retrying the same event can ever
// succeed. Guard rejections are permanent; everything else may be
// transient.
func errorIsPermanent(err error) bool {
	return errors.Is(err, domain.ErrBadRequest)
}

func writeJSONError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, errorResponse{Error: kind, Message: message})
}
