package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/lumen-api/lumen/internal/refine"
	"github.com/lumen-api/lumen/internal/store"
)

var errReadOnlyBackend = errors.New("backend does not accept writes")

type requestError struct {
	err error
}

func (e *requestError) Error() string { return e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

// badRequest marks a decode failure so renderError maps it to 400.
func badRequest(err error) error {
	return &requestError{err: err}
}

// renderError maps domain errors onto statuses and the error envelope.
// Unknown names in the query are client mistakes (400), missing records
// are 404, rejected writes are 422, everything else is a 500.
func renderError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		reqErr      *requestError
		scopeErr    *refine.UnknownScopeError
		attrErr     *refine.UnknownAttributeError
		assocErr    *refine.UnknownAssociationError
		remoteErr   *refine.UnknownRemoteError
		notFound    *store.NotFoundError
		invalid     *store.ValidationError
		unpermitted *store.UnpermittedParameterError
	)

	switch {
	case errors.As(err, &reqErr),
		errors.As(err, &scopeErr),
		errors.As(err, &attrErr),
		errors.As(err, &assocErr),
		errors.As(err, &remoteErr):
		renderErrorBody(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &notFound):
		renderErrorBody(w, http.StatusNotFound, err.Error())
	case errors.As(err, &invalid):
		renderErrorBody(w, http.StatusUnprocessableEntity, invalid.Fields)
	case errors.As(err, &unpermitted):
		renderErrorBody(w, http.StatusUnprocessableEntity, unpermitted.FieldErrors())
	case errors.Is(err, errReadOnlyBackend):
		renderErrorBody(w, http.StatusMethodNotAllowed, err.Error())
	default:
		renderErrorBody(w, http.StatusInternalServerError, "internal server error")
	}
}

// renderErrorBody writes the {"errors": ...} envelope. The value is a
// string for request-level failures and a field map for validation
// failures, matching what the client-side parser accepts.
func renderErrorBody(w http.ResponseWriter, status int, errs any) {
	body, err := json.Marshal(map[string]any{"errors": errs})
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}
