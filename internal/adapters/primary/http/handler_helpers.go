package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/lorrc/service-desk-workflow/internal/adapters/primary/http/middleware"
	"github.com/lorrc/service-desk-workflow/internal/adapters/primary/validation"
	"github.com/lorrc/service-desk-workflow/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-workflow/internal/core/errors"
)

// requireActor returns the authenticated caller or writes a 401.
func requireActor(w http.ResponseWriter, r *http.Request, eh *ErrorHandler) (domain.Actor, bool) {
	actor, ok := mw.ActorFromContext(r.Context())
	if !ok {
		eh.Handle(w, r, apperrors.NewUnauthorizedError("Authentication required"))
		return domain.Actor{}, false
	}
	return actor, true
}

// parseIDParam reads a positive integer URL parameter.
func parseIDParam(r *http.Request, name string) (int64, error) {
	id, err := validation.ParseID(chi.URLParam(r, name))
	if err != nil {
		return 0, apperrors.NewBadRequestError(err, "Invalid "+name)
	}
	return id, nil
}
