package handler

import (
	"net/http"

	"stompchat/internal/pkg/errs"
	"stompchat/internal/pkg/resp"
)

// HandleSession returns the current session snapshot.
func HandleSession(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Session == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrNotConnected).WithStatus(http.StatusServiceUnavailable))
			return
		}
		resp.RespondSuccess(w, r, deps.Session.Snapshot())
	}
}

// HandleRoster returns only the users currently shown as online.
func HandleRoster(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Session == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrNotConnected).WithStatus(http.StatusServiceUnavailable))
			return
		}
		resp.RespondSuccess(w, r, deps.Session.Snapshot().Roster)
	}
}
