/*
Package handler provides HTTP handler functions for the REST room surface.

Rooms are normally created lazily when the first user joins over WebSocket;
these handlers expose the same registry for discovery and pre-creation.
*/
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"relaychat/internal/pkg/errs"
	"relaychat/internal/pkg/randx"
	"relaychat/internal/pkg/req"
	"relaychat/internal/pkg/resp"
)

// HandleListRooms returns a snapshot of all room names, the same data a
// freshly logged-in WebSocket client receives in its room list event.
func HandleListRooms(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		names := deps.Hub.RoomNames()

		resp.RespondSuccess(w, r, map[string]any{
			"rooms": names,
		})
	}
}

// EnsureRoomInput is the request body for room pre-creation.
type EnsureRoomInput struct {
	// Name is the room to create. Creation is idempotent.
	Name string `json:"name"`
}

// HandleEnsureRoom creates the named room if it does not exist yet. The hub
// broadcasts the room's appearance to connected clients when it is new.
func HandleEnsureRoom(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input EnsureRoomInput

		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if input.Name == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		if !randx.IsValidRoomName(input.Name) {
			resp.RespondError(w, r, errs.NewError(errs.ErrRoomNameInvalid))
			return
		}

		created := deps.Hub.EnsureRoom(input.Name)

		resp.RespondSuccess(w, r, map[string]any{
			"name":    input.Name,
			"created": created,
		})
	}
}

// HandleGetRoom returns one room's current users and message history.
func HandleGetRoom(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")

		if !randx.IsValidRoomName(name) {
			resp.RespondError(w, r, errs.NewError(errs.ErrRoomNameInvalid))
			return
		}

		snapshot, ok := deps.Hub.Snapshot(name)
		if !ok {
			resp.RespondError(w, r, errs.NewError(errs.ErrRoomNotFound))
			return
		}

		resp.RespondSuccess(w, r, snapshot)
	}
}
