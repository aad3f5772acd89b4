package collaboard

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/collaboard/collaboard/core"
)

type IdentityResponse struct {
	UserID    string    `json:"userId"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// IdentityHandler mints a persistent client identity. The client stores the
// token and presents it on every websocket connect, so its user id, authored
// actions, and undo stack survive reconnects.
func (app *App) IdentityHandler(w http.ResponseWriter, r *http.Request) error {
	userID, token, expiresAt, err := core.NewIdentity(app.config.Auth.TokenTTL, app.config.Auth.Secret)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	return json.NewEncoder(w).Encode(IdentityResponse{
		UserID:    userID,
		Token:     token,
		ExpiresAt: expiresAt,
	})
}

type RoomInfoResponse struct {
	ID        string `json:"id"`
	Protected bool   `json:"protected"`
	UserCount int    `json:"userCount"`
	PageCount int    `json:"pageCount"`
}

// RoomInfoHandler lets the lobby probe a room before attempting to join:
// whether it exists and whether it wants a password.
func (app *App) RoomInfoHandler(w http.ResponseWriter, r *http.Request) error {
	roomID := chi.URLParam(r, "roomID")
	room, err := app.registry.Get(roomID)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(RoomInfoResponse{
		ID:        room.ID(),
		Protected: room.Protected(),
		UserCount: room.UserCount(),
		PageCount: room.PageCount(),
	})
}
