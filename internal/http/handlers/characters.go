package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"gengateway/internal/domain"
	"gengateway/internal/middleware"
)

type renameRequest struct {
	DisplayName string `json:"display_name"`
}

// RenameCharacter handles PATCH /v1/characters/{username}. Only the display
// name can change; the username is fixed at creation.
func (a *App) RenameCharacter(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())
	var req renameRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&req); err != nil {
		a.fail(w, r, domain.WrapError(domain.KindBadEncoding, "", "body must be a JSON object", err))
		return
	}
	c, err := a.Gateway.RenameCharacter(r.Context(), p, chi.URLParam(r, "username"), req.DisplayName)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"success": true,
		"data": domain.CharacterResult{
			CameoID:     c.CameoID,
			Username:    c.Username,
			DisplayName: c.DisplayName,
		},
	})
}
