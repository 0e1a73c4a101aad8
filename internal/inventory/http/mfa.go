package http

import (
	"encoding/json"
	"net/http"

	"github.com/assetops/stocktake/internal/inventory/domain"
	"github.com/assetops/stocktake/internal/inventory/service"
	"github.com/assetops/stocktake/pkg/httpx"
	"github.com/assetops/stocktake/pkg/slogx"
)

// MFAHandler handles second factor enrollment and removal.
type MFAHandler struct {
	TOTPService *service.TOTPService
	UserService *service.UserService
}

type mfaCodeRequest struct {
	Code string `json:"code"`
}

// HandleGenerate handles POST /v1/mfa/totp/generate.
func (h *MFAHandler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	user, ok := h.actor(w, r)
	if !ok {
		return
	}

	enrollment, err := h.TOTPService.GenerateSecret(ctx, user)
	if err != nil {
		log.Warn("totp enrollment start failed", "user_id", user.ID, "err", err)
		writeServiceError(w, r, err)
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, map[string]string{
		"secret":      enrollment.Secret,
		"otpauth_url": enrollment.URL,
	})
}

// HandleEnable handles POST /v1/mfa/totp/enable.
func (h *MFAHandler) HandleEnable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req mfaCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBody(w)
		return
	}

	if err := h.TOTPService.ConfirmEnable(ctx, user, req.Code); err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]bool{"enabled": true})
}

// HandleDisable handles POST /v1/mfa/totp/disable.
func (h *MFAHandler) HandleDisable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req mfaCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBody(w)
		return
	}

	if err := h.TOTPService.Disable(ctx, user, req.Code); err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]bool{"enabled": false})
}

// HandleAdminDisable handles DELETE /v1/users/{id}/totp.
func (h *MFAHandler) HandleAdminDisable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	targetID := r.PathValue("id")
	if targetID == "" {
		httpx.WriteError(w, http.StatusBadRequest,
			"invalid_request", "user id is required")
		return
	}

	if err := h.TOTPService.AdminDisable(ctx, actor, targetID); err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]bool{"enabled": false})
}

func (h *MFAHandler) actor(w http.ResponseWriter, r *http.Request) (domain.User, bool) {
	return loadActor(w, r, h.UserService)
}
