package http

import (
	"encoding/json"
	"net/http"

	"github.com/assetops/stocktake/internal/inventory/domain"
	"github.com/assetops/stocktake/internal/inventory/service"
	"github.com/assetops/stocktake/pkg/httpx"
	"github.com/assetops/stocktake/pkg/slogx"
)

// SettingsHandler handles the runtime configuration surface.
type SettingsHandler struct {
	SettingsService *service.SettingsService
	UserService     *service.UserService
}

type settingsPayload struct {
	CompanyName     string `json:"company_name"`
	SSOEnabled      bool   `json:"sso_enabled"`
	SSOLoginURL     string `json:"sso_login_url"`
	RequireTOTP     bool   `json:"require_totp"`
	JITProvisioning bool   `json:"jit_provisioning"`
}

// HandleGet handles GET /v1/settings.
func (h *SettingsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	s := h.SettingsService.Current()
	httpx.WriteJSON(w, http.StatusOK, settingsPayload{
		CompanyName:     s.CompanyName,
		SSOEnabled:      s.SSOEnabled,
		SSOLoginURL:     s.SSOLoginURL,
		RequireTOTP:     s.RequireTOTP,
		JITProvisioning: s.JITProvisioning,
	})
}

// HandlePut handles PUT /v1/settings.
func (h *SettingsHandler) HandlePut(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	actor, ok := loadActor(w, r, h.UserService)
	if !ok {
		return
	}

	var req settingsPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBody(w)
		return
	}
	if req.SSOEnabled && req.SSOLoginURL == "" {
		httpx.WriteError(w, http.StatusBadRequest,
			"invalid_request", "sso_login_url is required when sso is enabled")
		return
	}

	next := domain.Settings{
		CompanyName:     req.CompanyName,
		SSOEnabled:      req.SSOEnabled,
		SSOLoginURL:     req.SSOLoginURL,
		RequireTOTP:     req.RequireTOTP,
		JITProvisioning: req.JITProvisioning,
	}
	if err := h.SettingsService.Save(ctx, actor, next); err != nil {
		log.Warn("settings update failed", "err", err)
		writeServiceError(w, r, err)
		return
	}

	h.HandleGet(w, r)
}
