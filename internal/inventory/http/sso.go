package http

import (
	"encoding/json"
	"net/http"

	"github.com/assetops/stocktake/internal/inventory/service"
	"github.com/assetops/stocktake/pkg/httpx"
	"github.com/assetops/stocktake/pkg/slogx"
)

// SSOHandler handles the identity provider handshake.
type SSOHandler struct {
	SSOService *service.SSOService
}

type ssoCallbackRequest struct {
	Assertion string `json:"assertion"`
}

// HandleLogin handles GET /v1/sso/login: redirects the browser to the
// configured identity provider.
func (h *SSOHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	url, err := h.SSOService.InitiateLogin()
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	http.Redirect(w, r, url, http.StatusFound)
}

// HandleCallback handles POST /v1/sso/callback: consumes the provider's
// signed assertion and returns a session.
func (h *SSOHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req ssoCallbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBody(w)
		return
	}
	if req.Assertion == "" {
		httpx.WriteError(w, http.StatusBadRequest,
			"invalid_request", "assertion is required")
		return
	}

	result, err := h.SSOService.ConsumeAssertion(ctx, req.Assertion)
	if err != nil {
		log.Debug("sso callback rejected", "err", err)
		writeServiceError(w, r, err)
		return
	}

	writeSession(w, result)
}
