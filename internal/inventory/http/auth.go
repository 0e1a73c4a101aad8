package http

import (
	"encoding/json"
	"net/http"

	"github.com/assetops/stocktake/internal/inventory/domain"
	"github.com/assetops/stocktake/internal/inventory/service"
	"github.com/assetops/stocktake/pkg/httpx"
	"github.com/assetops/stocktake/pkg/slogx"
)

// AuthHandler handles password login and login challenge completion.
type AuthHandler struct {
	AuthService *service.AuthService
	TOTPService *service.TOTPService
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type verifyRequest struct {
	ChallengeID string `json:"challenge_id"`
	Code        string `json:"code"`
}

type sessionResponse struct {
	Token     string `json:"token,omitempty"`
	TokenType string `json:"token_type,omitempty"`

	TwoFARequired bool   `json:"two_fa_required,omitempty"`
	ChallengeID   string `json:"challenge_id,omitempty"`

	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// HandleLogin handles POST /v1/auth/login.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBody(w)
		return
	}
	if req.Username == "" || req.Password == "" {
		httpx.WriteError(w, http.StatusBadRequest,
			"invalid_request", "username and password are required")
		return
	}

	result, err := h.AuthService.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		log.Debug("login rejected", "username", req.Username)
		writeServiceError(w, r, err)
		return
	}

	writeSession(w, result)
}

// HandleVerify handles POST /v1/auth/verify-2fa.
func (h *AuthHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBody(w)
		return
	}
	if req.ChallengeID == "" || req.Code == "" {
		httpx.WriteError(w, http.StatusBadRequest,
			"invalid_request", "challenge_id and code are required")
		return
	}

	result, err := h.TOTPService.VerifyLogin(ctx, req.ChallengeID, req.Code)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeSession(w, result)
}

func writeSession(w http.ResponseWriter, result domain.LoginResult) {
	resp := sessionResponse{
		UserID:   result.User.ID,
		Username: result.User.Username,
		Role:     result.User.Role.String(),
	}
	if result.TwoFARequired {
		resp.TwoFARequired = true
		resp.ChallengeID = result.ChallengeID
	} else {
		resp.Token = result.SessionToken
		resp.TokenType = "Bearer"
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, resp)
}
