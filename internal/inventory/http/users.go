package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/assetops/stocktake/internal/inventory/domain"
	"github.com/assetops/stocktake/internal/inventory/service"
	"github.com/assetops/stocktake/pkg/httpx"
	"github.com/assetops/stocktake/pkg/slogx"
)

// UsersHandler handles account administration and the self profile.
type UsersHandler struct {
	UserService *service.UserService
}

type createUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password,omitempty"`
	Role     string `json:"role"`
}

type userResponse struct {
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	Role        string     `json:"role"`
	SSOOnly     bool       `json:"sso_only"`
	TOTPEnabled bool       `json:"totp_enabled"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	EnabledAt   *time.Time `json:"totp_enabled_at,omitempty"`
}

func toUserResponse(u domain.User) userResponse {
	return userResponse{
		ID:          u.ID,
		Username:    u.Username,
		Role:        u.Role.String(),
		SSOOnly:     u.SSOOnly,
		TOTPEnabled: u.SecondFactorActive(),
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
		EnabledAt:   u.TOTPEnabled,
	}
}

// HandleMe handles GET /v1/me.
func (h *UsersHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := loadActor(w, r, h.UserService)
	if !ok {
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toUserResponse(user))
}

// HandleList handles GET /v1/users.
func (h *UsersHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	users, err := h.UserService.List(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	out := make([]userResponse, 0, len(users))
	for _, u := range users {
		out = append(out, toUserResponse(u))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"users": out})
}

// HandleCreate handles POST /v1/users.
func (h *UsersHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	actor, ok := loadActor(w, r, h.UserService)
	if !ok {
		return
	}

	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBody(w)
		return
	}

	role, err := domain.ParseRole(req.Role)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	created, err := h.UserService.Create(ctx, actor, service.CreateUserParams{
		Username: req.Username,
		Password: req.Password,
		Role:     role,
	})
	if err != nil {
		log.Warn("user creation failed", "username", req.Username, "err", err)
		writeServiceError(w, r, err)
		return
	}

	resp := map[string]any{"user": toUserResponse(created.User)}
	if created.GeneratedPassword != "" {
		// Shown once; it is never stored in recoverable form.
		resp["generated_password"] = created.GeneratedPassword
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusCreated, resp)
}
