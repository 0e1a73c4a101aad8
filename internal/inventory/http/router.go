package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/assetops/stocktake/internal/inventory/service"
	"github.com/assetops/stocktake/internal/inventory/store"
	"github.com/assetops/stocktake/pkg/httpx"
	"github.com/assetops/stocktake/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	sessions     *service.SessionSigner
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store           store.Store
	AuthService     *service.AuthService
	SSOService      *service.SSOService
	TOTPService     *service.TOTPService
	ApprovalService *service.ApprovalService
	AuditService    *service.AuditService
	SnapshotService *service.SnapshotService
	SettingsService *service.SettingsService
	UserService     *service.UserService
}

func NewRouter(
	sessions *service.SessionSigner,
	buildVersion string,
	st store.Store,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		sessions:     sessions,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerSSO()
	r.registerMFA()
	r.registerInventory()
	r.registerApprovals()
	r.registerAudit()
	r.registerDatabase()
	r.registerSettings()
	r.registerUsers()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global
// middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerAuth() {
	h := &AuthHandler{
		AuthService: r.AuthService,
		TOTPService: r.TOTPService,
	}

	// Credential endpoints are the brute force surface: strict limits, keyed
	// by IP since there is no session yet.
	r.Mux.Handle("POST /v1/auth/login",
		httpx.Chain(http.HandlerFunc(h.HandleLogin),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST /v1/auth/verify-2fa",
		httpx.Chain(http.HandlerFunc(h.HandleVerify),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerSSO() {
	h := &SSOHandler{SSOService: r.SSOService}

	r.Mux.Handle("GET /v1/sso/login",
		httpx.Chain(http.HandlerFunc(h.HandleLogin),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("POST /v1/sso/callback",
		httpx.Chain(http.HandlerFunc(h.HandleCallback),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerMFA() {
	h := &MFAHandler{
		TOTPService: r.TOTPService,
		UserService: r.UserService,
	}

	r.Mux.Handle("POST /v1/mfa/totp/generate",
		httpx.Chain(http.HandlerFunc(h.HandleGenerate),
			AuthnMiddleware(r.sessions),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("POST /v1/mfa/totp/enable",
		httpx.Chain(http.HandlerFunc(h.HandleEnable),
			AuthnMiddleware(r.sessions),
			httpx.RateLimitByUser(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST /v1/mfa/totp/disable",
		httpx.Chain(http.HandlerFunc(h.HandleDisable),
			AuthnMiddleware(r.sessions),
			httpx.RateLimitByUser(httpx.StrictLimit),
		),
	)

	// Admin recovery path for users locked out of their authenticator.
	r.Mux.Handle("DELETE /v1/users/{id}/totp",
		httpx.Chain(http.HandlerFunc(h.HandleAdminDisable),
			AuthnMiddleware(r.sessions),
			RequireAdmin(),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerInventory() {
	h := &InventoryHandler{
		ApprovalService: r.ApprovalService,
		UserService:     r.UserService,
	}

	r.Mux.Handle("GET /v1/inventory/{type}",
		httpx.Chain(http.HandlerFunc(h.HandleList),
			AuthnMiddleware(r.sessions),
			httpx.RateLimitByUser(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /v1/inventory/{type}/{id}",
		httpx.Chain(http.HandlerFunc(h.HandleGet),
			AuthnMiddleware(r.sessions),
			httpx.RateLimitByUser(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("POST /v1/inventory/{type}/changes",
		httpx.Chain(http.HandlerFunc(h.HandleSubmit),
			AuthnMiddleware(r.sessions),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerApprovals() {
	h := &ApprovalsHandler{
		ApprovalService: r.ApprovalService,
		UserService:     r.UserService,
	}

	r.Mux.Handle("GET /v1/changes",
		httpx.Chain(http.HandlerFunc(h.HandleList),
			AuthnMiddleware(r.sessions),
			httpx.RateLimitByUser(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /v1/changes/{id}",
		httpx.Chain(http.HandlerFunc(h.HandleGet),
			AuthnMiddleware(r.sessions),
			httpx.RateLimitByUser(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("POST /v1/changes/{id}/approve",
		httpx.Chain(http.HandlerFunc(h.HandleApprove),
			AuthnMiddleware(r.sessions),
			RequireAdmin(),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("POST /v1/changes/{id}/reject",
		httpx.Chain(http.HandlerFunc(h.HandleReject),
			AuthnMiddleware(r.sessions),
			RequireAdmin(),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerAudit() {
	h := &AuditHandler{AuditService: r.AuditService}

	r.Mux.Handle("GET /v1/audit",
		httpx.Chain(http.HandlerFunc(h.HandleList),
			AuthnMiddleware(r.sessions),
			RequireAdmin(),
			httpx.RateLimitByUser(httpx.LenientLimit),
		),
	)
}

func (r *Router) registerDatabase() {
	h := &DatabaseHandler{
		SnapshotService: r.SnapshotService,
		UserService:     r.UserService,
	}

	admin := func(next http.Handler, limit httpx.RateLimitConfig) http.Handler {
		return httpx.Chain(next,
			AuthnMiddleware(r.sessions),
			RequireAdmin(),
			httpx.RateLimitByUser(limit),
		)
	}

	r.Mux.Handle("GET /v1/database/backup",
		admin(http.HandlerFunc(h.HandleStatus), httpx.LenientLimit))
	r.Mux.Handle("POST /v1/database/backup",
		admin(http.HandlerFunc(h.HandleBackup), httpx.StrictLimit))
	r.Mux.Handle("POST /v1/database/restore",
		admin(http.HandlerFunc(h.HandleRestore), httpx.StrictLimit))
	r.Mux.Handle("POST /v1/database/clear-token",
		admin(http.HandlerFunc(h.HandleClearToken), httpx.StrictLimit))
	r.Mux.Handle("POST /v1/database/clear",
		admin(http.HandlerFunc(h.HandleClear), httpx.StrictLimit))
}

func (r *Router) registerSettings() {
	h := &SettingsHandler{
		SettingsService: r.SettingsService,
		UserService:     r.UserService,
	}

	r.Mux.Handle("GET /v1/settings",
		httpx.Chain(http.HandlerFunc(h.HandleGet),
			AuthnMiddleware(r.sessions),
			httpx.RateLimitByUser(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("PUT /v1/settings",
		httpx.Chain(http.HandlerFunc(h.HandlePut),
			AuthnMiddleware(r.sessions),
			RequireAdmin(),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerUsers() {
	h := &UsersHandler{UserService: r.UserService}

	r.Mux.Handle("GET /v1/me",
		httpx.Chain(http.HandlerFunc(h.HandleMe),
			AuthnMiddleware(r.sessions),
			httpx.RateLimitByUser(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /v1/users",
		httpx.Chain(http.HandlerFunc(h.HandleList),
			AuthnMiddleware(r.sessions),
			RequireAdmin(),
			httpx.RateLimitByUser(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("POST /v1/users",
		httpx.Chain(http.HandlerFunc(h.HandleCreate),
			AuthnMiddleware(r.sessions),
			RequireAdmin(),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerSystem() {
	// Monitoring may poll these frequently.
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}
