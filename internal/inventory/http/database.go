package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/assetops/stocktake/internal/inventory/service"
	"github.com/assetops/stocktake/pkg/httpx"
	"github.com/assetops/stocktake/pkg/slogx"
)

// DatabaseHandler handles the single-slot backup, restore, and the guarded
// clear operation.
type DatabaseHandler struct {
	SnapshotService *service.SnapshotService
	UserService     *service.UserService
}

type clearRequest struct {
	ConfirmToken string `json:"confirm_token"`
}

// HandleStatus handles GET /v1/database/backup: slot existence and
// timestamp, never content.
func (h *DatabaseHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.SnapshotService.Status(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	resp := map[string]any{"has_backup": status.HasBackup}
	if status.TakenAt != nil {
		resp["taken_at"] = status.TakenAt.UTC().Format(time.RFC3339)
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// HandleBackup handles POST /v1/database/backup.
func (h *DatabaseHandler) HandleBackup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	actor, ok := loadActor(w, r, h.UserService)
	if !ok {
		return
	}

	if err := h.SnapshotService.Backup(ctx, actor); err != nil {
		log.Warn("backup failed", "err", err)
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// HandleRestore handles POST /v1/database/restore. On success every
// outstanding session token is invalid, including the caller's.
func (h *DatabaseHandler) HandleRestore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	actor, ok := loadActor(w, r, h.UserService)
	if !ok {
		return
	}

	if err := h.SnapshotService.Restore(ctx, actor); err != nil {
		log.Warn("restore failed", "err", err)
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"ok":                   true,
		"sessions_invalidated": true,
	})
}

// HandleClearToken handles POST /v1/database/clear-token: mints the
// single-use confirmation token Clear demands.
func (h *DatabaseHandler) HandleClearToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor, ok := loadActor(w, r, h.UserService)
	if !ok {
		return
	}

	token, err := h.SnapshotService.IssueClearToken(ctx, actor)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"confirm_token": token,
		"expires_in":    int(service.ClearTokenTTL.Seconds()),
	})
}

// HandleClear handles POST /v1/database/clear.
func (h *DatabaseHandler) HandleClear(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	actor, ok := loadActor(w, r, h.UserService)
	if !ok {
		return
	}

	var req clearRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBody(w)
		return
	}

	if err := h.SnapshotService.Clear(ctx, actor, req.ConfirmToken); err != nil {
		log.Warn("clear failed", "err", err)
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"ok":                   true,
		"sessions_invalidated": true,
	})
}
