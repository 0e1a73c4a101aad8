package http

import (
	"errors"
	"net/http"

	"github.com/assetops/stocktake/internal/inventory/service"
	"github.com/assetops/stocktake/internal/inventory/store"
	"github.com/assetops/stocktake/pkg/httpx"
	"github.com/assetops/stocktake/pkg/slogx"
)

// writeServiceError translates a service error into the conventional error
// body. Anything unmapped is a 500 and gets logged; mapped errors are the
// caller's problem and logged at debug by the handlers that care.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		httpx.WriteError(w, http.StatusUnauthorized,
			"invalid_credentials", "Invalid username or password")
	case errors.Is(err, service.ErrInvalidSession):
		writeUnauthorized(w)
	case errors.Is(err, service.ErrUnauthorized):
		httpx.WriteError(w, http.StatusForbidden,
			"forbidden", "This operation requires an administrator")

	case errors.Is(err, service.ErrInvalidChallenge):
		httpx.WriteError(w, http.StatusUnauthorized,
			"invalid_challenge", "Login challenge is unknown or expired")
	case errors.Is(err, service.ErrInvalidTOTPCode):
		httpx.WriteError(w, http.StatusBadRequest,
			"invalid_code", "Verification code is incorrect")
	case errors.Is(err, service.ErrTooManyAttempts):
		httpx.WriteError(w, http.StatusTooManyRequests,
			"too_many_attempts", "Too many verification attempts, start over")
	case errors.Is(err, service.ErrTOTPAlreadyEnabled):
		httpx.WriteError(w, http.StatusBadRequest,
			"already_enabled", "Second factor is already enabled")
	case errors.Is(err, service.ErrNotEnrolled):
		httpx.WriteError(w, http.StatusBadRequest,
			"not_enrolled", "Second factor has not been enrolled")

	case errors.Is(err, service.ErrSSODisabled):
		httpx.WriteError(w, http.StatusBadRequest,
			"sso_disabled", "SSO login is not enabled")
	case errors.Is(err, service.ErrSSOAssertionInvalid):
		httpx.WriteError(w, http.StatusUnauthorized,
			"invalid_assertion", "SSO assertion was rejected")
	case errors.Is(err, service.ErrUnknownSSOSubject):
		httpx.WriteError(w, http.StatusForbidden,
			"unknown_subject", "No local account is mapped to this identity")

	case errors.Is(err, service.ErrInvalidChangeRequest):
		httpx.WriteError(w, http.StatusBadRequest,
			"invalid_request", err.Error())
	case errors.Is(err, service.ErrConflictingPendingChange):
		httpx.WriteError(w, http.StatusConflict,
			"conflicting_change", "The record already has a pending change awaiting review")
	case errors.Is(err, service.ErrAlreadyFinalized):
		httpx.WriteError(w, http.StatusConflict,
			"already_finalized", "The change has already been approved or rejected")
	case errors.Is(err, service.ErrRejectReasonRequired):
		httpx.WriteError(w, http.StatusBadRequest,
			"reason_required", "A rejection reason is required")
	case errors.Is(err, service.ErrUnknownChange):
		httpx.WriteError(w, http.StatusNotFound,
			"not_found", "Unknown change")

	case errors.Is(err, service.ErrNoBackupAvailable):
		httpx.WriteError(w, http.StatusNotFound,
			"no_backup", "No backup has been taken")
	case errors.Is(err, service.ErrInvalidClearToken):
		httpx.WriteError(w, http.StatusForbidden,
			"invalid_confirmation", "Clear confirmation token is invalid or expired")
	case errors.Is(err, service.ErrBackupInProgress):
		httpx.WriteError(w, http.StatusConflict,
			"backup_in_progress", "Another backup, restore, or clear is running")
	case errors.Is(err, service.ErrDatabaseBusy):
		w.Header().Set("Retry-After", "5")
		httpx.WriteError(w, http.StatusServiceUnavailable,
			"database_busy", "A backup, restore, or clear is running; retry shortly")

	case errors.Is(err, service.ErrUsernameTaken):
		httpx.WriteError(w, http.StatusConflict,
			"username_taken", "Username is already taken")
	case errors.Is(err, store.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound,
			"not_found", "The requested resource does not exist")

	default:
		slogx.FromContext(r.Context()).Error("request failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError,
			"server_error", "Internal server error")
	}
}

func writeInvalidBody(w http.ResponseWriter) {
	httpx.WriteError(w, http.StatusBadRequest,
		"invalid_request", "Invalid JSON body")
}
