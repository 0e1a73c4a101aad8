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

// ApprovalsHandler handles the review side of the workflow.
type ApprovalsHandler struct {
	ApprovalService *service.ApprovalService
	UserService     *service.UserService
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

type changeResponse struct {
	ID           string          `json:"id"`
	EntityType   string          `json:"entity_type"`
	EntityID     string          `json:"entity_id"`
	Op           string          `json:"op"`
	Name         string          `json:"name"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	SubmittedBy  string          `json:"submitted_by"`
	Status       string          `json:"status"`
	RejectReason *string         `json:"reject_reason,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func toChangeResponse(c domain.PendingChange) changeResponse {
	return changeResponse{
		ID:           c.ID,
		EntityType:   string(c.EntityType),
		EntityID:     c.EntityID,
		Op:           string(c.Op),
		Name:         c.Name,
		Payload:      c.Payload,
		SubmittedBy:  c.SubmittedBy,
		Status:       string(c.Status),
		RejectReason: c.RejectReason,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

// HandleList handles GET /v1/changes. ?status=pending narrows to open ones.
func (h *ApprovalsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	pendingOnly := r.URL.Query().Get("status") == "pending"

	changes, err := h.ApprovalService.List(r.Context(), pendingOnly)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	out := make([]changeResponse, 0, len(changes))
	for _, c := range changes {
		out = append(out, toChangeResponse(c))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"changes": out})
}

// HandleGet handles GET /v1/changes/{id}.
func (h *ApprovalsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	change, err := h.ApprovalService.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toChangeResponse(change))
}

// HandleApprove handles POST /v1/changes/{id}/approve.
func (h *ApprovalsHandler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	reviewer, ok := loadActor(w, r, h.UserService)
	if !ok {
		return
	}

	changeID := r.PathValue("id")
	if err := h.ApprovalService.Approve(ctx, reviewer, changeID); err != nil {
		log.Warn("approval failed", "change_id", changeID, "err", err)
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": string(domain.ChangeApproved)})
}

// HandleReject handles POST /v1/changes/{id}/reject.
func (h *ApprovalsHandler) HandleReject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	reviewer, ok := loadActor(w, r, h.UserService)
	if !ok {
		return
	}

	var req rejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBody(w)
		return
	}

	changeID := r.PathValue("id")
	if err := h.ApprovalService.Reject(ctx, reviewer, changeID, req.Reason); err != nil {
		log.Warn("rejection failed", "change_id", changeID, "err", err)
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": string(domain.ChangeRejected)})
}
