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

// InventoryHandler serves the canonical equipment and license records and
// accepts change submissions against them. The entity type comes from the
// route, so one handler covers both record kinds.
type InventoryHandler struct {
	ApprovalService *service.ApprovalService
	UserService     *service.UserService
}

type submitRequest struct {
	Op       string          `json:"op"`
	EntityID string          `json:"entity_id,omitempty"`
	Name     string          `json:"name,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

type entityResponse struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Data      json.RawMessage `json:"data,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func entityType(r *http.Request) (domain.EntityType, bool) {
	typ, err := domain.ParseEntityType(r.PathValue("type"))
	return typ, err == nil
}

// HandleList handles GET /v1/inventory/{type}.
func (h *InventoryHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	typ, ok := entityType(r)
	if !ok {
		http.NotFound(w, r)
		return
	}

	entities, err := h.ApprovalService.ListEntities(r.Context(), typ)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	out := make([]entityResponse, 0, len(entities))
	for _, e := range entities {
		out = append(out, entityResponse{
			ID: e.ID, Name: e.Name, Data: e.Data,
			CreatedAt: e.CreatedAt, UpdatedAt: e.UpdatedAt,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": out})
}

// HandleGet handles GET /v1/inventory/{type}/{id}.
func (h *InventoryHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	typ, ok := entityType(r)
	if !ok {
		http.NotFound(w, r)
		return
	}

	e, err := h.ApprovalService.GetEntity(r.Context(), typ, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, entityResponse{
		ID: e.ID, Name: e.Name, Data: e.Data,
		CreatedAt: e.CreatedAt, UpdatedAt: e.UpdatedAt,
	})
}

// HandleSubmit handles POST /v1/inventory/{type}/changes. Administrators see
// their change applied immediately; standard users get a pending change back.
func (h *InventoryHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	typ, ok := entityType(r)
	if !ok {
		http.NotFound(w, r)
		return
	}

	actor, ok := loadActor(w, r, h.UserService)
	if !ok {
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBody(w)
		return
	}

	op, err := service.ParseOp(req.Op)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	result, err := h.ApprovalService.Submit(ctx, actor, domain.ChangeRequest{
		EntityType: typ,
		EntityID:   req.EntityID,
		Op:         op,
		Name:       req.Name,
		Payload:    req.Payload,
	})
	if err != nil {
		log.Debug("submission rejected", "entity_type", typ, "err", err)
		writeServiceError(w, r, err)
		return
	}

	if result.Applied {
		httpx.WriteJSON(w, http.StatusOK, map[string]any{
			"applied":   true,
			"entity_id": result.EntityID,
		})
		return
	}

	httpx.WriteJSON(w, http.StatusAccepted, map[string]any{
		"applied": false,
		"change":  toChangeResponse(result.Change),
	})
}
