package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/assetops/stocktake/internal/inventory/domain"
	"github.com/assetops/stocktake/internal/inventory/service"
	"github.com/assetops/stocktake/pkg/httpx"
)

// AuditHandler serves the append-only ledger, oldest first.
type AuditHandler struct {
	AuditService *service.AuditService
}

type auditEntryResponse struct {
	Seq        int64           `json:"seq"`
	Actor      string          `json:"actor"`
	Action     string          `json:"action"`
	EntityType string          `json:"entity_type,omitempty"`
	EntityID   string          `json:"entity_id,omitempty"`
	Before     json.RawMessage `json:"before,omitempty"`
	After      json.RawMessage `json:"after,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// HandleList handles GET /v1/audit. Supported query parameters: actor,
// action, entity_type, entity_id, after_seq, limit.
func (h *AuditHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.AuditFilter{
		Actor:      q.Get("actor"),
		Action:     q.Get("action"),
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
	}

	if raw := q.Get("after_seq"); raw != "" {
		seq, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || seq < 0 {
			httpx.WriteError(w, http.StatusBadRequest,
				"invalid_request", "after_seq must be a non-negative integer")
			return
		}
		filter.AfterSeq = seq
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			httpx.WriteError(w, http.StatusBadRequest,
				"invalid_request", "limit must be a positive integer")
			return
		}
		filter.Limit = limit
	}

	entries, err := h.AuditService.List(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	out := make([]auditEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, auditEntryResponse{
			Seq:        e.Seq,
			Actor:      e.Actor,
			Action:     e.Action,
			EntityType: e.EntityType,
			EntityID:   e.EntityID,
			Before:     e.Before,
			After:      e.After,
			CreatedAt:  e.CreatedAt,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"entries": out})
}
