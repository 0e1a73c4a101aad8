package service

import (
	"context"

	"github.com/assetops/stocktake/internal/inventory/domain"
	"github.com/assetops/stocktake/internal/inventory/store"
)

// AuditService reads the append-only ledger. Writing happens inside the
// mutating transactions of the other services via tx.Audit().AppendAudit, so
// a committed mutation without its ledger row cannot exist.
type AuditService struct {
	Store store.Store
}

func (s *AuditService) List(ctx context.Context, f domain.AuditFilter) ([]domain.AuditEntry, error) {
	return s.Store.Audit().ListAudit(ctx, f)
}
