package sqlite

import (
	"context"
	"encoding/json"

	"github.com/assetops/stocktake/internal/inventory/domain"
)

type entitiesRepo struct {
	q dbtx
}

func (r *entitiesRepo) GetEntity(ctx context.Context, typ domain.EntityType, id string) (domain.Entity, error) {
	var (
		e    domain.Entity
		typS string
		data string
	)
	err := r.q.QueryRowContext(ctx, `
		SELECT id, entity_type, name, data, created_at, updated_at
		FROM entities WHERE entity_type = ? AND id = ?`,
		string(typ), id,
	).Scan(&e.ID, &typS, &e.Name, &data, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return domain.Entity{}, mapNotFound(err)
	}

	e.EntityType = domain.EntityType(typS)
	e.Data = json.RawMessage(data)
	return e, nil
}

func (r *entitiesRepo) UpsertEntity(ctx context.Context, e domain.Entity) error {
	data := string(e.Data)
	if data == "" {
		data = "{}"
	}
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO entities (id, entity_type, name, data)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (entity_type, id) DO UPDATE SET
			name = excluded.name,
			data = excluded.data,
			updated_at = CURRENT_TIMESTAMP`,
		e.ID, string(e.EntityType), e.Name, data,
	)
	return err
}

func (r *entitiesRepo) DeleteEntity(ctx context.Context, typ domain.EntityType, id string) error {
	_, err := r.q.ExecContext(ctx,
		`DELETE FROM entities WHERE entity_type = ? AND id = ?`, string(typ), id)
	return err
}

func (r *entitiesRepo) ListEntities(ctx context.Context, typ domain.EntityType) ([]domain.Entity, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, entity_type, name, data, created_at, updated_at
		FROM entities WHERE entity_type = ? ORDER BY name`, string(typ))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entities []domain.Entity
	for rows.Next() {
		var (
			e    domain.Entity
			typS string
			data string
		)
		if err := rows.Scan(&e.ID, &typS, &e.Name, &data, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		e.EntityType = domain.EntityType(typS)
		e.Data = json.RawMessage(data)
		entities = append(entities, e)
	}
	return entities, rows.Err()
}
