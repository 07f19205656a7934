package catalog

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// PostgresReader reads items from the shared Postgres database.
type PostgresReader struct {
	db *sql.DB
}

// NewPostgresReader wraps an existing connection pool.
func NewPostgresReader(db *sql.DB) *PostgresReader {
	return &PostgresReader{db: db}
}

// GetItemsByIDs fetches the given items in one query. Missing ids are simply
// absent from the result map; the caller decides whether that is an error.
func (r *PostgresReader) GetItemsByIDs(ctx context.Context, ids []string) (map[string]Item, error) {
	out := make(map[string]Item, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	query := `SELECT id, name, unit_price, active, remaining_qty, updated_at
	          FROM items WHERE id = ANY($1)`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.Name, &it.UnitPrice, &it.Active, &it.RemainingQty, &it.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		out[it.ID] = it
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return out, nil
}
