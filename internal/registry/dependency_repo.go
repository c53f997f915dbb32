package registry

import (
	"context"
	"fmt"
)

// DependencyRepository provides the edge operations over
// service_dependency required by §4.5: insertion (irreflexivity and
// uniqueness enforced by the store), single-edge removal, joined
// listing, and atomic bulk deletion.
type DependencyRepository struct {
	db *DB
}

// NewDependencyRepository builds a DependencyRepository over db.
func NewDependencyRepository(db *DB) *DependencyRepository {
	return &DependencyRepository{db: db}
}

// Add inserts a new edge from serviceID to dependentID. The store's
// CHECK and unique-index constraints surface irreflexivity and
// duplicate-edge violations as classified errors.
func (r *DependencyRepository) Add(ctx context.Context, serviceID, dependentID int64, tunnel bool) error {
	_, err := r.db.conn.ExecContext(ctx,
		`INSERT INTO service_dependency (service_id, dependent_service_id, tunnel_enabled) VALUES (?, ?, ?)`,
		serviceID, dependentID, tunnel)
	return classifyWriteError(err)
}

// Remove deletes the single outgoing edge from serviceID to
// dependentID, failing if none exists.
func (r *DependencyRepository) Remove(ctx context.Context, serviceID, dependentID int64) error {
	result, err := r.db.conn.ExecContext(ctx,
		`DELETE FROM service_dependency WHERE service_id = ? AND dependent_service_id = ?`,
		serviceID, dependentID)
	if err != nil {
		return classifyWriteError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("registry: read rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListDependencies returns every outgoing edge from serviceID joined
// with the target service's name and advisory status.
func (r *DependencyRepository) ListDependencies(ctx context.Context, serviceID int64) ([]JoinedDependency, error) {
	rows, err := r.db.conn.QueryContext(ctx, `
		SELECT sd.dependent_service_id, s.name, sd.tunnel_enabled, s.status
		FROM service_dependency sd
		JOIN service s ON s.id = sd.dependent_service_id
		WHERE sd.service_id = ?
		ORDER BY s.name`, serviceID)
	if err != nil {
		return nil, fmt.Errorf("registry: query dependencies: %w", err)
	}
	defer rows.Close()

	var out []JoinedDependency
	for rows.Next() {
		var d JoinedDependency
		if err := rows.Scan(&d.DependentServiceID, &d.DependentName, &d.TunnelEnabled, &d.State); err != nil {
			return nil, fmt.Errorf("registry: scan dependency row: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// DeleteMany removes every dependency edge (either endpoint) touching
// any of ids, atomically: all edges are removed or none are.
func (r *DependencyRepository) DeleteMany(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := r.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("registry: begin dependency cleanup transaction: %w", err)
	}
	defer tx.Rollback()

	placeholders := make([]any, 0, len(ids)*2)
	query := "DELETE FROM service_dependency WHERE service_id IN (" + placeholderList(len(ids)) + ") OR dependent_service_id IN (" + placeholderList(len(ids)) + ")"
	for _, id := range ids {
		placeholders = append(placeholders, id)
	}
	for _, id := range ids {
		placeholders = append(placeholders, id)
	}

	if _, err := tx.ExecContext(ctx, query, placeholders...); err != nil {
		return classifyWriteError(err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("registry: commit dependency cleanup: %w", err)
	}
	return nil
}

func placeholderList(n int) string {
	out := make([]byte, 0, n*2)
	for i := 0; i < n; i++ {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, '?')
	}
	return string(out)
}
