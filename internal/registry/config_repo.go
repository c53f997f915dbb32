package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nexsock/nexsockd/internal/protocol"
)

// ConfigRepository provides CRUD over service_config rows.
type ConfigRepository struct {
	db *DB
}

// NewConfigRepository builds a ConfigRepository over db.
func NewConfigRepository(db *DB) *ConfigRepository {
	return &ConfigRepository{db: db}
}

// Get loads a config row by id.
func (r *ConfigRepository) Get(ctx context.Context, id int64) (*Config, error) {
	var c Config
	var runCommand sql.NullString
	var format string

	err := r.db.conn.QueryRowContext(ctx,
		`SELECT id, filename, format, run_command FROM service_config WHERE id = ?`, id).
		Scan(&c.ID, &c.Filename, &format, &runCommand)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("registry: scan config: %w", err)
	}

	parsed, ok := protocol.ParseConfigFormat(format)
	if !ok {
		return nil, protocol.NewError(protocol.CodeInternal, fmt.Sprintf("config %d has unrecognized format %q", id, format))
	}
	c.Format = parsed
	if runCommand.Valid {
		c.RunCommand = runCommand.String
	}

	return &c, nil
}

// Save inserts c when c.ID == 0, assigning the generated id back onto
// c, and otherwise updates the existing row.
func (r *ConfigRepository) Save(ctx context.Context, c *Config) error {
	if c.ID == 0 {
		result, err := r.db.conn.ExecContext(ctx,
			`INSERT INTO service_config (filename, format, run_command) VALUES (?, ?, ?)`,
			c.Filename, c.Format.String(), c.RunCommand)
		if err != nil {
			return classifyWriteError(err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("registry: read generated config id: %w", err)
		}
		c.ID = id
		return nil
	}

	_, err := r.db.conn.ExecContext(ctx,
		`UPDATE service_config SET filename = ?, format = ?, run_command = ? WHERE id = ?`,
		c.Filename, c.Format.String(), c.RunCommand, c.ID)
	return classifyWriteError(err)
}

// Delete removes the config row with the given id, failing if no such
// row exists.
func (r *ConfigRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.conn.ExecContext(ctx, `DELETE FROM service_config WHERE id = ?`, id)
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
