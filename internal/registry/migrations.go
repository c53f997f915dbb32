package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/nexsock/nexsockd/internal/logging"
)

// Migration is a versioned, append-only schema change. Once a version
// has shipped to users it is never modified or removed; new schema
// changes get the next version number.
type Migration struct {
	Version     int
	Name        string
	Description string
	SQL         string
	AppliedAt   time.Time
}

const schemaMigrationsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT,
	applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// migrations returns every migration in version order. The four
// entries establish the service_config, service, and
// service_dependency tables, then add the git tracking columns.
func migrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Name:        "create_service_config",
			Description: "service_config table holding a service's run command and config file shape",
			SQL: `
CREATE TABLE service_config (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	filename TEXT NOT NULL,
	format TEXT NOT NULL DEFAULT 'Env' CHECK (format IN ('Env', 'Properties')),
	run_command TEXT
);
`,
		},
		{
			Version:     2,
			Name:        "create_service",
			Description: "service table: the registered unit of repo + run command + port + state",
			SQL: `
CREATE TABLE service (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	config_id INTEGER REFERENCES service_config(id),
	name TEXT NOT NULL,
	repo_url TEXT NOT NULL,
	port INTEGER NOT NULL,
	repo_path TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'Stopped'
		CHECK (status IN ('Starting', 'Running', 'Stopping', 'Stopped', 'Failed'))
);
CREATE UNIQUE INDEX idx_service_name_unique ON service(name);
CREATE UNIQUE INDEX idx_service_config_id_unique ON service(config_id);
CREATE INDEX idx_service_name ON service(name);
`,
		},
		{
			Version:     3,
			Name:        "create_service_dependency",
			Description: "service_dependency table: directed edges between services",
			SQL: `
CREATE TABLE service_dependency (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	service_id INTEGER NOT NULL REFERENCES service(id),
	dependent_service_id INTEGER NOT NULL REFERENCES service(id),
	tunnel_enabled INTEGER NOT NULL DEFAULT 0,
	CHECK (service_id != dependent_service_id)
);
CREATE UNIQUE INDEX idx_service_dependency_pair ON service_dependency(service_id, dependent_service_id);
CREATE INDEX idx_service_dependency_service_id ON service_dependency(service_id);
CREATE INDEX idx_service_dependency_dependent_id ON service_dependency(dependent_service_id);
`,
		},
		{
			Version:     4,
			Name:        "add_git_columns",
			Description: "git tracking columns on service: branch, commit hash, auth type",
			SQL: `
ALTER TABLE service ADD COLUMN git_branch TEXT;
ALTER TABLE service ADD COLUMN git_commit_hash TEXT;
ALTER TABLE service ADD COLUMN git_auth_type TEXT
	CHECK (git_auth_type IS NULL OR git_auth_type IN ('none', 'ssh_agent', 'ssh_key', 'token', 'user_pass'));
CREATE INDEX idx_service_git_branch ON service(git_branch);
CREATE INDEX idx_service_git_commit_hash ON service(git_commit_hash);
`,
		},
	}
}

func (db *DB) createMigrationsTable(ctx context.Context) error {
	_, err := db.conn.ExecContext(ctx, schemaMigrationsTable)
	return err
}

func (db *DB) appliedMigrations(ctx context.Context) (map[int]Migration, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT version, name, description, applied_at FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("registry: query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]Migration)
	for rows.Next() {
		var m Migration
		if err := rows.Scan(&m.Version, &m.Name, &m.Description, &m.AppliedAt); err != nil {
			return nil, fmt.Errorf("registry: scan migration row: %w", err)
		}
		applied[m.Version] = m
	}
	return applied, rows.Err()
}

// runMigrations applies every migration that has not yet been
// recorded in schema_migrations, in version order, each followed
// immediately by its bookkeeping insert.
func (db *DB) runMigrations() error {
	ctx, cancel := schemaContext()
	defer cancel()

	if err := db.createMigrationsTable(ctx); err != nil {
		return fmt.Errorf("registry: create migrations table: %w", err)
	}

	applied, err := db.appliedMigrations(ctx)
	if err != nil {
		return err
	}

	applyCount := 0
	for _, m := range migrations() {
		if _, ok := applied[m.Version]; ok {
			continue
		}

		if _, err := db.conn.ExecContext(ctx, m.SQL); err != nil {
			return fmt.Errorf("registry: apply migration v%d (%s): %w", m.Version, m.Name, err)
		}

		if _, err := db.conn.ExecContext(ctx,
			`INSERT INTO schema_migrations (version, name, description) VALUES (?, ?, ?)`,
			m.Version, m.Name, m.Description); err != nil {
			return fmt.Errorf("registry: record migration v%d: %w", m.Version, err)
		}

		applyCount++
	}

	if applyCount > 0 {
		logging.Info().Int("count", applyCount).Msg("applied database migrations")
	}

	return nil
}

// SchemaVersion returns the highest applied migration version.
func (db *DB) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	err := db.conn.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("registry: query schema version: %w", err)
	}
	return version, nil
}
