package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nexsock/nexsockd/internal/protocol"
)

// ServiceRepository provides the Service operations required by §4.5:
// lookup by id/name/ref, save (insert-or-update), delete, detailed and
// bulk reads, and git-column maintenance.
type ServiceRepository struct {
	db *DB
}

// NewServiceRepository builds a ServiceRepository over db.
func NewServiceRepository(db *DB) *ServiceRepository {
	return &ServiceRepository{db: db}
}

const serviceColumns = `id, config_id, name, repo_url, port, repo_path, status, git_branch, git_commit_hash, git_auth_type`

func scanService(row interface{ Scan(...any) error }) (*Service, error) {
	var s Service
	var configID sql.NullInt64
	var gitBranch, gitCommit, gitAuth sql.NullString

	if err := row.Scan(&s.ID, &configID, &s.Name, &s.RepoURL, &s.Port, &s.RepoPath, &s.Status,
		&gitBranch, &gitCommit, &gitAuth); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("registry: scan service: %w", err)
	}

	if configID.Valid {
		id := configID.Int64
		s.ConfigID = &id
	}
	if gitBranch.Valid {
		s.GitBranch = &gitBranch.String
	}
	if gitCommit.Valid {
		s.GitCommitHash = &gitCommit.String
	}
	if gitAuth.Valid {
		auth := protocol.GitAuthType(gitAuth.String)
		s.GitAuthType = &auth
	}

	return &s, nil
}

// GetByID loads a service by numeric id.
func (r *ServiceRepository) GetByID(ctx context.Context, id int64) (*Service, error) {
	row := r.db.conn.QueryRowContext(ctx, `SELECT `+serviceColumns+` FROM service WHERE id = ?`, id)
	return scanService(row)
}

// GetByName loads a service by its unique name.
func (r *ServiceRepository) GetByName(ctx context.Context, name string) (*Service, error) {
	row := r.db.conn.QueryRowContext(ctx, `SELECT `+serviceColumns+` FROM service WHERE name = ?`, name)
	return scanService(row)
}

// GetByRef resolves a ServiceRef, preferring id over name when both
// are present.
func (r *ServiceRepository) GetByRef(ctx context.Context, ref protocol.ServiceRef) (*Service, error) {
	if ref.ID != nil {
		return r.GetByID(ctx, *ref.ID)
	}
	if ref.Name != nil {
		return r.GetByName(ctx, *ref.Name)
	}
	return nil, protocol.NewError(protocol.CodeInvalidArgument, "service ref carries neither id nor name")
}

// Save inserts s when s.ID == 0, assigning the generated id back onto
// s, and otherwise updates every mutable column of the existing row.
func (r *ServiceRepository) Save(ctx context.Context, s *Service) error {
	if s.ID == 0 {
		result, err := r.db.conn.ExecContext(ctx,
			`INSERT INTO service (config_id, name, repo_url, port, repo_path, status, git_branch, git_commit_hash, git_auth_type)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			s.ConfigID, s.Name, s.RepoURL, s.Port, s.RepoPath, s.Status, s.GitBranch, s.GitCommitHash, s.GitAuthType)
		if err != nil {
			return classifyWriteError(err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("registry: read generated service id: %w", err)
		}
		s.ID = id
		return nil
	}

	_, err := r.db.conn.ExecContext(ctx,
		`UPDATE service SET config_id = ?, name = ?, repo_url = ?, port = ?, repo_path = ?, status = ?,
		 git_branch = ?, git_commit_hash = ?, git_auth_type = ? WHERE id = ?`,
		s.ConfigID, s.Name, s.RepoURL, s.Port, s.RepoPath, s.Status, s.GitBranch, s.GitCommitHash, s.GitAuthType, s.ID)
	return classifyWriteError(err)
}

// DeleteByID removes the service row with the given id, failing if no
// such row exists.
func (r *ServiceRepository) DeleteByID(ctx context.Context, id int64) error {
	result, err := r.db.conn.ExecContext(ctx, `DELETE FROM service WHERE id = ?`, id)
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

// GetDetailedByRef loads a service with its config (if any) and its
// outgoing dependency edges joined with each target's identity and
// persisted (advisory) status.
func (r *ServiceRepository) GetDetailedByRef(ctx context.Context, ref protocol.ServiceRef) (*DetailedService, error) {
	service, err := r.GetByRef(ctx, ref)
	if err != nil {
		return nil, err
	}

	detailed := &DetailedService{Service: *service}

	if service.ConfigID != nil {
		cfg, err := NewConfigRepository(r.db).Get(ctx, *service.ConfigID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		detailed.Config = cfg
	}

	deps, err := NewDependencyRepository(r.db).ListDependencies(ctx, service.ID)
	if err != nil {
		return nil, err
	}
	detailed.Dependencies = deps

	return detailed, nil
}

// GetAllWithDependencies lists every service annotated with whether it
// has at least one outgoing dependency edge.
func (r *ServiceRepository) GetAllWithDependencies(ctx context.Context) ([]ServiceSummary, error) {
	rows, err := r.db.conn.QueryContext(ctx, `
		SELECT `+serviceColumns+`,
		       EXISTS(SELECT 1 FROM service_dependency sd WHERE sd.service_id = service.id) AS has_dependencies
		FROM service
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("registry: query services: %w", err)
	}
	defer rows.Close()

	var out []ServiceSummary
	for rows.Next() {
		var s Service
		var configID sql.NullInt64
		var gitBranch, gitCommit, gitAuth sql.NullString
		var hasDeps bool

		if err := rows.Scan(&s.ID, &configID, &s.Name, &s.RepoURL, &s.Port, &s.RepoPath, &s.Status,
			&gitBranch, &gitCommit, &gitAuth, &hasDeps); err != nil {
			return nil, fmt.Errorf("registry: scan service row: %w", err)
		}
		if configID.Valid {
			id := configID.Int64
			s.ConfigID = &id
		}
		if gitBranch.Valid {
			s.GitBranch = &gitBranch.String
		}
		if gitCommit.Valid {
			s.GitCommitHash = &gitCommit.String
		}
		if gitAuth.Valid {
			auth := protocol.GitAuthType(gitAuth.String)
			s.GitAuthType = &auth
		}

		out = append(out, ServiceSummary{Service: s, HasDependencies: hasDeps})
	}
	return out, rows.Err()
}

// UpdateGitInfo sets both git_branch and git_commit_hash in one write.
func (r *ServiceRepository) UpdateGitInfo(ctx context.Context, id int64, branch, commit string) error {
	_, err := r.db.conn.ExecContext(ctx,
		`UPDATE service SET git_branch = ?, git_commit_hash = ? WHERE id = ?`, branch, commit, id)
	return classifyWriteError(err)
}

// UpdateGitBranch sets git_branch, preserving git_commit_hash.
func (r *ServiceRepository) UpdateGitBranch(ctx context.Context, id int64, branch string) error {
	_, err := r.db.conn.ExecContext(ctx, `UPDATE service SET git_branch = ? WHERE id = ?`, branch, id)
	return classifyWriteError(err)
}

// UpdateGitCommit sets git_commit_hash, preserving git_branch.
func (r *ServiceRepository) UpdateGitCommit(ctx context.Context, id int64, commit string) error {
	_, err := r.db.conn.ExecContext(ctx, `UPDATE service SET git_commit_hash = ? WHERE id = ?`, commit, id)
	return classifyWriteError(err)
}

// FindByGitBranch scans the indexed git_branch column.
func (r *ServiceRepository) FindByGitBranch(ctx context.Context, branch string) ([]Service, error) {
	return r.findByGitColumn(ctx, "git_branch", branch)
}

// FindByGitCommit scans the indexed git_commit_hash column.
func (r *ServiceRepository) FindByGitCommit(ctx context.Context, commit string) ([]Service, error) {
	return r.findByGitColumn(ctx, "git_commit_hash", commit)
}

func (r *ServiceRepository) findByGitColumn(ctx context.Context, column, value string) ([]Service, error) {
	rows, err := r.db.conn.QueryContext(ctx, `SELECT `+serviceColumns+` FROM service WHERE `+column+` = ?`, value)
	if err != nil {
		return nil, fmt.Errorf("registry: query services by %s: %w", column, err)
	}
	defer rows.Close()

	var out []Service
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}
