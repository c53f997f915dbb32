package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexsock/nexsockd/internal/protocol"
)

func mustSaveService(t *testing.T, repo *ServiceRepository, s *Service) {
	t.Helper()
	require.NoError(t, repo.Save(context.Background(), s))
}

func TestServiceSaveAssignsGeneratedID(t *testing.T) {
	db := newTestDB(t)
	repo := NewServiceRepository(db)

	s := &Service{Name: "alpha", RepoURL: "https://example/alpha.git", Port: 30001, RepoPath: "/tmp/nx/alpha", Status: protocol.StateStopped}
	mustSaveService(t, repo, s)

	assert.NotZero(t, s.ID)

	loaded, err := repo.GetByName(context.Background(), "alpha")
	require.NoError(t, err)
	assert.Equal(t, s.ID, loaded.ID)
	assert.EqualValues(t, 30001, loaded.Port)
}

func TestServiceGetByRefPrefersID(t *testing.T) {
	db := newTestDB(t)
	repo := NewServiceRepository(db)

	s := &Service{Name: "alpha", RepoURL: "u", Port: 1, RepoPath: "/tmp", Status: protocol.StateStopped}
	mustSaveService(t, repo, s)

	other := &Service{Name: "beta", RepoURL: "u", Port: 2, RepoPath: "/tmp", Status: protocol.StateStopped}
	mustSaveService(t, repo, other)

	id := s.ID
	name := "beta"
	found, err := repo.GetByRef(context.Background(), protocol.ServiceRef{ID: &id, Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "alpha", found.Name)
}

func TestServiceDuplicateNameRejected(t *testing.T) {
	db := newTestDB(t)
	repo := NewServiceRepository(db)

	mustSaveService(t, repo, &Service{Name: "alpha", RepoURL: "u", Port: 1, RepoPath: "/tmp", Status: protocol.StateStopped})

	err := repo.Save(context.Background(), &Service{Name: "alpha", RepoURL: "u", Port: 2, RepoPath: "/tmp", Status: protocol.StateStopped})
	require.Error(t, err)

	var coder protocol.Coder
	require.ErrorAs(t, err, &coder)
	assert.Equal(t, protocol.CodeAlreadyExists, coder.Code())
}

func TestServiceDeleteByIDFailsWhenMissing(t *testing.T) {
	db := newTestDB(t)
	repo := NewServiceRepository(db)

	err := repo.DeleteByID(context.Background(), 999)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestServiceGetAllWithDependenciesFlagsOwner(t *testing.T) {
	db := newTestDB(t)
	repo := NewServiceRepository(db)

	alpha := &Service{Name: "alpha", RepoURL: "u", Port: 1, RepoPath: "/tmp", Status: protocol.StateStopped}
	beta := &Service{Name: "beta", RepoURL: "u", Port: 2, RepoPath: "/tmp", Status: protocol.StateStopped}
	mustSaveService(t, repo, alpha)
	mustSaveService(t, repo, beta)

	deps := NewDependencyRepository(db)
	require.NoError(t, deps.Add(context.Background(), alpha.ID, beta.ID, true))

	all, err := repo.GetAllWithDependencies(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)

	byName := map[string]ServiceSummary{}
	for _, s := range all {
		byName[s.Service.Name] = s
	}
	assert.True(t, byName["alpha"].HasDependencies)
	assert.False(t, byName["beta"].HasDependencies)
}

func TestUpdateGitBranchPreservesCommit(t *testing.T) {
	db := newTestDB(t)
	repo := NewServiceRepository(db)

	s := &Service{Name: "alpha", RepoURL: "u", Port: 1, RepoPath: "/tmp", Status: protocol.StateStopped}
	mustSaveService(t, repo, s)

	require.NoError(t, repo.UpdateGitInfo(context.Background(), s.ID, "main", "abc123"))
	require.NoError(t, repo.UpdateGitBranch(context.Background(), s.ID, "feature/x"))

	loaded, err := repo.GetByID(context.Background(), s.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded.GitBranch)
	require.NotNil(t, loaded.GitCommitHash)
	assert.Equal(t, "feature/x", *loaded.GitBranch)
	assert.Equal(t, "abc123", *loaded.GitCommitHash)
}

func TestFindByGitBranch(t *testing.T) {
	db := newTestDB(t)
	repo := NewServiceRepository(db)

	s := &Service{Name: "alpha", RepoURL: "u", Port: 1, RepoPath: "/tmp", Status: protocol.StateStopped}
	mustSaveService(t, repo, s)
	require.NoError(t, repo.UpdateGitBranch(context.Background(), s.ID, "main"))

	found, err := repo.FindByGitBranch(context.Background(), "main")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "alpha", found[0].Name)
}
