package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexsock/nexsockd/internal/protocol"
)

func seedTwoServices(t *testing.T, db *DB) (alpha, beta *Service) {
	t.Helper()
	repo := NewServiceRepository(db)
	alpha = &Service{Name: "alpha", RepoURL: "u", Port: 1, RepoPath: "/tmp", Status: protocol.StateStopped}
	beta = &Service{Name: "beta", RepoURL: "u", Port: 2, RepoPath: "/tmp", Status: protocol.StateStopped}
	require.NoError(t, repo.Save(context.Background(), alpha))
	require.NoError(t, repo.Save(context.Background(), beta))
	return alpha, beta
}

func TestDependencyIrreflexivityRejected(t *testing.T) {
	db := newTestDB(t)
	alpha, _ := seedTwoServices(t, db)

	deps := NewDependencyRepository(db)
	err := deps.Add(context.Background(), alpha.ID, alpha.ID, false)
	require.Error(t, err)

	var coder protocol.Coder
	require.ErrorAs(t, err, &coder)
	assert.Equal(t, protocol.CodeInvalidArgument, coder.Code())
}

func TestDependencyAddListRemove(t *testing.T) {
	db := newTestDB(t)
	alpha, beta := seedTwoServices(t, db)
	deps := NewDependencyRepository(db)

	require.NoError(t, deps.Add(context.Background(), alpha.ID, beta.ID, true))

	list, err := deps.ListDependencies(context.Background(), alpha.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "beta", list[0].DependentName)
	assert.True(t, list[0].TunnelEnabled)

	require.NoError(t, deps.Remove(context.Background(), alpha.ID, beta.ID))

	list, err = deps.ListDependencies(context.Background(), alpha.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestDependencyRemoveFailsWhenMissing(t *testing.T) {
	db := newTestDB(t)
	alpha, beta := seedTwoServices(t, db)
	deps := NewDependencyRepository(db)

	err := deps.Remove(context.Background(), alpha.ID, beta.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDependencyDuplicateEdgeRejected(t *testing.T) {
	db := newTestDB(t)
	alpha, beta := seedTwoServices(t, db)
	deps := NewDependencyRepository(db)

	require.NoError(t, deps.Add(context.Background(), alpha.ID, beta.ID, false))
	err := deps.Add(context.Background(), alpha.ID, beta.ID, true)
	require.Error(t, err)

	var coder protocol.Coder
	require.ErrorAs(t, err, &coder)
	assert.Equal(t, protocol.CodeAlreadyExists, coder.Code())
}

func TestDependencyDeleteManyRemovesEdgesAtBothEndpoints(t *testing.T) {
	db := newTestDB(t)
	alpha, beta := seedTwoServices(t, db)
	deps := NewDependencyRepository(db)

	require.NoError(t, deps.Add(context.Background(), alpha.ID, beta.ID, false))
	require.NoError(t, deps.Add(context.Background(), beta.ID, alpha.ID, false))
	require.NoError(t, deps.DeleteMany(context.Background(), []int64{alpha.ID}))

	list, err := deps.ListDependencies(context.Background(), alpha.ID)
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = deps.ListDependencies(context.Background(), beta.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestDependencyRemoveCascadeLeavesTargetIntact(t *testing.T) {
	db := newTestDB(t)
	alpha, beta := seedTwoServices(t, db)
	deps := NewDependencyRepository(db)
	services := NewServiceRepository(db)

	require.NoError(t, deps.Add(context.Background(), alpha.ID, beta.ID, true))
	require.NoError(t, deps.DeleteMany(context.Background(), []int64{alpha.ID}))
	require.NoError(t, services.DeleteByID(context.Background(), alpha.ID))

	list, err := deps.ListDependencies(context.Background(), beta.ID)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = services.GetByID(context.Background(), beta.ID)
	require.NoError(t, err)
}
