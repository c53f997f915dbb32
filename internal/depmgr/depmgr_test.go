package depmgr

import (
	"context"
	"errors"
	"testing"

	"github.com/nexsock/nexsockd/internal/protocol"
	"github.com/nexsock/nexsockd/internal/registry"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*Manager, *registry.ServiceRepository) {
	t.Helper()
	db, err := registry.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	services := registry.NewServiceRepository(db)
	deps := registry.NewDependencyRepository(db)
	return New(services, deps), services
}

func addService(t *testing.T, services *registry.ServiceRepository, name string) int64 {
	t.Helper()
	svc := &registry.Service{Name: name, RepoURL: "https://example.invalid/repo.git", Port: 4000, RepoPath: "/tmp", Status: protocol.StateStopped}
	require.NoError(t, services.Save(context.Background(), svc))
	return svc.ID
}

func TestAddAndListDependencies(t *testing.T) {
	mgr, services := newTestManager(t)
	ownerID := addService(t, services, "owner")
	targetID := addService(t, services, "target")

	ctx := context.Background()
	require.NoError(t, mgr.Add(ctx, protocol.RefByID(ownerID), protocol.RefByID(targetID), true))

	resp, err := mgr.List(ctx, protocol.RefByID(ownerID))
	require.NoError(t, err)
	require.Len(t, resp.Dependencies, 1)
	require.Equal(t, targetID, resp.Dependencies[0].DependentServiceID)
	require.Equal(t, "target", resp.Dependencies[0].DependentName)
	require.True(t, resp.Dependencies[0].TunnelEnabled)
}

func TestAddIrreflexiveRejected(t *testing.T) {
	mgr, services := newTestManager(t)
	id := addService(t, services, "self-ref")

	err := mgr.Add(context.Background(), protocol.RefByID(id), protocol.RefByID(id), false)
	require.Error(t, err)
	var coder protocol.Coder
	require.True(t, errors.As(err, &coder))
	require.Equal(t, protocol.CodeInvalidArgument, coder.Code())
}

func TestRemoveMissingFails(t *testing.T) {
	mgr, services := newTestManager(t)
	ownerID := addService(t, services, "owner2")
	targetID := addService(t, services, "target2")

	err := mgr.Remove(context.Background(), protocol.RefByID(ownerID), protocol.RefByID(targetID))
	require.Error(t, err)
	var coder protocol.Coder
	require.True(t, errors.As(err, &coder))
	require.Equal(t, protocol.CodeNotFound, coder.Code())
}

func TestAddThenRemove(t *testing.T) {
	mgr, services := newTestManager(t)
	ownerID := addService(t, services, "owner3")
	targetID := addService(t, services, "target3")

	ctx := context.Background()
	require.NoError(t, mgr.Add(ctx, protocol.RefByID(ownerID), protocol.RefByID(targetID), false))
	require.NoError(t, mgr.Remove(ctx, protocol.RefByID(ownerID), protocol.RefByID(targetID)))

	resp, err := mgr.List(ctx, protocol.RefByID(ownerID))
	require.NoError(t, err)
	require.Empty(t, resp.Dependencies)
}

func TestAddUnknownEndpointFails(t *testing.T) {
	mgr, services := newTestManager(t)
	ownerID := addService(t, services, "owner4")

	missing := "does-not-exist"
	err := mgr.Add(context.Background(), protocol.RefByID(ownerID), protocol.RefByName(missing), false)
	require.Error(t, err)
	var coder protocol.Coder
	require.True(t, errors.As(err, &coder))
	require.Equal(t, protocol.CodeNotFound, coder.Code())
}
