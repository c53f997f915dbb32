package configmgr

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
	configs := registry.NewConfigRepository(db)
	return New(services, configs), services
}

func addService(t *testing.T, services *registry.ServiceRepository, name string) int64 {
	t.Helper()
	svc := &registry.Service{Name: name, RepoURL: "https://example.invalid/repo.git", Port: 4000, RepoPath: "/tmp", Status: protocol.StateStopped}
	require.NoError(t, services.Save(context.Background(), svc))
	return svc.ID
}

func TestUpdateCreatesConfigWhenAbsent(t *testing.T) {
	mgr, services := newTestManager(t)
	id := addService(t, services, "svc-a")

	ctx := context.Background()
	payload := protocol.ServiceConfigPayload{
		ServiceRef: protocol.RefByID(id),
		Filename:   ".env",
		Format:     protocol.ConfigFormatEnv,
		RunCommand: "node server.js",
	}
	out, err := mgr.Update(ctx, protocol.RefByID(id), payload)
	require.NoError(t, err)
	require.Equal(t, "node server.js", out.RunCommand)

	svc, err := services.GetByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, svc.ConfigID)
}

func TestUpdateMutatesExistingConfig(t *testing.T) {
	mgr, services := newTestManager(t)
	id := addService(t, services, "svc-b")
	ctx := context.Background()

	_, err := mgr.Update(ctx, protocol.RefByID(id), protocol.ServiceConfigPayload{
		ServiceRef: protocol.RefByID(id), Filename: ".env", Format: protocol.ConfigFormatEnv, RunCommand: "v1",
	})
	require.NoError(t, err)

	svcBefore, err := services.GetByID(ctx, id)
	require.NoError(t, err)
	configIDBefore := *svcBefore.ConfigID

	out, err := mgr.Update(ctx, protocol.RefByID(id), protocol.ServiceConfigPayload{
		ServiceRef: protocol.RefByID(id), Filename: ".env", Format: protocol.ConfigFormatEnv, RunCommand: "v2",
	})
	require.NoError(t, err)
	require.Equal(t, "v2", out.RunCommand)

	svcAfter, err := services.GetByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, configIDBefore, *svcAfter.ConfigID)
}

func TestGetWithoutConfigFails(t *testing.T) {
	mgr, services := newTestManager(t)
	id := addService(t, services, "svc-c")

	_, err := mgr.Get(context.Background(), protocol.RefByID(id))
	require.Error(t, err)
	var coder protocol.Coder
	require.True(t, errors.As(err, &coder))
	require.Equal(t, protocol.CodePreconditionFailed, coder.Code())
}

func TestGetRoundTrip(t *testing.T) {
	mgr, services := newTestManager(t)
	id := addService(t, services, "svc-d")
	ctx := context.Background()

	_, err := mgr.Update(ctx, protocol.RefByID(id), protocol.ServiceConfigPayload{
		ServiceRef: protocol.RefByID(id), Filename: "app.properties", Format: protocol.ConfigFormatProperties, RunCommand: "./run.sh",
	})
	require.NoError(t, err)

	out, err := mgr.Get(ctx, protocol.RefByID(id))
	require.NoError(t, err)
	require.Equal(t, "app.properties", out.Filename)
	require.Equal(t, protocol.ConfigFormatProperties, out.Format)
	require.Equal(t, "./run.sh", out.RunCommand)
}
