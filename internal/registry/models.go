package registry

import "github.com/nexsock/nexsockd/internal/protocol"

// Service is the persistent record of a registered unit: repository,
// run command (via Config), port, and advisory status. The supervisor
// map is the authoritative runtime state; Status here is a best-effort
// mirror written back after state transitions.
type Service struct {
	ID            int64
	ConfigID      *int64
	Name          string
	RepoURL       string
	Port          int64
	RepoPath      string
	Status        protocol.ServiceState
	GitBranch     *string
	GitCommitHash *string
	GitAuthType   *protocol.GitAuthType
}

// Config is the persistent record backing a service's ServiceConfigPayload.
type Config struct {
	ID         int64
	Filename   string
	Format     protocol.ConfigFormat
	RunCommand string
}

// DependencyEdge is one row of service_dependency.
type DependencyEdge struct {
	ID                 int64
	ServiceID          int64
	DependentServiceID int64
	TunnelEnabled      bool
}

// JoinedDependency is a dependency edge joined with the target
// service's identity and persisted (advisory) state.
type JoinedDependency struct {
	DependentServiceID int64
	DependentName      string
	TunnelEnabled      bool
	State              protocol.ServiceState
}

// DetailedService is a service plus its optional config and its
// outgoing dependency edges, as returned by GetDetailedByRef. Service
// is embedded so callers read id/name/port/etc. directly off the
// detailed record.
type DetailedService struct {
	Service
	Config       *Config
	Dependencies []JoinedDependency
}

// ServiceSummary is a service annotated with whether it has any
// outgoing dependency edges, as returned by GetAllWithDependencies.
type ServiceSummary struct {
	Service
	HasDependencies bool
}
