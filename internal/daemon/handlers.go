package daemon

import (
	"context"

	"github.com/nexsock/nexsockd/internal/configmgr"
	"github.com/nexsock/nexsockd/internal/depmgr"
	"github.com/nexsock/nexsockd/internal/gitmgr"
	"github.com/nexsock/nexsockd/internal/hooks"
	"github.com/nexsock/nexsockd/internal/protocol"
	"github.com/nexsock/nexsockd/internal/registry"
	"github.com/nexsock/nexsockd/internal/supervisor"
)

// Services bundles every component a handler needs. The daemon package
// owns none of the domain logic itself; it only resolves inbound
// frames to the right manager call and shapes the result onto the
// wire.
type Services struct {
	Services     *registry.ServiceRepository
	Configs      *registry.ConfigRepository
	Dependencies *registry.DependencyRepository
	Supervisor   *supervisor.Supervisor
	ConfigMgr    *configmgr.Manager
	DepMgr       *depmgr.Manager
	GitMgr       *gitmgr.Manager
	Hooks        *hooks.Bus
	Shutdown     func(ctx context.Context)
}

// NewRegistry builds the protocol handler registry backing every wire
// message type the daemon serves.
func NewRegistry(svc *Services) *protocol.Registry {
	reg := protocol.NewRegistry()

	protocol.RegisterHandler(reg, protocol.MsgStartService, protocol.MsgSuccess, func(ctx context.Context, req *protocol.StartServicePayload) (*protocol.Empty, error) {
		svc.Hooks.Fire(ctx, protocol.MsgStartService, req)
		if err := svc.Supervisor.Start(ctx, req.ServiceRef, req.Env); err != nil {
			return nil, err
		}
		return &protocol.Empty{}, nil
	})

	protocol.RegisterHandler(reg, protocol.MsgStopService, protocol.MsgSuccess, func(ctx context.Context, req *protocol.ServiceRef) (*protocol.Empty, error) {
		svc.Hooks.Fire(ctx, protocol.MsgStopService, nil)
		if err := svc.Supervisor.Stop(ctx, *req); err != nil {
			return nil, err
		}
		return &protocol.Empty{}, nil
	})

	protocol.RegisterHandler(reg, protocol.MsgRestartService, protocol.MsgSuccess, func(ctx context.Context, req *protocol.StartServicePayload) (*protocol.Empty, error) {
		svc.Hooks.Fire(ctx, protocol.MsgRestartService, req)
		if err := svc.Supervisor.Restart(ctx, req.ServiceRef, req.Env); err != nil {
			return nil, err
		}
		return &protocol.Empty{}, nil
	})

	protocol.RegisterHandler(reg, protocol.MsgGetServiceStatus, protocol.MsgSuccess, func(ctx context.Context, req *protocol.ServiceRef) (*protocol.ServiceStatus, error) {
		svc.Hooks.Fire(ctx, protocol.MsgGetServiceStatus, nil)
		return getServiceStatus(ctx, svc, *req)
	})

	protocol.RegisterHandler(reg, protocol.MsgAddService, protocol.MsgSuccess, func(ctx context.Context, req *protocol.AddServicePayload) (*protocol.Empty, error) {
		svc.Hooks.Fire(ctx, protocol.MsgAddService, nil)
		if err := addService(ctx, svc, req); err != nil {
			return nil, err
		}
		return &protocol.Empty{}, nil
	})

	protocol.RegisterHandler(reg, protocol.MsgRemoveService, protocol.MsgSuccess, func(ctx context.Context, req *protocol.ServiceRef) (*protocol.Empty, error) {
		svc.Hooks.Fire(ctx, protocol.MsgRemoveService, nil)
		s, err := svc.Services.GetByRef(ctx, *req)
		if err != nil {
			return nil, err
		}
		_ = svc.Supervisor.Stop(ctx, *req)
		if err := svc.Dependencies.DeleteMany(ctx, []int64{s.ID}); err != nil {
			return nil, err
		}
		if err := svc.Services.DeleteByID(ctx, s.ID); err != nil {
			return nil, err
		}
		if s.ConfigID != nil {
			if err := svc.Configs.Delete(ctx, *s.ConfigID); err != nil {
				return nil, err
			}
		}
		return &protocol.Empty{}, nil
	})

	protocol.RegisterHandler(reg, protocol.MsgListServices, protocol.MsgSuccess, func(ctx context.Context, _ *protocol.Empty) (*protocol.ListServicesResponse, error) {
		svc.Hooks.Fire(ctx, protocol.MsgListServices, nil)
		summaries, err := svc.Services.GetAllWithDependencies(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]protocol.ServiceSummary, 0, len(summaries))
		for _, s := range summaries {
			out = append(out, protocol.ServiceSummary{
				ID: s.ID, Name: s.Name, State: s.Status, Port: s.Port, HasDependencies: s.HasDependencies,
			})
		}
		return &protocol.ListServicesResponse{Services: out}, nil
	})

	protocol.RegisterHandler(reg, protocol.MsgUpdateConfig, protocol.MsgSuccess, func(ctx context.Context, req *protocol.ServiceConfigPayload) (*protocol.Empty, error) {
		svc.Hooks.Fire(ctx, protocol.MsgUpdateConfig, nil)
		if _, err := svc.ConfigMgr.Update(ctx, req.ServiceRef, *req); err != nil {
			return nil, err
		}
		return &protocol.Empty{}, nil
	})

	protocol.RegisterHandler(reg, protocol.MsgGetConfig, protocol.MsgSuccess, func(ctx context.Context, req *protocol.ServiceRef) (*protocol.ServiceConfigPayload, error) {
		svc.Hooks.Fire(ctx, protocol.MsgGetConfig, nil)
		return svc.ConfigMgr.Get(ctx, *req)
	})

	protocol.RegisterHandler(reg, protocol.MsgAddDependency, protocol.MsgSuccess, func(ctx context.Context, req *protocol.AddDependencyPayload) (*protocol.Empty, error) {
		svc.Hooks.Fire(ctx, protocol.MsgAddDependency, nil)
		if err := svc.DepMgr.Add(ctx, req.ServiceRef, req.DependentRef, req.TunnelEnabled); err != nil {
			return nil, err
		}
		return &protocol.Empty{}, nil
	})

	protocol.RegisterHandler(reg, protocol.MsgRemoveDependency, protocol.MsgSuccess, func(ctx context.Context, req *protocol.RemoveDependencyPayload) (*protocol.Empty, error) {
		svc.Hooks.Fire(ctx, protocol.MsgRemoveDependency, nil)
		if err := svc.DepMgr.Remove(ctx, req.ServiceRef, req.DependentRef); err != nil {
			return nil, err
		}
		return &protocol.Empty{}, nil
	})

	protocol.RegisterHandler(reg, protocol.MsgListDependencies, protocol.MsgSuccess, func(ctx context.Context, req *protocol.ServiceRef) (*protocol.ListDependenciesResponse, error) {
		svc.Hooks.Fire(ctx, protocol.MsgListDependencies, nil)
		return svc.DepMgr.List(ctx, *req)
	})

	protocol.RegisterHandler(reg, protocol.MsgCheckoutBranch, protocol.MsgSuccess, func(ctx context.Context, req *protocol.CheckoutPayload) (*protocol.Empty, error) {
		svc.Hooks.Fire(ctx, protocol.MsgCheckoutBranch, nil)
		if err := checkoutBranch(ctx, svc, req); err != nil {
			return nil, err
		}
		return &protocol.Empty{}, nil
	})

	protocol.RegisterHandler(reg, protocol.MsgGetRepoStatus, protocol.MsgSuccess, func(ctx context.Context, req *protocol.ServiceRef) (*protocol.RepoStatus, error) {
		svc.Hooks.Fire(ctx, protocol.MsgGetRepoStatus, nil)
		s, err := svc.Services.GetByRef(ctx, *req)
		if err != nil {
			return nil, err
		}
		return svc.GitMgr.Status(ctx, s.RepoPath)
	})

	protocol.RegisterHandler(reg, protocol.MsgCheckoutCommit, protocol.MsgSuccess, func(ctx context.Context, req *protocol.CheckoutCommitPayload) (*protocol.RepoStatus, error) {
		svc.Hooks.Fire(ctx, protocol.MsgCheckoutCommit, nil)
		s, err := svc.Services.GetByRef(ctx, req.ServiceRef)
		if err != nil {
			return nil, err
		}
		status, err := svc.GitMgr.CheckoutCommit(ctx, s.RepoPath, req.Hash)
		if err != nil {
			return nil, err
		}
		if err := svc.Services.UpdateGitInfo(ctx, s.ID, status.CurrentBranch, status.CurrentCommit); err != nil {
			return nil, err
		}
		return status, nil
	})

	protocol.RegisterHandler(reg, protocol.MsgGitPull, protocol.MsgSuccess, func(ctx context.Context, req *protocol.ServiceRef) (*protocol.RepoStatus, error) {
		svc.Hooks.Fire(ctx, protocol.MsgGitPull, nil)
		s, err := svc.Services.GetByRef(ctx, *req)
		if err != nil {
			return nil, err
		}
		status, err := svc.GitMgr.Pull(ctx, s.RepoPath, authForService(s))
		if err != nil {
			return nil, err
		}
		if err := svc.Services.UpdateGitInfo(ctx, s.ID, status.CurrentBranch, status.CurrentCommit); err != nil {
			return nil, err
		}
		return status, nil
	})

	protocol.RegisterHandler(reg, protocol.MsgGitLog, protocol.MsgSuccess, func(ctx context.Context, req *protocol.GitLogPayload) (*protocol.GitLogResponse, error) {
		svc.Hooks.Fire(ctx, protocol.MsgGitLog, nil)
		s, err := svc.Services.GetByRef(ctx, req.ServiceRef)
		if err != nil {
			return nil, err
		}
		commits, err := svc.GitMgr.Log(ctx, s.RepoPath, req.MaxCount, req.Branch)
		if err != nil {
			return nil, err
		}
		return &protocol.GitLogResponse{Commits: commits}, nil
	})

	protocol.RegisterHandler(reg, protocol.MsgGitListBranches, protocol.MsgSuccess, func(ctx context.Context, req *protocol.ListBranchesPayload) (*protocol.ListBranchesResponse, error) {
		svc.Hooks.Fire(ctx, protocol.MsgGitListBranches, nil)
		s, err := svc.Services.GetByRef(ctx, req.ServiceRef)
		if err != nil {
			return nil, err
		}
		branches, err := svc.GitMgr.ListBranches(ctx, s.RepoPath, req.IncludeRemote)
		if err != nil {
			return nil, err
		}
		return &protocol.ListBranchesResponse{Branches: branches}, nil
	})

	protocol.RegisterHandler(reg, protocol.MsgShutdown, protocol.MsgSuccess, func(ctx context.Context, _ *protocol.Empty) (*protocol.Empty, error) {
		svc.Hooks.Fire(ctx, protocol.MsgShutdown, nil)
		if svc.Shutdown != nil {
			go svc.Shutdown(ctx)
		}
		return &protocol.Empty{}, nil
	})

	protocol.RegisterHandler(reg, protocol.MsgGetStdout, protocol.MsgSuccess, func(ctx context.Context, req *stdoutRequest) (*protocol.StdoutSnapshot, error) {
		svc.Hooks.Fire(ctx, protocol.MsgGetStdout, nil)
		s, err := svc.Services.GetByRef(ctx, req.ServiceRef)
		if err != nil {
			return nil, err
		}
		lines, ok := svc.Supervisor.Stdout(s.ID, int(req.MaxLines))
		if !ok {
			return &protocol.StdoutSnapshot{}, nil
		}
		return &protocol.StdoutSnapshot{Lines: lines}, nil
	})

	return reg
}

// stdoutRequest is GetStdout's request payload; SPEC_FULL.md §C
// assigns it no named type of its own.
type stdoutRequest struct {
	ServiceRef protocol.ServiceRef `json:"service_ref"`
	MaxLines   uint32              `json:"max_lines"`
}

func getServiceStatus(ctx context.Context, svc *Services, ref protocol.ServiceRef) (*protocol.ServiceStatus, error) {
	detailed, err := svc.Services.GetDetailedByRef(ctx, ref)
	if err != nil {
		return nil, err
	}

	state, err := svc.Supervisor.Status(ctx, ref)
	if err != nil {
		return nil, err
	}

	var cfg *protocol.ServiceConfigPayload
	if detailed.Config != nil {
		cfg = &protocol.ServiceConfigPayload{
			ServiceRef: ref,
			Filename:   detailed.Config.Filename,
			Format:     detailed.Config.Format,
			RunCommand: detailed.Config.RunCommand,
		}
	}

	deps := make([]protocol.DependencyInfo, 0, len(detailed.Dependencies))
	for _, d := range detailed.Dependencies {
		deps = append(deps, protocol.DependencyInfo{
			DependentServiceID: d.DependentServiceID,
			DependentName:      d.DependentName,
			TunnelEnabled:      d.TunnelEnabled,
			State:              d.State,
		})
	}

	return &protocol.ServiceStatus{
		ID:           detailed.ID,
		Name:         detailed.Name,
		State:        state,
		Config:       cfg,
		Port:         detailed.Port,
		RepoURL:      detailed.RepoURL,
		RepoPath:     detailed.RepoPath,
		Dependencies: deps,
	}, nil
}

func addService(ctx context.Context, svc *Services, req *protocol.AddServicePayload) error {
	s := &registry.Service{
		Name:     req.Name,
		RepoURL:  req.RepoURL,
		Port:     req.Port,
		RepoPath: req.RepoPath,
		Status:   protocol.StateStopped,
	}
	if req.GitBranch != "" {
		s.GitBranch = &req.GitBranch
	}
	if req.GitAuthType != "" {
		s.GitAuthType = &req.GitAuthType
	}

	if err := svc.Services.Save(ctx, s); err != nil {
		return err
	}

	if req.Config != nil {
		if _, err := svc.ConfigMgr.Update(ctx, protocol.RefByID(s.ID), *req.Config); err != nil {
			return err
		}
	}
	return nil
}

// authForService builds the git manager auth descriptor for s. Credential
// material (SSH key paths, tokens) is not modeled on the service row
// itself; only the auth type is persisted, so the descriptor carries
// just Type. For the ssh_key, token and user_pass types git therefore
// runs with an empty key path, username and password.
func authForService(s *registry.Service) gitmgr.Auth {
	if s.GitAuthType == nil {
		return gitmgr.Auth{Type: protocol.GitAuthNone}
	}
	return gitmgr.Auth{Type: *s.GitAuthType}
}

func checkoutBranch(ctx context.Context, svc *Services, req *protocol.CheckoutPayload) error {
	s, err := svc.Services.GetByRef(ctx, req.ServiceRef)
	if err != nil {
		return err
	}
	status, err := svc.GitMgr.CheckoutBranch(ctx, s.RepoPath, req.Branch, true)
	if err != nil {
		return err
	}
	return svc.Services.UpdateGitInfo(ctx, s.ID, status.CurrentBranch, status.CurrentCommit)
}
