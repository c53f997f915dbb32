// Command nexsock is the reference CLI client for nexsockd: every
// subcommand opens one connection to the daemon's configured IPC
// endpoint, sends a single framed request, and prints the decoded
// response.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/nexsock/nexsockd/internal/config"
	"github.com/nexsock/nexsockd/internal/ipcclient"
	"github.com/nexsock/nexsockd/internal/protocol"
	"github.com/spf13/cobra"
)

var socketOverride string

func main() {
	root := newRootCmd()
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "nexsock:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "nexsock",
		Short:         "Control client for the nexsockd service-orchestration daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&socketOverride, "socket", "", "override the daemon's configured socket path")

	root.AddCommand(
		newStartCmd(), newStopCmd(), newRestartCmd(), newStatusCmd(), newStdoutCmd(),
		newListCmd(), newAddCmd(), newRemoveCmd(),
		newConfigCmd(), newDependencyCmd(), newGitCmd(),
	)
	return root
}

// dial loads the daemon's configuration (honoring --socket) and opens
// one connection to it. Every subcommand calls this exactly once.
func dial(ctx context.Context) (*ipcclient.Client, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	if socketOverride != "" {
		cfg.IPC.SocketPath = socketOverride
		cfg.IPC.Network = "unix"
	}
	return ipcclient.Dial(ctx, cfg.IPC)
}

// resolveRef turns a CLI argument into a ServiceRef: a value that
// parses as an integer identifies a service by id, otherwise by name.
func resolveRef(arg string) protocol.ServiceRef {
	if id, err := strconv.ParseInt(arg, 10, 64); err == nil {
		return protocol.RefByID(id)
	}
	return protocol.RefByName(arg)
}

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start <service>",
		Short: "Start a registered service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()
			req := &protocol.StartServicePayload{ServiceRef: resolveRef(args[0])}
			if err := c.Call(cmd.Context(), protocol.MsgStartService, req, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "started %s\n", args[0])
			return nil
		},
	}
}

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop <service>",
		Short: "Stop a running service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()
			ref := resolveRef(args[0])
			if err := c.Call(cmd.Context(), protocol.MsgStopService, &ref, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stopped %s\n", args[0])
			return nil
		},
	}
}

func newRestartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restart <service>",
		Short: "Restart a service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()
			req := &protocol.StartServicePayload{ServiceRef: resolveRef(args[0])}
			if err := c.Call(cmd.Context(), protocol.MsgRestartService, req, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restarted %s\n", args[0])
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <service>",
		Short: "Show a service's current state and configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()
			ref := resolveRef(args[0])
			var status protocol.ServiceStatus
			if err := c.Call(cmd.Context(), protocol.MsgGetServiceStatus, &ref, &status); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "name:     %s\n", status.Name)
			fmt.Fprintf(out, "state:    %s\n", status.State)
			fmt.Fprintf(out, "port:     %d\n", status.Port)
			fmt.Fprintf(out, "repo:     %s (%s)\n", status.RepoURL, status.RepoPath)
			if status.Config != nil {
				fmt.Fprintf(out, "config:   %s [%s] run_command=%q\n", status.Config.Filename, status.Config.Format, status.Config.RunCommand)
			}
			for _, dep := range status.Dependencies {
				fmt.Fprintf(out, "depends:  %s (state=%s tunnel=%v)\n", dep.DependentName, dep.State, dep.TunnelEnabled)
			}
			return nil
		},
	}
}

func newStdoutCmd() *cobra.Command {
	var maxLines uint32
	cmd := &cobra.Command{
		Use:   "stdout <service>",
		Short: "Print a running service's buffered stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()
			req := struct {
				ServiceRef protocol.ServiceRef `json:"service_ref"`
				MaxLines   uint32              `json:"max_lines"`
			}{ServiceRef: resolveRef(args[0]), MaxLines: maxLines}
			var snapshot protocol.StdoutSnapshot
			if err := c.Call(cmd.Context(), protocol.MsgGetStdout, &req, &snapshot); err != nil {
				return err
			}
			for _, line := range snapshot.Lines {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", line.Timestamp, line.Line)
			}
			return nil
		},
	}
	cmd.Flags().Uint32Var(&maxLines, "lines", 200, "maximum number of lines to print")
	return cmd
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every registered service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()
			var resp protocol.ListServicesResponse
			if err := c.Call(cmd.Context(), protocol.MsgListServices, &protocol.Empty{}, &resp); err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tSTATE\tPORT\tDEPENDENCIES")
			for _, s := range resp.Services {
				fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%v\n", s.ID, s.Name, s.State, s.Port, s.HasDependencies)
			}
			return w.Flush()
		},
	}
}

func newAddCmd() *cobra.Command {
	var (
		configFile string
		runCommand string
		gitBranch  string
		gitAuth    string
	)
	cmd := &cobra.Command{
		Use:   "add <name> <repo_url> <repo_path> <port>",
		Short: "Register a new service",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			port, err := strconv.ParseInt(args[3], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid port %q: %w", args[3], err)
			}
			req := &protocol.AddServicePayload{
				Name:        args[0],
				RepoURL:     args[1],
				RepoPath:    args[2],
				Port:        port,
				GitBranch:   gitBranch,
				GitAuthType: protocol.GitAuthType(gitAuth),
			}
			if runCommand != "" || configFile != "" {
				req.Config = &protocol.ServiceConfigPayload{
					Filename:   configFile,
					Format:     protocol.ConfigFormatEnv,
					RunCommand: runCommand,
				}
			}
			c, err := dial(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()
			if err := c.Call(cmd.Context(), protocol.MsgAddService, req, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&configFile, "config", "", "config filename on disk")
	cmd.Flags().StringVar(&runCommand, "run-command", "", "shell command used to start the service")
	cmd.Flags().StringVar(&gitBranch, "git-branch", "", "git branch to track")
	cmd.Flags().StringVar(&gitAuth, "git-auth", "", "git auth type: none, ssh_agent, ssh_key, token, user_pass")
	return cmd
}

func newRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <service>",
		Short: "Stop and deregister a service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()
			ref := resolveRef(args[0])
			if err := c.Call(cmd.Context(), protocol.MsgRemoveService, &ref, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
			return nil
		},
	}
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Inspect or change a service's run configuration"}

	cmd.AddCommand(&cobra.Command{
		Use:   "get <service>",
		Short: "Print a service's stored configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()
			ref := resolveRef(args[0])
			var cfg protocol.ServiceConfigPayload
			if err := c.Call(cmd.Context(), protocol.MsgGetConfig, &ref, &cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "filename:    %s\nformat:      %s\nrun_command: %s\n", cfg.Filename, cfg.Format, cfg.RunCommand)
			return nil
		},
	})

	var filename, format, runCommand string
	update := &cobra.Command{
		Use:   "update <service>",
		Short: "Create or replace a service's configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, ok := protocol.ParseConfigFormat(format)
			if !ok {
				return fmt.Errorf("invalid format %q: must be Env or Properties", format)
			}
			c, err := dial(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()
			req := &protocol.ServiceConfigPayload{
				ServiceRef: resolveRef(args[0]),
				Filename:   filename,
				Format:     f,
				RunCommand: runCommand,
			}
			if err := c.Call(cmd.Context(), protocol.MsgUpdateConfig, req, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "updated configuration for %s\n", args[0])
			return nil
		},
	}
	update.Flags().StringVar(&filename, "filename", "", "config filename on disk")
	update.Flags().StringVar(&format, "format", "Env", "config format: Env or Properties")
	update.Flags().StringVar(&runCommand, "run-command", "", "shell command used to start the service")
	cmd.AddCommand(update)

	return cmd
}

func newDependencyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "dependency", Short: "Manage dependency edges between services"}

	var tunnel bool
	add := &cobra.Command{
		Use:   "add <service> <dependent>",
		Short: "Add a dependency edge",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()
			req := &protocol.AddDependencyPayload{
				ServiceRef:    resolveRef(args[0]),
				DependentRef:  resolveRef(args[1]),
				TunnelEnabled: tunnel,
			}
			if err := c.Call(cmd.Context(), protocol.MsgAddDependency, req, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s now depends on %s\n", args[0], args[1])
			return nil
		},
	}
	add.Flags().BoolVar(&tunnel, "tunnel", false, "enable a port tunnel for this dependency")
	cmd.AddCommand(add)

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <service> <dependent>",
		Short: "Remove a dependency edge",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()
			req := &protocol.RemoveDependencyPayload{
				ServiceRef:   resolveRef(args[0]),
				DependentRef: resolveRef(args[1]),
			}
			if err := c.Call(cmd.Context(), protocol.MsgRemoveDependency, req, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s no longer depends on %s\n", args[0], args[1])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list <service>",
		Short: "List a service's dependencies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()
			ref := resolveRef(args[0])
			var resp protocol.ListDependenciesResponse
			if err := c.Call(cmd.Context(), protocol.MsgListDependencies, &ref, &resp); err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "DEPENDENT\tSTATE\tTUNNEL")
			for _, d := range resp.Dependencies {
				fmt.Fprintf(w, "%s\t%s\t%v\n", d.DependentName, d.State, d.TunnelEnabled)
			}
			return w.Flush()
		},
	})

	return cmd
}

func newGitCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "git", Short: "Manage a service's git checkout"}

	cmd.AddCommand(&cobra.Command{
		Use:   "checkout <service> <branch>",
		Short: "Check out a branch, creating it or resetting it to the current HEAD",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()
			req := &protocol.CheckoutPayload{ServiceRef: resolveRef(args[0]), Branch: args[1]}
			if err := c.Call(cmd.Context(), protocol.MsgCheckoutBranch, req, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "checked out %s on %s\n", args[1], args[0])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "checkout-commit <service> <hash>",
		Short: "Detach HEAD at a specific commit",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()
			req := &protocol.CheckoutCommitPayload{ServiceRef: resolveRef(args[0]), Hash: args[1]}
			var status protocol.RepoStatus
			if err := c.Call(cmd.Context(), protocol.MsgCheckoutCommit, req, &status); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "HEAD is now at %s\n", status.CurrentCommit)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "pull <service>",
		Short: "Pull the tracked branch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()
			ref := resolveRef(args[0])
			var status protocol.RepoStatus
			if err := c.Call(cmd.Context(), protocol.MsgGitPull, &ref, &status); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "now at %s on %s\n", status.CurrentCommit, status.CurrentBranch)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status <service>",
		Short: "Show the repository's current branch, commit, and dirtiness",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()
			ref := resolveRef(args[0])
			var status protocol.RepoStatus
			if err := c.Call(cmd.Context(), protocol.MsgGetRepoStatus, &ref, &status); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "branch:  %s\n", status.CurrentBranch)
			fmt.Fprintf(out, "commit:  %s\n", status.CurrentCommit)
			fmt.Fprintf(out, "remote:  %s\n", status.RemoteURL)
			fmt.Fprintf(out, "dirty:   %v\n", status.IsDirty)
			if status.Ahead != nil && status.Behind != nil {
				fmt.Fprintf(out, "ahead/behind: %d/%d\n", *status.Ahead, *status.Behind)
			}
			return nil
		},
	})

	var maxCount int
	var logBranch string
	logCmd := &cobra.Command{
		Use:   "log <service>",
		Short: "Show recent commits",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()
			req := &protocol.GitLogPayload{ServiceRef: resolveRef(args[0]), MaxCount: maxCount, Branch: logBranch}
			var resp protocol.GitLogResponse
			if err := c.Call(cmd.Context(), protocol.MsgGitLog, req, &resp); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, commit := range resp.Commits {
				ts := commit.Timestamp
				if t, err := time.Parse(time.RFC3339, ts); err == nil {
					ts = t.Local().Format(time.RFC3339)
				}
				fmt.Fprintf(out, "%s %s %s <%s> %s\n", commit.ShortHash, ts, commit.AuthorName, commit.AuthorEmail, commit.Message)
			}
			return nil
		},
	}
	logCmd.Flags().IntVar(&maxCount, "max", 20, "maximum number of commits to show")
	logCmd.Flags().StringVar(&logBranch, "branch", "", "branch to read history from, defaults to HEAD")
	cmd.AddCommand(logCmd)

	var includeRemote bool
	branches := &cobra.Command{
		Use:   "branches <service>",
		Short: "List branches",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()
			req := &protocol.ListBranchesPayload{ServiceRef: resolveRef(args[0]), IncludeRemote: includeRemote}
			var resp protocol.ListBranchesResponse
			if err := c.Call(cmd.Context(), protocol.MsgGitListBranches, req, &resp); err != nil {
				return err
			}
			for _, b := range resp.Branches {
				fmt.Fprintln(cmd.OutOrStdout(), b)
			}
			return nil
		},
	}
	branches.Flags().BoolVar(&includeRemote, "all", false, "include remote-tracking branches")
	cmd.AddCommand(branches)

	return cmd
}
