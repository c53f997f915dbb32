// Package gitmgr implements git operations against a service's working
// tree by shelling out to the system git binary with a sanitized
// environment, mapping the service's stored auth type onto the
// environment variables git itself understands.
package gitmgr

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/nexsock/nexsockd/internal/protocol"
)

// Auth carries the credential material needed to run an auth-mapped
// git operation, sourced from the service row plus any secret
// material the caller holds out of band (nexsockd never persists key
// passphrases or passwords).
type Auth struct {
	Type     protocol.GitAuthType
	KeyPath  string
	Username string
	Password string
}

// Manager runs git subprocesses against a repo_path.
type Manager struct {
	gitBinary string
}

// New builds a Manager that shells out to binaryPath; an empty
// binaryPath falls back to "git" resolved via PATH.
func New(binaryPath string) *Manager {
	if binaryPath == "" {
		binaryPath = "git"
	}
	return &Manager{gitBinary: binaryPath}
}

func (m *Manager) run(ctx context.Context, auth Auth, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, m.gitBinary, args...)
	cmd.Dir = dir
	cmd.Env = append(authEnv(auth), "GIT_CONFIG_GLOBAL=/dev/null", "GIT_CONFIG_SYSTEM=/dev/null")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", protocol.WrapError(protocol.CodeExternal,
			fmt.Sprintf("git %s failed: %s", strings.Join(args, " "), strings.TrimSpace(stderr.String())), err)
	}
	return stdout.String(), nil
}

// authEnv maps auth onto the environment variables the git subprocess
// should inherit, per the auth-type mapping table.
func authEnv(auth Auth) []string {
	switch auth.Type {
	case protocol.GitAuthSSHAgent:
		return []string{"GIT_SSH_COMMAND=ssh -o BatchMode=yes"}
	case protocol.GitAuthSSHKey:
		return []string{fmt.Sprintf("GIT_SSH_COMMAND=ssh -i %s -o BatchMode=yes", auth.KeyPath)}
	case protocol.GitAuthToken, protocol.GitAuthUserPass:
		return []string{"GIT_ASKPASS=echo", "GIT_USERNAME=" + auth.Username, "GIT_PASSWORD=" + auth.Password}
	default:
		return nil
	}
}

// Clone clones remote into local, optionally checking out branch.
func (m *Manager) Clone(ctx context.Context, remote, local string, auth Auth, branch string) (*protocol.RepoStatus, error) {
	args := []string{"clone"}
	if branch != "" {
		args = append(args, "--branch", branch)
	}
	args = append(args, remote, local)
	if _, err := m.run(ctx, auth, "", args...); err != nil {
		return nil, err
	}
	return m.Status(ctx, local)
}

// Status reports the working tree's current branch, commit, remote
// url, dirtiness, branch list and ahead/behind counts.
func (m *Manager) Status(ctx context.Context, path string) (*protocol.RepoStatus, error) {
	branch, err := m.run(ctx, Auth{}, path, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return nil, err
	}
	branch = strings.TrimSpace(branch)

	commit, err := m.run(ctx, Auth{}, path, "rev-parse", "HEAD")
	if err != nil {
		return nil, err
	}
	commit = strings.TrimSpace(commit)

	remoteURL, err := m.run(ctx, Auth{}, path, "remote", "get-url", "origin")
	if err != nil {
		remoteURL = ""
	}
	remoteURL = strings.TrimSpace(remoteURL)

	porcelain, err := m.run(ctx, Auth{}, path, "status", "--porcelain")
	if err != nil {
		return nil, err
	}
	pendingChanges := pendingChangeLines(porcelain)
	isDirty := len(pendingChanges) > 0

	branches, err := m.ListBranches(ctx, path, false)
	if err != nil {
		return nil, err
	}

	status := &protocol.RepoStatus{
		CurrentBranch:  branch,
		CurrentCommit:  commit,
		RemoteURL:      remoteURL,
		IsDirty:        isDirty,
		Branches:       branches,
		PendingChanges: pendingChanges,
	}

	if ahead, behind, ok := m.aheadBehind(ctx, path); ok {
		status.Ahead = &ahead
		status.Behind = &behind
	}

	return status, nil
}

// pendingChangeLines splits `git status --porcelain` output into one
// entry per changed path, dropping blank lines.
func pendingChangeLines(porcelain string) []string {
	var out []string
	for _, line := range strings.Split(porcelain, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	return out
}

func (m *Manager) aheadBehind(ctx context.Context, path string) (ahead, behind int, ok bool) {
	out, err := m.run(ctx, Auth{}, path, "rev-list", "--left-right", "--count", "HEAD...@{upstream}")
	if err != nil {
		return 0, 0, false
	}
	parts := strings.Fields(strings.TrimSpace(out))
	if len(parts) != 2 {
		return 0, 0, false
	}
	aheadN, err1 := strconv.Atoi(parts[0])
	behindN, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return aheadN, behindN, true
}

// CheckoutBranch checks out name. When createIfMissing is set it runs
// git checkout -B, which creates name at the current HEAD if it is
// missing and resets an existing name to the current HEAD.
func (m *Manager) CheckoutBranch(ctx context.Context, path, name string, createIfMissing bool) (*protocol.RepoStatus, error) {
	args := []string{"checkout"}
	if createIfMissing {
		args = append(args, "-B")
	}
	args = append(args, name)
	if _, err := m.run(ctx, Auth{}, path, args...); err != nil {
		return nil, err
	}
	return m.Status(ctx, path)
}

// CheckoutCommit detaches HEAD at hash.
func (m *Manager) CheckoutCommit(ctx context.Context, path, hash string) (*protocol.RepoStatus, error) {
	if _, err := m.run(ctx, Auth{}, path, "checkout", "--detach", hash); err != nil {
		return nil, err
	}
	return m.Status(ctx, path)
}

// Pull runs git pull with auth applied.
func (m *Manager) Pull(ctx context.Context, path string, auth Auth) (*protocol.RepoStatus, error) {
	if _, err := m.run(ctx, auth, path, "pull"); err != nil {
		return nil, err
	}
	return m.Status(ctx, path)
}

// Fetch runs git fetch with auth applied.
func (m *Manager) Fetch(ctx context.Context, path string, auth Auth) (*protocol.RepoStatus, error) {
	if _, err := m.run(ctx, auth, path, "fetch"); err != nil {
		return nil, err
	}
	return m.Status(ctx, path)
}

const logFieldSep = "\x1f"
const logRecordSep = "\x1e"

// Log returns up to maxCount commits reachable from branch (HEAD when
// empty), newest first.
func (m *Manager) Log(ctx context.Context, path string, maxCount int, branch string) ([]protocol.Commit, error) {
	format := strings.Join([]string{"%H", "%h", "%an", "%ae", "%aI", "%s", "%B"}, logFieldSep) + logRecordSep
	args := []string{"log", "--format=" + format}
	if maxCount > 0 {
		args = append(args, "-n", strconv.Itoa(maxCount))
	}
	if branch != "" {
		args = append(args, branch)
	}

	out, err := m.run(ctx, Auth{}, path, args...)
	if err != nil {
		return nil, err
	}

	var commits []protocol.Commit
	for _, record := range strings.Split(out, logRecordSep) {
		record = strings.Trim(record, "\n")
		if record == "" {
			continue
		}
		fields := strings.SplitN(record, logFieldSep, 7)
		if len(fields) != 7 {
			return nil, protocol.NewError(protocol.CodeDeserialization, "malformed git log record")
		}
		commits = append(commits, protocol.Commit{
			Hash:        fields[0],
			ShortHash:   fields[1],
			AuthorName:  fields[2],
			AuthorEmail: fields[3],
			Timestamp:   fields[4],
			Message:     fields[5],
			FullMessage: strings.TrimPrefix(fields[6], "\n"),
		})
	}
	return commits, nil
}

// ListBranches returns branch names with the current-branch marker
// and symbolic-ref noise stripped.
func (m *Manager) ListBranches(ctx context.Context, path string, includeRemote bool) ([]string, error) {
	args := []string{"branch", "--format=%(refname:short)"}
	if includeRemote {
		args = append(args, "--all")
	}
	out, err := m.run(ctx, Auth{}, path, args...)
	if err != nil {
		return nil, err
	}

	var branches []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.Contains(line, "HEAD ->") || strings.HasSuffix(line, "/HEAD") {
			continue
		}
		branches = append(branches, line)
	}
	return branches, nil
}
