//go:build !windows

package supervisor

import (
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// setProcessGroup places the child in a fresh process group so the
// supervisor can signal it and every descendant as a unit, and arranges
// for the kernel to kill the child if nexsockd itself dies uncleanly.
// SysProcAttr's type is fixed by os/exec, so it stays syscall.SysProcAttr;
// the actual signaling below goes through golang.org/x/sys/unix.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}
}

// processGroupID returns the process group id, which POSIX guarantees
// equals the leader's pid when Setpgid created a fresh group.
func processGroupID(cmd *exec.Cmd) int {
	return cmd.Process.Pid
}

// signalGroupSoft sends SIGTERM to the entire process group.
func signalGroupSoft(pgid int) error {
	return unix.Kill(-pgid, unix.SIGTERM)
}

// signalGroupHard sends SIGKILL to the entire process group.
func signalGroupHard(pgid int) error {
	return unix.Kill(-pgid, unix.SIGKILL)
}

func inheritedEnv() []string {
	return os.Environ()
}
