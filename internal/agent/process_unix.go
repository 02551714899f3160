//go:build unix

package agent

import (
	"os/exec"
	"syscall"
)

// setProcessGroup puts the agent in its own process group so termination
// signals reach the agent and every child it spawned.
func setProcessGroup(c *exec.Cmd) {
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// TerminateGroup sends SIGTERM to the process group led by pid. Used both
// for attached processes and for detached ones recovered from a previous run.
func TerminateGroup(pid int) error {
	return syscall.Kill(-pid, syscall.SIGTERM)
}

// KillGroup sends SIGKILL to the process group led by pid.
func KillGroup(pid int) error {
	return syscall.Kill(-pid, syscall.SIGKILL)
}

// ProbePID reports whether a process with the given pid exists. Signal 0
// performs the permission and existence checks without delivering anything,
// which is how detached processes from a previous run are probed.
func ProbePID(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	if err == nil {
		return true
	}
	// EPERM means the process exists but belongs to another user.
	return err == syscall.EPERM
}
