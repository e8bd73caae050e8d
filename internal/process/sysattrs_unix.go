//go:build !windows

package process

import (
	"os/exec"
	"syscall"
)

// configureSysProcAttr places streaming children in a new process group so
// KillTree can signal the whole group.
func configureSysProcAttr(cmd *exec.Cmd, streaming bool) {
	if !streaming {
		return
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
