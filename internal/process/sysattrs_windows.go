//go:build windows

package process

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/windows"
)

// configureSysProcAttr hides the console window of the child. Streaming
// children additionally get their own process group.
func configureSysProcAttr(cmd *exec.Cmd, streaming bool) {
	flags := uint32(windows.CREATE_NO_WINDOW)
	if streaming {
		flags |= windows.CREATE_NEW_PROCESS_GROUP
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{HideWindow: true, CreationFlags: flags}
}
