//go:build !windows

package process

import (
	"errors"
	"fmt"
	"os"
	"syscall"

	gproc "github.com/shirou/gopsutil/v4/process"
)

// KillTree forcefully terminates pid and all of its descendants.
// A pid that already exited is not an error.
func KillTree(pid int) error {
	if pid <= 0 {
		return nil
	}
	p, err := gproc.NewProcess(int32(pid)) // #nosec G115
	if err != nil {
		// already gone
		return nil
	}
	killDescendants(p)
	// streaming children lead their own process group
	_ = syscall.Kill(-pid, syscall.SIGKILL)
	if err := syscall.Kill(pid, syscall.SIGKILL); err != nil && !isGone(err) {
		return fmt.Errorf("kill %d: %w", pid, err)
	}
	return nil
}

func killDescendants(p *gproc.Process) {
	children, err := p.Children()
	if err != nil {
		return
	}
	for _, c := range children {
		killDescendants(c)
		_ = c.Kill()
	}
}

func isGone(err error) bool {
	return errors.Is(err, syscall.ESRCH) || errors.Is(err, os.ErrProcessDone)
}
