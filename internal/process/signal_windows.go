//go:build windows

package process

import (
	"errors"
	"fmt"
	"os/exec"
	"strconv"
)

// taskkill exits with 128 when the pid does not exist.
const taskkillNotFound = 128

// KillTree forcefully terminates pid and all of its descendants.
// A pid that already exited is not an error.
func KillTree(pid int) error {
	if pid <= 0 {
		return nil
	}
	// #nosec G204
	cmd := exec.Command("taskkill", "/PID", strconv.Itoa(pid), "/T", "/F")
	configureSysProcAttr(cmd, false)
	out, err := cmd.CombinedOutput()
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if exitErr.ExitCode() == taskkillNotFound {
			return nil
		}
		return fmt.Errorf("taskkill %d: %s", pid, decode(out))
	}
	return &LaunchError{Program: "taskkill", Err: err}
}
