//go:build !windows

package process

import "strings"

const defaultProgram = "/bin/sh"

// shellArgs returns a shell command for Unix systems
func shellArgs(script string) []string {
	return []string{"-c", script}
}

// InvokeScript builds the command line that runs a script file with args.
func InvokeScript(path string, args ...string) string {
	parts := append([]string{`/bin/sh "` + path + `"`}, args...)
	return strings.Join(parts, " ")
}
