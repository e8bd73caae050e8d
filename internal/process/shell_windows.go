//go:build windows

package process

import "strings"

const defaultProgram = "powershell"

// utf8Preamble forces powershell to emit UTF-8 regardless of the console code page.
const utf8Preamble = "[Console]::OutputEncoding = [System.Text.Encoding]::UTF8; "

// shellArgs returns powershell arguments that skip the profile and bypass
// the execution policy.
func shellArgs(script string) []string {
	return []string{"-NoProfile", "-ExecutionPolicy", "Bypass", "-Command", utf8Preamble + script}
}

// InvokeScript builds the command line that runs a script file with args.
func InvokeScript(path string, args ...string) string {
	parts := append([]string{`& "` + path + `"`}, args...)
	return strings.Join(parts, " ")
}
