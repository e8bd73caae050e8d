package template

import "strings"

// SuccessLine is appended to every rendered provisioning script.
const SuccessLine = "Write-Host 'PROVISION_SUCCESS'"

var headlessFixes = strings.NewReplacer(
	// interactive prompts would block forever without a console
	"Read-host", "# Read-host",
	// the script only accepts alphanumeric VM names
	"^[a-zA-Z0-9]+$", ".",
	"$params.VMName.Length -gt 15", "$params.VMName.Length -gt 100",
)

// PatchForHeadless rewrites the interactive parts of the script so it can run
// unattended, and makes sure it ends by printing the success sentinel.
func PatchForHeadless(text string) string {
	text = headlessFixes.Replace(text)
	if lastLine(text) == SuccessLine {
		return text
	}
	return text + "\n" + SuccessLine
}

func lastLine(text string) string {
	text = strings.TrimRight(text, "\r\n")
	if i := strings.LastIndexByte(text, '\n'); i >= 0 {
		text = text[i+1:]
	}
	return strings.TrimSpace(text)
}
