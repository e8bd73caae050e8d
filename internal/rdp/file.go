package rdp

import (
	"fmt"
	"strings"
)

// RenderFile returns the .rdp document connecting to address with s.
func RenderFile(address string, s Settings) string {
	mode := 1
	if s.Fullscreen {
		mode = 2
	}
	var b strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format, args...)
		b.WriteString("\r\n")
	}
	line("full address:s:%s", address)
	line("screen mode id:i:%d", mode)
	line("desktopwidth:i:%d", s.Width)
	line("desktopheight:i:%d", s.Height)
	line("desktopscalefactor:i:%d", s.Scale)
	line("smart sizing:i:1")
	line("prompt for credentials:i:0")
	if s.Username != "" {
		line("username:s:%s", s.Username)
	}
	if len(s.SharedDrives) > 0 {
		drives := make([]string, 0, len(s.SharedDrives))
		for _, d := range s.SharedDrives {
			drives = append(drives, strings.ToUpper(strings.TrimSuffix(strings.TrimSuffix(d, `\`), ":"))+":")
		}
		line("drivestoredirect:s:%s", strings.Join(drives, ";"))
	}
	return b.String()
}
