package window

import (
	"strconv"
	"strings"

	"golang.org/x/text/cases"
)

// normalizeLabel strips the accelerator marker and any tab-separated
// shortcut suffix from a menu label.
func normalizeLabel(s string) string {
	if i := strings.IndexByte(s, '\t'); i >= 0 {
		s = s[:i]
	}
	return strings.ReplaceAll(s, "&", "")
}

// findEntry returns the first entry whose normalised label satisfies pred.
func findEntry(entries []MenuEntry, pred func(label string) bool) (MenuEntry, bool) {
	for _, e := range entries {
		if pred(normalizeLabel(e.Text)) {
			return e, true
		}
	}
	return MenuEntry{}, false
}

// zoomMenuMatcher reports whether a label contains any of labels using
// Unicode case folding.
func zoomMenuMatcher(labels []string) func(string) bool {
	folded := make([]string, 0, len(labels))
	for _, l := range labels {
		if l = strings.TrimSpace(l); l != "" {
			folded = append(folded, cases.Fold().String(l))
		}
	}
	return func(label string) bool {
		f := cases.Fold().String(label)
		for _, l := range folded {
			if strings.Contains(f, l) {
				return true
			}
		}
		return false
	}
}

// percentMatcher matches labels containing "<level>%" where the match is not
// preceded by a digit, so 100% never matches 1000% or 2100%.
func percentMatcher(level int) func(string) bool {
	target := strconv.Itoa(level) + "%"
	return func(label string) bool {
		for from := 0; ; {
			i := strings.Index(label[from:], target)
			if i < 0 {
				return false
			}
			at := from + i
			if at == 0 || !isDigit(label[at-1]) {
				return true
			}
			from = at + 1
		}
	}
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

// CenterPosition returns the top-left corner that centers r on a
// screenW x screenH display, clamped so the window never starts off the
// top or left edge.
func CenterPosition(screenW, screenH int, r Rect) (int, int) {
	x := (screenW - r.Width()) / 2
	y := (screenH - r.Height()) / 2
	return max(x, 0), max(y, 0)
}
