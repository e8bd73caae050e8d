package window

import "testing"

func TestNormalizeLabel(t *testing.T) {
	cases := map[string]string{
		"&Zoom":         "Zoom",
		"&Close\tAlt+F4": "Close",
		"100%":          "100%",
		"":              "",
	}
	for in, want := range cases {
		if got := normalizeLabel(in); got != want {
			t.Fatalf("normalizeLabel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestZoomMenuMatcher(t *testing.T) {
	m := zoomMenuMatcher(DefaultZoomLabels)
	for _, label := range []string{"Zoom", "ZOOM", "Smart zoom", "Thu phóng", "THU PHÓNG"} {
		if !m(label) {
			t.Fatalf("expected %q to match", label)
		}
	}
	for _, label := range []string{"Move", "Close", "Full screen", ""} {
		if m(label) {
			t.Fatalf("did not expect %q to match", label)
		}
	}
}

func TestZoomMenuMatcherIgnoresBlankLabels(t *testing.T) {
	m := zoomMenuMatcher([]string{"", "  "})
	if m("Zoom") {
		t.Fatal("blank labels must not match anything")
	}
}

func TestPercentMatcherExact(t *testing.T) {
	m := percentMatcher(100)
	for _, label := range []string{"100%", "Zoom 100%", "100% (default)"} {
		if !m(label) {
			t.Fatalf("expected %q to match", label)
		}
	}
	for _, label := range []string{"1000%", "2100%", "50%", "75%", "Fit Window", "100"} {
		if m(label) {
			t.Fatalf("did not expect %q to match", label)
		}
	}
}

func TestPercentMatcherLaterOccurrence(t *testing.T) {
	if !percentMatcher(100)("1100% or 100%") {
		t.Fatal("expected match on second occurrence")
	}
}

func TestCenterPosition(t *testing.T) {
	x, y := CenterPosition(1920, 1080, Rect{Left: 10, Top: 10, Right: 810, Bottom: 610})
	if x != 560 || y != 240 {
		t.Fatalf("got (%d,%d), want (560,240)", x, y)
	}
}

func TestCenterPositionClampsOversizedWindow(t *testing.T) {
	x, y := CenterPosition(1280, 720, Rect{Right: 2000, Bottom: 1200})
	if x != 0 || y != 0 {
		t.Fatalf("got (%d,%d), want (0,0)", x, y)
	}
}
