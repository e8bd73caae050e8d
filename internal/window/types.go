package window

// TargetProcess identifies the externally launched process whose window is
// being searched for.
type TargetProcess struct {
	PID uint32
}

// ZoomRequest is the zoom level, in percent, to force on the target window.
type ZoomRequest struct {
	Level int
}

// Handle is an opaque native window handle. It is looked up, never owned.
type Handle uintptr

// Menu is an opaque native menu handle.
type Menu uintptr

// MenuEntry is one item of a native menu. Entries are re-enumerated on every
// attempt since the target application may rebuild its menu.
type MenuEntry struct {
	Index     int
	Text      string
	CommandID uint32
	IsSubmenu bool
}

// Rect is a window rectangle in screen coordinates.
type Rect struct {
	Left, Top, Right, Bottom int
}

func (r Rect) Width() int  { return r.Right - r.Left }
func (r Rect) Height() int { return r.Bottom - r.Top }

// State is a step of the automation state machine.
type State string

const (
	StateSearching   State = "searching"
	StateFound       State = "found"
	StateZoomApplied State = "zoom_applied"
	StateCentered    State = "centered"
	StateTimedOut    State = "timed_out"
)

// Desktop is the native windowing boundary. Every failure is reported as
// "not found" (false) rather than an error, except for the two mutating calls.
type Desktop interface {
	// FindWindow returns the first visible top-level window of className
	// owned by pid.
	FindWindow(className string, pid uint32) (Handle, bool)
	SystemMenu(h Handle) (Menu, bool)
	MenuEntries(m Menu) []MenuEntry
	SubMenu(m Menu, index int) (Menu, bool)
	PostSysCommand(h Handle, commandID uint32) error
	WindowRect(h Handle) (Rect, bool)
	ScreenSize() (width, height int)
	// MoveWindow repositions h without resizing or changing its Z order.
	MoveWindow(h Handle, x, y int) error
}
