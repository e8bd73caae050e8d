//go:build windows

package window

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32               = windows.NewLazySystemDLL("user32.dll")
	procFindWindowExW    = user32.NewProc("FindWindowExW")
	procGetSystemMenu    = user32.NewProc("GetSystemMenu")
	procGetMenuItemCount = user32.NewProc("GetMenuItemCount")
	procGetMenuStringW   = user32.NewProc("GetMenuStringW")
	procGetMenuItemID    = user32.NewProc("GetMenuItemID")
	procGetSubMenu       = user32.NewProc("GetSubMenu")
	procPostMessageW     = user32.NewProc("PostMessageW")
	procGetWindowRect    = user32.NewProc("GetWindowRect")
	procGetSystemMetrics = user32.NewProc("GetSystemMetrics")
	procSetWindowPos     = user32.NewProc("SetWindowPos")
)

const (
	mfByPosition  = 0x00000400
	wmSysCommand  = 0x0112
	smCxScreen    = 0
	smCyScreen    = 1
	hwndTop       = 0
	swpNoSize     = 0x0001
	swpNoZOrder   = 0x0004
	menuLabelSize = 256
)

type win32Desktop struct{}

// NewDesktop returns the user32-backed desktop.
func NewDesktop() Desktop { return win32Desktop{} }

func (win32Desktop) FindWindow(className string, pid uint32) (Handle, bool) {
	cls, err := windows.UTF16PtrFromString(className)
	if err != nil {
		return 0, false
	}
	var cur uintptr
	for {
		next, _, _ := procFindWindowExW.Call(0, cur, uintptr(unsafe.Pointer(cls)), 0)
		if next == 0 {
			return 0, false
		}
		cur = next
		hwnd := windows.HWND(cur)
		var owner uint32
		if _, err := windows.GetWindowThreadProcessId(hwnd, &owner); err != nil || owner != pid {
			continue
		}
		if windows.IsWindowVisible(hwnd) {
			return Handle(cur), true
		}
	}
}

func (win32Desktop) SystemMenu(h Handle) (Menu, bool) {
	m, _, _ := procGetSystemMenu.Call(uintptr(h), 0)
	return Menu(m), m != 0
}

func (win32Desktop) MenuEntries(m Menu) []MenuEntry {
	r, _, _ := procGetMenuItemCount.Call(uintptr(m))
	count := int(int32(uint32(r))) // #nosec G115
	if count <= 0 {
		return nil
	}
	entries := make([]MenuEntry, 0, count)
	buf := make([]uint16, menuLabelSize)
	for i := 0; i < count; i++ {
		n, _, _ := procGetMenuStringW.Call(uintptr(m), uintptr(i), uintptr(unsafe.Pointer(&buf[0])), menuLabelSize, mfByPosition)
		text := ""
		if n > 0 && int(n) <= len(buf) {
			text = windows.UTF16ToString(buf[:n])
		}
		id, _, _ := procGetMenuItemID.Call(uintptr(m), uintptr(i))
		sub, _, _ := procGetSubMenu.Call(uintptr(m), uintptr(i))
		entries = append(entries, MenuEntry{
			Index:     i,
			Text:      text,
			CommandID: uint32(id), // #nosec G115
			IsSubmenu: sub != 0,
		})
	}
	return entries
}

func (win32Desktop) SubMenu(m Menu, index int) (Menu, bool) {
	sub, _, _ := procGetSubMenu.Call(uintptr(m), uintptr(index))
	return Menu(sub), sub != 0
}

func (win32Desktop) PostSysCommand(h Handle, commandID uint32) error {
	ok, _, err := procPostMessageW.Call(uintptr(h), wmSysCommand, uintptr(commandID), 0)
	if ok == 0 {
		return fmt.Errorf("PostMessageW: %w", err)
	}
	return nil
}

func (win32Desktop) WindowRect(h Handle) (Rect, bool) {
	var r windows.Rect
	ok, _, _ := procGetWindowRect.Call(uintptr(h), uintptr(unsafe.Pointer(&r)))
	if ok == 0 {
		return Rect{}, false
	}
	return Rect{Left: int(r.Left), Top: int(r.Top), Right: int(r.Right), Bottom: int(r.Bottom)}, true
}

func (win32Desktop) ScreenSize() (int, int) {
	w, _, _ := procGetSystemMetrics.Call(smCxScreen)
	h, _, _ := procGetSystemMetrics.Call(smCyScreen)
	return int(int32(uint32(w))), int(int32(uint32(h))) // #nosec G115
}

func (win32Desktop) MoveWindow(h Handle, x, y int) error {
	ok, _, err := procSetWindowPos.Call(uintptr(h), hwndTop, uintptr(x), uintptr(y), 0, 0, swpNoSize|swpNoZOrder)
	if ok == 0 {
		return fmt.Errorf("SetWindowPos: %w", err)
	}
	return nil
}
