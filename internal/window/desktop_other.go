//go:build !windows

package window

import "errors"

var errUnsupported = errors.New("window automation requires Windows")

// unsupportedDesktop never finds a window, so automation simply times out.
type unsupportedDesktop struct{}

func NewDesktop() Desktop { return unsupportedDesktop{} }

func (unsupportedDesktop) FindWindow(string, uint32) (Handle, bool) { return 0, false }
func (unsupportedDesktop) SystemMenu(Handle) (Menu, bool)           { return 0, false }
func (unsupportedDesktop) MenuEntries(Menu) []MenuEntry             { return nil }
func (unsupportedDesktop) SubMenu(Menu, int) (Menu, bool)           { return 0, false }
func (unsupportedDesktop) PostSysCommand(Handle, uint32) error      { return errUnsupported }
func (unsupportedDesktop) WindowRect(Handle) (Rect, bool)           { return Rect{}, false }
func (unsupportedDesktop) ScreenSize() (int, int)                   { return 0, 0 }
func (unsupportedDesktop) MoveWindow(Handle, int, int) error        { return errUnsupported }
