//go:build windows

package input

import (
	"image"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32                  = windows.NewLazySystemDLL("user32.dll")
	procGetAsyncKeyState    = user32.NewProc("GetAsyncKeyState")
	procGetCursorPos        = user32.NewProc("GetCursorPos")
	procGetDoubleClickTime  = user32.NewProc("GetDoubleClickTime")
	procSetWindowsHookExW   = user32.NewProc("SetWindowsHookExW")
	procUnhookWindowsHookEx = user32.NewProc("UnhookWindowsHookEx")
	procCallNextHookEx      = user32.NewProc("CallNextHookEx")
	procPeekMessageW        = user32.NewProc("PeekMessageW")
	procTranslateMessage    = user32.NewProc("TranslateMessage")
	procDispatchMessageW    = user32.NewProc("DispatchMessageW")
)

// IsKeyDown reports whether vk is held right now.
func IsKeyDown(vk uint16) bool {
	r, _, _ := procGetAsyncKeyState.Call(uintptr(vk))
	return r&0x8000 != 0
}

func Cursor() (image.Point, error) {
	var p struct{ X, Y int32 }
	r, _, err := procGetCursorPos.Call(uintptr(unsafe.Pointer(&p)))
	if r == 0 {
		return image.Point{}, err
	}
	return image.Point{X: int(p.X), Y: int(p.Y)}, nil
}

func DoubleClickTime() time.Duration {
	r, _, _ := procGetDoubleClickTime.Call()
	return time.Duration(r) * time.Millisecond
}
