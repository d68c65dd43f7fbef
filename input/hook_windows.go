//go:build windows

package input

import (
	"time"
	"unsafe"

	"github.com/retroenv/retrogolib/log"
	"golang.org/x/sys/windows"
)

const (
	whMouseLL    = 14
	wmMouseWheel = 0x020A
	pmRemove     = 0x0001
	wheelDelta   = 120

	pumpInterval = time.Millisecond
)

type msllHookStruct struct {
	Pt          struct{ X, Y int32 }
	MouseData   uint32
	Flags       uint32
	Time        uint32
	DwExtraInfo uintptr
}

type msg struct {
	Hwnd    windows.Handle
	Message uint32
	WParam  uintptr
	LParam  uintptr
	Time    uint32
	Pt      struct{ X, Y int32 }
}

var mouseProc = windows.NewCallback(func(code, wParam, lParam uintptr) uintptr {
	if int32(code) >= 0 && wParam == wmMouseWheel {
		info := (*msllHookStruct)(unsafe.Pointer(lParam))
		notches := int32(1)
		if int16(info.MouseData>>16) != wheelDelta {
			notches = -1
		}
		if t := Current(); t != nil {
			t.Add(notches)
		}
	}
	r, _, _ := procCallNextHookEx.Call(0, code, wParam, lParam)
	return r
})

// StartScroll installs a low level mouse hook on a dedicated thread and
// returns once it is live.
func StartScroll(logger *log.Logger) (*ScrollTracker, error) {
	return start(logger, mouseHookPump)
}

func mouseHookPump(logger *log.Logger, ready func(error), stop <-chan struct{}) error {
	hook, _, err := procSetWindowsHookExW.Call(whMouseLL, mouseProc, 0, 0)
	if hook == 0 {
		ready(err)
		return err
	}
	logger.Debug("Mouse hook installed", log.Hex("hook", uint64(hook)))
	ready(nil)

	ticker := time.NewTicker(pumpInterval)
	defer ticker.Stop()
	for {
		drainMessages()
		select {
		case <-stop:
			drainMessages()
			if r, _, err := procUnhookWindowsHookEx.Call(hook); r == 0 {
				return err
			}
			return nil
		case <-ticker.C:
		}
	}
}

func drainMessages() {
	var m msg
	for {
		r, _, _ := procPeekMessageW.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0, pmRemove)
		if r == 0 {
			return
		}
		procTranslateMessage.Call(uintptr(unsafe.Pointer(&m)))
		procDispatchMessageW.Call(uintptr(unsafe.Pointer(&m)))
	}
}
