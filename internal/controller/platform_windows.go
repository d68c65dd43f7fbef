//go:build windows

package controller

import (
	"image"
	"time"

	"github.com/retroenv/retrogolib/log"
	"github.com/wnxd/battlecam/foreign"
	"github.com/wnxd/battlecam/input"
	"golang.org/x/sys/windows"
)

var (
	kernel32         = windows.NewLazySystemDLL("kernel32.dll")
	procAllocConsole = kernel32.NewProc("AllocConsole")
	procFreeConsole  = kernel32.NewProc("FreeConsole")
)

// System is the platform of the process the library is loaded into.
type System struct {
	mem *foreign.Process
}

var _ Platform = (*System)(nil)

func NewSystem() *System {
	return &System{mem: foreign.Self()}
}

func (s *System) Memory() foreign.Memory {
	return s.mem
}

func (s *System) KeyDown(vk uint16) bool {
	return input.IsKeyDown(vk)
}

func (s *System) Cursor() (image.Point, error) {
	return input.Cursor()
}

func (s *System) DoubleClickTime() time.Duration {
	return input.DoubleClickTime()
}

func (s *System) StartScroll(logger *log.Logger) (Scroll, error) {
	t, err := input.StartScroll(logger)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *System) Console(open bool) error {
	proc := procFreeConsole
	if open {
		proc = procAllocConsole
	}
	if r, _, err := proc.Call(); r == 0 {
		return err
	}
	return nil
}
