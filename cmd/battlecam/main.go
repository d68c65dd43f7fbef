//go:build windows

// Package main builds the controller as a library to load into the game,
// for example with go build -buildmode=c-shared.
package main

import "C"

import (
	"fmt"
	"os"
	"path/filepath"
	"unsafe"

	"github.com/wnxd/battlecam/internal/controller"
	"golang.org/x/sys/windows"
)

// anchor lives in the library image and locates it.
var anchor byte

// libraryDir returns the directory the library was loaded from.
func libraryDir() (string, error) {
	var module windows.Handle
	flags := uint32(windows.GET_MODULE_HANDLE_EX_FLAG_FROM_ADDRESS | windows.GET_MODULE_HANDLE_EX_FLAG_UNCHANGED_REFCOUNT)
	if err := windows.GetModuleHandleEx(flags, (*uint16)(unsafe.Pointer(&anchor)), &module); err != nil {
		return "", fmt.Errorf("locating library: %w", err)
	}

	buf := make([]uint16, windows.MAX_LONG_PATH)
	n, err := windows.GetModuleFileName(module, &buf[0], uint32(len(buf)))
	if err != nil {
		return "", fmt.Errorf("reading library path: %w", err)
	}
	return filepath.Dir(windows.UTF16ToString(buf[:n])), nil
}

// Attach starts the controller. It returns 0 on success.
//
//export Attach
func Attach() C.int {
	dir, err := libraryDir()
	if err == nil {
		err = controller.Attach(controller.NewSystem(), dir)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "battlecam:", err)
		return 1
	}
	return 0
}

// Detach stops the controller and restores the game code. It returns 0 on
// success.
//
//export Detach
func Detach() C.int {
	if err := controller.Detach(); err != nil {
		fmt.Fprintln(os.Stderr, "battlecam:", err)
		return 1
	}
	return 0
}

func main() {}
