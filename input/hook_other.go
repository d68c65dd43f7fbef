//go:build !windows

package input

import (
	"errors"
	"image"
	"time"

	"github.com/retroenv/retrogolib/log"
)

var ErrUnsupported = errors.New("input hooks need windows")

func StartScroll(*log.Logger) (*ScrollTracker, error) {
	return nil, ErrUnsupported
}

func IsKeyDown(uint16) bool {
	return false
}

func Cursor() (image.Point, error) {
	return image.Point{}, ErrUnsupported
}

func DoubleClickTime() time.Duration {
	return 500 * time.Millisecond
}
