package controller

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/retroenv/retrogolib/log"
	"github.com/wnxd/battlecam/config"
)

var ErrAttached = errors.New("controller already attached")

var (
	// shutdown is polled once per tick by the running loop.
	shutdown atomic.Bool

	mu   sync.Mutex
	done chan error
)

// Attach loads the config from dir and starts the controller loop on its
// own OS thread. It returns once the loop is initialized, or with the
// initialization error.
func Attach(platform Platform, dir string) error {
	mu.Lock()
	defer mu.Unlock()
	if done != nil {
		return ErrAttached
	}

	if err := config.CreateInitial(dir); err != nil {
		return err
	}
	cfg, err := config.Load(dir)
	if err != nil {
		return err
	}
	logger := config.CreateLogger(cfg.Debug, false)

	shutdown.Store(false)
	ready := make(chan error, 1)
	finished := make(chan error, 1)
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		c, err := New(logger, platform, dir, cfg)
		ready <- err
		if err != nil {
			return
		}
		logger.Info("Controller attached", log.String("dir", dir))
		finished <- c.Run(&shutdown)
	}()
	if err := <-ready; err != nil {
		return fmt.Errorf("starting controller: %w", err)
	}
	done = finished
	return nil
}

// Detach raises the shutdown flag and waits until the loop has restored the
// foreign process.
func Detach() error {
	mu.Lock()
	defer mu.Unlock()
	if done == nil {
		return nil
	}
	shutdown.Store(true)
	err := <-done
	done = nil
	return err
}
