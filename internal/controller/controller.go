// Package controller runs the camera controller loop inside the foreign
// process.
package controller

import (
	"fmt"
	"image"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/retroenv/retrogolib/log"
	"github.com/wnxd/battlecam/battle"
	"github.com/wnxd/battlecam/camera"
	"github.com/wnxd/battlecam/config"
	"github.com/wnxd/battlecam/foreign"
	"github.com/wnxd/battlecam/input"
)

// Scroll reports wheel movement since the previous call.
type Scroll interface {
	Delta() int32
	Close() error
}

// Platform is everything the controller needs from the operating system.
type Platform interface {
	Memory() foreign.Memory
	KeyDown(vk uint16) bool
	Cursor() (image.Point, error)
	DoubleClickTime() time.Duration
	StartScroll(logger *log.Logger) (Scroll, error)
	// Console opens or closes the log console.
	Console(open bool) error
}

// Controller samples input once per tick and drives the battle camera. All
// methods must be called from the same goroutine.
type Controller struct {
	logger   *log.Logger
	platform Platform
	dir      string
	cfg      *config.Config

	keyboard *input.Keyboard
	scroll   Scroll
	camera   *battle.Camera

	enabled bool
	lastErr string
}

// New starts the scroll hook and prepares the camera with the given config.
func New(logger *log.Logger, platform Platform, dir string, cfg *config.Config) (*Controller, error) {
	if cfg.Console {
		if err := platform.Console(true); err != nil {
			return nil, fmt.Errorf("opening console: %w", err)
		}
	}

	scroll, err := platform.StartScroll(logger)
	if err != nil {
		return nil, fmt.Errorf("starting scroll hook: %w", err)
	}

	c := &Controller{
		logger:   logger,
		platform: platform,
		dir:      dir,
		cfg:      cfg,
		keyboard: input.NewKeyboard(platform.KeyDown),
		scroll:   scroll,
		camera:   battle.NewCamera(logger, platform.Memory(), cfg.Layout()),
		enabled:  cfg.Camera.Enabled,
	}
	c.keyboard.Update(c.keys()...)
	return c, nil
}

func (c *Controller) Config() *config.Config {
	return c.cfg
}

func (c *Controller) Camera() *battle.Camera {
	return c.camera
}

// keys lists every key the controller reads.
func (c *Controller) keys() []uint16 {
	k := c.cfg.Keybinds
	keys := []uint16{
		input.VK_LBUTTON,
		k.Pause, k.Exit, k.Fast, k.Slow, k.Freecam,
		k.Forward, k.Backwards, k.Left, k.Right, k.RotateLeft, k.RotateRight,
	}
	return append(keys, c.cfg.ReloadConfigKeys...)
}

// Step runs one tick at now. It reports stop once the exit key was
// pressed. A returned error concerns this tick only.
func (c *Controller) Step(now time.Time) (stop bool, err error) {
	c.keyboard.Update(c.keys()...)

	if c.keyboard.Chord(c.cfg.ReloadConfigKeys) {
		if err := c.reload(); err != nil {
			return false, err
		}
	}
	k := c.cfg.Keybinds
	if c.keyboard.Pressed(k.Exit) {
		c.logger.Info("Exit key pressed")
		return true, nil
	}
	if c.keyboard.Pressed(k.Pause) {
		if err := c.setEnabled(!c.enabled); err != nil {
			return false, err
		}
	}

	f, err := c.frame(now)
	if err != nil {
		return false, err
	}
	return false, c.camera.Run(f)
}

func (c *Controller) frame(now time.Time) (battle.Frame, error) {
	cursor, err := c.platform.Cursor()
	if err != nil {
		return battle.Frame{}, fmt.Errorf("reading cursor: %w", err)
	}

	k := c.cfg.Keybinds
	held := c.keyboard.Held
	settings := c.cfg.Settings()
	settings.CustomCamera = c.enabled

	return battle.Frame{
		Now: now,
		Input: camera.Input{
			Forward:     held(k.Forward),
			Backward:    held(k.Backwards),
			Left:        held(k.Left),
			Right:       held(k.Right),
			RotateLeft:  held(k.RotateLeft),
			RotateRight: held(k.RotateRight),
			Fast:        held(k.Fast),
			Slow:        held(k.Slow),
			Look:        held(k.Freecam),
			Scroll:      c.scroll.Delta(),
		},
		Cursor:          cursor,
		Click:           c.keyboard.Pressed(input.VK_LBUTTON),
		Settings:        settings,
		DoubleClickTime: c.platform.DoubleClickTime(),
	}, nil
}

func (c *Controller) setEnabled(enabled bool) error {
	c.enabled = enabled
	c.logger.Info("Custom camera toggled", log.String("enabled", strconv.FormatBool(enabled)))
	return c.camera.SetCustomCamera(enabled)
}

// reload swaps in the config file from disk. A broken file keeps the
// current config.
func (c *Controller) reload() error {
	c.logger.Debug("Reloading config")
	cfg, err := config.Load(c.dir)
	if err != nil {
		return fmt.Errorf("reloading config: %w", err)
	}

	if cfg.Console != c.cfg.Console {
		if err := c.platform.Console(cfg.Console); err != nil {
			c.logger.Error("Switching console failed", log.Err(err))
		}
	}
	// The running session keeps its layout until the battle ends.
	c.camera.SetLayout(cfg.Layout())

	old := c.cfg
	c.cfg = cfg
	if cfg.Camera.Enabled != old.Camera.Enabled {
		if err := c.setEnabled(cfg.Camera.Enabled); err != nil {
			return err
		}
	}
	c.logger.Info("Config reloaded", log.Int("update_rate", cfg.UpdateRate))
	return nil
}

// report logs tick errors, repeating a message only after it stopped
// occurring.
func (c *Controller) report(err error) {
	if err == nil {
		c.lastErr = ""
		return
	}
	msg := err.Error()
	if msg == c.lastErr {
		return
	}
	c.lastErr = msg
	c.logger.Error("Tick failed", log.Err(err))
}

// Run ticks at the configured update rate until shutdown is raised or the
// exit key is pressed, then tears down.
func (c *Controller) Run(shutdown *atomic.Bool) error {
	period := c.cfg.Period()
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for !shutdown.Load() {
		now := <-ticker.C
		stop, err := c.Step(now)
		c.report(err)
		if stop {
			break
		}
		if p := c.cfg.Period(); p != period {
			period = p
			ticker.Reset(period)
		}
	}
	return c.Close()
}

// Close ends any battle session and releases the scroll hook.
func (c *Controller) Close() error {
	errCamera := c.camera.Close()
	if errCamera != nil {
		c.logger.Error("Restoring camera failed", log.Err(errCamera))
	}
	errScroll := c.scroll.Close()
	if errScroll != nil {
		c.logger.Error("Releasing scroll hook failed", log.Err(errScroll))
	}
	if errCamera != nil {
		return errCamera
	}
	return errScroll
}
