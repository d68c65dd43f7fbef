// Package config handles the controller configuration file and logger setup.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/retroenv/retrogolib/log"
	"github.com/wnxd/battlecam/battle"
	"github.com/wnxd/battlecam/camera"
	"github.com/wnxd/battlecam/input"
	"github.com/wnxd/battlecam/internal/x86"
)

// FileName is the config file looked up next to the library.
const FileName = "battlecam_config.json"

var ErrInvalid = errors.New("invalid config")

type Config struct {
	// Console opens a console window for the log.
	Console bool `json:"console"`
	// Debug enables debug level logging.
	Debug      bool `json:"debug"`
	UpdateRate int  `json:"update_rate"`
	// ReloadConfigKeys reloads the file when all of them are held. Empty
	// disables reloading.
	ReloadConfigKeys []uint16  `json:"reload_config_keys"`
	ForceTTWCamera   bool      `json:"force_ttw_camera"`
	Keybinds         Keybinds  `json:"keybinds"`
	Camera           Camera    `json:"camera"`
	Addresses        Addresses `json:"addresses"`
}

// Keybinds are virtual key codes.
type Keybinds struct {
	Pause       uint16 `json:"pause"`
	Exit        uint16 `json:"exit"`
	Fast        uint16 `json:"fast"`
	Slow        uint16 `json:"slow"`
	Freecam     uint16 `json:"freecam"`
	Forward     uint16 `json:"forward"`
	Backwards   uint16 `json:"backwards"`
	Left        uint16 `json:"left"`
	Right       uint16 `json:"right"`
	RotateLeft  uint16 `json:"rotate_left"`
	RotateRight uint16 `json:"rotate_right"`
}

type Camera struct {
	Enabled        bool    `json:"enabled"`
	Sensitivity    float32 `json:"sensitivity"`
	Inverted       bool    `json:"inverted"`
	InvertedScroll bool    `json:"inverted_scroll"`

	PanSmoothing        float32 `json:"pan_smoothing"`
	HorizontalSmoothing float32 `json:"horizontal_smoothing"`
	VerticalSmoothing   float32 `json:"vertical_smoothing"`

	HorizontalBaseSpeed float32 `json:"horizontal_base_speed"`
	VerticalBaseSpeed   float32 `json:"vertical_base_speed"`
	FastMultiplier      float32 `json:"fast_multiplier"`
	SlowMultiplier      float32 `json:"slow_multiplier"`

	MaintainRelativeHeight bool    `json:"maintain_relative_height"`
	PreventGroundClipping  bool    `json:"prevent_ground_clipping"`
	GroundClipMargin       float32 `json:"ground_clip_margin"`
	PanningDelayMS         int     `json:"panning_delay_ms"`
}

type RemoteStore struct {
	Address Address `json:"address"`
	XMM     uint8   `json:"xmm"`
}

type TargetView struct {
	Address Address `json:"address"`
	Length  int     `json:"length"`
}

// Addresses locate the foreign code and data of one build.
type Addresses struct {
	Battle         Address       `json:"battle"`
	CameraType     Address       `json:"camera_type"`
	Camera         Address       `json:"camera"`
	Target         Address       `json:"target"`
	GroundDelta    Address       `json:"ground_delta"`
	PatchLocations []Address     `json:"patch_locations"`
	RemoteStores   []RemoteStore `json:"remote_stores"`
	Teleport       Address       `json:"teleport"`
	TargetView     TargetView    `json:"target_view"`
}

// Default returns the configuration written on first start.
func Default() Config {
	return Config{
		UpdateRate:       144,
		ReloadConfigKeys: []uint16{input.VK_CONTROL, input.VK_SHIFT, input.VK_R},
		Keybinds: Keybinds{
			Pause:       0x2D, // insert
			Exit:        0x23, // end
			Fast:        input.VK_SHIFT,
			Slow:        input.VK_MENU,
			Freecam:     0x06, // mouse button 5
			Forward:     'W',
			Backwards:   'S',
			Left:        'A',
			Right:       'D',
			RotateLeft:  'Q',
			RotateRight: 'E',
		},
		Camera: Camera{
			Enabled:                true,
			Sensitivity:            1,
			PanSmoothing:           0.8,
			HorizontalSmoothing:    0.9,
			VerticalSmoothing:      0.9,
			HorizontalBaseSpeed:    1,
			VerticalBaseSpeed:      1,
			FastMultiplier:         3.5,
			SlowMultiplier:         0.3,
			MaintainRelativeHeight: true,
			PreventGroundClipping:  true,
			GroundClipMargin:       2.1,
			PanningDelayMS:         500,
		},
		Addresses: FromLayout(battle.DefaultLayout()),
	}
}

// FromLayout converts a layout to its file form.
func FromLayout(l battle.Layout) Addresses {
	stores := make([]RemoteStore, len(l.RemoteStores))
	for i, s := range l.RemoteStores {
		stores[i] = RemoteStore{Address: Address(s.Addr), XMM: uint8(s.Reg)}
	}
	return Addresses{
		Battle:         Address(l.Battle),
		CameraType:     Address(l.CameraType),
		Camera:         Address(l.Camera),
		Target:         Address(l.Target),
		GroundDelta:    Address(l.GroundDelta),
		PatchLocations: addresses(l.Patches),
		RemoteStores:   stores,
		Teleport:       Address(l.Teleport),
		TargetView:     TargetView{Address: Address(l.TargetView), Length: l.TargetViewLen},
	}
}

func (c *Config) Layout() battle.Layout {
	a := c.Addresses
	stores := make([]battle.RemoteStore, len(a.RemoteStores))
	for i, s := range a.RemoteStores {
		stores[i] = battle.RemoteStore{Addr: uint64(s.Address), Reg: x86.XMM(s.XMM)}
	}
	return battle.Layout{
		Battle:        uint64(a.Battle),
		CameraType:    uint64(a.CameraType),
		Camera:        uint64(a.Camera),
		Target:        uint64(a.Target),
		GroundDelta:   uint64(a.GroundDelta),
		Patches:       raw(a.PatchLocations),
		RemoteStores:  stores,
		Teleport:      uint64(a.Teleport),
		TargetView:    uint64(a.TargetView.Address),
		TargetViewLen: a.TargetView.Length,
	}
}

func (c *Config) Tuning() camera.Tuning {
	cam := c.Camera
	return camera.Tuning{
		Sensitivity:            cam.Sensitivity,
		Inverted:               cam.Inverted,
		InvertedScroll:         cam.InvertedScroll,
		PanSmoothing:           cam.PanSmoothing,
		HorizontalSmoothing:    cam.HorizontalSmoothing,
		VerticalSmoothing:      cam.VerticalSmoothing,
		HorizontalSpeed:        cam.HorizontalBaseSpeed,
		VerticalSpeed:          cam.VerticalBaseSpeed,
		FastMultiplier:         cam.FastMultiplier,
		SlowMultiplier:         cam.SlowMultiplier,
		MaintainRelativeHeight: cam.MaintainRelativeHeight,
		PreventGroundClipping:  cam.PreventGroundClipping,
		GroundClipMargin:       cam.GroundClipMargin,
	}
}

func (c *Config) Settings() battle.Settings {
	return battle.Settings{
		CustomCamera:  c.Camera.Enabled,
		ForceTotalWar: c.ForceTTWCamera,
		Tuning:        c.Tuning(),
		PanningDelay:  time.Duration(c.Camera.PanningDelayMS) * time.Millisecond,
	}
}

// Period is the tick interval for the update rate.
func (c *Config) Period() time.Duration {
	return time.Second / time.Duration(c.UpdateRate)
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if c.UpdateRate <= 0 {
		fail("update_rate must be positive, got %d", c.UpdateRate)
	}

	cam := c.Camera
	smoothing := []struct {
		name  string
		value float32
	}{
		{"pan_smoothing", cam.PanSmoothing},
		{"horizontal_smoothing", cam.HorizontalSmoothing},
		{"vertical_smoothing", cam.VerticalSmoothing},
	}
	for _, s := range smoothing {
		if !(s.value > 0 && s.value < 1) {
			fail("%s must be between 0 and 1 exclusive, got %v", s.name, s.value)
		}
	}

	nonNegative := []struct {
		name  string
		value float32
	}{
		{"sensitivity", cam.Sensitivity},
		{"horizontal_base_speed", cam.HorizontalBaseSpeed},
		{"vertical_base_speed", cam.VerticalBaseSpeed},
		{"fast_multiplier", cam.FastMultiplier},
		{"slow_multiplier", cam.SlowMultiplier},
		{"ground_clip_margin", cam.GroundClipMargin},
	}
	for _, v := range nonNegative {
		if !(v.value >= 0) || math.IsInf(float64(v.value), 1) {
			fail("%s must be a finite value of at least 0, got %v", v.name, v.value)
		}
	}
	if cam.PanningDelayMS < 0 {
		fail("panning_delay_ms must not be negative, got %d", cam.PanningDelayMS)
	}

	if err := c.Layout().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("%w: %w", ErrInvalid, err))
	}
	return errors.Join(errs...)
}

// CreateInitial writes the default config into dir unless a file exists.
func CreateInitial(dir string) error {
	path := filepath.Join(dir, FileName)
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("checking config file: %w", err)
	}

	def := Default()
	data, err := json.MarshalIndent(&def, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding default config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Load reads and validates the config in dir. Fields missing from the
// file keep their default values.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	c := Default()
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing config file '%s', is it valid: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateLogger creates a logger with appropriate settings
func CreateLogger(debug, quiet bool) *log.Logger {
	cfg := log.DefaultConfig()
	if debug {
		cfg.Level = log.DebugLevel
	} else if quiet {
		cfg.Level = log.ErrorLevel
	}
	return log.NewWithConfig(cfg)
}
