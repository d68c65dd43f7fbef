package battle

import (
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/google/uuid"
	"github.com/retroenv/retrogolib/log"
	"github.com/wnxd/battlecam/camera"
	"github.com/wnxd/battlecam/channel"
	"github.com/wnxd/battlecam/foreign"
	"github.com/wnxd/battlecam/patch"
	"github.com/wnxd/battlecam/trampoline"
)

// doubleClickDistance is the largest cursor travel between two clicks that
// still counts as a double click.
const doubleClickDistance = 10

// Settings is the per-tick view of the configuration.
type Settings struct {
	CustomCamera  bool
	ForceTotalWar bool
	Tuning        camera.Tuning
	// PanningDelay is how long the foreign code keeps the camera after a
	// double click that produced no teleport.
	PanningDelay time.Duration
}

// Frame is everything sampled by the controller for one tick.
type Frame struct {
	Now      time.Time
	Input    camera.Input
	Cursor   image.Point
	Click    bool
	Settings Settings
	// DoubleClickTime is the system double click interval.
	DoubleClickTime time.Duration
}

// Session is one battle. It owns both patch groups, the trampoline region,
// the channel the trampolines write into and the camera model.
type Session struct {
	id      uuid.UUID
	logger  *log.Logger
	mem     foreign.Memory
	layout  Layout
	channel *channel.Channel
	general *patch.Patcher
	special *patch.Patcher
	block   *trampoline.Block
	states  *StateMachine
	model   camera.Model

	cursor    image.Point
	lastClick time.Time
	panning   bool
	pausedAt  time.Time
}

// NewSession installs every patch of layout, all disabled, and syncs the
// camera model from the foreign camera. Nothing is left behind on error.
func NewSession(logger *log.Logger, mem foreign.Memory, layout Layout, f Frame) (*Session, error) {
	s := &Session{
		id:        uuid.New(),
		logger:    logger,
		mem:       mem,
		layout:    layout,
		channel:   channel.New(),
		general:   patch.New(logger, mem, "general"),
		special:   patch.New(logger, mem, "special"),
		cursor:    f.Cursor,
		lastClick: f.Now,
	}
	s.states = NewStateMachine(s.general, s.special)

	if err := s.install(); err != nil {
		return nil, errors.Join(err, s.release())
	}
	if err := s.sync(); err != nil {
		return nil, errors.Join(err, s.release())
	}
	s.logger.Info("Battle session started",
		log.String("session", s.id.String()),
		log.Int("general", len(s.general.Patches())),
		log.Int("special", len(s.special.Patches())))
	s.logger.Debug("Channel bound", log.Stringer("channel", s.channel))
	return s, nil
}

func (s *Session) install() error {
	if err := s.layout.Validate(); err != nil {
		return err
	}
	if err := s.channel.Bind(s.mem); err != nil {
		return err
	}

	for _, addr := range s.layout.Patches {
		n, err := patch.DetectLength(s.mem, addr)
		if err != nil {
			return err
		}
		if _, err = s.general.Install(addr, trampoline.Nops(n)); err != nil {
			return err
		}
	}
	for _, r := range s.layout.RemoteStores {
		store, err := trampoline.RemoteStore(r.Addr, s.channel.GroundAddr(), r.Reg)
		if err != nil {
			return err
		}
		if err = store.Install(s.general); err != nil {
			return err
		}
	}

	block, err := trampoline.Place(s.mem, trampoline.Teleport(s.layout.Teleport, s.channel.TeleportAddr()))
	if err != nil {
		return fmt.Errorf("building teleport intercept: %w", err)
	}
	s.block = block
	for _, p := range block.Patches {
		if err = p.Install(s.special); err != nil {
			return err
		}
	}
	view := trampoline.Overwrite(s.layout.TargetView, trampoline.Nops(s.layout.TargetViewLen))
	return view.Install(s.special)
}

// release undoes install. Code that could still jump into the trampoline
// region or store into the channel keeps both alive.
func (s *Session) release() error {
	restored := errors.Join(s.states.ChangeState(NotApplied), s.general.Close(), s.special.Close())
	if restored != nil {
		s.logger.Error("Patches not restored, leaking trampolines and channel",
			log.String("session", s.id.String()), log.Err(restored))
		return restored
	}
	var err error
	if s.block != nil {
		err = s.block.Free(s.mem)
		s.block = nil
	}
	return errors.Join(err, s.channel.Release())
}

func (s *Session) ID() uuid.UUID {
	return s.id
}

func (s *Session) State() PatchState {
	return s.states.State()
}

func (s *Session) Channel() *channel.Channel {
	return s.channel
}

func (s *Session) Model() camera.Model {
	return s.model
}

// Close hands the camera back and releases everything the session owns:
// patches first, then the trampoline region, then the channel.
func (s *Session) Close() error {
	err := s.release()
	s.logger.Info("Battle session ended", log.String("session", s.id.String()))
	return err
}

// SetCustomCamera drops every patch when the custom camera is turned off,
// abandoning any pan in progress. Turning it on waits for the next camera
// input.
func (s *Session) SetCustomCamera(enabled bool) error {
	if enabled {
		return nil
	}
	s.panning = false
	return s.states.ChangeState(NotApplied)
}

// Tick runs one controller tick against the foreign camera.
func (s *Session) Tick(f Frame) error {
	if f.Settings.ForceTotalWar {
		if err := patch.Write(s.mem, s.layout.CameraType, camera.TotalWar); err != nil {
			return err
		}
	}
	in := f.Input
	if in.Look {
		in.CursorDX = int32(f.Cursor.X - s.cursor.X)
		in.CursorDY = int32(f.Cursor.Y - s.cursor.Y)
	}

	var err error
	if f.Settings.CustomCamera {
		err = s.tickCustom(f, in)
	} else {
		err = s.tickLook(f, in)
	}
	s.cursor = f.Cursor
	return err
}

// tickLook only turns the foreign camera; its position stays with the
// foreign code.
func (s *Session) tickLook(f Frame, in camera.Input) error {
	cam, target, err := s.readCamera()
	if err != nil {
		return err
	}
	var acc camera.Axes
	if in.Look {
		acc.Pitch, acc.Yaw = camera.Look(in.CursorDX, in.CursorDY, f.Settings.Tuning)
	}
	target = s.model.Turn(cam, target, acc, f.Settings.Tuning)
	return patch.Write(s.mem, s.layout.Target, target)
}

func (s *Session) tickCustom(f Frame, in camera.Input) error {
	t := f.Settings.Tuning
	cam, err := patch.Read[camera.Point](s.mem, s.layout.Camera)
	if err != nil {
		return err
	}
	if s.model.Diverged(cam) {
		if err = s.sync(); err != nil {
			return err
		}
	}

	horizontal, vertical := camera.SpeedMultipliers(t, in.Fast, in.Slow)
	s.model.Velocity.Z += camera.ScrollVelocity(in.Scroll, t.InvertedScroll, vertical)

	if f.Click && s.doubleClick(f) {
		if err = s.pause(f.Now); err != nil {
			return err
		}
	}
	if err = s.teleport(f); err != nil {
		return err
	}

	acc, control := camera.Accelerate(in, s.model.Pose.Yaw, t)
	if control {
		if err = s.resume(); err != nil {
			return err
		}
	}
	s.model.Step(acc, horizontal, vertical, t)

	ground, err := s.groundLevel()
	if err != nil {
		return err
	}
	s.model.Restrict(ground, t)

	if s.states.State() != Applied {
		return s.sync()
	}
	if err = patch.Write(s.mem, s.layout.Camera, s.model.Camera()); err != nil {
		return err
	}
	return patch.Write(s.mem, s.layout.Target, s.model.Target())
}

func (s *Session) doubleClick(f Frame) bool {
	since := f.Now.Sub(s.lastClick)
	s.lastClick = f.Now
	d := f.Cursor.Sub(s.cursor)
	return since < f.DoubleClickTime &&
		max(d.X, -d.X) < doubleClickDistance &&
		max(d.Y, -d.Y) < doubleClickDistance
}

// pause lets the foreign code pan to whatever was double clicked.
func (s *Session) pause(now time.Time) error {
	if err := s.states.ChangeState(SpecialOnlyApplied); err != nil {
		return err
	}
	s.panning = true
	s.pausedAt = now
	s.logger.Debug("Camera handed back for panning", log.String("session", s.id.String()))
	return nil
}

func (s *Session) resume() error {
	s.panning = false
	return s.states.ChangeState(Applied)
}

// teleport moves the model to a captured unit card teleport and takes the
// camera back at once, even mid pan. Without a command a pan hands the camera
// back after PanningDelay.
func (s *Session) teleport(f Frame) error {
	cmd, ok := s.channel.Teleport.Consume()
	if ok {
		s.model.Sync(
			camera.Point{X: cmd.X, Z: cmd.Z, Y: cmd.Y},
			camera.Point{X: cmd.TargetX, Z: cmd.TargetZ, Y: cmd.TargetY})
		s.model.Velocity = camera.Axes{}
		s.channel.Ground.Store(cmd.Z)
		s.logger.Debug("Teleport command consumed",
			log.String("session", s.id.String()),
			log.String("command", fmt.Sprintf("%+v", cmd)))
		return s.resume()
	}
	if s.panning && f.Now.Sub(s.pausedAt) >= f.Settings.PanningDelay {
		return s.resume()
	}
	return nil
}

func (s *Session) readCamera() (camera.Point, camera.Point, error) {
	cam, err := patch.Read[camera.Point](s.mem, s.layout.Camera)
	if err != nil {
		return cam, camera.Point{}, err
	}
	target, err := patch.Read[camera.Point](s.mem, s.layout.Target)
	return cam, target, err
}

// sync follows the foreign camera and reseeds the ground cell with its
// height.
func (s *Session) sync() error {
	cam, target, err := s.readCamera()
	if err != nil {
		return err
	}
	s.model.Sync(cam, target)
	s.channel.Ground.Store(cam.Z)
	return nil
}

// groundLevel derives the ground height from the last camera height the
// foreign code stored and its own camera-to-ground offset. Both may be a
// frame stale.
func (s *Session) groundLevel() (float32, error) {
	delta, err := patch.Read[float32](s.mem, s.layout.GroundDelta)
	if err != nil {
		return 0, err
	}
	return s.channel.Ground.Load() - delta, nil
}
