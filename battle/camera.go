package battle

import (
	"github.com/retroenv/retrogolib/log"
	"github.com/wnxd/battlecam/foreign"
	"github.com/wnxd/battlecam/patch"
)

// Camera follows the foreign battle flag: outside a battle it holds no
// session, inside it owns exactly one.
type Camera struct {
	logger  *log.Logger
	mem     foreign.Memory
	layout  Layout
	session *Session
}

func NewCamera(logger *log.Logger, mem foreign.Memory, layout Layout) *Camera {
	return &Camera{
		logger: logger,
		mem:    mem,
		layout: layout,
	}
}

// SetLayout replaces the layout used by the next session.
func (c *Camera) SetLayout(layout Layout) {
	c.layout = layout
}

func (c *Camera) InEpisode() bool {
	return c.session != nil
}

func (c *Camera) Session() *Session {
	return c.session
}

// Run polls the battle flag once and performs the matching transition or
// tick. A session that fails to build is retried on the next call.
func (c *Camera) Run(f Frame) error {
	flag, err := patch.Read[uint32](c.mem, c.layout.Battle)
	if err != nil {
		return err
	}
	inBattle := flag != 0

	switch {
	case c.session == nil && inBattle:
		s, err := NewSession(c.logger, c.mem, c.layout, f)
		if err != nil {
			return err
		}
		c.session = s
	case c.session != nil && inBattle:
		return c.session.Tick(f)
	case c.session != nil && !inBattle:
		return c.Close()
	}
	return nil
}

// SetCustomCamera forwards a configuration change to the running session.
func (c *Camera) SetCustomCamera(enabled bool) error {
	if c.session == nil {
		return nil
	}
	return c.session.SetCustomCamera(enabled)
}

// Close ends the running session, if any.
func (c *Camera) Close() error {
	if c.session == nil {
		return nil
	}
	s := c.session
	c.session = nil
	return s.Close()
}
