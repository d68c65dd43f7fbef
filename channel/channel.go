// Package channel holds the cells foreign code writes into while the
// controller reads them.
//
// Foreign code takes part in no protocol: it stores plain 32-bit words
// whenever it runs the patched instructions. The only guarantee is that a
// single aligned word is never torn. A command spanning several words can be
// observed half written; availability is inferred from the values alone.
package channel

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync/atomic"
	"unsafe"

	"github.com/wnxd/battlecam/foreign"
)

// RemoteFloat is a telemetry cell holding the raw bits of a float32.
type RemoteFloat struct {
	bits atomic.Uint32
}

func (r *RemoteFloat) Store(f float32) {
	r.bits.Store(math.Float32bits(f))
}

func (r *RemoteFloat) Load() float32 {
	return math.Float32frombits(r.bits.Load())
}

func (r *RemoteFloat) StoreBits(b uint32) {
	r.bits.Store(b)
}

func (r *RemoteFloat) LoadBits() uint32 {
	return r.bits.Load()
}

// TeleportCommand is a camera move requested by the foreign code, in the
// foreign field order.
type TeleportCommand struct {
	X, Z, Y                   float32
	TargetX, TargetZ, TargetY float32
}

// Available reports whether every field is set. A command at the world
// origin looks exactly like no command at all.
func (c TeleportCommand) Available() bool {
	return c.X != 0 && c.Z != 0 && c.Y != 0 &&
		c.TargetX != 0 && c.TargetZ != 0 && c.TargetY != 0
}

const commandFields = 6

// CommandCell is the storage a teleport trampoline copies six words into.
type CommandCell struct {
	fields [commandFields]atomic.Uint32
}

// Snapshot reads the fields one by one. It may mix two commands.
func (c *CommandCell) Snapshot() TeleportCommand {
	var v [commandFields]float32
	for i := range c.fields {
		v[i] = math.Float32frombits(c.fields[i].Load())
	}
	return TeleportCommand{v[0], v[1], v[2], v[3], v[4], v[5]}
}

func (c *CommandCell) Available() bool {
	return c.Snapshot().Available()
}

// Consume returns the pending command and zeroes the cell to arm it for the
// next one.
func (c *CommandCell) Consume() (TeleportCommand, bool) {
	cmd := c.Snapshot()
	if !cmd.Available() {
		return TeleportCommand{}, false
	}
	c.Reset()
	return cmd, true
}

func (c *CommandCell) Reset() {
	for i := range c.fields {
		c.fields[i].Store(0)
	}
}

// Store writes cmd the way the foreign code does, field by field.
func (c *CommandCell) Store(cmd TeleportCommand) {
	v := [commandFields]float32{cmd.X, cmd.Z, cmd.Y, cmd.TargetX, cmd.TargetZ, cmd.TargetY}
	for i := range c.fields {
		c.fields[i].Store(math.Float32bits(v[i]))
	}
}

// Channel is one session's set of cells. It stays pinned from New until
// Release so the addresses handed to foreign code remain valid.
type Channel struct {
	Ground   RemoteFloat
	Teleport CommandCell

	pinner       runtime.Pinner
	mem          foreign.Memory
	groundAddr   uint64
	teleportAddr uint64
}

func New() *Channel {
	c := &Channel{}
	c.pinner.Pin(c)
	return c
}

// Bind exposes both cells to mem and records the addresses foreign code
// must use.
func (c *Channel) Bind(mem foreign.Memory) error {
	if c.mem != nil {
		return fmt.Errorf("channel already bound: %w", foreign.ErrArgumentInvalid)
	}
	ground, err := mem.MemBind(unsafe.Pointer(&c.Ground), uint64(unsafe.Sizeof(c.Ground)))
	if err != nil {
		return fmt.Errorf("binding ground cell: %w", err)
	}
	teleport, err := mem.MemBind(unsafe.Pointer(&c.Teleport), uint64(unsafe.Sizeof(c.Teleport)))
	if err != nil {
		return errors.Join(fmt.Errorf("binding teleport cell: %w", err), mem.MemUnbind(ground))
	}
	c.mem = mem
	c.groundAddr = ground
	c.teleportAddr = teleport
	return nil
}

func (c *Channel) GroundAddr() uint64 {
	return c.groundAddr
}

func (c *Channel) TeleportAddr() uint64 {
	return c.teleportAddr
}

// Release withdraws the cells from foreign code and unpins them. Every
// patch referencing the cells must be disabled first.
func (c *Channel) Release() error {
	var err error
	if c.mem != nil {
		err = errors.Join(c.mem.MemUnbind(c.groundAddr), c.mem.MemUnbind(c.teleportAddr))
		c.mem = nil
		c.groundAddr, c.teleportAddr = 0, 0
	}
	c.pinner.Unpin()
	return err
}

func (c *Channel) String() string {
	return fmt.Sprintf("ground=%g@%08X teleport=%+v@%08X",
		c.Ground.Load(), c.groundAddr, c.Teleport.Snapshot(), c.teleportAddr)
}
