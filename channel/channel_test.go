package channel

import (
	"errors"
	"math"
	"sync"
	"testing"
	"unsafe"

	"github.com/retroenv/retrogolib/assert"
	"github.com/wnxd/battlecam/foreign"
	"github.com/wnxd/battlecam/patch"
)

func TestRemoteFloatBits(t *testing.T) {
	var r RemoteFloat
	for _, b := range []uint32{0, 1, 0x7FC00001, 0xFFC00000, 0x80000000, 0x7F800000, 0x42C80000, 0xFFFFFFFF} {
		r.StoreBits(b)
		assert.Equal(t, b, r.LoadBits())
	}

	r.Store(100.5)
	assert.Equal(t, float32(100.5), r.Load())
	assert.Equal(t, math.Float32bits(100.5), r.LoadBits())
}

func TestTeleportCommandAvailable(t *testing.T) {
	full := TeleportCommand{X: 1, Z: 2, Y: 3, TargetX: 4, TargetZ: 5, TargetY: 6}
	assert.True(t, full.Available())

	fields := []func(*TeleportCommand){
		func(c *TeleportCommand) { c.X = 0 },
		func(c *TeleportCommand) { c.Z = 0 },
		func(c *TeleportCommand) { c.Y = 0 },
		func(c *TeleportCommand) { c.TargetX = 0 },
		func(c *TeleportCommand) { c.TargetZ = 0 },
		func(c *TeleportCommand) { c.TargetY = 0 },
	}
	for _, unset := range fields {
		cmd := full
		unset(&cmd)
		assert.False(t, cmd.Available())
	}
	assert.False(t, TeleportCommand{}.Available())
}

func TestCommandCellConsume(t *testing.T) {
	var cell CommandCell
	_, ok := cell.Consume()
	assert.False(t, ok)

	cmd := TeleportCommand{X: 10, Z: -2, Y: 30, TargetX: 40, TargetZ: 5, TargetY: -60}
	cell.Store(cmd)
	assert.True(t, cell.Available())

	got, ok := cell.Consume()
	assert.True(t, ok)
	assert.Equal(t, cmd, got)
	assert.False(t, cell.Available())
	assert.Equal(t, TeleportCommand{}, cell.Snapshot())

	_, ok = cell.Consume()
	assert.False(t, ok)
}

func TestCommandCellConcurrentWriter(t *testing.T) {
	var cell CommandCell
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= 1000; i++ {
			f := float32(i)
			cell.Store(TeleportCommand{f, f, f, f, f, f})
		}
	}()
	for range 1000 {
		if cmd, ok := cell.Consume(); ok {
			assert.True(t, cmd.Available())
		}
	}
	wg.Wait()
}

func TestChannelLayout(t *testing.T) {
	assert.Equal(t, uintptr(4), unsafe.Sizeof(RemoteFloat{}))
	assert.Equal(t, uintptr(24), unsafe.Sizeof(CommandCell{}))
}

func TestChannelBind(t *testing.T) {
	mem := foreign.NewBuffer(0x1000)
	c := New()
	assert.NoError(t, c.Bind(mem))
	assert.True(t, foreign.Fits32(c.GroundAddr()))
	assert.True(t, foreign.Fits32(c.TeleportAddr()))
	assert.Equal(t, 2, mem.Bindings())
	assert.True(t, errors.Is(c.Bind(mem), foreign.ErrArgumentInvalid))

	// foreign stores land in the cells
	assert.NoError(t, patch.Write(mem, c.GroundAddr(), float32(42.5)))
	assert.Equal(t, float32(42.5), c.Ground.Load())

	cmd := TeleportCommand{X: 1, Z: 2, Y: 3, TargetX: 4, TargetZ: 5, TargetY: 6}
	assert.NoError(t, patch.Write(mem, c.TeleportAddr(), cmd))
	got, ok := c.Teleport.Consume()
	assert.True(t, ok)
	assert.Equal(t, cmd, got)

	assert.Contains(t, c.String(), "ground=42.5")

	assert.NoError(t, c.Release())
	assert.Equal(t, 0, mem.Bindings())
	assert.Equal(t, uint64(0), c.GroundAddr())
}
