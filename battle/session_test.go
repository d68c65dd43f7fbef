package battle

import (
	"bytes"
	"errors"
	"image"
	"testing"
	"time"

	"github.com/retroenv/retrogolib/assert"
	"github.com/retroenv/retrogolib/log"
	"github.com/wnxd/battlecam/camera"
	"github.com/wnxd/battlecam/channel"
	"github.com/wnxd/battlecam/foreign"
	"github.com/wnxd/battlecam/internal/x86"
	"github.com/wnxd/battlecam/patch"
)

const codePage = 0x8F8000

var testLayout = Layout{
	Battle:      0x0193D683,
	CameraType:  0x01639F14,
	Camera:      0x0193D598,
	Target:      0x0193D5DC,
	GroundDelta: 0x0193F364,
	Patches:     []uint64{0x8F8C6C, 0x8F8C71, 0x8F8C76, 0x8F8E10},
	RemoteStores: []RemoteStore{
		{Addr: 0x8F8C6C, Reg: x86.XMM1},
	},
	Teleport:      0x8F8E8B,
	TargetView:    0x8F8EB7,
	TargetViewLen: 17,
}

var (
	startCamera = camera.Point{X: 100, Z: 50, Y: 200}
	startTarget = camera.LookAt(startCamera, -0.3, 0.5)
)

var settings = Settings{
	CustomCamera: true,
	Tuning: camera.Tuning{
		Sensitivity:         1,
		PanSmoothing:        0.8,
		HorizontalSmoothing: 0.9,
		VerticalSmoothing:   0.9,
		HorizontalSpeed:     2,
		VerticalSpeed:       2,
		FastMultiplier:      3,
		SlowMultiplier:      0.5,
	},
	PanningDelay: 500 * time.Millisecond,
}

type world struct {
	mem  *foreign.Buffer
	code []byte
	now  time.Time
}

func newWorld(t *testing.T) *world {
	t.Helper()
	mem := foreign.NewBuffer(0x1000)
	code := bytes.Repeat([]byte{0x89}, 0x1000)
	for _, addr := range []uint64{0x8F8C6C, 0x8F8C71, 0x8F8C76} {
		code[addr-codePage] = 0xF3
	}
	assert.NoError(t, mem.Map(codePage, 0x1000, foreign.MEM_PROT_READ|foreign.MEM_PROT_WRITE))
	assert.NoError(t, mem.MemWrite(codePage, code))
	_, err := mem.MemProtect(codePage, 0x1000, foreign.MEM_PROT_READ|foreign.MEM_PROT_EXEC)
	assert.NoError(t, err)

	assert.NoError(t, mem.Map(0x01639000, 0x1000, foreign.MEM_PROT_READ|foreign.MEM_PROT_WRITE))
	assert.NoError(t, mem.Map(0x0193D000, 0x3000, foreign.MEM_PROT_READ|foreign.MEM_PROT_WRITE))
	assert.NoError(t, patch.Write(mem, testLayout.Camera, startCamera))
	assert.NoError(t, patch.Write(mem, testLayout.Target, startTarget))
	assert.NoError(t, patch.Write(mem, testLayout.CameraType, camera.RTS))
	assert.NoError(t, patch.Write(mem, testLayout.GroundDelta, float32(20)))

	return &world{mem: mem, code: code, now: time.Unix(1000, 0)}
}

func (w *world) frame(in camera.Input) Frame {
	w.now = w.now.Add(7 * time.Millisecond)
	return Frame{
		Now:             w.now,
		Input:           in,
		Cursor:          image.Point{X: 640, Y: 360},
		Settings:        settings,
		DoubleClickTime: 500 * time.Millisecond,
	}
}

func (w *world) readCode(t *testing.T, addr uint64, n int) []byte {
	t.Helper()
	data, err := w.mem.MemRead(addr, uint64(n))
	assert.NoError(t, err)
	return data
}

func (w *world) camera(t *testing.T) camera.Point {
	t.Helper()
	cam, err := patch.Read[camera.Point](w.mem, testLayout.Camera)
	assert.NoError(t, err)
	return cam
}

func (w *world) codeUnchanged(t *testing.T) {
	t.Helper()
	assert.Equal(t, w.code, w.readCode(t, codePage, len(w.code)))
}

func newTestSession(t *testing.T, w *world) *Session {
	t.Helper()
	s, err := NewSession(log.NewTestLogger(t), w.mem, testLayout, w.frame(camera.Input{}))
	assert.NoError(t, err)
	return s
}

func TestSessionStartsDisabled(t *testing.T) {
	w := newWorld(t)
	s := newTestSession(t, w)

	assert.Equal(t, NotApplied, s.State())
	w.codeUnchanged(t)
	assert.Len(t, s.general.Patches(), 5)
	assert.Len(t, s.special.Patches(), 2)
	assert.Len(t, w.mem.Allocations(), 1)
	assert.Equal(t, 2, w.mem.Bindings())

	assert.False(t, s.model.Diverged(startCamera))
	assert.Equal(t, startCamera.Z, s.Channel().Ground.Load())
}

func TestSessionTakesControlOnInput(t *testing.T) {
	w := newWorld(t)
	s := newTestSession(t, w)

	assert.NoError(t, s.Tick(w.frame(camera.Input{Forward: true})))
	assert.Equal(t, Applied, s.State())

	// nops and the remote store are live
	site := w.readCode(t, 0x8F8C6C, 15)
	assert.Equal(t, []byte{0x52, 0xBA}, site[:2])
	assert.Equal(t, []byte{0xF3, 0x0F, 0x11, 0x0A, 0x5A, 0x90, 0x90, 0x90, 0x90}, site[6:])
	assert.Equal(t, []byte{0x90, 0x90, 0x90}, w.readCode(t, 0x8F8E10, 3))
	assert.Equal(t, byte(0x53), w.readCode(t, testLayout.Teleport, 1)[0])

	cam := w.camera(t)
	assert.True(t, cam.X > startCamera.X)
	assert.True(t, cam.Y > startCamera.Y)
	assert.Equal(t, s.model.Camera(), cam)

	target, err := patch.Read[camera.Point](w.mem, testLayout.Target)
	assert.NoError(t, err)
	assert.Equal(t, s.model.Target(), target)
}

func TestSessionFollowsForeignCameraWhenIdle(t *testing.T) {
	w := newWorld(t)
	s := newTestSession(t, w)

	moved := camera.Point{X: -10, Z: 70, Y: 30}
	assert.NoError(t, patch.Write(w.mem, testLayout.Camera, moved))
	assert.NoError(t, s.Tick(w.frame(camera.Input{})))

	assert.Equal(t, NotApplied, s.State())
	assert.Equal(t, moved, s.model.Camera())
	assert.Equal(t, moved, w.camera(t))
}

func TestSessionDoubleClickTeleport(t *testing.T) {
	w := newWorld(t)
	s := newTestSession(t, w)
	assert.NoError(t, s.Tick(w.frame(camera.Input{Forward: true})))

	w.now = w.now.Add(time.Second)
	click := w.frame(camera.Input{})
	click.Click = true
	assert.NoError(t, s.Tick(click))
	assert.Equal(t, Applied, s.State())

	click = w.frame(camera.Input{})
	click.Click = true
	assert.NoError(t, s.Tick(click))
	assert.Equal(t, SpecialOnlyApplied, s.State())
	// the game owns the camera stores again, the intercept stays
	assert.Equal(t, w.code[0xE10:0xE13], w.readCode(t, 0x8F8E10, 3))
	assert.Equal(t, byte(0x53), w.readCode(t, testLayout.Teleport, 1)[0])

	cmd := channel.TeleportCommand{X: 300, Z: 80, Y: -400, TargetX: 310, TargetZ: 60, TargetY: -390}
	assert.NoError(t, patch.Write(w.mem, s.Channel().TeleportAddr(), cmd))
	f := w.frame(camera.Input{})
	assert.True(t, f.Now.Sub(s.pausedAt) < settings.PanningDelay)
	assert.NoError(t, s.Tick(f))

	// a command ends the pan without waiting for the delay
	assert.Equal(t, Applied, s.State())
	assert.False(t, s.panning)
	assert.False(t, s.Channel().Teleport.Available())
	assert.Equal(t, camera.Point{X: 300, Z: 80, Y: -400}, w.camera(t))
}

func TestSessionPanningTimeout(t *testing.T) {
	w := newWorld(t)
	s := newTestSession(t, w)
	assert.NoError(t, s.Tick(w.frame(camera.Input{Forward: true})))

	w.now = w.now.Add(time.Second)
	for range 2 {
		click := w.frame(camera.Input{})
		click.Click = true
		assert.NoError(t, s.Tick(click))
	}
	assert.Equal(t, SpecialOnlyApplied, s.State())

	assert.NoError(t, s.Tick(w.frame(camera.Input{})))
	assert.Equal(t, SpecialOnlyApplied, s.State())

	w.now = w.now.Add(settings.PanningDelay)
	assert.NoError(t, s.Tick(w.frame(camera.Input{})))
	assert.Equal(t, Applied, s.State())
}

func TestSessionSlowClicksKeepControl(t *testing.T) {
	w := newWorld(t)
	s := newTestSession(t, w)
	assert.NoError(t, s.Tick(w.frame(camera.Input{Forward: true})))

	for range 2 {
		w.now = w.now.Add(time.Second)
		click := w.frame(camera.Input{})
		click.Click = true
		assert.NoError(t, s.Tick(click))
	}
	assert.Equal(t, Applied, s.State())
}

func TestSessionLookOnly(t *testing.T) {
	w := newWorld(t)
	s := newTestSession(t, w)

	f := w.frame(camera.Input{Look: true})
	f.Settings.CustomCamera = false
	f.Cursor.X += 50
	assert.NoError(t, s.Tick(f))

	assert.Equal(t, NotApplied, s.State())
	assert.Equal(t, startCamera, w.camera(t))
	target, err := patch.Read[camera.Point](w.mem, testLayout.Target)
	assert.NoError(t, err)
	assert.True(t, startTarget != target)
	w.codeUnchanged(t)
}

func TestSessionForceTotalWar(t *testing.T) {
	w := newWorld(t)
	s := newTestSession(t, w)

	f := w.frame(camera.Input{})
	f.Settings.ForceTotalWar = true
	assert.NoError(t, s.Tick(f))

	typ, err := patch.Read[camera.Type](w.mem, testLayout.CameraType)
	assert.NoError(t, err)
	assert.Equal(t, camera.TotalWar, typ)
}

func TestSessionCloseRestoresEverything(t *testing.T) {
	w := newWorld(t)
	s := newTestSession(t, w)
	assert.NoError(t, s.Tick(w.frame(camera.Input{Forward: true})))
	assert.Equal(t, Applied, s.State())

	assert.NoError(t, s.Close())
	w.codeUnchanged(t)
	assert.Empty(t, w.mem.Allocations())
	assert.Equal(t, 0, w.mem.Bindings())
	assert.Equal(t, NotApplied, s.State())
}

func TestSessionSetCustomCamera(t *testing.T) {
	w := newWorld(t)
	s := newTestSession(t, w)
	assert.NoError(t, s.Tick(w.frame(camera.Input{Forward: true})))

	assert.NoError(t, s.SetCustomCamera(true))
	assert.Equal(t, Applied, s.State())
	assert.NoError(t, s.SetCustomCamera(false))
	assert.Equal(t, NotApplied, s.State())
	w.codeUnchanged(t)
}

func TestSessionDisableAbandonsPan(t *testing.T) {
	w := newWorld(t)
	s := newTestSession(t, w)
	assert.NoError(t, s.Tick(w.frame(camera.Input{Forward: true})))

	w.now = w.now.Add(time.Second)
	for range 2 {
		click := w.frame(camera.Input{})
		click.Click = true
		assert.NoError(t, s.Tick(click))
	}
	assert.Equal(t, SpecialOnlyApplied, s.State())

	assert.NoError(t, s.SetCustomCamera(false))
	assert.Equal(t, NotApplied, s.State())
	w.codeUnchanged(t)

	w.now = w.now.Add(2 * settings.PanningDelay)
	assert.NoError(t, s.SetCustomCamera(true))
	assert.NoError(t, s.Tick(w.frame(camera.Input{})))
	assert.Equal(t, NotApplied, s.State())
	w.codeUnchanged(t)
}

var errProtect = errors.New("protect denied")

type memOp struct {
	name string
	addr uint64
}

// recordingMemory logs the calls that change foreign code or ownership.
type recordingMemory struct {
	*foreign.Buffer
	ops         []memOp
	failProtect bool
}

func (m *recordingMemory) record(name string, addr uint64) {
	m.ops = append(m.ops, memOp{name: name, addr: addr})
}

func (m *recordingMemory) MemWrite(addr uint64, data []byte) error {
	m.record("write", addr)
	return m.Buffer.MemWrite(addr, data)
}

func (m *recordingMemory) MemProtect(addr, size uint64, prot foreign.MemProt) (foreign.MemProt, error) {
	m.record("protect", addr)
	if m.failProtect {
		return 0, errProtect
	}
	return m.Buffer.MemProtect(addr, size, prot)
}

func (m *recordingMemory) MemFree(region foreign.MemRegion) error {
	m.record("free", region.Addr)
	return m.Buffer.MemFree(region)
}

func (m *recordingMemory) MemUnbind(addr uint64) error {
	m.record("unbind", addr)
	return m.Buffer.MemUnbind(addr)
}

func (m *recordingMemory) indexes(name string) []int {
	var idx []int
	for i, op := range m.ops {
		if op.name == name && (name != "write" || (op.addr >= codePage && op.addr < codePage+0x1000)) {
			idx = append(idx, i)
		}
	}
	return idx
}

func TestSessionCloseOrder(t *testing.T) {
	w := newWorld(t)
	mem := &recordingMemory{Buffer: w.mem}
	s, err := NewSession(log.NewTestLogger(t), mem, testLayout, w.frame(camera.Input{}))
	assert.NoError(t, err)
	assert.NoError(t, s.Tick(w.frame(camera.Input{Forward: true})))
	assert.Equal(t, Applied, s.State())

	mem.ops = nil
	assert.NoError(t, s.Close())
	w.codeUnchanged(t)

	restores := mem.indexes("write")
	frees := mem.indexes("free")
	unbinds := mem.indexes("unbind")
	assert.Len(t, restores, 7)
	assert.Len(t, frees, 1)
	assert.Len(t, unbinds, 2)
	assert.True(t, restores[len(restores)-1] < frees[0])
	assert.True(t, frees[0] < unbinds[0])
}

func TestSessionCloseKeepsResourcesWhenRestoreFails(t *testing.T) {
	w := newWorld(t)
	mem := &recordingMemory{Buffer: w.mem}
	// The failed restore is logged at Error, which NewTestLogger fails on.
	s, err := NewSession(log.NewNop(), mem, testLayout, w.frame(camera.Input{}))
	assert.NoError(t, err)
	assert.NoError(t, s.Tick(w.frame(camera.Input{Forward: true})))

	mem.ops = nil
	mem.failProtect = true
	err = s.Close()
	assert.True(t, errors.Is(err, errProtect))
	assert.Empty(t, mem.indexes("free"))
	assert.Empty(t, mem.indexes("unbind"))
	assert.Len(t, w.mem.Allocations(), 1)
	assert.Equal(t, 2, w.mem.Bindings())

	mem.failProtect = false
	assert.NoError(t, s.Close())
	w.codeUnchanged(t)
	assert.Empty(t, w.mem.Allocations())
	assert.Equal(t, 0, w.mem.Bindings())
}

func TestNewSessionFailureReleases(t *testing.T) {
	w := newWorld(t)
	layout := testLayout
	layout.TargetView = 0x500000

	_, err := NewSession(log.NewTestLogger(t), w.mem, layout, w.frame(camera.Input{}))
	assert.True(t, errors.Is(err, foreign.ErrAddressNotMapped))
	w.codeUnchanged(t)
	assert.Empty(t, w.mem.Allocations())
	assert.Equal(t, 0, w.mem.Bindings())

	layout.Patches = nil
	_, err = NewSession(log.NewTestLogger(t), w.mem, layout, w.frame(camera.Input{}))
	assert.ErrorContains(t, err, "no patch locations")
}

func TestDefaultLayoutInstalls(t *testing.T) {
	layout := DefaultLayout()
	assert.NoError(t, layout.Validate())
	assert.Len(t, layout.Patches, 63)

	mem := foreign.NewBuffer(0x1000)
	sites := append([]uint64{layout.Teleport, layout.TargetView}, layout.Patches...)
	for _, addr := range sites {
		assert.NoError(t, mem.Map(addr, 32, foreign.MEM_PROT_READ|foreign.MEM_PROT_EXEC))
	}
	assert.NoError(t, mem.Map(layout.CameraType, 4, foreign.MEM_PROT_READ|foreign.MEM_PROT_WRITE))
	assert.NoError(t, mem.Map(layout.Camera, 0x2000, foreign.MEM_PROT_READ|foreign.MEM_PROT_WRITE))

	s, err := NewSession(log.NewTestLogger(t), mem, layout, Frame{})
	assert.NoError(t, err)
	assert.Len(t, s.general.Patches(), 65)
	assert.Len(t, s.special.Patches(), 2)

	assert.NoError(t, s.states.ChangeState(Applied))
	assert.NoError(t, s.Close())
	for _, addr := range sites {
		data, err := mem.MemRead(addr, 3)
		assert.NoError(t, err)
		assert.Equal(t, []byte{0, 0, 0}, data)
	}
}

func TestCameraEpisodes(t *testing.T) {
	w := newWorld(t)
	c := NewCamera(log.NewTestLogger(t), w.mem, testLayout)

	assert.NoError(t, c.Run(w.frame(camera.Input{})))
	assert.False(t, c.InEpisode())

	assert.NoError(t, patch.Write(w.mem, testLayout.Battle, uint32(1)))
	assert.NoError(t, c.Run(w.frame(camera.Input{})))
	assert.True(t, c.InEpisode())
	first := c.Session().ID()

	assert.NoError(t, c.Run(w.frame(camera.Input{Forward: true})))
	assert.Equal(t, Applied, c.Session().State())
	assert.NoError(t, c.SetCustomCamera(false))
	assert.Equal(t, NotApplied, c.Session().State())

	assert.NoError(t, patch.Write(w.mem, testLayout.Battle, uint32(0)))
	assert.NoError(t, c.Run(w.frame(camera.Input{})))
	assert.False(t, c.InEpisode())
	w.codeUnchanged(t)
	assert.Empty(t, w.mem.Allocations())

	assert.NoError(t, patch.Write(w.mem, testLayout.Battle, uint32(1)))
	assert.NoError(t, c.Run(w.frame(camera.Input{})))
	assert.True(t, c.InEpisode())
	assert.True(t, first != c.Session().ID())
	assert.NoError(t, c.Close())
	assert.False(t, c.InEpisode())
}

func TestCameraRetriesFailedSession(t *testing.T) {
	w := newWorld(t)
	broken := testLayout
	broken.Teleport = 0x1_0000_0000
	c := NewCamera(log.NewTestLogger(t), w.mem, broken)
	assert.NoError(t, patch.Write(w.mem, testLayout.Battle, uint32(1)))

	assert.Error(t, c.Run(w.frame(camera.Input{})))
	assert.False(t, c.InEpisode())

	c.SetLayout(testLayout)
	assert.NoError(t, c.Run(w.frame(camera.Input{})))
	assert.True(t, c.InEpisode())
	assert.NoError(t, c.Close())
}
