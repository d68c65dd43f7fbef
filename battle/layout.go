package battle

import (
	"errors"
	"fmt"
	"slices"

	"github.com/wnxd/battlecam/internal/x86"
)

// RemoteStore is a nopped camera store replaced by a store into the ground
// cell. Reg is the xmm register holding the height at that site.
type RemoteStore struct {
	Addr uint64
	Reg  x86.XMM
}

// Layout names every foreign address a session touches. It is a property of
// one build of the foreign binary and is not verified against it.
type Layout struct {
	// Battle holds a non-zero word while a battle runs.
	Battle      uint64
	CameraType  uint64
	Camera      uint64
	Target      uint64
	GroundDelta uint64

	// Patches are the camera and target stores suppressed while the
	// controller owns the camera.
	Patches       []uint64
	RemoteStores  []RemoteStore
	Teleport      uint64
	TargetView    uint64
	TargetViewLen int
}

// Camera store sites of the Steam build, by coordinate. Sites used by the
// unit panning are left out so double click panning keeps working.
var (
	cameraX = []uint64{0x008F8E10, 0x008F8B50, 0x00E7EF6A, 0x0094FCDC, 0x008FAC69, 0x008F8C6C, 0x008F9439, 0x008F6F29, 0x0095B3B0, 0x0094E996, 0x008F9050}
	cameraY = []uint64{0x008F8E1C, 0x008F8B5C, 0x00E7EF7F, 0x0094FCE5, 0x008FAC72, 0x008F8C76, 0x008F9443, 0x008F6F39, 0x0095B3BB, 0x0094E9DF, 0x008F905A}
	cameraZ = []uint64{0x008F8E16, 0x008F8B56, 0x00E7EF74, 0x0094FCE0, 0x0094FD2D, 0x008FAC6D, 0x008F8C71, 0x008F943E, 0x008F6F2F, 0x008F9011}
	targetX = []uint64{0x008F8B78, 0x008F8E38, 0x00E7EF91, 0x008F6F5F, 0x0094FB90, 0x008F8CB6, 0x008F9480, 0x008F7056, 0x008FAC5B}
	targetY = []uint64{0x008F8B84, 0x008F8E44, 0x00E7EFA6, 0x008F6F6B, 0x0094FB9B, 0x008F8CC0, 0x008F948A, 0x008F7060, 0x008FAC63}
	targetZ = []uint64{0x008F8B7E, 0x008F8E3E, 0x00E7EF9B, 0x008F6F65, 0x0094FB95, 0x0094FBCE, 0x0094FDCD, 0x008F8CBB, 0x008F9485, 0x008F705B, 0x008FAC4E, 0x0094E9BC, 0x008F9055}
)

// DefaultLayout is the layout of the Steam build.
func DefaultLayout() Layout {
	return Layout{
		Battle:      0x0193D683,
		CameraType:  0x01639F14,
		Camera:      0x0193D598,
		Target:      0x0193D5DC,
		GroundDelta: 0x0193F364,
		Patches:     slices.Concat(cameraX, cameraY, cameraZ, targetX, targetY, targetZ),
		RemoteStores: []RemoteStore{
			{Addr: 0x008F8C6C, Reg: x86.XMM1},
			{Addr: 0x008F9439, Reg: x86.XMM0},
		},
		Teleport:      0x008F8E8B,
		TargetView:    0x008F8EB7,
		TargetViewLen: 17,
	}
}

var errLayout = errors.New("invalid layout")

func (l Layout) Validate() error {
	var errs []error
	named := []struct {
		name string
		addr uint64
	}{
		{"battle", l.Battle},
		{"camera type", l.CameraType},
		{"camera", l.Camera},
		{"target", l.Target},
		{"ground delta", l.GroundDelta},
		{"teleport", l.Teleport},
		{"target view", l.TargetView},
	}
	for _, n := range named {
		if n.addr == 0 {
			errs = append(errs, fmt.Errorf("%w: %s address missing", errLayout, n.name))
		}
	}
	if len(l.Patches) == 0 {
		errs = append(errs, fmt.Errorf("%w: no patch locations", errLayout))
	}
	if l.TargetViewLen <= 0 {
		errs = append(errs, fmt.Errorf("%w: target view length %d", errLayout, l.TargetViewLen))
	}
	for _, r := range l.RemoteStores {
		if r.Reg > x86.XMM7 {
			errs = append(errs, fmt.Errorf("%w: remote store %08X uses %v", errLayout, r.Addr, r.Reg))
		}
	}
	return errors.Join(errs...)
}
