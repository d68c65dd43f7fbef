package trampoline

import (
	"fmt"

	"github.com/wnxd/battlecam/foreign"
	"github.com/wnxd/battlecam/internal/x86"
)

const (
	// TeleportReserved is the run of camera stores replaced at the teleport
	// site.
	TeleportReserved = 15
	// teleportTargetSlot is the stack slot holding the target pointer at the
	// teleport site.
	teleportTargetSlot = 0x0C
)

// Teleport is the redirect for the unit-card teleport: the camera position
// it is about to store is addressed by eax, the target position by the
// pointer in the third stack slot. Both land in the six fields at dest.
func Teleport(at, dest uint64) CopySpec {
	return CopySpec{
		At:       at,
		Reserved: TeleportReserved,
		Dest:     dest,
		Groups: []FieldGroup{
			{From: Source{Reg: x86.EAX}, Offset: 0, Count: 3},
			{From: Source{Reg: x86.EAX, Stack: true, Disp: teleportTargetSlot}, Offset: 3 * fieldSize, Count: 3},
		},
		Scratch: x86.ESI,
		Link:    x86.EBX,
	}
}

// RemoteStore replaces a run of nops with a store of src into the cell at
// cellAddr. It needs no trampoline.
func RemoteStore(at, cellAddr uint64, src x86.XMM) (*DynamicPatch, error) {
	if !foreign.Fits32(cellAddr) {
		return nil, fmt.Errorf("%w: cell %X", ErrAddressRange, cellAddr)
	}
	var a x86.Assembler
	a.Push(x86.EDX)
	a.MovImm(x86.EDX, uint32(cellAddr))
	a.MovssStore(x86.EDX, src)
	a.Pop(x86.EDX)
	code, err := a.Bytes()
	if err != nil {
		return nil, err
	}
	return Overwrite(at, code), nil
}
