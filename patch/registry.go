package patch

import (
	"slices"

	"github.com/retroenv/retrogolib/log"
	"github.com/wnxd/battlecam/foreign"
)

// Registry is the contract the rest of the controller relies on: installs
// start disabled, and enable/disable cycles may run any number of times in
// any order without losing the captured original bytes.
type Registry interface {
	Install(addr uint64, data []byte) (*Patch, error)
	EnableAll() error
	DisableAll() error
	Memory() foreign.Memory
}

// Patcher is one group of patches sharing an enable/disable lifecycle.
// Patches may overlap; later installs layer over earlier ones and DisableAll
// unwinds in reverse install order so the originals always win.
type Patcher struct {
	logger  *log.Logger
	mem     foreign.Memory
	name    string
	patches []*Patch
	closed  bool
}

var _ Registry = (*Patcher)(nil)

func New(logger *log.Logger, mem foreign.Memory, name string) *Patcher {
	return &Patcher{
		logger: logger,
		mem:    mem,
		name:   name,
	}
}

func (p *Patcher) Name() string {
	return p.name
}

func (p *Patcher) Memory() foreign.Memory {
	return p.mem
}

func (p *Patcher) Patches() []*Patch {
	return slices.Clone(p.patches)
}

// Enabled reports whether the group holds patches and all of them are live.
func (p *Patcher) Enabled() bool {
	if len(p.patches) == 0 {
		return false
	}
	for _, patch := range p.patches {
		if !patch.enabled {
			return false
		}
	}
	return true
}

func (p *Patcher) Install(addr uint64, data []byte) (*Patch, error) {
	if p.closed {
		return nil, &Error{Op: "install", Addr: addr, Err: ErrClosed}
	} else if len(data) == 0 {
		return nil, &Error{Op: "install", Addr: addr, Err: ErrEmptyPatch}
	}
	for _, other := range p.patches {
		if other.enabled && other.overlaps(addr, len(data)) {
			return nil, &Error{Op: "install", Addr: addr, Err: ErrDoubleInstall}
		}
	}
	original, err := p.mem.MemRead(addr, uint64(len(data)))
	if err != nil {
		return nil, &Error{Op: "install", Addr: addr, Err: err}
	}
	patch := &Patch{
		addr:        addr,
		original:    original,
		replacement: slices.Clone(data),
	}
	p.patches = append(p.patches, patch)
	p.logger.Debug("Patch installed",
		log.String("group", p.name),
		log.Hex("address", addr),
		log.Int("length", len(data)))
	return patch, nil
}

func (p *Patcher) EnableAll() error {
	if p.closed {
		return &Error{Op: "enable", Err: ErrClosed}
	}
	for _, patch := range p.patches {
		if patch.enabled {
			continue
		}
		if err := p.writeCode(patch.addr, patch.replacement); err != nil {
			return &Error{Op: "enable", Addr: patch.addr, Err: err}
		}
		patch.enabled = true
	}
	return nil
}

func (p *Patcher) DisableAll() error {
	if p.closed {
		return &Error{Op: "disable", Err: ErrClosed}
	}
	for i := len(p.patches) - 1; i >= 0; i-- {
		patch := p.patches[i]
		if !patch.enabled {
			continue
		}
		if err := p.writeCode(patch.addr, patch.original); err != nil {
			return &Error{Op: "disable", Addr: patch.addr, Err: err}
		}
		patch.enabled = false
	}
	return nil
}

// Close restores every original and drops the registrations. It runs once;
// later calls report ErrClosed. If a restore fails the group stays open with
// its originals so Close can be retried.
func (p *Patcher) Close() error {
	if p.closed {
		return &Error{Op: "close", Err: ErrClosed}
	}
	if err := p.DisableAll(); err != nil {
		return err
	}
	p.closed = true
	p.patches = nil
	p.logger.Debug("Patch group closed", log.String("group", p.name))
	return nil
}

func (p *Patcher) writeCode(addr uint64, data []byte) error {
	size := uint64(len(data))
	old, err := p.mem.MemProtect(addr, size, foreign.MEM_PROT_ALL)
	if err != nil {
		return err
	}
	err = p.mem.MemWrite(addr, data)
	if _, perr := p.mem.MemProtect(addr, size, old); err == nil {
		err = perr
	}
	return err
}
