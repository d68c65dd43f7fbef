// Package x86 assembles the handful of 32-bit x86 instructions that camera
// trampolines are built from.
package x86

import (
	"errors"
	"fmt"

	golangasm "github.com/twitchyliquid64/golang-asm"
	"github.com/twitchyliquid64/golang-asm/obj"
	"github.com/twitchyliquid64/golang-asm/obj/x86"
	"golang.org/x/arch/x86/x86asm"
)

type Reg uint8

const (
	EAX Reg = iota
	ECX
	EDX
	EBX
	ESP
	EBP
	ESI
	EDI
)

var regNames = [...]string{"eax", "ecx", "edx", "ebx", "esp", "ebp", "esi", "edi"}

func (r Reg) String() string {
	if r.valid() {
		return regNames[r]
	}
	return fmt.Sprintf("reg(%d)", r)
}

func (r Reg) valid() bool {
	return r <= EDI
}

func (r Reg) asm() int16 {
	return x86.REG_AX + int16(r)
}

type XMM uint8

const (
	XMM0 XMM = iota
	XMM1
	XMM2
	XMM3
	XMM4
	XMM5
	XMM6
	XMM7
)

func (x XMM) String() string {
	return fmt.Sprintf("xmm%d", x)
}

const (
	Nop = 0x90

	// Sizes of fixed-length encodings, used to lay out stubs.
	PushSize   = 1
	PopSize    = 1
	MovImmSize = 5
	JmpRegSize = 2
)

const progCache = 64

var (
	ErrInvalidOperand = errors.New("invalid operand")
	ErrEncoding       = errors.New("instruction encoding failed")
)

// Assembler collects instructions for the 386 backend of the Go assembler.
// The first operand error is sticky and reported by Bytes.
type Assembler struct {
	builder *golangasm.Builder
	progs   []*obj.Prog
	code    []byte
	err     error
}

func (a *Assembler) fail(format string, args ...any) {
	if a.err == nil {
		a.err = fmt.Errorf("%w: "+format, append([]any{ErrInvalidOperand}, args...)...)
	}
}

func (a *Assembler) prog(as obj.As) *obj.Prog {
	if a.builder == nil {
		b, err := golangasm.NewBuilder("386", progCache)
		if err != nil {
			a.err = fmt.Errorf("%w: %w", ErrEncoding, err)
			return nil
		}
		a.builder = b
	}
	p := a.builder.NewProg()
	p.As = as
	return p
}

func (a *Assembler) add(p *obj.Prog) {
	if a.err != nil || p == nil {
		return
	}
	if a.code != nil {
		a.err = fmt.Errorf("%w: instruction added after assembly", ErrEncoding)
		return
	}
	a.builder.AddInstruction(p)
	a.progs = append(a.progs, p)
}

func setReg(addr *obj.Addr, r int16) {
	addr.Type = obj.TYPE_REG
	addr.Reg = r
}

func setMem(addr *obj.Addr, base int16, disp int64) {
	addr.Type = obj.TYPE_MEM
	addr.Reg = base
	addr.Offset = disp
}

func setConst(addr *obj.Addr, v int64) {
	addr.Type = obj.TYPE_CONST
	addr.Offset = v
}

// Push emits push r32.
func (a *Assembler) Push(r Reg) {
	if !r.valid() {
		a.fail("push %v", r)
		return
	}
	p := a.prog(x86.APUSHL)
	if p != nil {
		setReg(&p.From, r.asm())
	}
	a.add(p)
}

// Pop emits pop r32.
func (a *Assembler) Pop(r Reg) {
	if !r.valid() {
		a.fail("pop %v", r)
		return
	}
	p := a.prog(x86.APOPL)
	if p != nil {
		setReg(&p.To, r.asm())
	}
	a.add(p)
}

// MovImm emits mov r32, imm32.
func (a *Assembler) MovImm(r Reg, imm uint32) {
	if !r.valid() {
		a.fail("mov %v, imm", r)
		return
	}
	p := a.prog(x86.AMOVL)
	if p != nil {
		setConst(&p.From, int64(int32(imm)))
		setReg(&p.To, r.asm())
	}
	a.add(p)
}

// JmpReg emits jmp r32.
func (a *Assembler) JmpReg(r Reg) {
	if !r.valid() {
		a.fail("jmp %v", r)
		return
	}
	p := a.prog(obj.AJMP)
	if p != nil {
		setReg(&p.To, r.asm())
	}
	a.add(p)
}

// MovLoad emits mov dst, dword ptr [base+disp].
func (a *Assembler) MovLoad(dst, base Reg, disp int32) {
	if !dst.valid() || !base.valid() {
		a.fail("mov %v, [%v%+d]", dst, base, disp)
		return
	}
	p := a.prog(x86.AMOVL)
	if p != nil {
		setMem(&p.From, base.asm(), int64(disp))
		setReg(&p.To, dst.asm())
	}
	a.add(p)
}

// MovStoreAbs emits mov dword ptr [addr], src.
func (a *Assembler) MovStoreAbs(addr uint32, src Reg) {
	if !src.valid() {
		a.fail("mov [%08X], %v", addr, src)
		return
	}
	p := a.prog(x86.AMOVL)
	if p != nil {
		setReg(&p.From, src.asm())
		setMem(&p.To, x86.REG_NONE, int64(addr))
	}
	a.add(p)
}

// MovssStore emits movss dword ptr [base], xmm.
func (a *Assembler) MovssStore(base Reg, src XMM) {
	if !base.valid() || src > XMM7 {
		a.fail("movss [%v], %v", base, src)
		return
	}
	p := a.prog(x86.AMOVSS)
	if p != nil {
		setReg(&p.From, x86.REG_X0+int16(src))
		setMem(&p.To, base.asm(), 0)
	}
	a.add(p)
}

// Nops emits n single-byte nops.
func (a *Assembler) Nops(n int) {
	for range n {
		p := a.prog(x86.ABYTE)
		if p != nil {
			setConst(&p.From, Nop)
		}
		a.add(p)
	}
}

// Bytes assembles every instruction added so far. Each encoded instruction
// is decoded back and must match the size the assembler laid out.
func (a *Assembler) Bytes() ([]byte, error) {
	if a.err != nil {
		return nil, a.err
	}
	if a.code != nil {
		return a.code, nil
	}
	if len(a.progs) == 0 {
		return []byte{}, nil
	}
	code := a.builder.Assemble()
	for _, p := range a.progs {
		end := p.Pc + int64(p.Isize)
		if p.Isize == 0 || end > int64(len(code)) {
			return nil, fmt.Errorf("%w: %v", ErrEncoding, p)
		}
		inst, err := x86asm.Decode(code[p.Pc:end], 32)
		if err != nil || inst.Len != int(p.Isize) {
			return nil, fmt.Errorf("%w: %v: % X", ErrEncoding, p, code[p.Pc:end])
		}
	}
	a.code = code
	return code, nil
}
