// Package main prints the machine code the controller would write into the
// game, disassembled, without touching a running process.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/retroenv/retrogolib/app"
	"github.com/retroenv/retrogolib/log"
	"github.com/wnxd/battlecam/battle"
	"github.com/wnxd/battlecam/channel"
	"github.com/wnxd/battlecam/config"
	"github.com/wnxd/battlecam/foreign"
	"github.com/wnxd/battlecam/trampoline"
	"golang.org/x/arch/x86/x86asm"
)

type options struct {
	configDir string
	output    string
	debug     bool
	quiet     bool
}

func main() {
	ctx := app.Context()

	opts := readArguments()
	logger := config.CreateLogger(opts.debug, opts.quiet)

	layout := battle.DefaultLayout()
	if opts.configDir != "" {
		cfg, err := config.Load(opts.configDir)
		if err != nil {
			logger.Fatal(fmt.Sprintf("loading config: %v", err))
		}
		layout = cfg.Layout()
	}

	out := io.Writer(os.Stdout)
	if opts.output != "" {
		f, err := os.Create(opts.output)
		if err != nil {
			logger.Fatal(fmt.Sprintf("creating output file: %v", err))
		}
		defer func() { _ = f.Close() }()
		out = f
	}

	if err := dump(ctx, logger, out, layout); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("Operation cancelled")
			return
		}
		logger.Error("Dumping patches failed", log.Err(err))
		os.Exit(1)
	}
}

func readArguments() options {
	flags := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	var opts options
	flags.StringVar(&opts.configDir, "c", "", "directory holding "+config.FileName+", the built-in layout is used if not given")
	flags.StringVar(&opts.output, "o", "", "name of the output file, printed on console if no name given")
	flags.BoolVar(&opts.debug, "debug", false, "enable debugging options for extended logging")
	flags.BoolVar(&opts.quiet, "q", false, "perform operations quietly")

	if err := flags.Parse(os.Args[1:]); err != nil || flags.NArg() != 0 {
		fmt.Printf("usage: trampdump [options]\n\n")
		flags.PrintDefaults()
		os.Exit(1)
	}
	return opts
}

// dump synthesizes every dynamic patch of layout against a scratch address
// space and writes their disassembly to out.
func dump(ctx context.Context, logger *log.Logger, out io.Writer, layout battle.Layout) error {
	if err := layout.Validate(); err != nil {
		return err
	}

	mem := foreign.NewBuffer(0x1000)
	ch := channel.New()
	if err := ch.Bind(mem); err != nil {
		return fmt.Errorf("binding channel: %w", err)
	}
	defer func() { _ = ch.Release() }()
	logger.Debug("Channel bound",
		log.Hex("ground", ch.GroundAddr()),
		log.Hex("teleport", ch.TeleportAddr()))

	block, err := trampoline.Place(mem, trampoline.Teleport(layout.Teleport, ch.TeleportAddr()))
	if err != nil {
		return fmt.Errorf("placing trampolines: %w", err)
	}
	defer func() { _ = block.Free(mem) }()

	patches := block.Patches
	for _, s := range layout.RemoteStores {
		p, err := trampoline.RemoteStore(s.Addr, ch.GroundAddr(), s.Reg)
		if err != nil {
			return fmt.Errorf("building remote store at %X: %w", s.Addr, err)
		}
		patches = append(patches, p)
	}
	patches = append(patches, trampoline.Overwrite(layout.TargetView, trampoline.Nops(layout.TargetViewLen)))

	for _, p := range patches {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := writePatch(out, p); err != nil {
			return err
		}
	}

	_, err = fmt.Fprintf(out, "; %d store sites are nopped in place\n", len(layout.Patches))
	return err
}

func writePatch(out io.Writer, p *trampoline.DynamicPatch) error {
	if _, err := fmt.Fprintf(out, "; site %08X, %d bytes\n", p.Addr, len(p.Source)); err != nil {
		return err
	}
	if err := disassemble(out, p.Source, p.Addr); err != nil {
		return err
	}
	if len(p.Code) > 0 {
		if _, err := fmt.Fprintf(out, "; trampoline %08X, resumes at %08X\n", p.CodeAddr, p.Resume); err != nil {
			return err
		}
		if err := disassemble(out, p.Code, p.CodeAddr); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(out)
	return err
}

func disassemble(out io.Writer, code []byte, pc uint64) error {
	for len(code) > 0 {
		inst, err := x86asm.Decode(code, 32)
		if err != nil {
			return fmt.Errorf("decoding at %08X: %w", pc, err)
		}
		text := x86asm.IntelSyntax(inst, pc, nil)
		if _, err := fmt.Fprintf(out, "%08X  % -24X %s\n", pc, code[:inst.Len], text); err != nil {
			return err
		}
		code = code[inst.Len:]
		pc += uint64(inst.Len)
	}
	return nil
}
