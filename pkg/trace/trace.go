// Package trace renders the per-cycle pipeline report and the final machine
// state. The pipeline drives a Tracer; the Printer implementation writes the
// human-readable log, Nop silences it for tests.
package trace

import (
	"fmt"
	"io"
	"strings"

	"github.com/oisee/vcpu16/pkg/cpu"
	"github.com/oisee/vcpu16/pkg/isa"
)

// Tracer receives pipeline activity as it happens. Stage indices are
// 1-based program positions, 0 when the stage is idle that cycle.
type Tracer interface {
	Cycle(cycle, fetched, decoded, executed int)
	Executed(out cpu.Outcome)
	Final(m *cpu.Machine)
}

// Nop discards all trace output.
type Nop struct{}

func (Nop) Cycle(cycle, fetched, decoded, executed int) {}
func (Nop) Executed(out cpu.Outcome)                    {}
func (Nop) Final(m *cpu.Machine)                        {}

// Printer writes the simulation log to W.
type Printer struct {
	W io.Writer
}

// NewPrinter returns a Printer bound to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{W: w}
}

// Begin prints the run preamble.
func (p *Printer) Begin() {
	fmt.Fprintln(p.W, "Running program, instructions not in the pipeline are labeled Instruction <stage>: 0")
}

// Cycle prints the per-cycle stage report.
func (p *Printer) Cycle(cycle, fetched, decoded, executed int) {
	fmt.Fprintln(p.W, strings.Repeat("-", 55))
	fmt.Fprintf(p.W, "clock cycle: %d\n", cycle)
	fmt.Fprintf(p.W, "Instruction fetched: %d\n", fetched)
	fmt.Fprintf(p.W, "Instruction decoded: %d\n", decoded)
	fmt.Fprintf(p.W, "Instruction executed: %d\n", executed)
}

// Executed prints the operation summary and, when the instruction updated
// flags, the status register as a binary string, MSB first.
func (p *Printer) Executed(out cpu.Outcome) {
	in := out.Inst
	switch in.Op {
	case isa.ADD, isa.SUB, isa.MUL, isa.EOR:
		fmt.Fprintf(p.W, "%s : R%d Value : %d, R%d Value : %d, Value in Register %d After Execution %d\n",
			isa.Mnemonic(in.Op), in.Src, out.SrcBefore, in.Dst, out.DstValue, in.Src, out.Result)
	case isa.MOVI:
		fmt.Fprintf(p.W, "MOVI : R%d old Value : %d, Value in R%d after MOVI : %d\n",
			in.Src, out.SrcBefore, in.Src, out.Result)
	case isa.BEQZ:
		fmt.Fprintf(p.W, "BEQZ : R%d Value : %d, Old PC Value : %d, Immediate Value : %d, New PC Value After BEQZ : %d\n",
			in.Src, out.SrcBefore, out.OldPC, in.UnsignedImm(), out.NewPC)
	case isa.ANDI:
		fmt.Fprintf(p.W, "ANDI : R%d Value : %d, Immediate Value : %d, Value in Register %d After ANDI %d\n",
			in.Src, out.SrcBefore, in.Imm, in.Src, out.Result)
	case isa.BR:
		fmt.Fprintf(p.W, "BR : R%d Value : %d, R%d Value : %d, Value in PC After BR %d\n",
			in.Src, out.SrcBefore, in.Dst, out.DstValue, out.NewPC)
	case isa.SAL:
		fmt.Fprintf(p.W, "SAL : R%d Value : %d, R%d Value after being shifted to the left %d times : %d\n",
			in.Src, out.SrcBefore, in.Src, in.Imm, out.Result)
	case isa.SAR:
		fmt.Fprintf(p.W, "SAR : R%d Value : %d, R%d Value after being shifted to the right %d times : %d\n",
			in.Src, out.SrcBefore, in.Src, in.Imm, out.Result)
	case isa.LDR:
		fmt.Fprintf(p.W, "LDR : Word in Memory Address %d : %d, was loaded into Register %d\n",
			out.Addr, out.MemValue, in.Src)
	case isa.STR:
		fmt.Fprintf(p.W, "STR : Word in Register %d : %d, was stored into memory at address %d\n",
			in.Src, out.MemValue, out.Addr)
	default:
		fmt.Fprintln(p.W, "Undefined opcode, treated as no-op")
	}

	if out.FlagsUpdated {
		fmt.Fprintf(p.W, "Status Register : %08b\n", out.SR)
	}
}

// Final prints the data memory in order, then every register.
func (p *Printer) Final(m *cpu.Machine) {
	fmt.Fprintln(p.W, "Program executed successfully -----------------------------------")
	for _, b := range m.Data {
		fmt.Fprintf(p.W, "%d ", b)
	}
	fmt.Fprintln(p.W)
	for i, r := range m.Regs {
		fmt.Fprintf(p.W, "R%d : %d ", i, r)
	}
	fmt.Fprintln(p.W)
}
