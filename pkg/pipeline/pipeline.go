// Package pipeline drives the three-stage in-order pipeline: one fetch, one
// decode and one execute per steady-state cycle, with single-slot latches
// between stages, a two-cycle fill after start or flush, and a drain tail
// once fetching stops.
package pipeline

import (
	"github.com/oisee/vcpu16/pkg/cpu"
	"github.com/oisee/vcpu16/pkg/isa"
	"github.com/oisee/vcpu16/pkg/trace"
)

type phase int

const (
	phaseFill1 phase = iota
	phaseFill2
	phaseSteady
)

// fetchLatch holds the word between the fetch and decode stages.
type fetchLatch struct {
	valid bool
	word  isa.Word
	pc    uint16 // address the word was fetched from
	index int    // 1-based program position, for the trace
}

// decodeLatch holds the decoded instruction between decode and execute.
type decodeLatch struct {
	valid bool
	inst  isa.Instruction
	pc    uint16
	index int
}

// Stats summarizes a finished run.
type Stats struct {
	Cycles       int
	Instructions int // retired
	Branches     int // branch instructions executed
	Flushes      int // taken branches that refilled the pipeline
	CPI          float64
}

// Pipeline owns the machine state and the inter-stage latches.
type Pipeline struct {
	m      *cpu.Machine
	tracer trace.Tracer

	fd fetchLatch
	de decodeLatch

	phase phase
	cycle int
	stats Stats
}

// New builds a pipeline over a loaded machine. A nil tracer disables
// tracing.
func New(m *cpu.Machine, tracer trace.Tracer) *Pipeline {
	if tracer == nil {
		tracer = trace.Nop{}
	}
	return &Pipeline{m: m, tracer: tracer}
}

// Machine exposes the underlying machine state.
func (p *Pipeline) Machine() *cpu.Machine { return p.m }

// canFetch reports whether instruction memory at PC holds a runnable
// instruction. The program length recorded at load is the primary bound;
// reads past instruction memory are the end sentinel.
func (p *Pipeline) canFetch() bool {
	pc := int(p.m.PC)
	return pc < p.m.NumInstructions && pc < len(p.m.Code)
}

// fetch reads one word at PC into the fetch latch and advances PC.
func (p *Pipeline) fetch() int {
	p.fd = fetchLatch{
		valid: true,
		word:  p.m.InstructionAt(p.m.PC),
		pc:    p.m.PC,
		index: int(p.m.PC) + 1,
	}
	p.m.PC++
	return p.fd.index
}

// decode moves the latched word through the decoder into the execute latch.
func (p *Pipeline) decode() int {
	p.de = decodeLatch{
		valid: true,
		inst:  isa.Decode(p.fd.word),
		pc:    p.fd.pc,
		index: p.fd.index,
	}
	p.fd.valid = false
	return p.de.index
}

// execute runs a previously decoded instruction and applies flush handling
// for taken branches.
func (p *Pipeline) execute(d decodeLatch) (int, cpu.Outcome) {
	out := cpu.Exec(p.m, d.inst, d.pc)
	p.stats.Instructions++
	if isa.IsBranch(d.inst.Op) {
		p.stats.Branches++
	}
	if out.Taken {
		p.flush()
	}
	return d.index, out
}

// flush discards everything in flight behind a taken branch. The next cycle
// restarts the fill at the branch target.
func (p *Pipeline) flush() {
	p.fd = fetchLatch{}
	p.de = decodeLatch{}
	p.phase = phaseFill1
	p.stats.Flushes++
}

// Tick runs exactly one clock cycle and reports whether another is needed.
// Within a cycle the stages are serialized so that execute consumes the
// previous cycle's decode and fetch reads the PC before any branch this
// cycle rewrites it.
func (p *Pipeline) Tick() bool {
	var fetched, decoded, executed int
	var out cpu.Outcome
	var didExec bool

	switch p.phase {
	case phaseFill1:
		// Both latches are empty here: FILL1 only follows load or flush.
		if !p.canFetch() {
			return false
		}
		fetched = p.fetch()
		p.phase = phaseFill2

	case phaseFill2:
		decoded = p.decode()
		if p.canFetch() {
			fetched = p.fetch()
		}
		p.phase = phaseSteady

	case phaseSteady:
		prev := p.de
		p.de.valid = false

		if p.canFetch() {
			decoded = p.decode()
			fetched = p.fetch()
			executed, out = p.execute(prev)
			didExec = true
		} else if p.fd.valid {
			// Drain: decode the leftover word, retire the previous one.
			decoded = p.decode()
			if prev.valid {
				executed, out = p.execute(prev)
				didExec = true
			}
		} else if prev.valid {
			executed, out = p.execute(prev)
			didExec = true
		} else {
			return false
		}
	}

	p.cycle++
	p.stats.Cycles = p.cycle
	p.tracer.Cycle(p.cycle, fetched, decoded, executed)
	if didExec {
		p.tracer.Executed(out)
	}
	return true
}

// Run ticks until the program terminates and reports the final state.
func (p *Pipeline) Run() Stats {
	for p.Tick() {
	}
	if p.cycle > 0 {
		p.tracer.Final(p.m)
	}
	return p.Stats()
}

// Stats returns the counters accumulated so far.
func (p *Pipeline) Stats() Stats {
	s := p.stats
	if s.Instructions > 0 {
		s.CPI = float64(s.Cycles) / float64(s.Instructions)
	}
	return s
}
