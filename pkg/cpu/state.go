// Package cpu holds the machine state and the execute unit of the 16-bit
// VCPU: 64 signed 8-bit registers, a byte-addressed data memory, and the
// five-flag status register.
package cpu

import "github.com/oisee/vcpu16/pkg/isa"

const (
	// InstructionMemorySize is the instruction memory capacity in words.
	InstructionMemorySize = 1024
	// DataMemorySize is the data memory capacity in bytes.
	DataMemorySize = 2048
	// NumRegisters is the general purpose register count.
	NumRegisters = 64
)

// Machine is the whole processor state. It is created once at program load
// and owned by the pipeline controller; stage actions receive it as a
// transient mutable borrow.
type Machine struct {
	Regs [NumRegisters]int8
	PC   uint16
	SR   uint8

	Code [InstructionMemorySize]isa.Word
	Data [DataMemorySize]int8

	// NumInstructions is the program length recorded at load. It bounds
	// fetching; the zero-word end sentinel is only a fallback for reads
	// past the loaded region.
	NumInstructions int
}

// NewMachine builds a zeroed machine with the program words loaded into
// instruction memory starting at index 0. Instruction memory is read-only
// from here on.
func NewMachine(words []isa.Word) *Machine {
	m := &Machine{NumInstructions: len(words)}
	copy(m.Code[:], words)
	return m
}

// InstructionAt reads instruction memory. Reads past the end are the zero
// end-of-program sentinel; BR may set an arbitrary 16-bit PC.
func (m *Machine) InstructionAt(pc uint16) isa.Word {
	if int(pc) >= len(m.Code) {
		return 0
	}
	return m.Code[pc]
}
