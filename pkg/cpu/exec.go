package cpu

import "github.com/oisee/vcpu16/pkg/isa"

// Outcome reports what one executed instruction did, for the trace emitter
// and for the controller's flush decision.
type Outcome struct {
	Inst   isa.Instruction
	InstPC uint16 // fetch address of the executed instruction

	SrcBefore int8 // R[src] before execution
	DstValue  int8 // R[dst] for register-operand opcodes
	Result    int8 // value written to R[src], if any

	OldPC uint16 // PC before a branch executed
	NewPC uint16 // PC after a branch executed

	Addr     uint8 // data memory address for LDR/STR
	MemValue int8  // byte loaded or stored

	Taken        bool // branch taken; the controller must flush
	FlagsUpdated bool
	SR           uint8 // status register after execution

	Undefined bool // unassigned opcode word; diagnosed no-op
}

// Exec interprets one decoded instruction against the machine state.
// instPC is the address the instruction was fetched from; BEQZ targets are
// relative to it, so by the time the branch reaches the execute stage the
// fetch-ahead of the pipeline cannot skew the destination.
func Exec(m *Machine, in isa.Instruction, instPC uint16) Outcome {
	out := Outcome{Inst: in, InstPC: instPC, SrcBefore: m.Regs[in.Src]}

	switch in.Op {
	case isa.ADD:
		out.DstValue = m.Regs[in.Dst]
		out.Result = execAdd(m, in.Src, out.SrcBefore, out.DstValue)
		out.FlagsUpdated = true

	case isa.SUB:
		out.DstValue = m.Regs[in.Dst]
		out.Result = execSub(m, in.Src, out.SrcBefore, out.DstValue)
		out.FlagsUpdated = true

	case isa.MUL:
		out.DstValue = m.Regs[in.Dst]
		out.Result = out.SrcBefore * out.DstValue
		m.Regs[in.Src] = out.Result
		setNZ(m, out.Result)
		out.FlagsUpdated = true

	case isa.MOVI:
		out.Result = in.Imm
		m.Regs[in.Src] = in.Imm

	case isa.BEQZ:
		out.OldPC = m.PC
		if out.SrcBefore == 0 {
			m.PC = instPC + uint16(in.UnsignedImm())
			out.Taken = true
		}
		out.NewPC = m.PC

	case isa.ANDI:
		out.Result = out.SrcBefore & in.Imm
		m.Regs[in.Src] = out.Result
		setNZ(m, out.Result)
		out.FlagsUpdated = true

	case isa.EOR:
		out.DstValue = m.Regs[in.Dst]
		out.Result = out.SrcBefore ^ out.DstValue
		m.Regs[in.Src] = out.Result
		setNZ(m, out.Result)
		out.FlagsUpdated = true

	case isa.BR:
		out.DstValue = m.Regs[in.Dst]
		out.OldPC = m.PC
		m.PC = uint16(uint8(out.SrcBefore))<<8 | uint16(uint8(out.DstValue))
		out.NewPC = m.PC
		out.Taken = true

	case isa.SAL:
		out.Result = out.SrcBefore << shiftCount(in.Imm)
		m.Regs[in.Src] = out.Result
		setNZ(m, out.Result)
		out.FlagsUpdated = true

	case isa.SAR:
		out.Result = out.SrcBefore >> shiftCount(in.Imm)
		m.Regs[in.Src] = out.Result
		setNZ(m, out.Result)
		out.FlagsUpdated = true

	case isa.LDR:
		out.Addr = in.UnsignedImm()
		out.MemValue = m.Data[out.Addr]
		out.Result = out.MemValue
		m.Regs[in.Src] = out.MemValue

	case isa.STR:
		out.Addr = in.UnsignedImm()
		out.MemValue = out.SrcBefore
		m.Data[out.Addr] = out.SrcBefore

	default:
		out.Undefined = true
	}

	out.SR = m.SR
	return out
}

// execAdd writes a+b to R[src] and computes C, V, N, S, Z.
func execAdd(m *Machine, src uint8, a, b int8) int8 {
	sum := uint16(uint8(a)) + uint16(uint8(b))
	r := int8(sum)
	m.Regs[src] = r

	v := (a >= 0 && b >= 0 && r < 0) || (a < 0 && b < 0 && r >= 0)
	n := r < 0
	m.SR = m.SR&^addFlags |
		bsel(sum > 0xFF, FlagC, 0) |
		bsel(v, FlagV, 0) |
		bsel(n, FlagN, 0) |
		bsel(n != v, FlagS, 0) |
		bsel(r == 0, FlagZ, 0)
	return r
}

// execSub writes a-b to R[src] and computes V, N, S, Z. Carry is untouched.
func execSub(m *Machine, src uint8, a, b int8) int8 {
	r := int8(int16(a) - int16(b))
	m.Regs[src] = r

	v := (a >= 0 && b < 0 && r < 0) || (a < 0 && b >= 0 && r >= 0)
	n := r < 0
	m.SR = m.SR&^subFlags |
		bsel(v, FlagV, 0) |
		bsel(n, FlagN, 0) |
		bsel(n != v, FlagS, 0) |
		bsel(r == 0, FlagZ, 0)
	return r
}

// setNZ updates N and Z from an 8-bit result, leaving the other flags alone.
func setNZ(m *Machine, r int8) {
	m.SR = m.SR&^nzFlags |
		bsel(r < 0, FlagN, 0) |
		bsel(r == 0, FlagZ, 0)
}

// shiftCount widens the immediate to an unsigned count. Counts of 8 and up
// (including the bit patterns of negative immediates) shift everything out,
// which is well defined for both directions.
func shiftCount(imm int8) uint {
	return uint(uint8(imm))
}
