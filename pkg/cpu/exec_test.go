package cpu

import (
	"testing"

	"github.com/oisee/vcpu16/pkg/isa"
)

func regReg(op isa.OpCode, src, dst uint8) isa.Instruction {
	return isa.Decode(isa.Encode(isa.Instruction{Op: op, Src: src, Dst: dst}))
}

func regImm(op isa.OpCode, src uint8, imm int8) isa.Instruction {
	return isa.Decode(isa.Encode(isa.Instruction{Op: op, Src: src, Dst: uint8(imm) & 0x3F}))
}

// TestAddFlags verifies ADD results and the full C, V, N, S, Z computation.
func TestAddFlags(t *testing.T) {
	tests := []struct {
		a, b     int8
		want     int8
		c, v, n  bool
		s, z     bool
	}{
		{5, 3, 8, false, false, false, false, false},
		{120, 20, -116, false, true, true, false, false}, // pos + pos overflows
		{-1, 1, 0, true, false, false, false, true},      // unsigned sum carries out
		{-100, -100, 56, true, true, false, true, false}, // neg + neg overflows, S = N^V
		{-5, 3, -2, false, false, true, true, false},
		{0, 0, 0, false, false, false, false, true},
	}
	for _, tc := range tests {
		m := &Machine{}
		m.Regs[1], m.Regs[2] = tc.a, tc.b
		out := Exec(m, regReg(isa.ADD, 1, 2), 0)

		if m.Regs[1] != tc.want {
			t.Errorf("ADD %d+%d: got %d, want %d", tc.a, tc.b, m.Regs[1], tc.want)
		}
		if !out.FlagsUpdated {
			t.Errorf("ADD %d+%d: FlagsUpdated not set", tc.a, tc.b)
		}
		checkFlags(t, "ADD", m.SR, tc.c, tc.v, tc.n, tc.s, tc.z)
	}
}

// TestSubFlags verifies SUB updates V, N, S, Z and leaves carry alone.
func TestSubFlags(t *testing.T) {
	tests := []struct {
		a, b    int8
		want    int8
		v, n, s bool
		z       bool
	}{
		{5, 3, 2, false, false, false, false},
		{3, 5, -2, false, true, true, false},
		{5, 5, 0, false, false, false, true},
		{-128, 1, 127, true, false, true, false}, // neg - pos overflows
		{127, -1, -128, true, true, false, false}, // pos - neg overflows, S = N^V = 0
	}
	for _, tc := range tests {
		m := &Machine{SR: FlagC} // pre-set carry; SUB must not touch it
		m.Regs[1], m.Regs[2] = tc.a, tc.b
		Exec(m, regReg(isa.SUB, 1, 2), 0)

		if m.Regs[1] != tc.want {
			t.Errorf("SUB %d-%d: got %d, want %d", tc.a, tc.b, m.Regs[1], tc.want)
		}
		checkFlags(t, "SUB", m.SR, true, tc.v, tc.n, tc.s, tc.z)
	}
}

// TestMulWraps verifies MUL keeps the low 8 bits and only touches N and Z.
func TestMulWraps(t *testing.T) {
	m := &Machine{SR: FlagC | FlagV | FlagS}
	m.Regs[1], m.Regs[2] = 16, 16
	Exec(m, regReg(isa.MUL, 1, 2), 0)
	if m.Regs[1] != 0 {
		t.Errorf("MUL 16*16: got %d, want 0 (low 8 bits)", m.Regs[1])
	}
	checkFlags(t, "MUL", m.SR, true, true, false, true, true)

	m = &Machine{}
	m.Regs[1], m.Regs[2] = -3, 7
	Exec(m, regReg(isa.MUL, 1, 2), 0)
	if m.Regs[1] != -21 {
		t.Errorf("MUL -3*7: got %d, want -21", m.Regs[1])
	}
	checkFlags(t, "MUL", m.SR, false, false, true, false, false)
}

// TestMoviAndi verifies the sign-extended immediate path.
func TestMoviAndi(t *testing.T) {
	m := &Machine{}
	Exec(m, regImm(isa.MOVI, 1, -7), 0)
	if m.Regs[1] != -7 {
		t.Errorf("MOVI -7: got %d", m.Regs[1])
	}
	if m.SR != 0 {
		t.Errorf("MOVI must not touch flags, SR=%08b", m.SR)
	}

	m.Regs[2] = 0x5D - 128 // 0xDD as int8
	Exec(m, regImm(isa.ANDI, 2, 0x0F), 0)
	if m.Regs[2] != 0x0D {
		t.Errorf("ANDI: got %#02x, want 0x0d", uint8(m.Regs[2]))
	}
	checkFlags(t, "ANDI", m.SR, false, false, false, false, false)
}

// TestEor verifies XOR semantics and the zero flag.
func TestEor(t *testing.T) {
	m := &Machine{}
	m.Regs[1], m.Regs[2] = 0x55, 0x55
	Exec(m, regReg(isa.EOR, 1, 2), 0)
	if m.Regs[1] != 0 {
		t.Errorf("EOR: got %d, want 0", m.Regs[1])
	}
	checkFlags(t, "EOR", m.SR, false, false, false, false, true)
}

// TestShifts verifies SAL/SAR including the arithmetic right shift.
func TestShifts(t *testing.T) {
	m := &Machine{}
	m.Regs[1] = 1
	Exec(m, regImm(isa.SAL, 1, 3), 0)
	if m.Regs[1] != 8 {
		t.Errorf("SAL 1<<3: got %d, want 8", m.Regs[1])
	}
	Exec(m, regImm(isa.SAR, 1, 1), 0)
	if m.Regs[1] != 4 {
		t.Errorf("SAR 8>>1: got %d, want 4", m.Regs[1])
	}
	checkFlags(t, "SAR", m.SR, false, false, false, false, false)

	m.Regs[3] = -8
	Exec(m, regImm(isa.SAR, 3, 2), 0)
	if m.Regs[3] != -2 {
		t.Errorf("SAR -8>>2: got %d, want -2 (arithmetic)", m.Regs[3])
	}
	checkFlags(t, "SAR", m.SR, false, false, true, false, false)
}

// TestLoadStore verifies the zero-extended data addresses.
func TestLoadStore(t *testing.T) {
	m := &Machine{}
	m.Regs[1] = 42
	out := Exec(m, regImm(isa.STR, 1, 10), 0)
	if m.Data[10] != 42 {
		t.Errorf("STR: Data[10]=%d, want 42", m.Data[10])
	}
	if out.Addr != 10 || out.MemValue != 42 {
		t.Errorf("STR outcome: addr=%d value=%d", out.Addr, out.MemValue)
	}

	out = Exec(m, regImm(isa.LDR, 2, 10), 0)
	if m.Regs[2] != 42 {
		t.Errorf("LDR: R2=%d, want 42", m.Regs[2])
	}
	if out.MemValue != 42 {
		t.Errorf("LDR outcome value=%d", out.MemValue)
	}

	// Address 63 is the top of the encodable range, well inside data memory.
	m.Regs[1] = -1
	Exec(m, regImm(isa.STR, 1, 63), 0)
	if m.Data[63] != -1 {
		t.Errorf("STR 63: Data[63]=%d", m.Data[63])
	}
}

// TestBeqz verifies the conditional branch: targets are relative to the
// branch's own address, and only a taken branch requests a flush.
func TestBeqz(t *testing.T) {
	m := &Machine{PC: 4} // pipeline has fetched ahead
	out := Exec(m, regImm(isa.BEQZ, 1, 2), 1)
	if !out.Taken {
		t.Fatal("BEQZ on zero register should be taken")
	}
	if m.PC != 3 {
		t.Errorf("BEQZ target: PC=%d, want 3", m.PC)
	}

	m = &Machine{PC: 4}
	m.Regs[1] = 1
	out = Exec(m, regImm(isa.BEQZ, 1, 2), 1)
	if out.Taken {
		t.Error("BEQZ on nonzero register must not be taken")
	}
	if m.PC != 4 {
		t.Errorf("BEQZ not taken: PC=%d, want 4", m.PC)
	}
	if m.SR != 0 {
		t.Errorf("BEQZ must not touch flags, SR=%08b", m.SR)
	}
}

// TestBr verifies the unsigned register concatenation.
func TestBr(t *testing.T) {
	m := &Machine{}
	m.Regs[1] = 2
	m.Regs[2] = -128 // 0x80 unsigned
	out := Exec(m, regReg(isa.BR, 1, 2), 0)
	if !out.Taken {
		t.Fatal("BR is always taken")
	}
	if m.PC != 0x0280 {
		t.Errorf("BR: PC=%#04x, want 0x0280", m.PC)
	}
}

// TestUndefinedOpcode verifies an unassigned word is a diagnosed no-op.
func TestUndefinedOpcode(t *testing.T) {
	m := &Machine{SR: FlagC}
	m.Regs[0] = 9
	out := Exec(m, isa.Decode(0xF000), 0)
	if !out.Undefined {
		t.Fatal("expected Undefined outcome")
	}
	if out.Taken {
		t.Error("undefined opcode must not branch")
	}
	if m.Regs[0] != 9 || m.SR != FlagC || m.PC != 0 {
		t.Error("undefined opcode must not change machine state")
	}
}

// TestFlagPreservation verifies flags outside an opcode's set are
// byte-identical across execution.
func TestFlagPreservation(t *testing.T) {
	const all = FlagC | FlagV | FlagN | FlagS | FlagZ
	tests := []struct {
		name string
		in   isa.Instruction
		keep uint8 // flag bits the opcode must leave alone
	}{
		{"MOVI", regImm(isa.MOVI, 1, 5), all},
		{"BEQZ", regImm(isa.BEQZ, 5, 1), all},
		{"BR", regReg(isa.BR, 1, 2), all},
		{"LDR", regImm(isa.LDR, 1, 0), all},
		{"STR", regImm(isa.STR, 1, 0), all},
		{"MUL", regReg(isa.MUL, 1, 2), FlagC | FlagV | FlagS},
		{"ANDI", regImm(isa.ANDI, 1, 1), FlagC | FlagV | FlagS},
		{"EOR", regReg(isa.EOR, 1, 2), FlagC | FlagV | FlagS},
		{"SAL", regImm(isa.SAL, 1, 1), FlagC | FlagV | FlagS},
		{"SAR", regImm(isa.SAR, 1, 1), FlagC | FlagV | FlagS},
		{"SUB", regReg(isa.SUB, 1, 2), FlagC},
	}
	for _, tc := range tests {
		m := &Machine{SR: all}
		m.Regs[1], m.Regs[2], m.Regs[5] = 1, 2, 1
		Exec(m, tc.in, 0)
		if m.SR&tc.keep != tc.keep {
			t.Errorf("%s: preserved flags changed, SR=%08b keep=%08b", tc.name, m.SR, tc.keep)
		}
	}
}

// TestWriteDiscipline verifies only STR writes data memory and branches
// leave the register file unchanged.
func TestWriteDiscipline(t *testing.T) {
	m := &Machine{}
	m.Regs[1], m.Regs[2] = 1, 2
	before := m.Regs

	Exec(m, regImm(isa.BEQZ, 3, 1), 0)
	Exec(m, regReg(isa.BR, 1, 2), 0)
	Exec(m, isa.Decode(0xC000), 0)
	if m.Regs != before {
		t.Error("branches and undefined opcodes must not write registers")
	}

	data := m.Data
	Exec(m, regReg(isa.ADD, 1, 2), 0)
	Exec(m, regImm(isa.LDR, 1, 9), 0)
	if m.Data != data {
		t.Error("only STR may write data memory")
	}
}

func checkFlags(t *testing.T, op string, sr uint8, c, v, n, s, z bool) {
	t.Helper()
	want := bsel(c, FlagC, 0) | bsel(v, FlagV, 0) | bsel(n, FlagN, 0) |
		bsel(s, FlagS, 0) | bsel(z, FlagZ, 0)
	if sr != want {
		t.Errorf("%s: SR=%08b, want %08b", op, sr, want)
	}
}
