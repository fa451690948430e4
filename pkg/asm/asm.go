// Package asm turns textual assembly into 16-bit instruction words.
//
// One instruction per line, "MNEMONIC Rx, Ry" or "MNEMONIC Rx, imm" with
// decimal immediates. Assembly is an all-or-nothing prepass: every bad line
// is reported and nothing runs if any line fails.
package asm

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/oisee/vcpu16/pkg/isa"
)

// MaxInstructions is the instruction memory capacity.
const MaxInstructions = 1024

// Program is a loaded, fully assembled program.
type Program struct {
	Words []isa.Word // assembled words in program order
	Lines []string   // source text per instruction, for listings
}

// AssembleLine assembles one instruction line into its 16-bit word.
func AssembleLine(line string) (isa.Word, error) {
	fields := strings.FieldsFunc(line, func(r rune) bool {
		return r == ' ' || r == '\t' || r == ','
	})
	if len(fields) != 3 {
		return 0, fmt.Errorf("malformed instruction %q: want mnemonic and two operands", strings.TrimSpace(line))
	}

	op, ok := isa.ByMnemonic[fields[0]]
	if !ok {
		return 0, fmt.Errorf("unknown mnemonic %q", fields[0])
	}

	src, err := parseRegister(fields[1])
	if err != nil {
		return 0, err
	}

	var dst uint8
	if isa.HasImmediate(op) {
		dst, err = parseImmediate(op, fields[2])
	} else {
		dst, err = parseRegister(fields[2])
	}
	if err != nil {
		return 0, err
	}

	return isa.Encode(isa.Instruction{Op: op, Src: src, Dst: dst}), nil
}

// parseRegister accepts R0..R63.
func parseRegister(tok string) (uint8, error) {
	if len(tok) < 2 || tok[0] != 'R' {
		return 0, fmt.Errorf("unknown register %q", tok)
	}
	n, err := strconv.Atoi(tok[1:])
	if err != nil || n < 0 || n > 63 {
		return 0, fmt.Errorf("unknown register %q", tok)
	}
	return uint8(n), nil
}

// parseImmediate accepts a decimal immediate and checks the range the
// opcode can represent: 0..63 for the zero-extended address fields,
// -32..31 for the sign-extended ones. The value is encoded in 6-bit two's
// complement either way.
func parseImmediate(op isa.OpCode, tok string) (uint8, error) {
	n, err := strconv.Atoi(tok)
	if err != nil {
		return 0, fmt.Errorf("malformed immediate %q", tok)
	}
	if isa.UnsignedImmediate(op) {
		if n < 0 || n > 63 {
			return 0, fmt.Errorf("immediate %d out of range 0..63 for %s", n, isa.Mnemonic(op))
		}
	} else if n < -32 || n > 31 {
		return 0, fmt.Errorf("immediate %d out of range -32..31 for %s", n, isa.Mnemonic(op))
	}
	return uint8(n) & 0x3F, nil
}

// LoadProgram reads assembly text until a blank line or EOF and assembles
// every line. All line errors are aggregated into a single failure.
func LoadProgram(r io.Reader) (*Program, error) {
	p := &Program{}
	var errs []error

	scanner := bufio.NewScanner(r)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			break
		}
		if len(p.Words) == MaxInstructions {
			errs = append(errs, fmt.Errorf("line %d: program exceeds %d instructions", lineno, MaxInstructions))
			break
		}
		w, err := AssembleLine(line)
		if err != nil {
			errs = append(errs, fmt.Errorf("line %d: %w", lineno, err))
			continue
		}
		p.Words = append(p.Words, w)
		p.Lines = append(p.Lines, line)
	}
	if err := scanner.Err(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return p, nil
}

// LoadFile loads and assembles a program file.
func LoadFile(path string) (*Program, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	p, err := LoadProgram(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}
