package bytecode

import (
	"fmt"
	"strings"
)

// Disassemble returns a listing of a decoded instruction sequence, one
// instruction per line prefixed with its index.
func Disassemble(code []Instruction) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("; %d instruction(s)\n", len(code)))
	for i, in := range code {
		sb.WriteString(fmt.Sprintf("%04d  %s\n", i, in))
	}
	return sb.String()
}

// DisassembleBytes decodes buf and returns a listing that also shows the
// byte offset and raw bytes of each instruction.
func DisassembleBytes(buf []byte) (string, error) {
	code, offsets, err := decodeAll(buf)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("; %d byte(s), %d instruction(s)\n", len(buf), len(code)))
	for i, in := range code {
		start := offsets[i]
		end := len(buf)
		if i+1 < len(offsets) {
			end = offsets[i+1]
		}

		raw := hexBytes(buf[start:end])
		line := in.String()
		if op := Opcode(buf[start]); !op.IsDefined() {
			line = fmt.Sprintf("%s ; undefined opcode 0x%02X", line, byte(op))
		}
		sb.WriteString(fmt.Sprintf("%04d  %04X  %-30s %s\n", i, start, raw, line))
	}
	return sb.String(), nil
}

func hexBytes(b []byte) string {
	parts := make([]string, len(b))
	for i, c := range b {
		parts[i] = fmt.Sprintf("%02X", c)
	}
	return strings.Join(parts, " ")
}
