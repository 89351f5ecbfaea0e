// debug_disasm_x64.go - instruction-stream disassembly helper
//
// Backs the `x64run disasm` subcommand, so a human can see the instruction
// stream without hand-rolling a second decoder. The host's fatal-error path
// prints a register dump only and does not call it. Grounded on gokvm's machine.go use
// of golang.org/x/arch/x86/x86asm to print instructions around a fault.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package x64core

import (
	"fmt"

	"golang.org/x/arch/x86/x86asm"
)

// DisasmAt decodes and formats up to count instructions from physical
// memory starting at addr, in Intel syntax. mode64 selects 64-bit decoding;
// false decodes as 32-bit code (there is no 16-bit real-mode decoding).
func DisasmAt(mem *Memory, addr uint64, count int, mode64 bool) []string {
	out := make([]string, 0, count)
	pos := addr
	mode := 32
	if mode64 {
		mode = 64
	}
	for i := 0; i < count; i++ {
		if pos >= uint64(mem.Size()) {
			break
		}
		end := pos + 16
		if end > uint64(mem.Size()) {
			end = uint64(mem.Size())
		}
		window := mem.bytes[pos:end]
		inst, err := x86asm.Decode(window, mode)
		if err != nil {
			out = append(out, fmt.Sprintf("0x%016x: <decode error: %s>", pos, err))
			pos++
			continue
		}
		out = append(out, fmt.Sprintf("0x%016x: %s", pos, x86asm.IntelSyntax(inst, pos, nil)))
		pos += uint64(inst.Len)
	}
	return out
}
