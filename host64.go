// host64.go - small helpers for the host->core boundary
//
// Nothing here is part of the core's semantics; it exists so cmd/x64run (and
// tests) don't have to reach into CPU internals to load an image or print a
// register dump. Grounded on debug_cpu_x86.go's register-dump formatting
// style, generalized to the 16-GPR x86-64 file.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package x64core

import (
	"fmt"
	"strings"
)

// LoadImage copies a boot image into physical memory at addr and checks
// bounds.
func LoadImage(mem *Memory, addr uint64, image []byte) error {
	return mem.Load(addr, image)
}

// FormatRegisters renders a final-state register dump in the style the
// host prints after a halted or fatal run.
func FormatRegisters(cpu *CPU) string {
	var b strings.Builder
	for i, name := range gprNames64 {
		fmt.Fprintf(&b, "%-4s = 0x%016x", strings.ToUpper(name), cpu.gpr[i])
		if i%2 == 1 {
			b.WriteByte('\n')
		} else {
			b.WriteByte('\t')
		}
	}
	if len(gprNames64)%2 != 0 {
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "RIP  = 0x%016x\tRFLAGS = 0x%016x\n", cpu.rip, cpu.flags.Assemble())
	fmt.Fprintf(&b, "CR0  = 0x%016x\tCR2    = 0x%016x\n", cpu.cr0, cpu.cr2)
	fmt.Fprintf(&b, "CR3  = 0x%016x\tCR4    = 0x%016x\n", cpu.cr3, cpu.cr4)
	fmt.Fprintf(&b, "EFER = 0x%016x\tMODE   = %s\n", cpu.efer, cpu.mode)
	return b.String()
}

// NullDevice is a no-op Device stub for ports the host's config wires up
// without a concrete model.
type NullDevice struct{}

func (NullDevice) PortIn(port uint16, size int) (uint32, error)      { return 0, nil }
func (NullDevice) PortOut(port uint16, size int, value uint32) error { return nil }
