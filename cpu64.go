// cpu64.go - CPU struct, register file (C3) and the main Step loop (C7 entry
// point)
//
// The register file implements the standard x86-64 aliasing invariant: 16
// GPRs stored as a flat uint64 array indexed exactly as the ModR/M/SIB
// encoding expects (RAX=0 .. RDI=7, R8=8 .. R15=15), with sub-width reads/
// writes implementing the zero-extend-on-dword-write rule and the REX-gated
// high-byte-vs-SPL/BPL/SIL/DIL aliasing rule. Grounded on cpu_x86.go's
// CPU_X86 struct shape (flat register array + typed accessor methods)
// generalized from that core's 32-bit GPRs to 64-bit GPRs with REX-aware
// byte views, and on debug_cpu_x86.go's (value, ok) accessor convention for
// BadRegister reporting.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package x64core

import "fmt"

// GPR indices, matching the ModR/M/SIB register field encoding order.
const (
	RAX = iota
	RCX
	RDX
	RBX
	RSP
	RBP
	RSI
	RDI
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
	numGPR
)

var gprNames64 = [numGPR]string{"rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi",
	"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15"}

// Segment register indices.
const (
	SegCS = iota
	SegDS
	SegSS
	SegES
	SegFS
	SegGS
	numSeg
)

var segNames = [numSeg]string{"cs", "ds", "ss", "es", "fs", "gs"}

// StepResult is C7's per-call outcome, replacing the cycle-count return of
// cycle-accurate cores: this core makes no cycle-timing claims.
type StepResult int

const (
	Running StepResult = iota
	Halted
)

func (r StepResult) String() string {
	if r == Halted {
		return "Halted"
	}
	return "Running"
}

// CPU is the whole register file plus the transient per-instruction decode
// state threaded through cpu64_decode.go/cpu64_ops.go.
type CPU struct {
	gpr  [numGPR]uint64
	segs [numSeg]uint16
	rip  uint64

	flags Flags

	cr0, cr2, cr3, cr4 uint64
	efer               uint64

	idtrBase  uint64
	idtrLimit uint16
	gdtrBase  uint64
	gdtrLimit uint16

	mode CPUMode

	halted bool

	interruptQueue []int

	mem *Memory
	mmu *MMU
	bus *Bus

	logf func(string, ...any)

	// Transient per-instruction decode state, reset at the top of every
	// Step call by resetDecodeState (cpu64_decode.go).
	dec decodeState
}

// NewCPU constructs a CPU over the given physical memory and port bus, with
// logf as the injected log sink: logging is an explicit dependency rather
// than a package-level global.
func NewCPU(mem *Memory, bus *Bus, logf func(string, ...any)) *CPU {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	cpu := &CPU{
		mem:  mem,
		bus:  bus,
		logf: logf,
	}
	cpu.mmu = NewMMU(mem, logf)
	cpu.Reset()
	return cpu
}

// Reset restores architectural reset state: real mode, IF clear, all GPRs
// zero, RIP zero.
func (cpu *CPU) Reset() {
	for i := range cpu.gpr {
		cpu.gpr[i] = 0
	}
	for i := range cpu.segs {
		cpu.segs[i] = 0
	}
	cpu.rip = 0
	cpu.flags = Flags{}
	cpu.cr0, cpu.cr2, cpu.cr3, cpu.cr4, cpu.efer = 0, 0, 0, 0, 0
	cpu.idtrBase, cpu.idtrLimit = 0, 0
	cpu.gdtrBase, cpu.gdtrLimit = 0, 0
	cpu.halted = false
	cpu.interruptQueue = nil
	cpu.recomputeMode()
}

func (cpu *CPU) RIP() uint64          { return cpu.rip }
func (cpu *CPU) SetRIP(v uint64)      { cpu.rip = v }
func (cpu *CPU) Mode() CPUMode        { return cpu.mode }
func (cpu *CPU) Halted() bool         { return cpu.halted }
func (cpu *CPU) CR3() uint64          { return cpu.cr3 }
func (cpu *CPU) SetCR3(v uint64)      { cpu.cr3 = v }
func (cpu *CPU) Flags() Flags         { return cpu.flags }
func (cpu *CPU) RaiseInterrupt(v int) { cpu.raiseInterrupt(v) }

// GPR returns the full 64-bit value of GPR index idx.
func (cpu *CPU) GPR(idx int) uint64 { return cpu.gpr[idx] }

// SetGPR sets the full 64-bit value of GPR index idx.
func (cpu *CPU) SetGPR(idx int, v uint64) { cpu.gpr[idx] = v }

// ReadRegByName looks up a register by its textual name for host inspection
// and diagnostics; name parsing lives here at the CPU boundary rather than
// scattered across callers.
func (cpu *CPU) ReadRegByName(name string) (uint64, bool) {
	for i, n := range gprNames64 {
		if n == name {
			return cpu.gpr[i], true
		}
	}
	switch name {
	case "rip":
		return cpu.rip, true
	case "rflags":
		return cpu.flags.Assemble(), true
	case "cr0":
		return cpu.cr0, true
	case "cr2":
		return cpu.cr2, true
	case "cr3":
		return cpu.cr3, true
	case "cr4":
		return cpu.cr4, true
	case "efer":
		return cpu.efer, true
	}
	for i, n := range segNames {
		if n == name {
			return uint64(cpu.segs[i]), true
		}
	}
	return 0, false
}

// readReg implements the register-file read side of the aliasing invariant.
// hasREX must reflect whether the current instruction
// carries a REX prefix, since that changes which physical register indices
// 4..7 name in an 8-bit context.
func (cpu *CPU) readReg(idx int, size int, hasREX bool) (uint64, error) {
	if idx < 0 || idx >= numGPR {
		return 0, newBadRegister(fmt.Sprintf("gpr#%d", idx))
	}
	switch size {
	case 1:
		if !hasREX && idx >= 4 && idx < 8 {
			return (cpu.gpr[idx-4] >> 8) & 0xFF, nil
		}
		return cpu.gpr[idx] & 0xFF, nil
	case 2:
		return cpu.gpr[idx] & 0xFFFF, nil
	case 4:
		return cpu.gpr[idx] & 0xFFFFFFFF, nil
	case 8:
		return cpu.gpr[idx], nil
	default:
		return 0, newBadOperandSize(size)
	}
}

// writeReg implements the register-file write side: 1/2-byte writes
// preserve the rest of the register; 4-byte writes zero-extend to 64 bits
// (the single most error-prone rule in this aliasing scheme); 8-byte writes
// replace it wholesale.
func (cpu *CPU) writeReg(idx int, size int, value uint64, hasREX bool) error {
	if idx < 0 || idx >= numGPR {
		return newBadRegister(fmt.Sprintf("gpr#%d", idx))
	}
	switch size {
	case 1:
		if !hasREX && idx >= 4 && idx < 8 {
			base := idx - 4
			cpu.gpr[base] = (cpu.gpr[base] &^ 0xFF00) | ((value & 0xFF) << 8)
			return nil
		}
		cpu.gpr[idx] = (cpu.gpr[idx] &^ 0xFF) | (value & 0xFF)
	case 2:
		cpu.gpr[idx] = (cpu.gpr[idx] &^ 0xFFFF) | (value & 0xFFFF)
	case 4:
		cpu.gpr[idx] = value & 0xFFFFFFFF
	case 8:
		cpu.gpr[idx] = value
	default:
		return newBadOperandSize(size)
	}
	return nil
}

// writeCR0/CR4/EFER funnel through recomputeMode so the derived CPU mode
// never goes stale.
func (cpu *CPU) writeCR0(v uint64) {
	cpu.cr0 = v
	cpu.recomputeMode()
}

func (cpu *CPU) writeCR2(v uint64) { cpu.cr2 = v }

func (cpu *CPU) writeCR3(v uint64) { cpu.cr3 = v }

func (cpu *CPU) writeCR4(v uint64) {
	cpu.cr4 = v
	cpu.recomputeMode()
}

func (cpu *CPU) writeEFER(v uint64) {
	cpu.efer = v
	cpu.recomputeMode()
}

// Step implements C7's per-call contract: interrupt check, halted check,
// else fetch/decode/execute one instruction, with page faults caught and
// redirected to vector 14 rather than propagated.
func (cpu *CPU) Step() (StepResult, error) {
	ripStart := cpu.rip

	if cpu.flags.IF {
		if vector, ok := cpu.dequeueInterrupt(); ok {
			if err := cpu.deliver(vector, 0, false); err != nil {
				return Running, err
			}
			return Running, nil
		}
	}

	if cpu.halted {
		return Halted, nil
	}

	cpu.resetDecodeState(ripStart)

	err := cpu.decodeAndExecute()
	if err != nil {
		cpu.rip = ripStart
		if cerr, ok := IsPageFault(err); ok {
			if derr := cpu.deliver(14, cerr.PageFaultCode, true); derr != nil {
				return Running, derr
			}
			return Running, nil
		}
		return Running, err
	}

	if cpu.halted {
		return Halted, nil
	}
	return Running, nil
}
