// mode64.go - Mode Manager (C9)
//
// Mode is a pure function of CR0.PE, CR0.PG, CR4.PAE and EFER.LME, recomputed
// after every write to CR0, CR4 or EFER. Grounded on cpu_x86.go's habit of
// deriving CPU state from register bits rather than caching it ad hoc (see
// its protected-mode checks), generalized here into one explicit derivation
// function instead of scattered bit tests.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package x64core

// CPUMode is the enumerated mode tag (C3).
type CPUMode int

const (
	ModeReal CPUMode = iota
	ModeProtected
	ModeProtectedPaging
	ModeProtectedPAE
	ModeLong
)

func (m CPUMode) String() string {
	switch m {
	case ModeReal:
		return "Real"
	case ModeProtected:
		return "Protected"
	case ModeProtectedPaging:
		return "ProtectedPaging"
	case ModeProtectedPAE:
		return "ProtectedPAE"
	case ModeLong:
		return "Long"
	default:
		return "Unknown"
	}
}

// Control register bit positions recognized by this core.
const (
	cr0PE uint64 = 1 << 0
	cr0PG uint64 = 1 << 31

	cr4PAE uint64 = 1 << 5

	eferLME uint64 = 1 << 8
	eferNXE uint64 = 1 << 11

	msrEFER uint64 = 0xC0000080
)

// deriveMode implements C9: mode is a pure function of CR0.PE, CR0.PG,
// CR4.PAE and EFER.LME; recomputation must always equal the last derivation
// for the same inputs.
func deriveMode(cr0, cr4, efer uint64) CPUMode {
	pe := cr0&cr0PE != 0
	pg := cr0&cr0PG != 0
	pae := cr4&cr4PAE != 0
	lme := efer&eferLME != 0

	if !pe {
		return ModeReal
	}
	if pe && pg && pae && lme {
		return ModeLong
	}
	if pe && pg && pae {
		return ModeProtectedPAE
	}
	if pe && pg {
		return ModeProtectedPaging
	}
	return ModeProtected
}

// recomputeMode refreshes cpu.mode from current CR0/CR4/EFER. Called after
// every write to any of those three registers.
func (cpu *CPU) recomputeMode() {
	cpu.mode = deriveMode(cpu.cr0, cpu.cr4, cpu.efer)
}
