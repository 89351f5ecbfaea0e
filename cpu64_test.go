// cpu64_test.go - register file, flags and mode manager tests
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package x64core

import "testing"

func newTestCPU() *CPU {
	mem := NewMemory(1 << 20)
	bus := NewBus(nil)
	return NewCPU(mem, bus, nil)
}

func TestRegisterAliasingDwordWriteZeroExtends(t *testing.T) {
	cpu := newTestCPU()
	cpu.gpr[RAX] = 0xFFFFFFFFFFFFFFFF

	if err := cpu.writeReg(RAX, 4, 0x12345678, false); err != nil {
		t.Fatalf("writeReg: %v", err)
	}
	if got := cpu.gpr[RAX]; got != 0x12345678 {
		t.Errorf("dword write did not zero-extend: got 0x%x, want 0x12345678", got)
	}
}

func TestRegisterAliasingByteWordPreserveUpperBits(t *testing.T) {
	cpu := newTestCPU()
	cpu.gpr[RBX] = 0x1122334455667788

	if err := cpu.writeReg(RBX, 1, 0xAA, false); err != nil {
		t.Fatalf("writeReg byte: %v", err)
	}
	if got := cpu.gpr[RBX]; got != 0x11223344556677AA {
		t.Errorf("byte write disturbed upper bits: got 0x%x", got)
	}

	cpu.gpr[RBX] = 0x1122334455667788
	if err := cpu.writeReg(RBX, 2, 0xBEEF, false); err != nil {
		t.Fatalf("writeReg word: %v", err)
	}
	if got := cpu.gpr[RBX]; got != 0x112233445566BEEF {
		t.Errorf("word write disturbed upper bits: got 0x%x", got)
	}
}

func TestRegisterAliasingHighByteWithoutREX(t *testing.T) {
	cpu := newTestCPU()
	cpu.gpr[RAX] = 0 // AH aliases index 4 when no REX is present

	if err := cpu.writeReg(4, 1, 0x7F, false); err != nil {
		t.Fatalf("writeReg AH: %v", err)
	}
	if got := cpu.gpr[RAX]; got != 0x7F00 {
		t.Errorf("AH write landed wrong: got 0x%x, want 0x7F00", got)
	}

	v, err := cpu.readReg(4, 1, false)
	if err != nil {
		t.Fatalf("readReg AH: %v", err)
	}
	if v != 0x7F {
		t.Errorf("AH read back wrong: got 0x%x", v)
	}
}

func TestRegisterAliasingSPLWithREX(t *testing.T) {
	cpu := newTestCPU()
	cpu.gpr[RSP] = 0x1234

	if err := cpu.writeReg(4, 1, 0x99, true); err != nil {
		t.Fatalf("writeReg SPL: %v", err)
	}
	if got := cpu.gpr[RSP]; got != 0x1299 {
		t.Errorf("REX-present byte write should hit SPL (low byte of RSP): got 0x%x", got)
	}
}

func TestFlagsAddOverflow(t *testing.T) {
	result, flags := AddFlags(0x7FFFFFFFFFFFFFFF, 1, false, 8)
	if result != 0x8000000000000000 {
		t.Errorf("result = 0x%x, want 0x8000000000000000", result)
	}
	if !flags.OF || !flags.SF || flags.CF || flags.ZF {
		t.Errorf("flags = %+v, want OF=1 SF=1 CF=0 ZF=0", flags)
	}
}

func TestFlagsSubOverflow(t *testing.T) {
	result, flags := SubFlags(0x8000000000000000, 1, false, 8)
	if result != 0x7FFFFFFFFFFFFFFF {
		t.Errorf("result = 0x%x, want 0x7FFFFFFFFFFFFFFF", result)
	}
	// 0x8000000000000000 >= 1 unsigned, so no borrow: CF=0.
	if !flags.OF || flags.SF || flags.CF || flags.ZF {
		t.Errorf("flags = %+v, want OF=1 SF=0 CF=0 ZF=0", flags)
	}
}

func TestFlagsLogicAndZero(t *testing.T) {
	flags := LogicFlags(0xF0F0&0x0F0F, 2)
	if !flags.ZF || flags.SF || false {
		t.Errorf("flags = %+v, want ZF=1 SF=0", flags)
	}
}

func TestFlagsAddSelfNegation(t *testing.T) {
	a := uint64(12345)
	neg := (^a + 1) & 0xFFFFFFFF
	_, flags := AddFlags(a, neg, false, 4)
	if !flags.ZF {
		t.Errorf("ADD a,(-a) should set ZF, got %+v", flags)
	}
}

func TestFlagsAdd64BitUnsignedOverflow(t *testing.T) {
	result, flags := AddFlags(0xFFFFFFFFFFFFFFFF, 1, false, 8)
	if result != 0 {
		t.Errorf("result = 0x%x, want 0", result)
	}
	if !flags.CF || !flags.ZF || flags.SF || flags.OF {
		t.Errorf("flags = %+v, want CF=1 ZF=1 SF=0 OF=0", flags)
	}
}

func TestFlagsAddSelfNegation64(t *testing.T) {
	a := uint64(12345)
	neg := ^a + 1
	_, flags := AddFlags(a, neg, false, 8)
	if !flags.ZF || !flags.CF {
		t.Errorf("ADD a,(-a) at size 8 should set ZF and CF, got %+v", flags)
	}
}

func TestModeFunctionPurity(t *testing.T) {
	cases := []struct {
		cr0, cr4, efer uint64
		want           CPUMode
	}{
		{0, 0, 0, ModeReal},
		{cr0PE, 0, 0, ModeProtected},
		{cr0PE | cr0PG, 0, 0, ModeProtectedPaging},
		{cr0PE | cr0PG, cr4PAE, 0, ModeProtectedPAE},
		{cr0PE | cr0PG, cr4PAE, eferLME, ModeLong},
	}
	for _, c := range cases {
		got := deriveMode(c.cr0, c.cr4, c.efer)
		if got != c.want {
			t.Errorf("deriveMode(0x%x,0x%x,0x%x) = %s, want %s", c.cr0, c.cr4, c.efer, got, c.want)
		}
		// recomputation must equal the direct derivation (purity).
		if again := deriveMode(c.cr0, c.cr4, c.efer); again != got {
			t.Errorf("deriveMode not idempotent: %s vs %s", got, again)
		}
	}
}

func TestAddBoundaryMaxPositiveOverflow(t *testing.T) {
	cpu := newTestCPU()
	armLongMode(cpu)
	cpu.gpr[RSP] = 0x9000

	code := []byte{
		0x48, 0xB8, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x7F, // mov rax, 0x7FFFFFFFFFFFFFFF
		0x48, 0x83, 0xC0, 0x01, // add rax, 1
	}
	if err := cpu.mem.Load(0x1000, code); err != nil {
		t.Fatalf("load: %v", err)
	}
	cpu.SetRIP(0x1000)
	stepN(t, cpu, 2)

	if cpu.gpr[RAX] != 0x8000000000000000 {
		t.Errorf("RAX = 0x%x, want 0x8000000000000000", cpu.gpr[RAX])
	}
	if !cpu.flags.OF || !cpu.flags.SF || cpu.flags.CF || cpu.flags.ZF {
		t.Errorf("flags = %+v, want OF=1 SF=1 CF=0 ZF=0", cpu.flags)
	}
}

func TestSubBoundaryMinNegativeUnderflow(t *testing.T) {
	cpu := newTestCPU()
	armLongMode(cpu)
	cpu.gpr[RSP] = 0x9000

	code := []byte{
		0x48, 0xB8, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x80, // mov rax, 0x8000000000000000
		0x48, 0x83, 0xE8, 0x01, // sub rax, 1
	}
	if err := cpu.mem.Load(0x1000, code); err != nil {
		t.Fatalf("load: %v", err)
	}
	cpu.SetRIP(0x1000)
	stepN(t, cpu, 2)

	if cpu.gpr[RAX] != 0x7FFFFFFFFFFFFFFF {
		t.Errorf("RAX = 0x%x, want 0x7FFFFFFFFFFFFFFF", cpu.gpr[RAX])
	}
	if !cpu.flags.OF || cpu.flags.SF || cpu.flags.CF || cpu.flags.ZF {
		t.Errorf("flags = %+v, want OF=1 SF=0 CF=0 ZF=0", cpu.flags)
	}
}

func TestAndBoundaryDisjointBitsClearsToZero(t *testing.T) {
	cpu := newTestCPU()
	armLongMode(cpu)
	cpu.gpr[RSP] = 0x9000

	code := []byte{
		0x66, 0xB8, 0xF0, 0xF0, // mov ax, 0xF0F0
		0x66, 0xB9, 0x0F, 0x0F, // mov cx, 0x0F0F
		0x66, 0x21, 0xC1, // and cx, ax
	}
	if err := cpu.mem.Load(0x1000, code); err != nil {
		t.Fatalf("load: %v", err)
	}
	cpu.SetRIP(0x1000)
	stepN(t, cpu, 3)

	if got := cpu.gpr[RCX] & 0xFFFF; got != 0 {
		t.Errorf("CX = 0x%x, want 0", got)
	}
	if !cpu.flags.ZF || cpu.flags.SF || cpu.flags.CF || cpu.flags.OF {
		t.Errorf("flags = %+v, want ZF=1 SF=0 CF=0 OF=0", cpu.flags)
	}
}

func TestStackRoundTripPushPop(t *testing.T) {
	cpu := newTestCPU()
	armLongMode(cpu)
	cpu.gpr[RSP] = 0x9000
	startRSP := cpu.gpr[RSP]
	cpu.gpr[RAX] = 0x1111111111111111
	cpu.gpr[RCX] = 0x2222222222222222
	wantRAX, wantRCX := cpu.gpr[RAX], cpu.gpr[RCX]

	// push rax; push rcx; pop rcx; pop rax
	code := []byte{0x50, 0x51, 0x59, 0x58}
	if err := cpu.mem.Load(0x1000, code); err != nil {
		t.Fatalf("load: %v", err)
	}
	cpu.SetRIP(0x1000)
	stepN(t, cpu, 4)

	if cpu.gpr[RAX] != wantRAX {
		t.Errorf("RAX = 0x%x, want 0x%x", cpu.gpr[RAX], wantRAX)
	}
	if cpu.gpr[RCX] != wantRCX {
		t.Errorf("RCX = 0x%x, want 0x%x", cpu.gpr[RCX], wantRCX)
	}
	if cpu.gpr[RSP] != startRSP {
		t.Errorf("RSP = 0x%x, want 0x%x (restored)", cpu.gpr[RSP], startRSP)
	}
}

// setupDecodeIdempotenceCPU builds an identical starting machine for the
// two runs compared by TestDecodingIdempotence.
func setupDecodeIdempotenceCPU() *CPU {
	cpu := newTestCPU()
	armLongMode(cpu)
	cpu.gpr[RSP] = 0x9000
	cpu.gpr[RAX] = 7
	cpu.gpr[RBX] = 2

	code := []byte{
		0x48, 0x01, 0xD8, // add rax, rbx
		0x48, 0x39, 0xD8, // cmp rax, rbx
		0x75, 0x02, // jne +2
		0x90, 0x90, // nop nop (skipped)
		0xF4, // hlt
	}
	if err := cpu.mem.Load(0x1000, code); err != nil {
		panic(err)
	}
	cpu.SetRIP(0x1000)
	return cpu
}

func TestDecodingIdempotence(t *testing.T) {
	a := setupDecodeIdempotenceCPU()
	b := setupDecodeIdempotenceCPU()

	for i := 0; i < 4; i++ {
		ra, erra := a.Step()
		rb, errb := b.Step()
		if (erra == nil) != (errb == nil) {
			t.Fatalf("step %d: error mismatch: %v vs %v", i, erra, errb)
		}
		if ra != rb {
			t.Fatalf("step %d: result mismatch: %s vs %s", i, ra, rb)
		}
		if a.RIP() != b.RIP() {
			t.Fatalf("step %d: RIP diverged: 0x%x vs 0x%x", i, a.RIP(), b.RIP())
		}
		if a.gpr != b.gpr {
			t.Fatalf("step %d: register files diverged: %+v vs %+v", i, a.gpr, b.gpr)
		}
		if a.flags != b.flags {
			t.Fatalf("step %d: flags diverged: %+v vs %+v", i, a.flags, b.flags)
		}
		if ra == Halted {
			break
		}
	}
}

func TestUnknownOpcodeLeavesRIPUnchanged(t *testing.T) {
	cpu := newTestCPU()
	cpu.writeCR0(cr0PE)
	cpu.writeCR4(cr4PAE)
	cpu.writeEFER(eferLME)
	cpu.gpr[RSP] = 0x9000

	// 0x0F 0xFF is not wired into extOps.
	if err := cpu.mem.Load(0x1000, []byte{0x0F, 0xFF}); err != nil {
		t.Fatalf("load: %v", err)
	}
	cpu.SetRIP(0x1000)

	_, err := cpu.Step()
	if err == nil {
		t.Fatalf("expected error for unknown opcode")
	}
	if cpu.RIP() != 0x1000 {
		t.Errorf("RIP changed on unknown opcode: got 0x%x, want 0x1000", cpu.RIP())
	}
}
