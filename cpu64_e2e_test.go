// cpu64_e2e_test.go - end-to-end boot-sequence scenarios, assembled as raw
// instruction bytes and driven through Step().
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package x64core

import "testing"

// armLongMode puts cpu into Long mode with identity paging disabled (real
// addresses == physical addresses), matching a bootstrap that arms Long
// mode before paging is built.
func armLongMode(cpu *CPU) {
	cpu.writeCR0(cr0PE | cr0PG)
	cpu.writeCR4(cr4PAE)
	cpu.writeEFER(eferLME)
}

func stepN(t *testing.T, cpu *CPU, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if _, err := cpu.Step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
}

func TestE2EArithmeticAndCompares(t *testing.T) {
	cpu := newTestCPU()
	armLongMode(cpu)
	cpu.gpr[RSP] = 0x9000

	code := []byte{
		0x48, 0xB8, 5, 0, 0, 0, 0, 0, 0, 0, // mov rax, 5
		0x48, 0xBB, 3, 0, 0, 0, 0, 0, 0, 0, // mov rbx, 3
		0x48, 0x01, 0xD8, // add rax, rbx
		0xB9, 0xFF, 0xFF, 0xFF, 0xFF, // mov ecx, 0xFFFFFFFF
		0xBA, 0x01, 0x00, 0x00, 0x00, // mov edx, 1
		0x29, 0xD1, // sub ecx, edx
	}
	if err := cpu.mem.Load(0x1000, code); err != nil {
		t.Fatalf("load: %v", err)
	}
	cpu.SetRIP(0x1000)

	stepN(t, cpu, 6)

	if cpu.gpr[RAX] != 8 {
		t.Errorf("RAX = %d, want 8", cpu.gpr[RAX])
	}
	if cpu.gpr[RCX] != 0x00000000FFFFFFFE {
		t.Errorf("RCX = 0x%x, want 0x00000000FFFFFFFE", cpu.gpr[RCX])
	}
	if !cpu.flags.SF {
		t.Errorf("SF not set after SUB")
	}
}

func TestE2EConditionalJumpTaken(t *testing.T) {
	cpu := newTestCPU()
	armLongMode(cpu)
	cpu.gpr[RAX] = 5
	cpu.gpr[RBX] = 5

	code := []byte{
		0x48, 0x39, 0xD8, // cmp rax, rbx
		0x74, 0x05, // je +5
	}
	if err := cpu.mem.Load(0x1000, code); err != nil {
		t.Fatalf("load: %v", err)
	}
	cpu.SetRIP(0x1000)
	stepN(t, cpu, 2)

	if !cpu.flags.ZF {
		t.Errorf("ZF not set after CMP of equal operands")
	}
	if want := uint64(0x1000 + len(code) + 5); cpu.RIP() != want {
		t.Errorf("RIP = 0x%x, want 0x%x (jump taken)", cpu.RIP(), want)
	}
}

func TestE2EConditionalJumpNotEqualTaken(t *testing.T) {
	cpu := newTestCPU()
	armLongMode(cpu)
	cpu.gpr[RAX] = 0x10
	cpu.gpr[RBX] = 5

	code := []byte{
		0x48, 0x39, 0xD8, // cmp rax, rbx
		0x75, 0x03, // jne +3
	}
	if err := cpu.mem.Load(0x1000, code); err != nil {
		t.Fatalf("load: %v", err)
	}
	cpu.SetRIP(0x1000)
	stepN(t, cpu, 2)

	if want := uint64(0x1000 + len(code) + 3); cpu.RIP() != want {
		t.Errorf("RIP = 0x%x, want 0x%x (jne taken)", cpu.RIP(), want)
	}
}

func TestE2ECallRetRoundTrip(t *testing.T) {
	cpu := newTestCPU()
	armLongMode(cpu)
	cpu.gpr[RSP] = 0x9000
	startRSP := cpu.gpr[RSP]

	// 0x1000: call 0x1010 ; (5 bytes, E8 + rel32)
	// 0x1005: next instruction after call (nop)
	// 0x1010: ret
	code := make([]byte, 0x20)
	code[0] = 0xE8
	rel := int32(0x1010 - 0x1005)
	code[1] = byte(rel)
	code[2] = byte(rel >> 8)
	code[3] = byte(rel >> 16)
	code[4] = byte(rel >> 24)
	code[5] = 0x90 // nop, landing spot after ret
	code[0x10] = 0xC3

	if err := cpu.mem.Load(0x1000, code); err != nil {
		t.Fatalf("load: %v", err)
	}
	cpu.SetRIP(0x1000)

	stepN(t, cpu, 2) // call, ret

	if cpu.RIP() != 0x1005 {
		t.Errorf("RIP after ret = 0x%x, want 0x1005", cpu.RIP())
	}
	if cpu.gpr[RSP] != startRSP {
		t.Errorf("RSP = 0x%x, want 0x%x (restored)", cpu.gpr[RSP], startRSP)
	}
}

func TestE2EPagingSmoke(t *testing.T) {
	mem := NewMemory(4 * 1024 * 1024)
	pml4, err := SetupIdentityPaging(mem, 0, 0, 0x200000, 0x200000)
	if err != nil {
		t.Fatalf("SetupIdentityPaging: %v", err)
	}
	bus := NewBus(nil)
	cpu := NewCPU(mem, bus, nil)
	armLongMode(cpu)
	cpu.SetCR3(pml4)

	phys, err := cpu.mmu.Translate(cpu.Mode(), cpu.CR3(), 0x7C00, 1, AccessExecute)
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if phys != 0x7C00 {
		t.Errorf("translate(0x7C00) = 0x%x, want identity", phys)
	}

	if err := cpu.writeMem(0x1000, 2, 0xDEAD); err != nil {
		t.Fatalf("writeMem: %v", err)
	}
	v, err := cpu.readMem(0x1000, 2, AccessRead)
	if err != nil {
		t.Fatalf("readMem: %v", err)
	}
	if v != 0xDEAD {
		t.Errorf("readMem = 0x%x, want 0xDEAD", v)
	}
}

func TestE2EPageFaultDelivery(t *testing.T) {
	cpu := newTestCPU()
	armLongMode(cpu)
	// Identity-map only the low 64KiB (code, stack and IDT all live there);
	// 0x00100000 is deliberately left outside this range so the MOV below
	// still faults, while the IDT-gate read and the fault's own stack push
	// (both MMU-translated) land on mapped pages and succeed.
	pml4, err := SetupIdentityPaging(cpu.mem, 0, 0, 0x10000, 0x50000)
	if err != nil {
		t.Fatalf("SetupIdentityPaging: %v", err)
	}
	cpu.SetCR3(pml4)
	cpu.gpr[RSP] = 0x9000

	const handler = 0x2000
	// IDT at 0, vector 14 gate at 14*16: offset low16 @0, selector @2,
	// attr byte @5 (present=0x80), offset mid16 @6, offset hi32 @8.
	idtBase := uint64(0)
	gateAddr := idtBase + 14*16
	if err := cpu.mem.WriteU16(gateAddr+0, uint16(handler&0xFFFF)); err != nil {
		t.Fatal(err)
	}
	if err := cpu.mem.WriteU16(gateAddr+2, 0x08); err != nil {
		t.Fatal(err)
	}
	if err := cpu.mem.WriteU8(gateAddr+5, 0x80); err != nil {
		t.Fatal(err)
	}
	if err := cpu.mem.WriteU16(gateAddr+6, uint16((handler>>16)&0xFFFF)); err != nil {
		t.Fatal(err)
	}
	if err := cpu.mem.WriteU32(gateAddr+8, uint32(handler>>32)); err != nil {
		t.Fatal(err)
	}
	cpu.idtrBase = idtBase

	// A MOV that touches a virtual address outside the identity-mapped
	// range triggers #PF inside the MMU walk (no page table entry was ever
	// written for it, so it reads back not-present).
	code := []byte{0x48, 0xC7, 0x04, 0x25, 0x00, 0x00, 0x10, 0x00, 0xAD, 0xDE, 0x00, 0x00}
	// mov qword [0x00100000], 0xDEAD  (ModRM 04 25 disp32, imm32)
	if err := cpu.mem.Load(0x1000, code); err != nil {
		t.Fatal(err)
	}
	cpu.SetRIP(0x1000)
	rspBefore := cpu.gpr[RSP]

	if _, err := cpu.Step(); err != nil {
		t.Fatalf("step should absorb the page fault, got error: %v", err)
	}

	if cpu.RIP() != handler {
		t.Errorf("RIP = 0x%x, want handler 0x%x", cpu.RIP(), handler)
	}
	if got := rspBefore - cpu.gpr[RSP]; got != 5*8 {
		t.Errorf("RSP decreased by %d bytes, want 40 (5 qwords)", got)
	}
}

func TestE2EHaltWithPendingInterrupt(t *testing.T) {
	cpu := newTestCPU()
	armLongMode(cpu)
	cpu.gpr[RSP] = 0x9000
	cpu.flags.IF = true

	const handler = 0x3000
	gateAddr := uint64(32 * 16)
	if err := cpu.mem.WriteU16(gateAddr+0, uint16(handler&0xFFFF)); err != nil {
		t.Fatal(err)
	}
	if err := cpu.mem.WriteU8(gateAddr+5, 0x80); err != nil {
		t.Fatal(err)
	}

	if err := cpu.mem.Load(0x1000, []byte{0xF4}); err != nil { // HLT
		t.Fatal(err)
	}
	cpu.SetRIP(0x1000)

	result, err := cpu.Step()
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if result != Halted {
		t.Fatalf("expected Halted after HLT, got %s", result)
	}

	cpu.RaiseInterrupt(32)
	result, err = cpu.Step()
	if err != nil {
		t.Fatalf("step after raise_interrupt: %v", err)
	}
	if result != Running {
		t.Errorf("expected Running after interrupt delivery, got %s", result)
	}
	if cpu.Halted() {
		t.Errorf("halted should be cleared after interrupt delivery")
	}
	if cpu.RIP() != handler {
		t.Errorf("RIP = 0x%x, want handler 0x%x", cpu.RIP(), handler)
	}
}
