// cpu64_ops.go - Instruction Executor (C7): opcode dispatch tables and the
// handlers for the documented opcode subset
//
// Two flat 256-entry function-pointer tables (one per opcode map) dispatch
// single-byte and 0F-prefixed opcodes, grounded on cpu_x86.go's
// initBaseOps()/initExtendedOps() population pattern. Opcodes that overlap
// on the same byte (Group1/2/4/5) are NOT handled here by cascading
// conditionals; they delegate to the /reg-keyed tables in cpu64_grp.go.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package x64core

var baseOps [256]func(*CPU) error
var extOps [256]func(*CPU) error

func init() {
	baseOps[0x01] = opAluEvGv(aluAdd)
	baseOps[0x03] = opAluGvEv(aluAdd)
	baseOps[0x05] = opAluAccImm(aluAdd)

	baseOps[0x09] = opAluEvGv(aluOr)
	baseOps[0x0B] = opAluGvEv(aluOr)
	baseOps[0x0C] = opAluAlImm8(aluOr)
	baseOps[0x0D] = opAluAccImm(aluOr)

	baseOps[0x21] = opAluEvGv(aluAnd)
	baseOps[0x23] = opAluGvEv(aluAnd)

	baseOps[0x29] = opAluEvGv(aluSub)
	baseOps[0x2B] = opAluGvEv(aluSub)

	baseOps[0x31] = opAluEvGv(aluXor)
	baseOps[0x33] = opAluGvEv(aluXor)

	baseOps[0x38] = opAluEbGb(aluCmp)
	baseOps[0x39] = opAluEvGv(aluCmp)
	baseOps[0x3A] = opAluGbEb(aluCmp)
	baseOps[0x3B] = opAluGvEv(aluCmp)
	baseOps[0x3C] = opAluAlImm8(aluCmp)
	baseOps[0x3D] = opAluAccImm(aluCmp)

	for r := 0; r < 8; r++ {
		baseOps[0x50+r] = opPushReg(r)
		baseOps[0x58+r] = opPopReg(r)
	}

	baseOps[0x74] = opJccRel8(condJE)
	baseOps[0x75] = opJccRel8(condJNE)
	baseOps[0x7C] = opJccRel8(condJL)
	baseOps[0x72] = opJccRel8(condJB)
	baseOps[0xEB] = opJmpRel8

	baseOps[0x81] = opGroup1(false)
	baseOps[0x83] = opGroup1(true)

	baseOps[0x84] = opTestEbGb
	baseOps[0x85] = opTestEvGv
	baseOps[0xA8] = opTestAlImm8
	baseOps[0xA9] = opTestAccImm

	baseOps[0x88] = opMovEbGb
	baseOps[0x89] = opMovEvGv
	baseOps[0x8A] = opMovGbEb
	baseOps[0x8B] = opMovGvEv
	baseOps[0x8D] = opLea
	baseOps[0x8E] = opMovSregEv
	baseOps[0x8F] = opPopRM

	baseOps[0x90] = opNop

	for r := 0; r < 8; r++ {
		baseOps[0xB0+r] = opMovRegImm8(r)
		baseOps[0xB8+r] = opMovRegImm(r)
	}

	baseOps[0xC0] = opGroup2(true)
	baseOps[0xC1] = opGroup2(false)

	baseOps[0xC2] = opRetImm16
	baseOps[0xC3] = opRet

	baseOps[0xC6] = opMovEbImm8
	baseOps[0xC7] = opMovEvImm

	baseOps[0xCF] = opIretq

	baseOps[0xE4] = opInAlImm8
	baseOps[0xE6] = opOutImm8Al
	baseOps[0xEC] = opInAlDx
	baseOps[0xEE] = opOutDxAl

	baseOps[0xE8] = opCallRel32
	baseOps[0xEA] = opJmpFarPtr16

	baseOps[0xFA] = opCli
	baseOps[0xFB] = opSti

	baseOps[0xF4] = opHlt

	baseOps[0xFE] = opGroup4
	baseOps[0xFF] = opGroup5

	baseOps[0xAC] = opLodsb

	extOps[0x01] = opGroup0F01
	extOps[0x20] = opMovRegCr
	extOps[0x22] = opMovCrReg
	extOps[0x30] = opWrmsr
	extOps[0x32] = opRdmsr
	extOps[0x84] = opJccRel32(condJE)
	extOps[0x85] = opJccRel32(condJNE)
	extOps[0xB6] = opMovzx(1)
	extOps[0xB7] = opMovzx(2)
}

// decodeAndExecute implements C5+C7's per-step fetch/decode/execute,
// consulting the correct opcode table after the prefix loop.
func (cpu *CPU) decodeAndExecute() error {
	if err := cpu.readPrefixesAndOpcode(); err != nil {
		return err
	}
	var table *[256]func(*CPU) error
	if cpu.dec.opcodeTable == 0x0F {
		table = &extOps
	} else {
		table = &baseOps
	}
	handler := table[cpu.dec.opcode]
	if handler == nil {
		return newUnknownOpcode(fmtOpcode(cpu.dec.opcodeTable, cpu.dec.opcode))
	}
	return handler(cpu)
}

func fmtOpcode(table, opcode byte) string {
	if table == 0x0F {
		return "0F " + hexByte(opcode)
	}
	return hexByte(opcode)
}

func hexByte(b byte) string {
	const hex = "0123456789ABCDEF"
	return string([]byte{hex[b>>4], hex[b&0xF]})
}

// --- ALU family (ADD/OR/AND/SUB/XOR/CMP/ADC/SBB) ---------------------------

type aluOp int

const (
	aluAdd aluOp = iota
	aluOr
	aluAdc
	aluSbb
	aluAnd
	aluSub
	aluXor
	aluCmp
)

// computeAlu returns the masked result, the flags, and whether the result
// should be written back (CMP never writes back).
func computeAlu(op aluOp, a, b uint64, carryIn bool, size int) (uint64, Flags, bool) {
	switch op {
	case aluAdd:
		r, f := AddFlags(a, b, false, size)
		return r, f, true
	case aluAdc:
		r, f := AddFlags(a, b, carryIn, size)
		return r, f, true
	case aluSub:
		r, f := SubFlags(a, b, false, size)
		return r, f, true
	case aluSbb:
		r, f := SubFlags(a, b, carryIn, size)
		return r, f, true
	case aluCmp:
		r, f := SubFlags(a, b, false, size)
		return r, f, false
	case aluAnd:
		r := a & b
		return r, LogicFlags(r, size), true
	case aluOr:
		r := a | b
		return r, LogicFlags(r, size), true
	case aluXor:
		r := a ^ b
		return r, LogicFlags(r, size), true
	default:
		return 0, Flags{}, false
	}
}

// opAluEvGv handles the "r/m, r" direction (dest r/m, src reg): opcodes
// 01/09/21/29/31/39.
func opAluEvGv(op aluOp) func(*CPU) error {
	return func(cpu *CPU) error {
		size := cpu.operandSize(false)
		if err := cpu.decodeModRM(); err != nil {
			return err
		}
		b, err := cpu.readReg(cpu.regOperand(), size, cpu.dec.hasREX)
		if err != nil {
			return err
		}
		a, err := cpu.readRM(size)
		if err != nil {
			return err
		}
		result, flags, writeBack := computeAlu(op, a, b, cpu.flags.CF, size)
		cpu.flags = flags
		if writeBack {
			return cpu.writeRM(size, result)
		}
		return nil
	}
}

// opAluEbGb is the byte-width variant (opcode 38 for CMP).
func opAluEbGb(op aluOp) func(*CPU) error {
	return func(cpu *CPU) error {
		if err := cpu.decodeModRM(); err != nil {
			return err
		}
		b, err := cpu.readReg(cpu.regOperand(), 1, cpu.dec.hasREX)
		if err != nil {
			return err
		}
		a, err := cpu.readRM(1)
		if err != nil {
			return err
		}
		result, flags, writeBack := computeAlu(op, a, b, cpu.flags.CF, 1)
		cpu.flags = flags
		if writeBack {
			return cpu.writeRM(1, result)
		}
		return nil
	}
}

// opAluGvEv handles the "r, r/m" direction (dest reg, src r/m): opcodes
// 03/0B/23/2B/33/3B.
func opAluGvEv(op aluOp) func(*CPU) error {
	return func(cpu *CPU) error {
		size := cpu.operandSize(false)
		if err := cpu.decodeModRM(); err != nil {
			return err
		}
		a, err := cpu.readReg(cpu.regOperand(), size, cpu.dec.hasREX)
		if err != nil {
			return err
		}
		b, err := cpu.readRM(size)
		if err != nil {
			return err
		}
		result, flags, writeBack := computeAlu(op, a, b, cpu.flags.CF, size)
		cpu.flags = flags
		if writeBack {
			return cpu.writeReg(cpu.regOperand(), size, result, cpu.dec.hasREX)
		}
		return nil
	}
}

func opAluGbEb(op aluOp) func(*CPU) error {
	return func(cpu *CPU) error {
		if err := cpu.decodeModRM(); err != nil {
			return err
		}
		a, err := cpu.readReg(cpu.regOperand(), 1, cpu.dec.hasREX)
		if err != nil {
			return err
		}
		b, err := cpu.readRM(1)
		if err != nil {
			return err
		}
		result, flags, writeBack := computeAlu(op, a, b, cpu.flags.CF, 1)
		cpu.flags = flags
		if writeBack {
			return cpu.writeReg(cpu.regOperand(), 1, result, cpu.dec.hasREX)
		}
		return nil
	}
}

// opAluAccImm handles the "eAX/rAX, imm32" short forms: 05/0D/2D/35/3D
// (only the ones actually wired in init() are reachable). The immediate is
// read as 16 bits at operand size 2 and as 32 bits otherwise, sign-extended
// to the operand size when it is 64 bits, matching real hardware's behavior
// for 3D generalized to the other short forms.
func opAluAccImm(op aluOp) func(*CPU) error {
	return func(cpu *CPU) error {
		size := cpu.operandSize(false)
		imm, err := cpu.fetchImmForSize(size)
		if err != nil {
			return err
		}
		a, err := cpu.readReg(RAX, size, cpu.dec.hasREX)
		if err != nil {
			return err
		}
		result, flags, writeBack := computeAlu(op, a, imm, cpu.flags.CF, size)
		cpu.flags = flags
		if writeBack {
			return cpu.writeReg(RAX, size, result, cpu.dec.hasREX)
		}
		return nil
	}
}

func opAluAlImm8(op aluOp) func(*CPU) error {
	return func(cpu *CPU) error {
		imm, err := cpu.fetchByte()
		if err != nil {
			return err
		}
		a, err := cpu.readReg(RAX, 1, cpu.dec.hasREX)
		if err != nil {
			return err
		}
		result, flags, writeBack := computeAlu(op, a, uint64(imm), cpu.flags.CF, 1)
		cpu.flags = flags
		if writeBack {
			return cpu.writeReg(RAX, 1, result, cpu.dec.hasREX)
		}
		return nil
	}
}

// fetchImmForSize reads the encoded immediate for an operand of the given
// size: 16 bits at size 2, otherwise a 32-bit field, sign-extended to 64
// bits when size is 8.
func (cpu *CPU) fetchImmForSize(size int) (uint64, error) {
	if size == 2 {
		v, err := cpu.fetchU16()
		return uint64(v), err
	}
	v, err := cpu.fetchU32()
	if err != nil {
		return 0, err
	}
	if size == 8 {
		return signExtend(uint64(v), 4), nil
	}
	return uint64(v), nil
}

// --- TEST --------------------------------------------------------------

func opTestEvGv(cpu *CPU) error {
	size := cpu.operandSize(false)
	if err := cpu.decodeModRM(); err != nil {
		return err
	}
	a, err := cpu.readRM(size)
	if err != nil {
		return err
	}
	b, err := cpu.readReg(cpu.regOperand(), size, cpu.dec.hasREX)
	if err != nil {
		return err
	}
	cpu.flags = LogicFlags(a&b, size)
	return nil
}

func opTestEbGb(cpu *CPU) error {
	if err := cpu.decodeModRM(); err != nil {
		return err
	}
	a, err := cpu.readRM(1)
	if err != nil {
		return err
	}
	b, err := cpu.readReg(cpu.regOperand(), 1, cpu.dec.hasREX)
	if err != nil {
		return err
	}
	cpu.flags = LogicFlags(a&b, 1)
	return nil
}

func opTestAlImm8(cpu *CPU) error {
	imm, err := cpu.fetchByte()
	if err != nil {
		return err
	}
	a, err := cpu.readReg(RAX, 1, cpu.dec.hasREX)
	if err != nil {
		return err
	}
	cpu.flags = LogicFlags(a&uint64(imm), 1)
	return nil
}

func opTestAccImm(cpu *CPU) error {
	size := cpu.operandSize(false)
	imm, err := cpu.fetchImmForSize(size)
	if err != nil {
		return err
	}
	a, err := cpu.readReg(RAX, size, cpu.dec.hasREX)
	if err != nil {
		return err
	}
	cpu.flags = LogicFlags(a&imm, size)
	return nil
}

// --- MOV family ----------------------------------------------------------

func opMovEvGv(cpu *CPU) error {
	size := cpu.operandSize(false)
	if err := cpu.decodeModRM(); err != nil {
		return err
	}
	v, err := cpu.readReg(cpu.regOperand(), size, cpu.dec.hasREX)
	if err != nil {
		return err
	}
	return cpu.writeRM(size, v)
}

func opMovEbGb(cpu *CPU) error {
	if err := cpu.decodeModRM(); err != nil {
		return err
	}
	v, err := cpu.readReg(cpu.regOperand(), 1, cpu.dec.hasREX)
	if err != nil {
		return err
	}
	return cpu.writeRM(1, v)
}

func opMovGvEv(cpu *CPU) error {
	size := cpu.operandSize(false)
	if err := cpu.decodeModRM(); err != nil {
		return err
	}
	v, err := cpu.readRM(size)
	if err != nil {
		return err
	}
	return cpu.writeReg(cpu.regOperand(), size, v, cpu.dec.hasREX)
}

func opMovGbEb(cpu *CPU) error {
	if err := cpu.decodeModRM(); err != nil {
		return err
	}
	v, err := cpu.readRM(1)
	if err != nil {
		return err
	}
	return cpu.writeReg(cpu.regOperand(), 1, v, cpu.dec.hasREX)
}

func opLea(cpu *CPU) error {
	size := cpu.operandSize(false)
	if err := cpu.decodeModRM(); err != nil {
		return err
	}
	addr := cpu.rmAddr()
	return cpu.writeReg(cpu.regOperand(), size, addr, cpu.dec.hasREX)
}

func opMovSregEv(cpu *CPU) error {
	if err := cpu.decodeModRM(); err != nil {
		return err
	}
	v, err := cpu.readRM(2)
	if err != nil {
		return err
	}
	idx := cpu.regOperand() & 0x7
	if idx >= numSeg {
		return newBadRegister("segment register out of range")
	}
	cpu.segs[idx] = uint16(v)
	return nil
}

func opMovRegImm8(r int) func(*CPU) error {
	return func(cpu *CPU) error {
		idx := r
		if cpu.dec.rexB {
			idx += 8
		}
		imm, err := cpu.fetchByte()
		if err != nil {
			return err
		}
		return cpu.writeReg(idx, 1, uint64(imm), cpu.dec.hasREX)
	}
}

func opMovRegImm(r int) func(*CPU) error {
	return func(cpu *CPU) error {
		idx := r
		if cpu.dec.rexB {
			idx += 8
		}
		size := cpu.operandSize(false)
		var imm uint64
		var err error
		switch size {
		case 2:
			var v uint16
			v, err = cpu.fetchU16()
			imm = uint64(v)
		case 4:
			var v uint32
			v, err = cpu.fetchU32()
			imm = uint64(v)
		case 8:
			imm, err = cpu.fetchU64()
		}
		if err != nil {
			return err
		}
		return cpu.writeReg(idx, size, imm, cpu.dec.hasREX)
	}
}

func opMovEbImm8(cpu *CPU) error {
	if err := cpu.decodeModRM(); err != nil {
		return err
	}
	imm, err := cpu.fetchByte()
	if err != nil {
		return err
	}
	return cpu.writeRM(1, uint64(imm))
}

func opMovEvImm(cpu *CPU) error {
	size := cpu.operandSize(false)
	if err := cpu.decodeModRM(); err != nil {
		return err
	}
	imm, err := cpu.fetchImmForSize(size)
	if err != nil {
		return err
	}
	return cpu.writeRM(size, imm)
}

func opPopRM(cpu *CPU) error {
	if err := cpu.decodeModRM(); err != nil {
		return err
	}
	// Reads from [RSP] and adjusts RSP before writing to the operand, so a
	// POP that targets its own stack slot (e.g. pop [rsp]) observes the
	// pre-pop value rather than a value already overwritten by the write.
	v, err := cpu.pop64()
	if err != nil {
		return err
	}
	return cpu.writeRM(8, v)
}

func opNop(cpu *CPU) error { return nil }

// --- PUSH/POP reg ----------------------------------------------------------

func (cpu *CPU) stackSlotSize() int {
	if cpu.mode == ModeLong {
		return 8
	}
	return cpu.operandSize(false)
}

func (cpu *CPU) push64(v uint64) error {
	size := cpu.stackSlotSize()
	cpu.gpr[RSP] -= uint64(size)
	return cpu.writeMem(cpu.gpr[RSP], size, v)
}

func (cpu *CPU) pop64() (uint64, error) {
	size := cpu.stackSlotSize()
	v, err := cpu.readMem(cpu.gpr[RSP], size, AccessRead)
	if err != nil {
		return 0, err
	}
	cpu.gpr[RSP] += uint64(size)
	return v, nil
}

func opPushReg(r int) func(*CPU) error {
	return func(cpu *CPU) error {
		idx := r
		if cpu.dec.rexB {
			idx += 8
		}
		return cpu.push64(cpu.gpr[idx])
	}
}

func opPopReg(r int) func(*CPU) error {
	return func(cpu *CPU) error {
		idx := r
		if cpu.dec.rexB {
			idx += 8
		}
		v, err := cpu.pop64()
		if err != nil {
			return err
		}
		cpu.gpr[idx] = v
		return nil
	}
}

// --- Conditional/unconditional jumps ---------------------------------------

type condFunc func(Flags) bool

func condJE(f Flags) bool  { return f.ZF }
func condJNE(f Flags) bool { return !f.ZF }
func condJL(f Flags) bool  { return f.SF != f.OF }
func condJB(f Flags) bool  { return f.CF }

func opJccRel8(cond condFunc) func(*CPU) error {
	return func(cpu *CPU) error {
		rel, err := cpu.fetchByte()
		if err != nil {
			return err
		}
		if cond(cpu.flags) {
			cpu.rip = uint64(int64(cpu.rip) + int64(int8(rel)))
		}
		return nil
	}
}

func opJmpRel8(cpu *CPU) error {
	rel, err := cpu.fetchByte()
	if err != nil {
		return err
	}
	cpu.rip = uint64(int64(cpu.rip) + int64(int8(rel)))
	return nil
}

func opJccRel32(cond condFunc) func(*CPU) error {
	return func(cpu *CPU) error {
		rel, err := cpu.fetchU32()
		if err != nil {
			return err
		}
		if cond(cpu.flags) {
			cpu.rip = uint64(int64(cpu.rip) + int64(int32(rel)))
		}
		return nil
	}
}

// --- CALL/RET/far JMP --------------------------------------------------

func opCallRel32(cpu *CPU) error {
	rel, err := cpu.fetchU32()
	if err != nil {
		return err
	}
	returnAddr := cpu.rip // post-instruction RIP: nothing follows the disp32
	target := uint64(int64(returnAddr) + int64(int32(rel)))
	if err := cpu.push64(returnAddr); err != nil {
		return err
	}
	cpu.rip = target
	return nil
}

func opJmpFarPtr16(cpu *CPU) error {
	offset, err := cpu.fetchU16()
	if err != nil {
		return err
	}
	selector, err := cpu.fetchU16()
	if err != nil {
		return err
	}
	cpu.segs[SegCS] = selector
	cpu.rip = uint64(offset)
	return nil
}

func opRet(cpu *CPU) error {
	v, err := cpu.pop64()
	if err != nil {
		return err
	}
	cpu.rip = v
	return nil
}

func opRetImm16(cpu *CPU) error {
	imm, err := cpu.fetchU16()
	if err != nil {
		return err
	}
	v, err := cpu.pop64()
	if err != nil {
		return err
	}
	cpu.rip = v
	cpu.gpr[RSP] += uint64(imm)
	return nil
}

// --- misc: CLI/STI/HLT/LODSB/MOVZX/IRETQ ------------------------------------

func opCli(cpu *CPU) error { cpu.flags.IF = false; return nil }
func opSti(cpu *CPU) error { cpu.flags.IF = true; return nil }
func opHlt(cpu *CPU) error { cpu.halted = true; return nil }

func opLodsb(cpu *CPU) error {
	v, err := cpu.readMem(cpu.gpr[RSI], 1, AccessRead)
	if err != nil {
		return err
	}
	if err := cpu.writeReg(RAX, 1, v, cpu.dec.hasREX); err != nil {
		return err
	}
	cpu.gpr[RSI]++
	return nil
}

func opMovzx(srcSize int) func(*CPU) error {
	return func(cpu *CPU) error {
		dstSize := cpu.operandSize(false)
		if err := cpu.decodeModRM(); err != nil {
			return err
		}
		v, err := cpu.readRM(srcSize)
		if err != nil {
			return err
		}
		return cpu.writeReg(cpu.regOperand(), dstSize, v, cpu.dec.hasREX)
	}
}

func opIretq(cpu *CPU) error {
	return cpu.iretq()
}

// --- port I/O ----------------------------------------------------------

func opInAlImm8(cpu *CPU) error {
	port, err := cpu.fetchByte()
	if err != nil {
		return err
	}
	v, err := cpu.bus.PortIn(uint16(port), 1)
	if err != nil {
		return err
	}
	return cpu.writeReg(RAX, 1, uint64(v), cpu.dec.hasREX)
}

func opOutImm8Al(cpu *CPU) error {
	port, err := cpu.fetchByte()
	if err != nil {
		return err
	}
	al, err := cpu.readReg(RAX, 1, cpu.dec.hasREX)
	if err != nil {
		return err
	}
	return cpu.bus.PortOut(uint16(port), 1, uint32(al))
}

func opInAlDx(cpu *CPU) error {
	dx := cpu.gpr[RDX] & 0xFFFF
	v, err := cpu.bus.PortIn(uint16(dx), 1)
	if err != nil {
		return err
	}
	return cpu.writeReg(RAX, 1, uint64(v), cpu.dec.hasREX)
}

func opOutDxAl(cpu *CPU) error {
	dx := cpu.gpr[RDX] & 0xFFFF
	al, err := cpu.readReg(RAX, 1, cpu.dec.hasREX)
	if err != nil {
		return err
	}
	return cpu.bus.PortOut(uint16(dx), 1, uint32(al))
}

// --- 0F-prefixed: LGDT/LIDT, MOV CRn, WRMSR/RDMSR ---------------------------

func opGroup0F01(cpu *CPU) error {
	if err := cpu.decodeModRM(); err != nil {
		return err
	}
	switch cpu.dec.regField {
	case 2: // LGDT
		base, limit, err := cpu.readDescriptor()
		if err != nil {
			return err
		}
		cpu.gdtrBase, cpu.gdtrLimit = base, limit
		return nil
	case 3: // LIDT
		base, limit, err := cpu.readDescriptor()
		if err != nil {
			return err
		}
		cpu.idtrBase, cpu.idtrLimit = base, limit
		return nil
	default:
		return newUnknownOpcode("0F 01 /" + string(rune('0'+cpu.dec.regField)))
	}
}

// readDescriptor reads the {limit: u16, base: u64} pair pointed to by the
// r/m memory operand, the memory layout LGDT/LIDT expect.
func (cpu *CPU) readDescriptor() (base uint64, limit uint16, err error) {
	addr := cpu.rmAddr()
	l, err := cpu.readMem(addr, 2, AccessRead)
	if err != nil {
		return 0, 0, err
	}
	b, err := cpu.readMem(addr+2, 8, AccessRead)
	if err != nil {
		return 0, 0, err
	}
	return b, uint16(l), nil
}

func opMovRegCr(cpu *CPU) error {
	if err := cpu.decodeModRM(); err != nil {
		return err
	}
	if !cpu.dec.rmIsReg {
		return newBadOperandSize(0)
	}
	v, err := cpu.readCR(cpu.dec.regField)
	if err != nil {
		return err
	}
	return cpu.writeReg(cpu.dec.rmRegIdx, 8, v, cpu.dec.hasREX)
}

func opMovCrReg(cpu *CPU) error {
	if err := cpu.decodeModRM(); err != nil {
		return err
	}
	if !cpu.dec.rmIsReg {
		return newBadOperandSize(0)
	}
	v, err := cpu.readReg(cpu.dec.rmRegIdx, 8, cpu.dec.hasREX)
	if err != nil {
		return err
	}
	return cpu.writeCR(cpu.dec.regField, v)
}

func (cpu *CPU) readCR(n int) (uint64, error) {
	switch n {
	case 0:
		return cpu.cr0, nil
	case 2:
		return cpu.cr2, nil
	case 3:
		return cpu.cr3, nil
	case 4:
		return cpu.cr4, nil
	default:
		return 0, newBadRegister("cr" + string(rune('0'+n)))
	}
}

func (cpu *CPU) writeCR(n int, v uint64) error {
	switch n {
	case 0:
		cpu.writeCR0(v)
	case 2:
		cpu.writeCR2(v)
	case 3:
		cpu.writeCR3(v)
	case 4:
		cpu.writeCR4(v)
	default:
		return newBadRegister("cr" + string(rune('0'+n)))
	}
	return nil
}

func opWrmsr(cpu *CPU) error {
	msr := cpu.gpr[RCX] & 0xFFFFFFFF
	value := (cpu.gpr[RDX]&0xFFFFFFFF)<<32 | (cpu.gpr[RAX] & 0xFFFFFFFF)
	if msr == msrEFER {
		cpu.writeEFER(value)
		return nil
	}
	cpu.logf("WRMSR: unrecognized MSR 0x%x (value=0x%x) ignored", msr, value)
	return nil
}

func opRdmsr(cpu *CPU) error {
	msr := cpu.gpr[RCX] & 0xFFFFFFFF
	var value uint64
	if msr == msrEFER {
		value = cpu.efer
	} else {
		cpu.logf("RDMSR: unrecognized MSR 0x%x, returning 0", msr)
	}
	cpu.gpr[RAX] = value & 0xFFFFFFFF
	cpu.gpr[RDX] = (value >> 32) & 0xFFFFFFFF
	return nil
}
