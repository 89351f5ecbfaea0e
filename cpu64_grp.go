// cpu64_grp.go - two-level (opcode, /reg) dispatch for the overlapping
// opcode groups: Group1 (81/83), Group2 (C0/C1), Group4 (FE) and Group5
// (FF).
//
// Grounded on cpu_x86_grp.go's Grp1-5 tables, which dispatch on the ModR/M
// reg field via a map/array keyed by /reg rather than a cascade of
// conditionals. Generalized here to 64-bit operand size and REX.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package x64core

var group1Ops = [8]aluOp{aluAdd, aluOr, aluAdc, aluSbb, aluAnd, aluSub, aluXor, aluCmp}

// opGroup1 handles 81 (/reg, imm16/32 sign-extended to size) and 83
// (/reg, imm8 sign-extended to size).
func opGroup1(imm8Form bool) func(*CPU) error {
	return func(cpu *CPU) error {
		size := cpu.operandSize(false)
		if err := cpu.decodeModRM(); err != nil {
			return err
		}

		var imm uint64
		var err error
		if imm8Form {
			b, err := cpu.fetchByte()
			if err != nil {
				return err
			}
			imm = signExtend(uint64(b), 1)
			if size < 8 {
				imm = maskForSize(imm, size)
			}
		} else {
			imm, err = cpu.fetchImmForSize(size)
			if err != nil {
				return err
			}
		}
		a, err := cpu.readRM(size)
		if err != nil {
			return err
		}

		op := group1Ops[cpu.dec.regField&0x7]
		result, flags, writeBack := computeAlu(op, a, imm, cpu.flags.CF, size)
		cpu.flags = flags
		if writeBack {
			return cpu.writeRM(size, result)
		}
		return nil
	}
}

// opGroup2 handles C0 (/reg, imm8) and C1 (/reg, imm8) shifts; only /4
// (SHL), /5 (SHR) and /7 (SAR) are wired. byteForm distinguishes C0 (byte
// operand) from C1 (default operand size).
func opGroup2(byteForm bool) func(*CPU) error {
	return func(cpu *CPU) error {
		size := 1
		if !byteForm {
			size = cpu.operandSize(false)
		}
		if err := cpu.decodeModRM(); err != nil {
			return err
		}
		count, err := cpu.fetchByte()
		if err != nil {
			return err
		}
		v, err := cpu.readRM(size)
		if err != nil {
			return err
		}

		var sr ShiftResult
		switch cpu.dec.regField & 0x7 {
		case 4:
			sr = Shl(v, uint64(count), size, cpu.flags)
		case 5:
			sr = Shr(v, uint64(count), size, cpu.flags)
		case 7:
			sr = Sar(v, uint64(count), size, cpu.flags)
		default:
			return newUnknownOpcode("group2 /" + string(rune('0'+cpu.dec.regField&0x7)))
		}

		cpu.flags = sr.Flags
		return cpu.writeRM(size, sr.Result)
	}
}

// opGroup4 handles FE: byte-only /0 INC and /1 DEC.
func opGroup4(cpu *CPU) error {
	if err := cpu.decodeModRM(); err != nil {
		return err
	}
	switch cpu.dec.regField & 0x7 {
	case 0:
		return cpu.incDecRM(1, true)
	case 1:
		return cpu.incDecRM(1, false)
	default:
		return newUnknownOpcode("group4 /" + string(rune('0'+cpu.dec.regField&0x7)))
	}
}

// opGroup5 handles FF: /0 INC, /1 DEC, /2 CALL r/m, /4 JMP r/m, /6 PUSH r/m,
// at the instruction's effective operand size.
func opGroup5(cpu *CPU) error {
	size := cpu.operandSize(false)
	if err := cpu.decodeModRM(); err != nil {
		return err
	}
	switch cpu.dec.regField & 0x7 {
	case 0:
		return cpu.incDecRM(size, true)
	case 1:
		return cpu.incDecRM(size, false)
	case 2:
		target, err := cpu.readRM(size)
		if err != nil {
			return err
		}
		returnAddr := cpu.rip
		if err := cpu.push64(returnAddr); err != nil {
			return err
		}
		cpu.rip = target
		return nil
	case 4:
		target, err := cpu.readRM(size)
		if err != nil {
			return err
		}
		cpu.rip = target
		return nil
	case 6:
		v, err := cpu.readRM(size)
		if err != nil {
			return err
		}
		return cpu.push64(v)
	default:
		return newUnknownOpcode("group5 /" + string(rune('0'+cpu.dec.regField&0x7)))
	}
}

// incDecRM implements the shared INC/DEC-on-r/m body used by Group4/Group5.
// INC/DEC never touch CF, unlike ADD/SUB.
func (cpu *CPU) incDecRM(size int, isInc bool) error {
	v, err := cpu.readRM(size)
	if err != nil {
		return err
	}
	var result uint64
	if isInc {
		result, _ = AddFlags(v, 1, false, size)
	} else {
		result, _ = SubFlags(v, 1, false, size)
	}
	cpu.flags = IncDecFlags(result, size, isInc, cpu.flags.CF, v)
	return cpu.writeRM(size, result)
}
