// cpu64_flags.go - Flags Unit (C6)
//
// Each function takes operands already masked to the operation's width and
// returns the masked result plus the four modeled condition-code bits.
// Grounded on the per-opcode inline flag computation in cpu_x86_ops.go, but
// centralized into shared helpers instead of being duplicated at every call
// site, since this subset shares ADD/SUB/logic flag rules across four
// widths where an 8/16/32-only core would repeat them per opcode.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package x64core

import "math/bits"

// RFLAGS bit positions modeled by this core.
const (
	flagCF uint64 = 1 << 0
	flagPF uint64 = 1 << 2
	flagZF uint64 = 1 << 6
	flagSF uint64 = 1 << 7
	flagIF uint64 = 1 << 9
	flagOF uint64 = 1 << 11

	rflagsReservedBit1 uint64 = 1 << 1
)

// Flags is the split representation of RFLAGS used internally; only CF, ZF,
// SF, OF and IF are modeled, the rest are always zero.
type Flags struct {
	CF, ZF, SF, OF, IF bool
}

// Assemble packs the modeled bits into a 64-bit RFLAGS word, with bit 1
// fixed to 1 as the architecture requires.
func (f Flags) Assemble() uint64 {
	var v uint64 = rflagsReservedBit1
	if f.CF {
		v |= flagCF
	}
	if f.ZF {
		v |= flagZF
	}
	if f.SF {
		v |= flagSF
	}
	if f.OF {
		v |= flagOF
	}
	if f.IF {
		v |= flagIF
	}
	return v
}

// DisassembleFlags unpacks a 64-bit RFLAGS word into the modeled bits.
func DisassembleFlags(v uint64) Flags {
	return Flags{
		CF: v&flagCF != 0,
		ZF: v&flagZF != 0,
		SF: v&flagSF != 0,
		OF: v&flagOF != 0,
		IF: v&flagIF != 0,
	}
}

func maskForSize(v uint64, size int) uint64 {
	switch size {
	case 1:
		return v & 0xFF
	case 2:
		return v & 0xFFFF
	case 4:
		return v & 0xFFFFFFFF
	default:
		return v
	}
}

func signBit(size int) uint64 {
	switch size {
	case 1:
		return 0x80
	case 2:
		return 0x8000
	case 4:
		return 0x80000000
	default:
		return 0x8000000000000000
	}
}

func msbSet(v uint64, size int) bool {
	return maskForSize(v, size)&signBit(size) != 0
}

// AddFlags computes the result and flags of a+b+carryIn at the given
// byte width, following the standard ADD/ADC flag rules.
func AddFlags(a, b uint64, carryIn bool, size int) (uint64, Flags) {
	aM := maskForSize(a, size)
	bM := maskForSize(b, size)
	var cIn uint64
	if carryIn {
		cIn = 1
	}
	var cf bool
	var full uint64
	if size == 8 {
		sum, carryOut := bits.Add64(aM, bM, cIn)
		full = sum
		cf = carryOut != 0
	} else {
		full = aM + bM + cIn
		cf = full > maskForSize(^uint64(0), size)
	}
	result := maskForSize(full, size)

	signA := msbSet(aM, size)
	signB := msbSet(bM, size)
	signR := msbSet(result, size)
	of := signA == signB && signA != signR

	return result, Flags{
		CF: cf,
		ZF: result == 0,
		SF: signR,
		OF: of,
	}
}

// SubFlags computes a-b-borrowIn and flags following the standard
// SUB/SBB/CMP flag rules.
func SubFlags(a, b uint64, borrowIn bool, size int) (uint64, Flags) {
	aM := maskForSize(a, size)
	bM := maskForSize(b, size)
	var bIn uint64
	if borrowIn {
		bIn = 1
	}
	effective := maskForSize(bM+bIn, size)
	full := int64(aM) - int64(effective)
	result := maskForSize(uint64(full), size)

	cf := aM < bM+bIn

	signA := msbSet(aM, size)
	signB := msbSet(bM+bIn, size)
	signR := msbSet(result, size)
	of := signA != signB && signA != signR

	return result, Flags{
		CF: cf,
		ZF: result == 0,
		SF: signR,
		OF: of,
	}
}

// LogicFlags computes ZF/SF for AND/OR/XOR/TEST; CF and OF are always
// cleared.
func LogicFlags(result uint64, size int) Flags {
	m := maskForSize(result, size)
	return Flags{
		ZF: m == 0,
		SF: msbSet(m, size),
	}
}

// IncDecFlags computes flags for INC/DEC, which behave like ADD/SUB by 1
// but preserve the incoming CF.
func IncDecFlags(result uint64, size int, isInc bool, prevCF bool, operandBeforeOp uint64) Flags {
	m := maskForSize(result, size)
	var of bool
	if isInc {
		// INC overflows only when the operand was the max positive value.
		of = maskForSize(operandBeforeOp, size) == signBit(size)-1 && msbSet(m, size)
	} else {
		of = maskForSize(operandBeforeOp, size) == signBit(size) && !msbSet(m, size)
	}
	return Flags{
		CF: prevCF,
		ZF: m == 0,
		SF: msbSet(m, size),
		OF: of,
	}
}

// ShiftResult carries the outcome of a shift/rotate plus its flags. CF/OF
// are defined per standard x86 rules; for count==0 real hardware leaves
// them unspecified, so this core leaves them unchanged too.
type ShiftResult struct {
	Result uint64
	Flags  Flags
	Valid  bool // false when count==0 and CF/OF should be left as-is
}

func shiftCountMask(size int) uint64 {
	if size == 8 {
		return 0x3F
	}
	return 0x1F
}

// Shl computes SHL r/m, count at the given width.
func Shl(v uint64, count uint64, size int, prevFlags Flags) ShiftResult {
	count &= shiftCountMask(size)
	if count == 0 {
		return ShiftResult{Result: maskForSize(v, size), Flags: prevFlags, Valid: false}
	}
	vM := maskForSize(v, size)
	full := vM << count
	result := maskForSize(full, size)
	var cf bool
	if count <= uint64(size*8) {
		cf = (vM>>(uint64(size*8)-count))&1 != 0
	}
	of := count == 1 && (msbSet(result, size) != (cf))
	return ShiftResult{
		Result: result,
		Flags: Flags{
			CF: cf,
			ZF: result == 0,
			SF: msbSet(result, size),
			OF: of,
		},
		Valid: true,
	}
}

// Shr computes logical SHR r/m, count.
func Shr(v uint64, count uint64, size int, prevFlags Flags) ShiftResult {
	count &= shiftCountMask(size)
	if count == 0 {
		return ShiftResult{Result: maskForSize(v, size), Flags: prevFlags, Valid: false}
	}
	vM := maskForSize(v, size)
	origMSB := msbSet(vM, size)
	result := vM >> count
	var cf bool
	if count >= 1 && count <= uint64(size*8) {
		cf = (vM>>(count-1))&1 != 0
	}
	of := count == 1 && origMSB
	return ShiftResult{
		Result: result,
		Flags: Flags{
			CF: cf,
			ZF: result == 0,
			SF: msbSet(result, size),
			OF: of,
		},
		Valid: true,
	}
}

// Sar computes arithmetic SAR r/m, count.
func Sar(v uint64, count uint64, size int, prevFlags Flags) ShiftResult {
	count &= shiftCountMask(size)
	if count == 0 {
		return ShiftResult{Result: maskForSize(v, size), Flags: prevFlags, Valid: false}
	}
	vM := maskForSize(v, size)
	signed := signExtend(vM, size)
	result := maskForSize(uint64(int64(signed)>>count), size)
	var cf bool
	if count >= 1 && count <= uint64(size*8) {
		cf = (vM>>(count-1))&1 != 0
	}
	return ShiftResult{
		Result: result,
		Flags: Flags{
			CF: cf,
			ZF: result == 0,
			SF: msbSet(result, size),
			OF: false,
		},
		Valid: true,
	}
}

// signExtend widens a size-byte value to a full 64-bit two's-complement
// value, used by SAR and by immediate-sign-extension in the decoder.
func signExtend(v uint64, size int) uint64 {
	switch size {
	case 1:
		return uint64(int64(int8(v)))
	case 2:
		return uint64(int64(int16(v)))
	case 4:
		return uint64(int64(int32(v)))
	default:
		return v
	}
}
