// interrupt64.go - Interrupt Unit (C8)
//
// Implements IDT gate decode, the FIFO interrupt queue, synchronous delivery
// (the push-flags/push-cs/push-rip/[errcode]/push-vector stack frame) and
// IRETQ. Grounded on handleInterrupt in cpu_x86.go (push-flags/push-cs/
// push-ip, vector lookup in a table), generalized from that core's 16-bit
// real-mode vector table to a 64-bit IDT with long-mode gate descriptors.
// Gate reads and stack-frame push/pop all go through cpu.readMem/writeMem,
// the same MMU-translated path as ordinary PUSH/POP/CALL/RET, so interrupt
// delivery respects the current paging mapping instead of treating IDTR and
// RSP as raw physical addresses.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package x64core

// vectorsWithErrCode are the interrupt vectors that push a hardware error
// code as part of delivery.
var vectorsWithErrCode = map[int]bool{
	8: true, 10: true, 11: true, 12: true, 13: true, 14: true, 17: true,
}

// idtGate is the decoded form of a 16-byte IDT entry.
type idtGate struct {
	offset  uint64
	selector uint16
	present bool
}

func (cpu *CPU) readIDTGate(vector int) (idtGate, error) {
	base := cpu.idtrBase + uint64(vector)*16

	lo0_1, err := cpu.readMem(base+0, 2, AccessRead)
	if err != nil {
		return idtGate{}, err
	}
	sel, err := cpu.readMem(base+2, 2, AccessRead)
	if err != nil {
		return idtGate{}, err
	}
	attrByte, err := cpu.readMem(base+5, 1, AccessRead)
	if err != nil {
		return idtGate{}, err
	}
	lo16_31, err := cpu.readMem(base+6, 2, AccessRead)
	if err != nil {
		return idtGate{}, err
	}
	hi32_63, err := cpu.readMem(base+8, 4, AccessRead)
	if err != nil {
		return idtGate{}, err
	}

	offset := lo0_1 | lo16_31<<16 | hi32_63<<32
	return idtGate{
		offset:   offset,
		selector: uint16(sel),
		present:  attrByte&0x80 != 0,
	}, nil
}

// raiseInterrupt enqueues a vector for asynchronous delivery; it is not
// delivered until the CPU next checks IF at the top of a step.
func (cpu *CPU) raiseInterrupt(vector int) {
	cpu.interruptQueue = append(cpu.interruptQueue, vector)
}

// dequeueInterrupt pops the head of the FIFO interrupt queue, if any.
func (cpu *CPU) dequeueInterrupt() (int, bool) {
	if len(cpu.interruptQueue) == 0 {
		return 0, false
	}
	v := cpu.interruptQueue[0]
	cpu.interruptQueue = cpu.interruptQueue[1:]
	return v, true
}

// deliver implements the stack-frame push sequence and handler transfer.
// errCode is only meaningful when hasErrCode is true; the caller is
// responsible for passing it for vector 14 (#PF).
func (cpu *CPU) deliver(vector int, errCode uint64, hasErrCodeOverride bool) error {
	gate, err := cpu.readIDTGate(vector)
	if err != nil {
		return newDoubleFault(err.Error())
	}
	if !gate.present {
		return newDoubleFault("IDT gate not present for vector")
	}

	push := func(v uint64) error {
		cpu.gpr[RSP] -= 8
		return cpu.writeMem(cpu.gpr[RSP], 8, v)
	}

	if err := push(cpu.flags.Assemble()); err != nil {
		return err
	}
	if err := push(uint64(cpu.segs[SegCS])); err != nil {
		return err
	}
	if err := push(cpu.rip); err != nil {
		return err
	}

	hasErrCode := vectorsWithErrCode[vector]
	if hasErrCodeOverride {
		hasErrCode = true
	}
	if hasErrCode {
		if err := push(errCode); err != nil {
			return err
		}
	}
	if err := push(uint64(vector)); err != nil {
		return err
	}

	cpu.rip = gate.offset
	cpu.halted = false
	return nil
}

// iretq implements the interrupt return path, unwinding the frame deliver
// pushed in reverse order.
func (cpu *CPU) iretq() error {
	pop := func() (uint64, error) {
		v, err := cpu.readMem(cpu.gpr[RSP], 8, AccessRead)
		if err != nil {
			return 0, err
		}
		cpu.gpr[RSP] += 8
		return v, nil
	}

	vector, err := pop()
	if err != nil {
		return err
	}
	if vectorsWithErrCode[int(vector)] {
		if _, err := pop(); err != nil {
			return err
		}
	}
	rip, err := pop()
	if err != nil {
		return err
	}
	if _, err := pop(); err != nil { // selector, discarded
		return err
	}
	rflags, err := pop()
	if err != nil {
		return err
	}

	cpu.rip = rip
	cpu.flags = DisassembleFlags(rflags)
	return nil
}
