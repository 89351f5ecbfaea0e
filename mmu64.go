// mmu64.go - Physical memory and 4-level paging MMU for the x86-64 core
//
// Physical memory is a flat byte-addressable buffer (C1 in the design doc);
// the MMU (C4) translates virtual to physical addresses according to the
// current CPU mode, walking PML4->PDPT->PD->PT tables in Long mode and
// falling back to identity translation everywhere else, and also before CR3
// is loaded in Long mode (matching real hardware only to the extent the
// bootstrap needs before it arms paging).
//
// Grounded on memory_bus.go's little-endian accessor style (encoding/binary,
// bounds-checked access) and on the CR0/CR4/EFER bit conventions exercised in
// other_examples/fdceebca_bobuhiro11-gokvm__machine-machine.go.go.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package x64core

import "encoding/binary"

// Memory is the flat physical address space (C1).
type Memory struct {
	bytes []byte
}

// NewMemory allocates a physical memory buffer of the given size in bytes.
func NewMemory(size int) *Memory {
	return &Memory{bytes: make([]byte, size)}
}

func (m *Memory) Size() int { return len(m.bytes) }

func (m *Memory) checkRange(addr uint64, n int) error {
	if addr > uint64(len(m.bytes)) || uint64(len(m.bytes))-addr < uint64(n) {
		return newOutOfBounds(addr, "access past end of physical memory")
	}
	return nil
}

func (m *Memory) ReadU8(addr uint64) (byte, error) {
	if err := m.checkRange(addr, 1); err != nil {
		return 0, err
	}
	return m.bytes[addr], nil
}

func (m *Memory) WriteU8(addr uint64, v byte) error {
	if err := m.checkRange(addr, 1); err != nil {
		return err
	}
	m.bytes[addr] = v
	return nil
}

func (m *Memory) ReadU16(addr uint64) (uint16, error) {
	if err := m.checkRange(addr, 2); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(m.bytes[addr : addr+2]), nil
}

func (m *Memory) WriteU16(addr uint64, v uint16) error {
	if err := m.checkRange(addr, 2); err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(m.bytes[addr:addr+2], v)
	return nil
}

func (m *Memory) ReadU32(addr uint64) (uint32, error) {
	if err := m.checkRange(addr, 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(m.bytes[addr : addr+4]), nil
}

func (m *Memory) WriteU32(addr uint64, v uint32) error {
	if err := m.checkRange(addr, 4); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(m.bytes[addr:addr+4], v)
	return nil
}

func (m *Memory) ReadU64(addr uint64) (uint64, error) {
	if err := m.checkRange(addr, 8); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(m.bytes[addr : addr+8]), nil
}

func (m *Memory) WriteU64(addr uint64, v uint64) error {
	if err := m.checkRange(addr, 8); err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(m.bytes[addr:addr+8], v)
	return nil
}

// Load copies raw bytes into physical memory starting at addr.
func (m *Memory) Load(addr uint64, data []byte) error {
	if err := m.checkRange(addr, len(data)); err != nil {
		return err
	}
	copy(m.bytes[addr:addr+uint64(len(data))], data)
	return nil
}

// AccessKind distinguishes why the MMU is being asked to translate an
// address, since write access additionally checks the leaf R/W bit.
type AccessKind int

const (
	AccessRead AccessKind = iota
	AccessWrite
	AccessExecute
)

// Page-table entry bit positions, shared by the walker and by
// setup_identity_paging.
const (
	pteP   = 1 << 0 // Present
	pteRW  = 1 << 1 // Read/Write
	pteUS  = 1 << 2 // User/Supervisor
	ptePS  = 1 << 7 // Page Size (1GiB at PDPT, 2MiB at PD)
	pteFrameMask = 0x000F_FFFF_FFFF_F000 // bits 12..51
)

// MMU implements the 4-level paging translator (C4). It holds no state of
// its own beyond a reference to physical memory; CR0/CR3/CR4/EFER and mode
// live on the CPU and are passed in per call.
type MMU struct {
	mem  *Memory
	logf func(string, ...any)
}

func NewMMU(mem *Memory, logf func(string, ...any)) *MMU {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &MMU{mem: mem, logf: logf}
}

// translatePage resolves the page containing a single virtual address; it
// does not look at how many bytes the caller will access.
func (mmu *MMU) translatePage(mode CPUMode, cr3 uint64, vaddr uint64, access AccessKind) (uint64, error) {
	switch mode {
	case ModeReal:
		return vaddr, nil
	case ModeProtected, ModeProtectedPaging, ModeProtectedPAE:
		mmu.logf("MMU: paging not fully armed for long mode (mode=%s), identity-mapping 0x%x", mode, vaddr)
		return vaddr, nil
	case ModeLong:
		if cr3 == 0 {
			mmu.logf("MMU: CR3 not loaded yet in long mode, identity-mapping 0x%x", vaddr)
			return vaddr, nil
		}
		return mmu.walk4Level(cr3, vaddr, access)
	default:
		return vaddr, nil
	}
}

func (mmu *MMU) walk4Level(cr3, vaddr uint64, access AccessKind) (uint64, error) {
	pml4Index := (vaddr >> 39) & 0x1FF
	pdptIndex := (vaddr >> 30) & 0x1FF
	pdIndex := (vaddr >> 21) & 0x1FF
	ptIndex := (vaddr >> 12) & 0x1FF

	pml4Entry, err := mmu.readEntry(cr3, pml4Index, vaddr)
	if err != nil {
		return 0, err
	}
	if err := checkPresentWrite(pml4Entry, vaddr, access); err != nil {
		return 0, err
	}

	pdptBase := pml4Entry & pteFrameMask
	pdptEntry, err := mmu.readEntry(pdptBase, pdptIndex, vaddr)
	if err != nil {
		return 0, err
	}
	if err := checkPresentWrite(pdptEntry, vaddr, access); err != nil {
		return 0, err
	}
	if pdptEntry&ptePS != 0 {
		frame := pdptEntry & 0x000F_FFFF_C000_0000 // bits 30..51
		return frame | (vaddr & 0x3FFF_FFFF), nil
	}

	pdBase := pdptEntry & pteFrameMask
	pdEntry, err := mmu.readEntry(pdBase, pdIndex, vaddr)
	if err != nil {
		return 0, err
	}
	if err := checkPresentWrite(pdEntry, vaddr, access); err != nil {
		return 0, err
	}
	if pdEntry&ptePS != 0 {
		frame := pdEntry & 0x000F_FFFF_FFE0_0000 // bits 21..51
		return frame | (vaddr & 0x1F_FFFF), nil
	}

	ptBase := pdEntry & pteFrameMask
	ptEntry, err := mmu.readEntry(ptBase, ptIndex, vaddr)
	if err != nil {
		return 0, err
	}
	if err := checkPresentWrite(ptEntry, vaddr, access); err != nil {
		return 0, err
	}
	frame := ptEntry & pteFrameMask
	return frame | (vaddr & 0xFFF), nil
}

func (mmu *MMU) readEntry(tableBase uint64, index uint64, faultAddr uint64) (uint64, error) {
	entryAddr := (tableBase &^ 0xFFF) + index*8
	v, err := mmu.mem.ReadU64(entryAddr)
	if err != nil {
		return 0, newPageFault(faultAddr, 0)
	}
	return v, nil
}

func checkPresentWrite(entry uint64, vaddr uint64, access AccessKind) error {
	if entry&pteP == 0 {
		return newPageFault(vaddr, 0)
	}
	if access == AccessWrite && entry&pteRW == 0 {
		return newPageFault(vaddr, 1)
	}
	return nil
}

// Translate resolves vaddr and returns the physical address of that first
// byte only. size is not used and no cross-page splitting happens here;
// callers that need every byte of a run that may cross a 4KiB boundary use
// translateEach.
func (mmu *MMU) Translate(mode CPUMode, cr3 uint64, vaddr uint64, size int, access AccessKind) (uint64, error) {
	return mmu.translatePage(mode, cr3, vaddr, access)
}

// translateEach resolves every byte of [vaddr, vaddr+size) to physical
// addresses, re-walking the tables only when the byte crosses into a new
// page. This implements the spec's "split cross-page accesses" requirement.
func (mmu *MMU) translateEach(mode CPUMode, cr3 uint64, vaddr uint64, size int, access AccessKind) ([]uint64, error) {
	out := make([]uint64, size)
	var lastPage uint64 = ^uint64(0)
	var lastPhysPage uint64
	for i := 0; i < size; i++ {
		va := vaddr + uint64(i)
		page := va &^ 0xFFF
		if page != lastPage {
			phys, err := mmu.translatePage(mode, cr3, va, access)
			if err != nil {
				return nil, err
			}
			lastPage = page
			lastPhysPage = phys &^ 0xFFF
		}
		out[i] = lastPhysPage | (va & 0xFFF)
	}
	return out, nil
}

// --- setup_identity_paging -------------------------------------------------

// SetupIdentityPaging builds a PML4->PDPT->PD->PT 4KiB-page identity mapping
// of [vstart, vstart+size) to [pstart, pstart+size), writing the tables
// starting at tablesBase, and returns the physical address of the PML4 to
// load into CR3. size must be a multiple of 4KiB.
func SetupIdentityPaging(mem *Memory, vstart, pstart, size, tablesBase uint64) (uint64, error) {
	if size == 0 || size%0x1000 != 0 {
		return 0, newBadOperandSize(int(size))
	}

	next := tablesBase
	allocTable := func() (uint64, error) {
		base := next
		next += 0x1000
		zero := make([]byte, 0x1000)
		if err := mem.Load(base, zero); err != nil {
			return 0, err
		}
		return base, nil
	}

	pml4, err := allocTable()
	if err != nil {
		return 0, err
	}

	pdptCache := make(map[uint64]uint64)
	pdCache := make(map[uint64]uint64)
	ptCache := make(map[uint64]uint64)

	numPages := size / 0x1000
	for i := uint64(0); i < numPages; i++ {
		va := vstart + i*0x1000
		pa := pstart + i*0x1000

		pml4Index := (va >> 39) & 0x1FF
		pdptIndex := (va >> 30) & 0x1FF
		pdIndex := (va >> 21) & 0x1FF
		ptIndex := (va >> 12) & 0x1FF

		pdptBase, ok := pdptCache[pml4Index]
		if !ok {
			pdptBase, err = allocTable()
			if err != nil {
				return 0, err
			}
			pdptCache[pml4Index] = pdptBase
			if err := writeTableEntry(mem, pml4, pml4Index, pdptBase|pteP|pteRW|pteUS); err != nil {
				return 0, err
			}
		}

		pdKey := pml4Index<<9 | pdptIndex
		pdBase, ok := pdCache[pdKey]
		if !ok {
			pdBase, err = allocTable()
			if err != nil {
				return 0, err
			}
			pdCache[pdKey] = pdBase
			if err := writeTableEntry(mem, pdptBase, pdptIndex, pdBase|pteP|pteRW|pteUS); err != nil {
				return 0, err
			}
		}

		ptKey := pdKey<<9 | pdIndex
		ptBase, ok := ptCache[ptKey]
		if !ok {
			ptBase, err = allocTable()
			if err != nil {
				return 0, err
			}
			ptCache[ptKey] = ptBase
			if err := writeTableEntry(mem, pdBase, pdIndex, ptBase|pteP|pteRW|pteUS); err != nil {
				return 0, err
			}
		}

		if err := writeTableEntry(mem, ptBase, ptIndex, pa|pteP|pteRW|pteUS); err != nil {
			return 0, err
		}
	}

	return pml4, nil
}

func writeTableEntry(mem *Memory, tableBase uint64, index uint64, entry uint64) error {
	return mem.WriteU64(tableBase+index*8, entry)
}
