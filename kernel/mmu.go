package kernel

// PageShift/PteSize/PteCount mirror the teacher's ARM64 mmu.go naming for
// the four-level table geometry, reworked for x86-64's PML4/PDPT/PD/PT
// walk instead of ARM64's L0-L3 walk. Each table level still fans out
// 512 entries of 8 bytes apiece (PteCount*PteSize == PageSize), so the
// shape of the walk is unchanged even though the level names and PTE bit
// layout differ.
const (
	PageShift = 12
	PteSize   = 8
	PteCount  = PageSize / PteSize
)

// Level shifts for a 4-level x86-64 walk, highest first: PML4, PDPT, PD,
// PT. Compare the teacher's L0_SHIFT..L3_SHIFT ladder in mmu.go; amd64
// uses the same 9-9-9-9-12 split as aarch64's 4 KiB granule.
const (
	pml4Shift = 39
	pdptShift = 30
	pdShift   = 21
	ptShift   = 12
)

// PTE bit layout for x86-64 (Intel SDM vol 3A table 4-19), standing in
// for the teacher's PTE_VALID/PTE_TABLE/PTE_AF/PTE_NG/PTE_UXN bit set.
const (
	PteteP  uint64 = 1 << 0 // present
	PteteW  uint64 = 1 << 1 // read/write
	PteteU  uint64 = 1 << 2 // user/supervisor
	PteteA  uint64 = 1 << 5 // accessed
	PteteD  uint64 = 1 << 6 // dirty (leaf only)
	PteteNX uint64 = 1 << 63
)

// KernelVABase is the canonical-address split point: everything at or
// above it is kernel space, everything below is user space. Pintos maps
// the kernel 1:1 starting at this address (loader.h's LOADER_KERN_BASE
// on the original amd64 pintos is 0x8004000000; the exact value does
// not matter to this layer, only that it partitions the address space).
const KernelVABase = uint64(0x8004000000)

// PhysBase is where the kernel's 1:1 physical-memory mapping begins in
// its own address space, mirroring pintos's "ptov"/"vtop" window.
const PhysBase = KernelVABase

// pageNumber truncates a virtual address to its containing page.
func pageNumber(vaddr uint64) uint64 { return vaddr &^ (PageSize - 1) }

func pageOffset(vaddr uint64) uint64 { return vaddr & (PageSize - 1) }

// IsUserVaddr reports whether vaddr lies in the user half of the
// address space (is_user_vaddr).
func IsUserVaddr(vaddr uint64) bool { return vaddr < KernelVABase }

// IsKernelVaddr is the complement (is_kernel_vaddr).
func IsKernelVaddr(vaddr uint64) bool { return vaddr >= KernelVABase }

// pte is one mapping: the backing physical page plus permission bits.
// The hardware build packs the same information into a real 8-byte
// page-table entry; the pure layer keeps it as a struct so mapping
// logic and its invariants are host-testable without a page-table walk.
type pte struct {
	phys     int64
	writable bool
	user     bool
}

// AddressSpace is a user process's virtual memory map: the pure half of
// what the original calls a `pml4`. It tracks page-granular mappings
// without ever touching real page table memory; the scheduler's
// activateVAS hook (wired by the hardware build) is responsible for projecting this map into CR3
// when the owning thread is scheduled.
type AddressSpace struct {
	pages map[uint64]*pte // keyed by virtual page number
}

// NewAddressSpace returns an empty address space (pml4_create).
func NewAddressSpace() *AddressSpace {
	return &AddressSpace{pages: make(map[uint64]*pte)}
}

// Map installs a mapping from the page containing vaddr to the given
// physical page number (pml4_set_page). It refuses to map page 0 or
// any kernel-space address, mirroring validate_segment's guard and
// is_user_vaddr respectively; callers that need to map kernel memory
// use the 1:1 window instead of going through an AddressSpace at all.
func (as *AddressSpace) Map(vaddr uint64, phys int64, writable bool) bool {
	if vaddr < PageSize {
		return false
	}
	if !IsUserVaddr(vaddr) {
		return false
	}
	page := pageNumber(vaddr)
	if _, exists := as.pages[page]; exists {
		return false
	}
	as.pages[page] = &pte{phys: phys, writable: writable, user: true}
	return true
}

// Unmap removes whatever mapping covers vaddr, if any (pml4_clear_page).
func (as *AddressSpace) Unmap(vaddr uint64) {
	delete(as.pages, pageNumber(vaddr))
}

// Lookup returns the physical page number backing the page that
// contains vaddr, reporting whether it is mapped at all (pml4_get_page,
// generalized to also report write permission since the fault handler
// needs both). Callers add pageOffset(vaddr) themselves.
func (as *AddressSpace) Lookup(vaddr uint64) (phys int64, writable bool, present bool) {
	e, ok := as.pages[pageNumber(vaddr)]
	if !ok {
		return 0, false, false
	}
	return e.phys, e.writable, true
}

// Each calls fn once per mapped page in an unspecified order, the same
// traversal `pml4_for_each` does in the original. Clone does not use it;
// it walks the mapping table itself.
func (as *AddressSpace) Each(fn func(vaddr uint64, phys int64, writable bool)) {
	for page, e := range as.pages {
		fn(page, e.phys, e.writable)
	}
}

// Clone duplicates every mapping into a new AddressSpace: for each
// mapped page it allocates a fresh user page and calls copyPage(dst,
// src) to fill it, so frames are never shared and there is no
// copy-on-write (the non-VM project 2 fork semantics rather than
// project 3's COW).
func (as *AddressSpace) Clone(pages *PageAllocator, copyPage func(dst, src int64)) (*AddressSpace, bool) {
	out := NewAddressSpace()
	for page, e := range as.pages {
		dst, ok := pages.GetPage(0, true)
		if !ok {
			return nil, false
		}
		copyPage(dst, e.phys)
		out.pages[page] = &pte{phys: dst, writable: e.writable, user: true}
	}
	return out, true
}

// Destroy releases every physical page still mapped in this address
// space back to the allocator (pml4_destroy via its page-table walk).
func (as *AddressSpace) Destroy(pages *PageAllocator) {
	for _, e := range as.pages {
		pages.FreePage(e.phys)
	}
	as.pages = make(map[uint64]*pte)
}
