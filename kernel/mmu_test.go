package kernel

import "testing"

func TestAddressSpaceMapRejectsPageZeroAndKernelAddresses(t *testing.T) {
	as := NewAddressSpace()
	if as.Map(0, 5, true) {
		t.Fatal("mapping page 0 should be rejected")
	}
	if as.Map(100, 5, true) {
		t.Fatal("mapping within page 0 should be rejected")
	}
	if as.Map(KernelVABase, 5, true) {
		t.Fatal("mapping a kernel-space address should be rejected")
	}
}

func TestAddressSpaceMapAndLookupRoundTrip(t *testing.T) {
	as := NewAddressSpace()
	vaddr := uint64(PageSize * 10)
	if !as.Map(vaddr+17, 42, true) {
		t.Fatal("Map failed")
	}
	phys, writable, present := as.Lookup(vaddr + 17)
	if !present {
		t.Fatal("Lookup reports not present after Map")
	}
	if !writable {
		t.Fatal("Lookup lost the writable bit")
	}
	if phys != 42 {
		t.Fatalf("phys = %#x, want %#x", phys, 42)
	}
}

func TestAddressSpaceMapRefusesDoubleMap(t *testing.T) {
	as := NewAddressSpace()
	vaddr := uint64(PageSize * 3)
	if !as.Map(vaddr, 1, true) {
		t.Fatal("first Map failed")
	}
	if as.Map(vaddr, 2, true) {
		t.Fatal("mapping an already-mapped page should fail")
	}
}

func TestAddressSpaceUnmapClearsLookup(t *testing.T) {
	as := NewAddressSpace()
	vaddr := uint64(PageSize * 5)
	as.Map(vaddr, 9, false)
	as.Unmap(vaddr)
	if _, _, present := as.Lookup(vaddr); present {
		t.Fatal("Lookup still reports present after Unmap")
	}
}

func TestAddressSpaceCloneCopiesEveryMapping(t *testing.T) {
	pages, _ := newTestAllocator(t, 0, 8)
	as := NewAddressSpace()
	as.Map(uint64(PageSize), 4, true)
	as.Map(uint64(PageSize*2), 5, false)

	var copied [][2]int64
	clone, ok := as.Clone(pages, func(dst, src int64) {
		copied = append(copied, [2]int64{dst, src})
	})
	if !ok {
		t.Fatal("Clone failed")
	}
	if len(copied) != 2 {
		t.Fatalf("copyPage called %d times, want 2", len(copied))
	}

	for vaddr, e := range as.pages {
		_, writable, present := clone.Lookup(vaddr)
		if !present {
			t.Fatalf("clone missing mapping for page %#x", vaddr)
		}
		if writable != e.writable {
			t.Fatalf("clone writable bit mismatch for page %#x", vaddr)
		}
	}
}

func TestAddressSpaceDestroyReturnsPagesToAllocator(t *testing.T) {
	pages, _ := newTestAllocator(t, 0, 2)
	as := NewAddressSpace()
	p1, _ := pages.GetPage(0, true)
	p2, _ := pages.GetPage(0, true)
	as.Map(uint64(PageSize), p1, true)
	as.Map(uint64(PageSize*2), p2, true)

	as.Destroy(pages)

	if _, ok := pages.GetMultiple(0, 2, true); !ok {
		t.Fatal("Destroy did not return both pages to the allocator")
	}
}

func TestIsUserVaddrBoundary(t *testing.T) {
	if !IsUserVaddr(KernelVABase - 1) {
		t.Fatal("address just below KernelVABase should be user space")
	}
	if IsUserVaddr(KernelVABase) {
		t.Fatal("KernelVABase itself should be kernel space")
	}
	if !IsKernelVaddr(KernelVABase) {
		t.Fatal("IsKernelVaddr should agree with IsUserVaddr's boundary")
	}
}
