package kernel

// validatePointer checks vaddr is non-null, in user address space, and
// mapped in as, returning the backing physical page and its
// writability (the Design Notes' "model as a fallible copy primitive"
// resolution of user memory access from kernel).
func (pm *ProcessManager) validatePointer(as *AddressSpace, vaddr uint64) (phys int64, writable, ok bool) {
	if vaddr == 0 || !IsUserVaddr(vaddr) {
		return 0, false, false
	}
	phys, writable, present := as.Lookup(vaddr)
	if !present {
		return 0, false, false
	}
	return phys, writable, true
}

// CopyFromUser validates and reads n bytes starting at vaddr out of as,
// failing (copy_from_user) if any page touched by the range is null,
// out of user range, or unmapped.
func (pm *ProcessManager) CopyFromUser(as *AddressSpace, vaddr uint64, n int) ([]byte, bool) {
	out := make([]byte, 0, n)
	for len(out) < n {
		cur := vaddr + uint64(len(out))
		phys, _, ok := pm.validatePointer(as, cur)
		if !ok {
			return nil, false
		}
		page := pm.mem.page(phys)
		off := int(pageOffset(cur))
		take := n - len(out)
		if take > PageSize-off {
			take = PageSize - off
		}
		out = append(out, page[off:off+take]...)
	}
	return out, true
}

// CopyToUser validates and writes data into as starting at vaddr,
// failing (copy_to_user) if any page touched is null, out of user
// range, unmapped, or not writable.
func (pm *ProcessManager) CopyToUser(as *AddressSpace, vaddr uint64, data []byte) bool {
	written := 0
	for written < len(data) {
		cur := vaddr + uint64(written)
		phys, writable, ok := pm.validatePointer(as, cur)
		if !ok || !writable {
			return false
		}
		page := pm.mem.page(phys)
		off := int(pageOffset(cur))
		take := len(data) - written
		if take > PageSize-off {
			take = PageSize - off
		}
		copy(page[off:off+take], data[written:written+take])
		written += take
	}
	return true
}

// ReadCString validates and reads a NUL-terminated string starting at
// vaddr, one byte at a time through CopyFromUser, failing if no
// terminator turns up within one page (the original's get_user-driven
// string copy, bounded the same way a runaway unterminated string would
// be: by running off the mapped region).
func (pm *ProcessManager) ReadCString(as *AddressSpace, vaddr uint64) (string, bool) {
	var out []byte
	for i := 0; i < PageSize; i++ {
		b, ok := pm.CopyFromUser(as, vaddr+uint64(i), 1)
		if !ok {
			return "", false
		}
		if b[0] == 0 {
			return string(out), true
		}
		out = append(out, b[0])
	}
	return "", false
}
