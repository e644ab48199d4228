package kernel

import (
	"encoding/binary"
	"testing"
)

// fakeFile is a minimal in-memory File used only by this package's own
// tests, standing in for fs.Collaborator's handle without importing the
// fs package (which itself imports kernel).
type fakeFile struct {
	data []byte
	pos  int64
}

func (f *fakeFile) Read(buf []byte) (int, bool) {
	if f.pos >= int64(len(f.data)) {
		return 0, true
	}
	n := copy(buf, f.data[f.pos:])
	f.pos += int64(n)
	return n, true
}

func (f *fakeFile) Write(buf []byte) (int, bool) {
	if int64(len(f.data)) < f.pos {
		f.data = append(f.data, make([]byte, f.pos-int64(len(f.data)))...)
	}
	f.data = append(f.data[:f.pos], buf...)
	f.pos += int64(len(buf))
	return len(buf), true
}

func (f *fakeFile) Seek(pos int64)  { f.pos = pos }
func (f *fakeFile) Tell() int64    { return f.pos }
func (f *fakeFile) Length() int64  { return int64(len(f.data)) }
func (f *fakeFile) Close()         {}
func (f *fakeFile) Duplicate() File { return &fakeFile{data: f.data} }

type fakeFS struct {
	files map[string][]byte
}

func newFakeFS() *fakeFS { return &fakeFS{files: make(map[string][]byte)} }

func (fs *fakeFS) Open(path string) (File, bool) {
	d, ok := fs.files[path]
	if !ok {
		return nil, false
	}
	return &fakeFile{data: d}, true
}

func (fs *fakeFS) Create(path string, size int64) bool {
	if _, ok := fs.files[path]; ok {
		return false
	}
	fs.files[path] = make([]byte, size)
	return true
}

func (fs *fakeFS) Remove(path string) bool {
	if _, ok := fs.files[path]; !ok {
		return false
	}
	delete(fs.files, path)
	return true
}

// buildELF assembles a minimal one-PT_LOAD-segment ELF64 executable: a
// 64-byte header, one 56-byte program header immediately after it, and
// the segment's file content at the next page boundary (so its file
// offset and vaddr share the same page offset, as ValidateSegment
// requires).
func buildELF(entry, vaddr uint64, code []byte) []byte {
	const phOff = 64
	const segOffset = uint64(PageSize)

	buf := make([]byte, int(segOffset)+len(code))
	copy(buf[0:16], []byte{0x7f, 'E', 'L', 'F', 2, 1, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0})
	binary.LittleEndian.PutUint16(buf[16:18], 2)    // ET_EXEC
	binary.LittleEndian.PutUint16(buf[18:20], 0x3e) // EM_X86_64
	binary.LittleEndian.PutUint32(buf[20:24], 1)    // EV_CURRENT
	binary.LittleEndian.PutUint64(buf[24:32], entry)
	binary.LittleEndian.PutUint64(buf[32:40], phOff)
	binary.LittleEndian.PutUint16(buf[54:56], elfPhEntSize)
	binary.LittleEndian.PutUint16(buf[56:58], 1)

	p := buf[phOff:]
	binary.LittleEndian.PutUint32(p[0:4], PTLoad)
	binary.LittleEndian.PutUint32(p[4:8], PFR|PFX)
	binary.LittleEndian.PutUint64(p[8:16], segOffset)
	binary.LittleEndian.PutUint64(p[16:24], vaddr)
	binary.LittleEndian.PutUint64(p[32:40], uint64(len(code)))
	binary.LittleEndian.PutUint64(p[40:48], uint64(len(code)))

	copy(buf[segOffset:], code)
	return buf
}

func TestLoadExecutableMapsSegmentAndBuildsEntryFrame(t *testing.T) {
	pages, sched := newTestAllocator(t, 64, 64)
	fsys := newFakeFS()
	code := []byte{0x90, 0x90, 0x90}
	fsys.files["prog"] = buildELF(0x400000, 0x400000, code)

	pm := NewProcessManager(sched, pages, fsys)
	as, frame, ok := pm.LoadExecutable("prog a b")
	if !ok {
		t.Fatalf("LoadExecutable failed")
	}
	if frame.RIP != 0x400000 {
		t.Fatalf("RIP = %#x, want 0x400000", frame.RIP)
	}
	if frame.RDI != 3 {
		t.Fatalf("argc (rdi) = %d, want 3", frame.RDI)
	}
	if frame.RSP%8 != 0 {
		t.Fatalf("RSP = %#x is not 8-byte aligned", frame.RSP)
	}

	phys, writable, present := as.Lookup(0x400000)
	if !present {
		t.Fatalf("entry page not mapped")
	}
	if writable {
		t.Fatalf("a PF_R|PF_X segment must not be mapped writable")
	}
	if got := pm.mem.page(phys)[0]; got != 0x90 {
		t.Fatalf("loaded byte = %#x, want 0x90", got)
	}
}

func TestLoadExecutableRejectsUnknownExecutable(t *testing.T) {
	sched := NewScheduler()
	pages := NewPageAllocator(sched, 64, 64)
	pm := NewProcessManager(sched, pages, newFakeFS())

	if _, _, ok := pm.LoadExecutable("missing"); ok {
		t.Fatalf("LoadExecutable succeeded on a nonexistent path")
	}
}

// TestBuildUserStackMatchesArgvLayout is the S4 scenario: exec("echo x y
// z") yields argc=4, argv[0..3] pointing at NUL-terminated strings,
// argv[4]=0, and an 8-byte aligned rsp.
func TestBuildUserStackMatchesArgvLayout(t *testing.T) {
	page := make([]byte, PageSize)
	argv := []string{"echo", "x", "y", "z"}
	layout := BuildUserStack(page, UserStackTop, argv)

	if layout.Argc != 4 {
		t.Fatalf("Argc = %d, want 4", layout.Argc)
	}
	if layout.RSP%8 != 0 {
		t.Fatalf("RSP = %#x is not 8-byte aligned", layout.RSP)
	}

	rspOff := int(layout.RSP - UserStackTop)
	for i := 0; i < 8; i++ {
		if page[rspOff+i] != 0 {
			t.Fatalf("fake return address byte %d = %#x, want 0", i, page[rspOff+i])
		}
	}

	argvOff := int(layout.Argv - UserStackTop)
	for i, want := range argv {
		ptr := binary.LittleEndian.Uint64(page[argvOff+i*8:])
		strOff := int(ptr - UserStackTop)
		end := strOff
		for page[end] != 0 {
			end++
		}
		if got := string(page[strOff:end]); got != want {
			t.Fatalf("argv[%d] = %q, want %q", i, got, want)
		}
	}

	sentinelOff := argvOff + len(argv)*8
	if got := binary.LittleEndian.Uint64(page[sentinelOff:]); got != 0 {
		t.Fatalf("argv[argc] sentinel = %#x, want 0", got)
	}
}

// TestForkExitWaitReturnsChildStatus is the S5 scenario: a parent forks,
// the child exits(42), the parent's wait(child) returns 42, and a
// second wait on the same tid returns TIDError.
func TestForkExitWaitReturnsChildStatus(t *testing.T) {
	sched := NewScheduler()
	pages := NewPageAllocator(sched, 64, 64)
	pm := NewProcessManager(sched, pages, newFakeFS())

	parent := newThread(2, "parent", PriDefault)
	parent.proc = &processState{as: NewAddressSpace(), fds: NewFDTable()}
	sched.SetCurrent(parent)

	childTID := pm.Fork("child", TrapFrame{})
	if childTID == TIDError {
		t.Fatalf("Fork failed")
	}

	sched.Yield()
	if sched.Current().ID != childTID {
		t.Fatalf("scheduler did not hand the CPU to the forked child")
	}

	pm.Exit(42)
	if sched.Current() != parent {
		t.Fatalf("scheduler did not return to the parent after the child exited")
	}

	if status := pm.Wait(childTID); status != 42 {
		t.Fatalf("Wait() = %d, want 42", status)
	}
	if status := pm.Wait(childTID); status != TIDError {
		t.Fatalf("second Wait() = %d, want TIDError (%d)", status, TIDError)
	}
}

func TestWaitOnUnknownTidFailsImmediately(t *testing.T) {
	sched := NewScheduler()
	pages := NewPageAllocator(sched, 64, 64)
	pm := NewProcessManager(sched, pages, newFakeFS())

	parent := newThread(2, "parent", PriDefault)
	parent.proc = &processState{as: NewAddressSpace(), fds: NewFDTable()}
	sched.SetCurrent(parent)

	if status := pm.Wait(999); status != TIDError {
		t.Fatalf("Wait(999) = %d, want TIDError", status)
	}
}

func TestForkDuplicatesAddressSpaceAndFDTable(t *testing.T) {
	sched := NewScheduler()
	pages := NewPageAllocator(sched, 64, 64)
	pm := NewProcessManager(sched, pages, newFakeFS())

	parent := newThread(2, "parent", PriDefault)
	parent.proc = &processState{as: NewAddressSpace(), fds: NewFDTable()}
	sched.SetCurrent(parent)

	phys, ok := pages.GetPage(0, true)
	if !ok {
		t.Fatalf("GetPage failed")
	}
	parent.proc.as.Map(0x500000, phys, true)
	pm.mem.page(phys)[0] = 0x42
	f := &fakeFile{data: []byte("hello")}
	fd, ok := parent.proc.fds.Insert(f)
	if !ok {
		t.Fatalf("Insert failed")
	}

	childTID := pm.Fork("child", TrapFrame{})
	if childTID == TIDError {
		t.Fatalf("Fork failed")
	}

	var child *Thread
	parent.proc.children.Each(func(c *childEntry) {
		if c.tid == childTID {
			child = c.thread
		}
	})
	if child == nil {
		t.Fatalf("fork did not record a child entry")
	}

	childPhys, _, present := child.proc.as.Lookup(0x500000)
	if !present {
		t.Fatalf("child address space missing parent's mapping")
	}
	if childPhys == phys {
		t.Fatalf("fork must copy pages, not share frames")
	}
	if got := pm.mem.page(childPhys)[0]; got != 0x42 {
		t.Fatalf("copied page content = %#x, want 0x42", got)
	}

	childFile, ok := child.proc.fds.Get(fd)
	if !ok {
		t.Fatalf("child FD table missing duplicated entry")
	}
	if childFile == File(f) {
		t.Fatalf("duplicated FD must be a distinct handle, not the same File")
	}
}
