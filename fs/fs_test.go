package fs

import "testing"

func TestCreateRejectsDuplicatePath(t *testing.T) {
	c := New()
	if !c.Create("a.txt", 0) {
		t.Fatalf("first Create(a.txt) failed")
	}
	if c.Create("a.txt", 0) {
		t.Fatalf("second Create(a.txt) succeeded, want false")
	}
}

func TestOpenUnknownPathFails(t *testing.T) {
	c := New()
	if _, ok := c.Open("missing"); ok {
		t.Fatalf("Open(missing) succeeded, want false")
	}
}

func TestSeedThenOpenReadsBackContent(t *testing.T) {
	c := New()
	c.Seed("prog", []byte("hello"))

	h, ok := c.Open("prog")
	if !ok {
		t.Fatalf("Open(prog) failed")
	}
	buf := make([]byte, 5)
	n, ok := h.Read(buf)
	if !ok || n != 5 || string(buf) != "hello" {
		t.Fatalf("Read = (%d, %v, %q), want (5, true, %q)", n, ok, buf, "hello")
	}
}

func TestWriteGrowsFileAndTellTracksCursor(t *testing.T) {
	c := New()
	c.Create("data", 0)
	h, _ := c.Open("data")

	n, ok := h.Write([]byte("abc"))
	if !ok || n != 3 {
		t.Fatalf("Write = (%d, %v), want (3, true)", n, ok)
	}
	if h.Tell() != 3 {
		t.Fatalf("Tell() = %d, want 3", h.Tell())
	}
	if h.Length() != 3 {
		t.Fatalf("Length() = %d, want 3", h.Length())
	}

	h.Seek(0)
	buf := make([]byte, 3)
	h.Read(buf)
	if string(buf) != "abc" {
		t.Fatalf("readback = %q, want %q", buf, "abc")
	}
}

func TestRemoveDeletesPathButNotAlreadyOpenHandles(t *testing.T) {
	c := New()
	c.Seed("f", []byte("data"))
	h, _ := c.Open("f")

	if !c.Remove("f") {
		t.Fatalf("Remove(f) failed")
	}
	if c.Remove("f") {
		t.Fatalf("second Remove(f) succeeded, want false")
	}
	if _, ok := c.Open("f"); ok {
		t.Fatalf("Open(f) succeeded after Remove")
	}

	buf := make([]byte, 4)
	if n, ok := h.Read(buf); !ok || n != 4 {
		t.Fatalf("pre-existing handle broke after Remove: (%d, %v)", n, ok)
	}
}

func TestDuplicateSharesInodeButNotCursor(t *testing.T) {
	c := New()
	c.Seed("shared", []byte("0123456789"))
	h, _ := c.Open("shared")

	buf := make([]byte, 4)
	h.Read(buf)
	if h.Tell() != 4 {
		t.Fatalf("Tell() = %d, want 4", h.Tell())
	}

	dup := h.Duplicate()
	if dup.Tell() != 0 {
		t.Fatalf("Duplicate().Tell() = %d, want 0", dup.Tell())
	}

	dup.Write([]byte("X"))
	h.Seek(0)
	readBack := make([]byte, 1)
	h.Read(readBack)
	if readBack[0] != 'X' {
		t.Fatalf("duplicate write not visible through original handle; got %q", readBack)
	}
}
