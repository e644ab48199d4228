// Package fs is the in-memory file collaborator §1 treats as external
// infrastructure the kernel core only consumes: a flat namespace of
// named byte-slice-backed files standing in for the real Pintos file
// system (§1 Non-goals: "a real file system beyond what the collaborator
// provides"). Grounded on original_source/filesys/file.c's
// file_read/file_write/file_seek/file_tell/file_length/file_close/
// file_duplicate semantics: an open file has its own position cursor,
// and duplicating one shares the underlying inode but not the cursor.
package fs

import (
	"sync"

	"pintos/kernel"
)

// inode is the shared content behind one named file. The real file
// system backs this with on-disk sectors; this collaborator keeps it as
// a single grown-on-write byte slice.
type inode struct {
	mu   sync.Mutex
	data []byte
}

// handle is one open reference to an inode with its own read/write
// cursor (struct file's `pos` field).
type handle struct {
	ino *inode
	pos int64
}

func (h *handle) Read(buf []byte) (int, bool) {
	h.ino.mu.Lock()
	defer h.ino.mu.Unlock()
	if h.pos >= int64(len(h.ino.data)) {
		return 0, true
	}
	n := copy(buf, h.ino.data[h.pos:])
	h.pos += int64(n)
	return n, true
}

func (h *handle) Write(buf []byte) (int, bool) {
	h.ino.mu.Lock()
	defer h.ino.mu.Unlock()
	end := h.pos + int64(len(buf))
	if end > int64(len(h.ino.data)) {
		grown := make([]byte, end)
		copy(grown, h.ino.data)
		h.ino.data = grown
	}
	n := copy(h.ino.data[h.pos:], buf)
	h.pos += int64(n)
	return n, true
}

func (h *handle) Seek(pos int64) { h.pos = pos }

func (h *handle) Tell() int64 { return h.pos }

func (h *handle) Length() int64 {
	h.ino.mu.Lock()
	defer h.ino.mu.Unlock()
	return int64(len(h.ino.data))
}

func (h *handle) Close() {}

// Duplicate returns a fresh handle onto the same inode with its own
// cursor reset to zero, matching file_reopen/file_duplicate.
func (h *handle) Duplicate() kernel.File {
	return &handle{ino: h.ino}
}

var _ kernel.File = (*handle)(nil)

// Collaborator is the file system stand-in itself: a mutex-guarded map
// from path to inode, serving open/create/remove for the ELF loader and
// the SYS_CREATE/SYS_REMOVE/SYS_OPEN system calls.
type Collaborator struct {
	mu    sync.Mutex
	files map[string]*inode
}

// New returns an empty collaborator.
func New() *Collaborator {
	return &Collaborator{files: make(map[string]*inode)}
}

// Seed installs a file's content directly, bypassing Create, for
// preloading the executables/data files a boot image would otherwise
// have shipped on disk before any process exists to call create().
func (c *Collaborator) Seed(name string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.files[name] = &inode{data: append([]byte(nil), data...)}
}

// Create adds an empty (or size-preallocated) file at path, failing if
// one already exists there (filesys_create).
func (c *Collaborator) Create(path string, size int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.files[path]; exists {
		return false
	}
	if size < 0 {
		size = 0
	}
	c.files[path] = &inode{data: make([]byte, size)}
	return true
}

// Remove deletes path, failing if it does not exist (filesys_remove).
// Handles already open on it keep working, matching the original's
// unlink-but-keep-open-inode semantics, since they hold their own
// *inode pointer independent of the map.
func (c *Collaborator) Remove(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.files[path]; !exists {
		return false
	}
	delete(c.files, path)
	return true
}

// Open returns a fresh handle onto path's inode, or false if no file is
// there (filesys_open).
func (c *Collaborator) Open(path string) (kernel.File, bool) {
	c.mu.Lock()
	ino, ok := c.files[path]
	c.mu.Unlock()
	if !ok {
		return nil, false
	}
	return &handle{ino: ino}, true
}

var _ kernel.FileOpener = (*Collaborator)(nil)
