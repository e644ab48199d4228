package kernel

// arenaMagic detects slab arena corruption (ARENA_MAGIC in the original
// threads/malloc.c), checked on every free.
const arenaMagic uint32 = 0x9a548eed

// Addr is a slab-allocator address: an absolute page number and a byte
// offset within it. The hardware build's Addr is just a pointer; the
// pure layer keeps the two apart so block_to_arena's "round down to the
// page" step is ordinary arithmetic instead of pointer masking.
type Addr struct {
	Page int64
	Off  int
}

func (a Addr) add(n int) Addr { return Addr{Page: a.Page, Off: a.Off + n} }

type slabClass struct {
	blockSize      int
	blocksPerArena int
	free           []Addr // free block addresses, LIFO like the original's free list
	lock           *Lock
}

type slabArena struct {
	magic    uint32
	class    *slabClass // nil for a big block
	freeCnt  int        // free blocks, or page count for a big block
	pageCnt  int        // pages backing this arena
}

// arenaHeaderSize models sizeof(struct arena): the region at the front
// of every arena page that is reserved for the header and excluded from
// the block ladder.
const arenaHeaderSize = 16

// SlabAllocator is the sub-page allocator layered on top of a
// PageAllocator (threads/malloc.c's malloc/calloc/realloc/free).
type SlabAllocator struct {
	classes []*slabClass
	arenas  map[int64]*slabArena // keyed by backing page number
	pages   *PageAllocator
	sched   *Scheduler
	mem     map[int64][]byte // simulated backing storage, page -> bytes; nil entries allocated lazily
}

// NewSlabAllocator builds the fixed class ladder (16, 32, ..., up to the
// largest power of two strictly less than half a page) over pages
// drawn from the kernel pool of pages (malloc_init).
func NewSlabAllocator(sched *Scheduler, pages *PageAllocator) *SlabAllocator {
	s := &SlabAllocator{
		arenas: make(map[int64]*slabArena),
		pages:  pages,
		sched:  sched,
		mem:    make(map[int64][]byte),
	}
	for blockSize := 16; blockSize < PageSize/2; blockSize *= 2 {
		s.classes = append(s.classes, &slabClass{
			blockSize:      blockSize,
			blocksPerArena: (PageSize - arenaHeaderSize) / blockSize,
			lock:           NewLock(sched),
		})
	}
	return s
}

func (s *SlabAllocator) classFor(n int) *slabClass {
	for _, c := range s.classes {
		if c.blockSize >= n {
			return c
		}
	}
	return nil
}

func (s *SlabAllocator) pageBytes(page int64) []byte {
	b, ok := s.mem[page]
	if !ok {
		b = make([]byte, PageSize)
		s.mem[page] = b
	}
	return b
}

func (s *SlabAllocator) blockAddr(arenaPage int64, idx int) Addr {
	return Addr{Page: arenaPage, Off: arenaHeaderSize + idx*s.arenas[arenaPage].class.blockSize}
}

// Allocate returns a block of at least n bytes, or ok=false if the page
// allocator is out of memory (malloc).
func (s *SlabAllocator) Allocate(n int) (addr Addr, ok bool) {
	if n == 0 {
		return Addr{}, false
	}

	class := s.classFor(n)
	if class == nil {
		pageCnt := (n + arenaHeaderSize + PageSize - 1) / PageSize
		page, got := s.pages.GetMultiple(0, pageCnt, false)
		if !got {
			return Addr{}, false
		}
		s.arenas[page] = &slabArena{magic: arenaMagic, class: nil, freeCnt: pageCnt, pageCnt: pageCnt}
		return Addr{Page: page, Off: arenaHeaderSize}, true
	}

	class.lock.Acquire()
	defer class.lock.Release()

	if len(class.free) == 0 {
		page, got := s.pages.GetPage(0, false)
		if !got {
			return Addr{}, false
		}
		s.arenas[page] = &slabArena{magic: arenaMagic, class: class, freeCnt: class.blocksPerArena, pageCnt: 1}
		for i := 0; i < class.blocksPerArena; i++ {
			class.free = append(class.free, s.blockAddr(page, i))
		}
	}

	last := len(class.free) - 1
	addr = class.free[last]
	class.free = class.free[:last]
	s.arenas[addr.Page].freeCnt--
	return addr, true
}

// Free returns a block previously returned by Allocate, Calloc, or
// Realloc to its class free list, releasing the whole arena back to the
// page allocator once every block in it is free again (free).
func (s *SlabAllocator) Free(addr Addr) {
	arena, ok := s.arenas[addr.Page]
	if !ok {
		KernelPanic("free: address %+v is not inside any known arena", addr)
	}
	if arena.magic != arenaMagic {
		KernelPanic("free: arena at page %d has a corrupted magic", addr.Page)
	}

	if arena.class == nil {
		s.pages.FreeMultiple(addr.Page, arena.pageCnt)
		delete(s.arenas, addr.Page)
		delete(s.mem, addr.Page)
		return
	}

	class := arena.class
	class.lock.Acquire()
	class.free = append(class.free, addr)
	arena.freeCnt++
	full := arena.freeCnt >= class.blocksPerArena
	if full {
		class.free = removeArenaBlocks(class.free, addr.Page)
	}
	class.lock.Release()

	if full {
		s.pages.FreePage(addr.Page)
		delete(s.arenas, addr.Page)
		delete(s.mem, addr.Page)
	}
}

func removeArenaBlocks(free []Addr, page int64) []Addr {
	out := free[:0]
	for _, a := range free {
		if a.Page != page {
			out = append(out, a)
		}
	}
	return out
}

// BlockSize reports the usable size of a previously allocated block
// (used by Realloc to decide how much to copy).
func (s *SlabAllocator) BlockSize(addr Addr) int {
	arena := s.arenas[addr.Page]
	if arena.class != nil {
		return arena.class.blockSize
	}
	return PageSize*arena.pageCnt - addr.Off
}

// Read copies n bytes starting at addr out of the simulated backing
// store (the hardware build instead does a raw memcpy off a pointer).
func (s *SlabAllocator) Read(addr Addr, n int) []byte {
	out := make([]byte, n)
	copy(out, s.pageBytes(addr.Page)[addr.Off:addr.Off+n])
	return out
}

// Write copies data into the simulated backing store starting at addr.
func (s *SlabAllocator) Write(addr Addr, data []byte) {
	copy(s.pageBytes(addr.Page)[addr.Off:], data)
}

// Calloc allocates n*size bytes zeroed (calloc).
func (s *SlabAllocator) Calloc(n, size int) (Addr, bool) {
	total := n * size
	addr, ok := s.Allocate(total)
	if !ok {
		return Addr{}, false
	}
	s.Write(addr, make([]byte, total))
	return addr, true
}

// Realloc allocates a new block of newSize bytes, copies min(old, new)
// bytes from old, frees old, and returns the new block (realloc). With
// oldValid false, old is ignored and Realloc behaves like Allocate.
func (s *SlabAllocator) Realloc(old Addr, oldValid bool, newSize int) (Addr, bool) {
	if newSize == 0 {
		if oldValid {
			s.Free(old)
		}
		return Addr{}, false
	}

	newAddr, ok := s.Allocate(newSize)
	if !ok {
		return Addr{}, false
	}
	if oldValid {
		oldSize := s.BlockSize(old)
		n := oldSize
		if newSize < n {
			n = newSize
		}
		s.Write(newAddr, s.Read(old, n))
		s.Free(old)
	}
	return newAddr, true
}
