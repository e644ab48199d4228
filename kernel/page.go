package kernel

// PageFlags mirrors enum palloc_flags from the original allocator:
// PageFlagAssert turns allocation failure into a panic instead of a
// reported failure, PageFlagZero requests the returned range be zeroed.
type PageFlags uint

const (
	PageFlagAssert PageFlags = 1 << iota
	PageFlagZero
)

// PageSize is the hardware page size, 4 KiB on x86-64 with 4-level
// paging and no huge pages.
const PageSize = 4096

// pagePool is one of the two (kernel, user) memory pools: a lock and a
// bitmap tracking which pages in [basePage, basePage+bitmap.size) are in
// use. zeroFn, if set, is called with the absolute page range to clear;
// nil on the host, wired to a real memset over the mapped range by the
// hardware build.
type pagePool struct {
	lock     *Lock
	bits     *pageBitmap
	basePage int64
	zeroFn   func(basePage int64, count int)
}

func newPagePool(sched *Scheduler, basePage int64, pageCount int) *pagePool {
	p := &pagePool{bits: newPageBitmap(pageCount), basePage: basePage, lock: NewLock(sched)}
	p.bits.setAll(true)
	return p
}

// markFree flips the given absolute page range to free, used once at
// boot to carve usable firmware regions out of an otherwise
// all-reserved pool (populate_pools).
func (p *pagePool) markFree(basePage int64, count int) {
	start := int(basePage - p.basePage)
	p.bits.setMultiple(start, count, false)
}

// getMultiple scans for n contiguous free pages, marks them used, and
// optionally zeroes them, returning the absolute starting page number.
// ok is false (and, absent PageFlagAssert, no panic) if the pool has no
// such run (palloc_get_multiple).
func (p *pagePool) getMultiple(flags PageFlags, n int) (page int64, ok bool) {
	p.lock.Acquire()
	idx, found := p.bits.scanAndFlip(0, n)
	p.lock.Release()

	if !found {
		if flags&PageFlagAssert != 0 {
			KernelPanic("palloc_get: out of pages")
		}
		return 0, false
	}

	base := p.basePage + int64(idx)
	if flags&PageFlagZero != 0 && p.zeroFn != nil {
		p.zeroFn(base, n)
	}
	return base, true
}

// containsPage reports whether page falls within this pool's range
// (page_from_pool).
func (p *pagePool) containsPage(page int64) bool {
	return page >= p.basePage && page < p.basePage+int64(p.bits.size())
}

// freeMultiple asserts every targeted page is currently allocated and
// clears it (palloc_free_multiple's ASSERT(bitmap_all(...))).
func (p *pagePool) freeMultiple(page int64, n int) {
	start := int(page - p.basePage)
	p.lock.Acquire()
	if !p.bits.all(start, n, true) {
		p.lock.Release()
		KernelPanic("palloc_free: freeing an unallocated page")
	}
	p.bits.setMultiple(start, n, false)
	p.lock.Release()
}

// PageAllocator owns the kernel and user pools (palloc_init's two
// static pools, generalized into an explicit struct so tests can build
// one without touching package-level state).
type PageAllocator struct {
	Kernel *pagePool
	User   *pagePool
}

// NewPageAllocator builds an allocator whose kernel pool starts at page
// 0 and whose user pool immediately follows, with kernelPages and
// userPages pages respectively already carved out as free.
func NewPageAllocator(sched *Scheduler, kernelPages, userPages int) *PageAllocator {
	a := &PageAllocator{
		Kernel: newPagePool(sched, 0, kernelPages),
		User:   newPagePool(sched, int64(kernelPages), userPages),
	}
	a.Kernel.markFree(0, kernelPages)
	a.User.markFree(int64(kernelPages), userPages)
	return a
}

// GetMultiple allocates n contiguous pages from the user or kernel pool
// as selected by user (palloc_get_multiple).
func (a *PageAllocator) GetMultiple(flags PageFlags, n int, user bool) (page int64, ok bool) {
	if user {
		return a.User.getMultiple(flags, n)
	}
	return a.Kernel.getMultiple(flags, n)
}

// GetPage allocates a single page (palloc_get_page).
func (a *PageAllocator) GetPage(flags PageFlags, user bool) (page int64, ok bool) {
	return a.GetMultiple(flags, 1, user)
}

// FreeMultiple returns n pages starting at page to whichever pool
// contains it (palloc_free_multiple).
func (a *PageAllocator) FreeMultiple(page int64, n int) {
	switch {
	case a.Kernel.containsPage(page):
		a.Kernel.freeMultiple(page, n)
	case a.User.containsPage(page):
		a.User.freeMultiple(page, n)
	default:
		KernelPanic("palloc_free: page %d belongs to no pool", page)
	}
}

// FreePage returns a single page (palloc_free_page).
func (a *PageAllocator) FreePage(page int64) { a.FreeMultiple(page, 1) }
