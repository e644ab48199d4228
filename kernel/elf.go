package kernel

import "encoding/binary"

// ELF64Header mirrors struct ELF64_hdr (userprog/process.c), trimmed to
// the fields load() actually inspects.
type ELF64Header struct {
	Ident     [16]byte
	Type      uint16
	Machine   uint16
	Version   uint32
	Entry     uint64
	PhOff     uint64
	ShOff     uint64
	Flags     uint32
	EhSize    uint16
	PhEntSize uint16
	PhNum     uint16
	ShEntSize uint16
	ShNum     uint16
	ShStrNdx  uint16
}

// ELF64Phdr mirrors struct ELF64_PHDR.
type ELF64Phdr struct {
	Type   uint32
	Flags  uint32
	Offset uint64
	Vaddr  uint64
	Paddr  uint64
	Filesz uint64
	Memsz  uint64
	Align  uint64
}

// Segment types, PT_* in the original.
const (
	PTNull    uint32 = 0
	PTLoad    uint32 = 1
	PTDynamic uint32 = 2
	PTInterp  uint32 = 3
	PTNote    uint32 = 4
	PTShlib   uint32 = 5
	PTPhdr    uint32 = 6
	PTStack   uint32 = 0x6474e551
)

// Segment flags, PF_* in the original.
const (
	PFX uint32 = 1
	PFW uint32 = 2
	PFR uint32 = 4
)

const elfPhEntSize = 56 // sizeof(struct ELF64_PHDR)
const maxPhNum = 1024

var elfMagic = [7]byte{0x7f, 'E', 'L', 'F', 2, 1, 1}

// ValidateHeader checks the fixed fields load() rejects a binary on,
// short of reading any program headers (the e_ident/e_type/e_machine/
// e_version/e_phentsize/e_phnum checks inlined in load()).
func ValidateHeader(h *ELF64Header) bool {
	for i, b := range elfMagic {
		if h.Ident[i] != b {
			return false
		}
	}
	return h.Type == 2 && // ET_EXEC
		h.Machine == 0x3e && // EM_X86_64
		h.Version == 1 &&
		h.PhEntSize == elfPhEntSize &&
		h.PhNum <= maxPhNum
}

// ValidateSegment reproduces validate_segment verbatim: every check
// must hold before load_segment is allowed to map a PT_LOAD segment
// into the process's address space. fileLength is file_length(file).
func ValidateSegment(p *ELF64Phdr, fileLength int64) bool {
	if (p.Offset & (PageSize - 1)) != (p.Vaddr & (PageSize - 1)) {
		return false
	}
	if p.Offset > uint64(fileLength) {
		return false
	}
	if p.Memsz < p.Filesz {
		return false
	}
	if p.Memsz == 0 {
		return false
	}
	if !IsUserVaddr(p.Vaddr) {
		return false
	}
	if !IsUserVaddr(p.Vaddr + p.Memsz) {
		return false
	}
	if p.Vaddr+p.Memsz < p.Vaddr {
		return false
	}
	if p.Vaddr < PageSize {
		return false
	}
	return true
}

// LoadableSegment describes one PT_LOAD region to be mapped and read,
// in the page_offset/read_bytes/zero_bytes shape load() derives from a
// validated Phdr before calling load_segment.
type LoadableSegment struct {
	FileOffset uint64
	MemPage    uint64
	PageOffset uint64
	ReadBytes  uint32
	ZeroBytes  uint32
	Writable   bool
}

// roundUp rounds n up to the next multiple of PageSize (ROUND_UP).
func roundUp(n uint64) uint64 { return (n + PageSize - 1) &^ (PageSize - 1) }

// PlanSegment turns a validated PT_LOAD Phdr into the load_segment
// parameters load() computes inline: a page-aligned file offset and
// mapping address, plus how many bytes come from the file versus get
// zeroed to fill out p_memsz.
func PlanSegment(p *ELF64Phdr) LoadableSegment {
	filePage := p.Offset &^ (PageSize - 1)
	memPage := p.Vaddr &^ (PageSize - 1)
	pageOff := p.Vaddr & (PageSize - 1)

	var readBytes, zeroBytes uint32
	if p.Filesz > 0 {
		readBytes = uint32(pageOff + p.Filesz)
		zeroBytes = uint32(roundUp(pageOff+p.Memsz) - uint64(readBytes))
	} else {
		readBytes = 0
		zeroBytes = uint32(roundUp(pageOff + p.Memsz))
	}

	return LoadableSegment{
		FileOffset: filePage,
		MemPage:    memPage,
		PageOffset: pageOff,
		ReadBytes:  readBytes,
		ZeroBytes:  zeroBytes,
		Writable:   p.Flags&PFW != 0,
	}
}

// DecodeELF64Header parses the fixed 64-byte ELF64 header out of the
// executable's first bytes (load()'s initial file_read of an
// ELF64_hdr), reporting false if fewer than 64 bytes are available.
func DecodeELF64Header(b []byte) (*ELF64Header, bool) {
	if len(b) < 64 {
		return nil, false
	}
	h := &ELF64Header{}
	copy(h.Ident[:], b[0:16])
	h.Type = binary.LittleEndian.Uint16(b[16:18])
	h.Machine = binary.LittleEndian.Uint16(b[18:20])
	h.Version = binary.LittleEndian.Uint32(b[20:24])
	h.Entry = binary.LittleEndian.Uint64(b[24:32])
	h.PhOff = binary.LittleEndian.Uint64(b[32:40])
	h.ShOff = binary.LittleEndian.Uint64(b[40:48])
	h.Flags = binary.LittleEndian.Uint32(b[48:52])
	h.EhSize = binary.LittleEndian.Uint16(b[52:54])
	h.PhEntSize = binary.LittleEndian.Uint16(b[54:56])
	h.PhNum = binary.LittleEndian.Uint16(b[56:58])
	h.ShEntSize = binary.LittleEndian.Uint16(b[58:60])
	h.ShNum = binary.LittleEndian.Uint16(b[60:62])
	h.ShStrNdx = binary.LittleEndian.Uint16(b[62:64])
	return h, true
}

// DecodeELF64Phdr parses one program header entry (elfPhEntSize bytes)
// out of b. Callers slice the raw program header table themselves since
// the number of entries is only known after the ELF header is decoded.
func DecodeELF64Phdr(b []byte) ELF64Phdr {
	return ELF64Phdr{
		Type:   binary.LittleEndian.Uint32(b[0:4]),
		Flags:  binary.LittleEndian.Uint32(b[4:8]),
		Offset: binary.LittleEndian.Uint64(b[8:16]),
		Vaddr:  binary.LittleEndian.Uint64(b[16:24]),
		Paddr:  binary.LittleEndian.Uint64(b[24:32]),
		Filesz: binary.LittleEndian.Uint64(b[32:40]),
		Memsz:  binary.LittleEndian.Uint64(b[40:48]),
		Align:  binary.LittleEndian.Uint64(b[48:56]),
	}
}

// ParseProgramHeaders validates the header and every PT_LOAD entry it
// names, returning only the segments that pass ValidateSegment. A
// PT_DYNAMIC, PT_INTERP, or PT_SHLIB entry fails the whole load, matching
// load()'s switch goto done-ing on exactly those three; every other
// non-PT_LOAD type is silently ignored, per the same switch's default.
func ParseProgramHeaders(h *ELF64Header, phdrs []ELF64Phdr, fileLength int64) ([]LoadableSegment, bool) {
	if !ValidateHeader(h) {
		return nil, false
	}
	if len(phdrs) != int(h.PhNum) {
		return nil, false
	}

	var segs []LoadableSegment
	for i := range phdrs {
		p := &phdrs[i]
		switch p.Type {
		case PTLoad:
			if !ValidateSegment(p, fileLength) {
				return nil, false
			}
			segs = append(segs, PlanSegment(p))
		case PTDynamic, PTInterp, PTShlib:
			// dynamic linking, interpreters, shared libraries: load() goes
			// to done (fails the load) on exactly these three.
			return nil, false
		default:
			// PT_NULL, PT_NOTE, PT_PHDR, PT_GNU_STACK, and anything else
			// unrecognized: ignored, matching load()'s switch default.
		}
	}
	return segs, true
}
