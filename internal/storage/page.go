package storage

const (
	_256   = 256
	_256_2 = 256 * 256
	_256_3 = 256 * 256 * 256
)

func GetU16(b []byte, offset int) uint16 {
	return uint16(b[offset]) + uint16(b[offset+1])*_256
}

func PutU16(b []byte, offset int, v uint16) {
	b[offset], b[offset+1] = byte(v%_256), byte(v/_256)
}

func GetU32(b []byte, offset int) uint32 {
	return uint32(b[offset]) +
		uint32(b[offset+1])*_256 +
		uint32(b[offset+2])*_256_2 +
		uint32(b[offset+3])*_256_3
}

func PutU32(b []byte, offset int, v uint32) {
	b[offset] = byte(v % _256)
	b[offset+1] = byte((v / _256) % _256)
	b[offset+2] = byte((v / (_256 * _256)) % _256)
	b[offset+3] = byte((v / (_256 * _256 * _256)) % _256)
}

// Page is a fixed-size byte buffer (spec.md §3): the sole thing a frame
// holds in memory, and the sole thing the disk manager reads/writes.
// Higher layers (directory page, bucket page, ...) reinterpret Buf rather
// than type-punning it, per the "bytes with interpretation" design note.
//
// Layout of the common header (bytes 0..HeaderSize):
//
//	[0:2)  flags; bit 0 set once the page has been initialized
//	[2:6)  page_id
//	[6:10) lsn
type Page struct {
	Buf []byte
}

const flagInitialized = uint16(0x0001)

func NewPage(buf []byte, pageID uint32) Page {
	p := Page{Buf: buf}
	p.init(pageID)
	return p
}

func (p Page) init(pageID uint32) {
	for i := range p.Buf {
		p.Buf[i] = 0
	}
	PutU16(p.Buf, 0, flagInitialized)
	PutU32(p.Buf, 2, pageID)
	PutU32(p.Buf, 6, 0)
}

func (p Page) PageID() uint32 {
	return GetU32(p.Buf, 2)
}

func (p Page) SetPageID(id uint32) {
	PutU32(p.Buf, 2, id)
}

func (p Page) LSN() uint32 {
	return GetU32(p.Buf, 6)
}

func (p Page) SetLSN(lsn uint32) {
	PutU32(p.Buf, 6, lsn)
}

// IsUninitialized reports whether the page has never had its header set,
// i.e. it was read as a short/zero segment by StorageManager.LoadPage.
func (p Page) IsUninitialized() bool {
	return GetU16(p.Buf, 0)&flagInitialized == 0
}

// Zero clears the whole buffer but leaves the caller to set a fresh header.
func (p Page) Zero() {
	for i := range p.Buf {
		p.Buf[i] = 0
	}
}
