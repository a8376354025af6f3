package storage

const (
	OneB  = 1
	OneKB = 1024
	OneMB = OneKB * 1024
	OneGB = OneMB * 1024
)

const (
	// PageSize is the fixed page granularity for every frame, every disk
	// read/write, and every directory/bucket page codec in this module.
	PageSize = OneKB * 8

	// HeaderSize is the common leading header every page carries:
	// flags(2) + page_id(4) + lsn(4).
	HeaderSize = 10

	SegmentSize = OneGB
)

const (
	FileMode0644 = 0o644
	FileMode0664 = 0o664
	FileMode0755 = 0o755
)

// InvalidPageID is the sentinel for "unassigned" page ids (spec.md §3).
const InvalidPageID uint32 = 0xFFFFFFFF
