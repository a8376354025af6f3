package hashindex

import "errors"

var (
	// ErrDirectoryOverflow is returned by SplitInsert when growing the
	// directory would exceed MaxDirectoryDepth (spec.md §4.4, §7).
	ErrDirectoryOverflow = errors.New("hashindex: directory overflow at max depth")
)
