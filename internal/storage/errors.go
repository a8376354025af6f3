package storage

import "errors"

var (
	// ErrPageNotFound is currently unused by ReadPage/WritePage, which
	// zero-fill short reads instead of failing; reserved for higher-level
	// callers that want to distinguish "never written" from "beyond EOF".
	ErrPageNotFound = errors.New("storage: page not found")
)
