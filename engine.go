// Package gopherdb wires the storage-and-concurrency core together: a
// sharded buffer pool over a disk-backed storage manager, a persistent
// extendible hash index, and a row-level lock manager. Executors, the
// catalog, and the table heap are external collaborators that hold an
// Engine and call through to these three subsystems (spec.md §1, §6).
package gopherdb

import (
	"fmt"

	"github.com/gopherdb/gopherdb/internal"
	"github.com/gopherdb/gopherdb/internal/bufferpool"
	"github.com/gopherdb/gopherdb/internal/hashindex"
	"github.com/gopherdb/gopherdb/internal/lockmgr"
	"github.com/gopherdb/gopherdb/internal/storage"
	"github.com/gopherdb/gopherdb/internal/txn"
)

// Engine is the storage-and-concurrency core's entry point, replacing
// the teacher's SQL-engine-scoped Database (DESIGN.md "Top-level
// facade"). It owns the buffer pool, the transaction/lock-manager pair,
// and gives executors a place to open hash indexes against its pool.
type Engine struct {
	BufferPool bufferpool.Manager
	Txns       *txn.Manager
	Locks      *lockmgr.LockManager

	fs storage.FileSet
	sm *storage.StorageManager
}

// Options configures an Engine's storage layout and pool shape. Zero
// values fall back to the defaults internal/config.go's LoadConfig also
// uses, so an Engine can be built directly in tests without a config
// file.
type Options struct {
	DataDir   string
	BaseName  string
	PoolSize  int
	NumShards int
}

func (o Options) withDefaults() Options {
	if o.DataDir == "" {
		o.DataDir = "./data"
	}
	if o.BaseName == "" {
		o.BaseName = "segment"
	}
	if o.PoolSize <= 0 {
		o.PoolSize = 64
	}
	if o.NumShards <= 0 {
		o.NumShards = 4
	}
	return o
}

// NewEngine builds an Engine backed by a local-disk FileSet and a
// ParallelBufferPoolManager sharded across opts.NumShards instances
// (spec.md §4.3).
func NewEngine(opts Options) (*Engine, error) {
	opts = opts.withDefaults()

	fs := storage.LocalFileSet{Dir: opts.DataDir, Base: opts.BaseName}
	sm := storage.NewStorageManager()
	pool := bufferpool.NewParallelBufferPoolManager(sm, fs, opts.NumShards, opts.PoolSize)

	txnMgr := txn.NewManager()

	return &Engine{
		BufferPool: pool,
		Txns:       txnMgr,
		Locks:      lockmgr.NewLockManager(txnMgr),
		fs:         fs,
		sm:         sm,
	}, nil
}

// OpenHashIndex allocates a new extendible hash index backed by this
// engine's buffer pool (spec.md §4.4). bucketArraySize/maxDepth <= 0 use
// the package's documented defaults.
func (e *Engine) OpenHashIndex(bucketArraySize int, maxDepth uint32) (*hashindex.Table, error) {
	tbl, err := hashindex.NewTable(e.BufferPool, bucketArraySize, maxDepth)
	if err != nil {
		return nil, fmt.Errorf("gopherdb: open hash index: %w", err)
	}
	return tbl, nil
}

// Close flushes every dirty page still resident in the buffer pool.
func (e *Engine) Close() error {
	return e.BufferPool.FlushAllPages()
}

// NewEngineFromConfig loads a YAML config (internal.LoadConfig's shape)
// and builds an Engine from it, the way the teacher's cmd entry points
// load internal/config.go before constructing their server.
func NewEngineFromConfig(path string) (*Engine, error) {
	cfg, err := internal.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("gopherdb: load config: %w", err)
	}
	return NewEngine(Options{
		DataDir:   cfg.Storage.DataDir,
		PoolSize:  cfg.BufferPool.PoolSize,
		NumShards: cfg.BufferPool.NumShards,
	})
}
