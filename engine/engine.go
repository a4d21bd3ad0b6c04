// Package engine wires the disk manager, buffer pool, lock manager and
// transaction manager into a single construct-use-teardown object. It
// owns only storage-layer components: no catalog, no SQL planner, no
// execution engine.
package engine

import (
	"fmt"
	"runtime"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/mem"
	"go.uber.org/zap"

	"github.com/latchdb/latchdb/common"
	"github.com/latchdb/latchdb/storage/access"
	"github.com/latchdb/latchdb/storage/buffer"
	"github.com/latchdb/latchdb/storage/disk"
)

// Engine is the single top-level object an embedder constructs. Lifecycle
// is strictly construct, use, Close — there is no re-initialization path.
type Engine struct {
	id uuid.UUID

	disk    disk.DiskManager
	pool    *buffer.BufferPoolManager
	locks   *access.LockManager
	txnMgr  *access.TransactionManager

	log *zap.Logger
}

// New constructs an engine over dm with the given configuration. The
// deadlock detector, if enabled in cfg, starts running immediately.
func New(cfg common.Config, dm disk.DiskManager, log *zap.Logger) *Engine {
	cfg = cfg.WithDefaults()
	if log == nil {
		log = common.NewLogger()
	}
	id := uuid.New()
	log = log.With(zap.String("engine_id", id.String()))

	pool := buffer.New(cfg.PoolSize, dm, cfg.NumInstances, cfg.InstanceIndex, log.Named("buffer"))
	locks := access.NewLockManager(cfg, log.Named("locks"))
	txnMgr := access.NewTransactionManager(locks, log.Named("txn"))

	return &Engine{
		id:     id,
		disk:   dm,
		pool:   pool,
		locks:  locks,
		txnMgr: txnMgr,
		log:    log,
	}
}

func (e *Engine) ID() uuid.UUID { return e.id }

func (e *Engine) BufferPool() *buffer.BufferPoolManager { return e.pool }

func (e *Engine) Locks() *access.LockManager { return e.locks }

func (e *Engine) Transactions() *access.TransactionManager { return e.txnMgr }

// EngineStats is a snapshot of the buffer-pool size (frame count), disk
// counters, goroutine count and a host memory reading, for an
// operator-facing stats surface.
type EngineStats struct {
	PoolSize     int
	DiskWrites   uint64
	DiskSizeByte int64
	HostMemUsed  float64 // percent, 0 if unavailable
	Goroutines   int
}

// Stats reports a point-in-time snapshot of engine health.
func (e *Engine) Stats() EngineStats {
	stats := EngineStats{
		PoolSize:     e.pool.PoolSize(),
		DiskWrites:   e.disk.GetNumWrites(),
		DiskSizeByte: e.disk.Size(),
		Goroutines:   runtime.NumGoroutine(),
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		stats.HostMemUsed = vm.UsedPercent
	}
	return stats
}

// Diagnostics prints a goroutine stack dump to stdout and returns it as a
// string, for post-mortem inspection when the deadlock detector or
// go-deadlock's own watchdog fires.
func (e *Engine) Diagnostics() string {
	common.PrintGoroutineStacks()
	return fmt.Sprintf("engine %s\n%s", e.id, common.DumpGoroutineStacks())
}

// Close stops the deadlock detector and flushes every resident page to
// disk, then shuts down the disk manager. There is no way to reopen a
// closed Engine.
func (e *Engine) Close() {
	e.locks.Close()
	e.pool.FlushAllPages()
	e.disk.ShutDown()
}
