package common

import "time"

// PageSize is the fixed size in bytes of every page slot in the buffer pool.
const PageSize = 4096

// DefaultCycleDetectionInterval is the cadence at which the lock manager's
// background detector rebuilds the waits-for graph when no explicit
// interval is configured.
const DefaultCycleDetectionInterval = 50 * time.Millisecond

// Config collects the construction-time parameters of a latchdb engine.
// It is passed explicitly to constructors rather than read from globals,
// so a process can host more than one independently-configured engine.
type Config struct {
	// PoolSize is the number of frames in the buffer pool.
	PoolSize uint32
	// NumInstances is the number of cooperating buffer pool instances that
	// share a page-id space. 1 if there is only one pool.
	NumInstances uint32
	// InstanceIndex is this pool's position in [0, NumInstances).
	InstanceIndex uint32
	// EnableCycleDetection turns on the background deadlock detector.
	EnableCycleDetection bool
	// CycleDetectionInterval overrides DefaultCycleDetectionInterval when nonzero.
	CycleDetectionInterval time.Duration
	// LockStripes is the number of hash stripes the lock table is split
	// across. 0 selects a sane default.
	LockStripes uint32
}

// WithDefaults fills in zero-valued fields with their defaults.
func (c Config) WithDefaults() Config {
	if c.NumInstances == 0 {
		c.NumInstances = 1
	}
	if c.CycleDetectionInterval == 0 {
		c.CycleDetectionInterval = DefaultCycleDetectionInterval
	}
	if c.LockStripes == 0 {
		c.LockStripes = 16
	}
	return c
}
