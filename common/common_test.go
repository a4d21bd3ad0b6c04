package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAssertPanicsOnFalseCondition(t *testing.T) {
	assert.Panics(t, func() { Assert(false, "boom %d", 7) })
	assert.NotPanics(t, func() { Assert(true, "fine") })
}

func TestConfigWithDefaultsFillsZeroValues(t *testing.T) {
	c := Config{}.WithDefaults()
	assert.EqualValues(t, 1, c.NumInstances)
	assert.Equal(t, DefaultCycleDetectionInterval, c.CycleDetectionInterval)
	assert.EqualValues(t, 16, c.LockStripes)
}

func TestConfigWithDefaultsPreservesExplicitValues(t *testing.T) {
	c := Config{NumInstances: 3, LockStripes: 8}.WithDefaults()
	assert.EqualValues(t, 3, c.NumInstances)
	assert.EqualValues(t, 8, c.LockStripes)
}

func TestRWLatchLockUnlockRoundTrip(t *testing.T) {
	l := NewRWLatch()
	l.RLock()
	l.RUnlock()
	l.WLock()
	l.WUnlock()
}
