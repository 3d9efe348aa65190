package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGeometry(t *testing.T) {
	m, err := New(DefaultSize, DefaultStripeSize)
	require.NoError(t, err)
	assert.Equal(t, 512, m.Size())
	assert.Equal(t, 8, m.StripeSize())
	assert.Equal(t, 64, m.NumStripes())

	m, err = New(256, 32)
	require.NoError(t, err)
	assert.Equal(t, 8, m.NumStripes())

	_, err = New(512, 12)
	assert.Error(t, err)
	_, err = New(512, 4)
	assert.Error(t, err)
	_, err = New(500, 8)
	assert.Error(t, err)
	_, err = New(0, 8)
	assert.Error(t, err)
}

func TestCheckAddr(t *testing.T) {
	m, err := New(64, 8)
	require.NoError(t, err)

	assert.NotPanics(t, func() { m.CheckAddr(0) })
	assert.NotPanics(t, func() { m.CheckAddr(56) })
	assert.Panics(t, func() { m.CheckAddr(3) })
	assert.Panics(t, func() { m.CheckAddr(64) })
	assert.Panics(t, func() { m.CheckAddr(-8) })
}

func TestLockPreservesVersion(t *testing.T) {
	m, err := New(64, 8)
	require.NoError(t, err)

	m.SetVersion(8, 5)
	assert.True(t, m.TryLock(8))
	assert.True(t, m.Locked(8))
	assert.Equal(t, uint64(5), m.Version(8))

	// Can only lock once.
	assert.False(t, m.TryLock(8))

	m.Unlock(8)
	assert.False(t, m.Locked(8))
	assert.Equal(t, uint64(5), m.Version(8))

	// Unlocking an unlocked stripe is harmless.
	m.Unlock(8)
	assert.Equal(t, uint64(5), m.Version(8))
	assert.True(t, m.TryLock(8))
}

func TestCheckVersion(t *testing.T) {
	m, err := New(64, 8)
	require.NoError(t, err)

	m.SetVersion(16, 3)
	assert.True(t, m.CheckVersion(16, 3))
	assert.True(t, m.CheckVersion(16, 4))
	assert.False(t, m.CheckVersion(16, 2))

	require.True(t, m.TryLock(16))
	assert.False(t, m.CheckVersion(16, 3))
	assert.False(t, m.CheckVersion(16, VersionMask))
}

func TestCommitStripe(t *testing.T) {
	m, err := New(64, 16)
	require.NoError(t, err)

	val := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	require.True(t, m.TryLock(16))
	m.CommitStripe(16, val, 7)

	assert.False(t, m.Locked(16))
	assert.Equal(t, uint64(7), m.Version(16))

	got := make([]byte, 16)
	m.ReadStripe(16, got)
	assert.Equal(t, val, got)

	// Neighbouring stripes are untouched.
	m.ReadStripe(0, got)
	assert.Equal(t, make([]byte, 16), got)
	m.ReadStripe(32, got)
	assert.Equal(t, make([]byte, 16), got)
}

func TestBumpClock(t *testing.T) {
	m, err := New(64, 8)
	require.NoError(t, err)

	assert.Equal(t, uint64(0), m.Clock())
	assert.Equal(t, uint64(0), m.BumpClock())
	assert.Equal(t, uint64(1), m.BumpClock())
	assert.Equal(t, uint64(2), m.Clock())
}
