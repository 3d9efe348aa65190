package memory

import (
	"encoding/binary"
	"math/bits"

	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

const (
	// LockBit is the top bit of a lock-version word. While it is set the stripe is being committed and the
	// version bits hold the version the stripe had before it was locked.
	LockBit uint64 = 1 << 63
	// VersionMask selects the version bits of a lock-version word.
	VersionMask = ^LockBit

	wordSize = 8

	DefaultSize       = 512
	DefaultStripeSize = 8
)

// Memory is a fixed-size byte region split into stripes. Every stripe has a lock-version word and the region shares one
// global version clock. Memory holds no transaction logic; it only exposes the atomic primitives transactions are built
// from.
//
// The region bytes are kept in 64-bit words that are only ever accessed atomically. Go atomics are sequentially
// consistent, so a version check, the atomic copy of a stripe and the re-check that follows it cannot be reordered
// with respect to a committer's data stores and version store.
type Memory struct {
	words   []atomic.Uint64
	lockVer []atomic.Uint64
	clock   atomic.Uint64

	size           int
	stripeSize     int
	wordsPerStripe int
	// Shift converting an address into a stripe index; stripeSize is 1 << shift.
	shift uint
}

// New creates a zeroed region of size bytes using stripes of stripeSize bytes. stripeSize must be a power of two and a
// multiple of 8; size must be a positive multiple of stripeSize.
func New(size, stripeSize int) (*Memory, error) {
	if stripeSize < wordSize || stripeSize%wordSize != 0 || bits.OnesCount(uint(stripeSize)) != 1 {
		return nil, errors.Errorf("stripe size %d must be a power of two and a multiple of %d", stripeSize, wordSize)
	}
	if size <= 0 || size%stripeSize != 0 {
		return nil, errors.Errorf("region size %d must be a positive multiple of the stripe size %d", size, stripeSize)
	}
	shift := uint(bits.TrailingZeros(uint(stripeSize)))
	return &Memory{
		words:          make([]atomic.Uint64, size/wordSize),
		lockVer:        make([]atomic.Uint64, size>>shift),
		size:           size,
		stripeSize:     stripeSize,
		wordsPerStripe: stripeSize / wordSize,
		shift:          shift,
	}, nil
}

// Size returns the region size in bytes.
func (m *Memory) Size() int {
	return m.size
}

// StripeSize returns the stripe size in bytes.
func (m *Memory) StripeSize() int {
	return m.stripeSize
}

// NumStripes returns how many stripes the region holds.
func (m *Memory) NumStripes() int {
	return len(m.lockVer)
}

// CheckAddr panics unless addr is the stripe-aligned start of a stripe inside the region. A bad address is a caller bug,
// so nothing is read or written before the check.
func (m *Memory) CheckAddr(addr int) {
	if addr&(m.stripeSize-1) != 0 {
		log.Panic("address is not stripe aligned", zap.Int("addr", addr), zap.Int("stripe-size", m.stripeSize))
	}
	if addr < 0 || addr >= m.size {
		log.Panic("address out of range", zap.Int("addr", addr), zap.Int("region-size", m.size))
	}
}

// Clock returns the current value of the global version clock.
func (m *Memory) Clock() uint64 {
	return m.clock.Load()
}

// BumpClock increments the global version clock and returns the value it had before the increment.
func (m *Memory) BumpClock() uint64 {
	return m.clock.Inc() - 1
}

func (m *Memory) word(addr int) *atomic.Uint64 {
	return &m.lockVer[addr>>m.shift]
}

// Version returns the committed version of the stripe at addr, ignoring the lock bit.
func (m *Memory) Version(addr int) uint64 {
	return m.word(addr).Load() & VersionMask
}

// Locked reports whether the stripe at addr is locked.
func (m *Memory) Locked(addr int) bool {
	return m.word(addr).Load()&LockBit != 0
}

// CheckVersion reports whether the stripe at addr is unlocked and was last committed at a version no newer than rv.
// A locked word always compares greater than any valid version, so one comparison covers both conditions.
func (m *Memory) CheckVersion(addr int, rv uint64) bool {
	return m.word(addr).Load() <= rv
}

// TryLock sets the lock bit of the stripe at addr if it is clear, keeping the version bits.
func (m *Memory) TryLock(addr int) bool {
	w := m.word(addr)
	for {
		old := w.Load()
		if old&LockBit != 0 {
			return false
		}
		if w.CAS(old, old|LockBit) {
			return true
		}
	}
}

// Unlock clears the lock bit of the stripe at addr and leaves the version untouched.
func (m *Memory) Unlock(addr int) {
	w := m.word(addr)
	for {
		old := w.Load()
		if old&LockBit == 0 || w.CAS(old, old&VersionMask) {
			return
		}
	}
}

// SetVersion stores v into the lock-version word of the stripe at addr. Versions never carry the lock bit, so this one
// store both publishes the version and releases the lock.
func (m *Memory) SetVersion(addr int, v uint64) {
	m.word(addr).Store(v & VersionMask)
}

// ReadStripe copies the stripe at addr into dst, which must be StripeSize bytes long.
func (m *Memory) ReadStripe(addr int, dst []byte) {
	base := addr / wordSize
	for i := 0; i < m.wordsPerStripe; i++ {
		binary.LittleEndian.PutUint64(dst[i*wordSize:], m.words[base+i].Load())
	}
}

// WriteStripe copies src, which must be StripeSize bytes long, into the stripe at addr. The caller must hold the
// stripe's lock.
func (m *Memory) WriteStripe(addr int, src []byte) {
	base := addr / wordSize
	for i := 0; i < m.wordsPerStripe; i++ {
		m.words[base+i].Store(binary.LittleEndian.Uint64(src[i*wordSize:]))
	}
}

// CommitStripe writes src into the locked stripe at addr, then installs version v and releases the lock.
func (m *Memory) CommitStripe(addr int, src []byte, v uint64) {
	m.WriteStripe(addr, src)
	m.SetVersion(addr, v)
}
