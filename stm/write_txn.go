package stm

import (
	"github.com/pingcap-incubator/tinystm/stm/memory"
	"github.com/pingcap/log"
	"go.uber.org/zap"
)

// WriteTxn buffers the stores of one attempt and remembers every address it read. Memory is only modified by commit.
type WriteTxn struct {
	mem         *memory.Memory
	readVersion uint64
	readSet     map[int]struct{}
	writeSet    *writeSet
	// Write-set addresses whose stripe lock this attempt holds.
	locked  []int
	aborted bool
}

func newWriteTxn(mem *memory.Memory) *WriteTxn {
	return &WriteTxn{
		mem:         mem,
		readVersion: mem.Clock(),
		readSet:     make(map[int]struct{}),
		writeSet:    newWriteSet(),
	}
}

// Store buffers val as the new content of the stripe at addr. A later Store to the same address replaces it. val must be
// exactly one stripe long and addr stripe-aligned, Store panics otherwise.
func (tx *WriteTxn) Store(addr int, val []byte) {
	tx.mem.CheckAddr(addr)
	if len(val) != tx.mem.StripeSize() {
		log.Panic("stored value is not one stripe long", zap.Int("addr", addr), zap.Int("len", len(val)),
			zap.Int("stripe-size", tx.mem.StripeSize()))
	}
	buf := make([]byte, len(val))
	copy(buf, val)
	tx.writeSet.put(addr, buf)
}

// Load returns the stripe at addr. A stripe this attempt has stored to is returned from the write buffer without reading
// memory. Otherwise Load behaves like ReadTxn.Load.
func (tx *WriteTxn) Load(addr int) ([]byte, bool) {
	tx.mem.CheckAddr(addr)
	if tx.aborted {
		return nil, false
	}

	tx.readSet[addr] = struct{}{}

	if buffered, ok := tx.writeSet.get(addr); ok {
		val := make([]byte, len(buffered))
		copy(val, buffered)
		return val, true
	}

	val, ok := loadStripe(tx.mem, addr, tx.readVersion)
	if !ok {
		tx.aborted = true
		return nil, false
	}
	return val, true
}

// ReadVersion returns the global clock value the attempt reads at.
func (tx *WriteTxn) ReadVersion() uint64 {
	return tx.readVersion
}

// Aborted reports whether the attempt has seen a conflict.
func (tx *WriteTxn) Aborted() bool {
	return tx.aborted
}

// lockWriteSet locks every write-set stripe in address order. It stops at the first stripe it cannot lock and returns
// false; the locks taken so far stay in tx.locked for release.
func (tx *WriteTxn) lockWriteSet() bool {
	ok := true
	tx.writeSet.ascend(func(addr int, _ []byte) bool {
		if !tx.mem.TryLock(addr) {
			ok = false
			return false
		}
		tx.locked = append(tx.locked, addr)
		return true
	})
	return ok
}

// validateReadSet checks that nothing the attempt read has been committed since the attempt started. Stripes in the
// write-set are locked by this attempt, so only their version is compared.
func (tx *WriteTxn) validateReadSet() bool {
	for addr := range tx.readSet {
		if tx.writeSet.contains(addr) {
			if tx.mem.Version(addr) > tx.readVersion {
				return false
			}
		} else if !tx.mem.CheckVersion(addr, tx.readVersion) {
			return false
		}
	}
	return true
}

// commit writes the buffered values, then publishes version v on every written stripe, which releases the locks.
func (tx *WriteTxn) commit(v uint64) {
	tx.writeSet.ascend(func(addr int, val []byte) bool {
		tx.mem.WriteStripe(addr, val)
		return true
	})
	tx.writeSet.ascend(func(addr int, _ []byte) bool {
		tx.mem.SetVersion(addr, v)
		return true
	})
	tx.locked = tx.locked[:0]
}

// release unlocks every stripe the attempt still holds. It runs on every exit path of an attempt.
func (tx *WriteTxn) release() {
	for _, addr := range tx.locked {
		tx.mem.Unlock(addr)
	}
	tx.locked = tx.locked[:0]
}
