package stm

import "github.com/pingcap-incubator/tinystm/stm/memory"

// ReadTxn is a read-only view of the region for one attempt. It takes no locks.
type ReadTxn struct {
	mem         *memory.Memory
	readVersion uint64
	// Set once a load has seen a conflict; every later load fails without touching memory.
	aborted bool
}

func newReadTxn(mem *memory.Memory) *ReadTxn {
	return &ReadTxn{
		mem:         mem,
		readVersion: mem.Clock(),
	}
}

// Load returns a copy of the stripe at addr as of the attempt's snapshot. It returns false if the stripe is locked or was
// committed after the attempt started; the body should then return, the engine will run it again. addr must be
// stripe-aligned, Load panics otherwise.
func (tx *ReadTxn) Load(addr int) ([]byte, bool) {
	if tx.aborted {
		return nil, false
	}
	tx.mem.CheckAddr(addr)

	val, ok := loadStripe(tx.mem, addr, tx.readVersion)
	if !ok {
		tx.aborted = true
		return nil, false
	}
	return val, true
}

// ReadVersion returns the global clock value the attempt reads at.
func (tx *ReadTxn) ReadVersion() uint64 {
	return tx.readVersion
}

// Aborted reports whether the attempt has seen a conflict.
func (tx *ReadTxn) Aborted() bool {
	return tx.aborted
}

// loadStripe copies the stripe at addr if it is unlocked and not newer than rv both before and after the copy. A commit
// landing on the stripe while it is copied changes the lock-version word, so the second check catches a torn copy.
func loadStripe(mem *memory.Memory, addr int, rv uint64) ([]byte, bool) {
	if !mem.CheckVersion(addr, rv) {
		return nil, false
	}

	val := make([]byte, mem.StripeSize())
	mem.ReadStripe(addr, val)

	if !mem.CheckVersion(addr, rv) {
		return nil, false
	}
	return val, true
}
