package stm

import "github.com/google/btree"

const writeSetDegree = 8

type stripeItem struct {
	addr int
	val  []byte
}

func (it *stripeItem) Less(than btree.Item) bool {
	return it.addr < than.(*stripeItem).addr
}

// writeSet buffers the stores of one write attempt, ordered by address so that commit locks stripes in a fixed order.
type writeSet struct {
	tree *btree.BTree
}

func newWriteSet() *writeSet {
	return &writeSet{tree: btree.New(writeSetDegree)}
}

// put records val for addr, replacing any earlier value. val is owned by the write-set from now on.
func (ws *writeSet) put(addr int, val []byte) {
	ws.tree.ReplaceOrInsert(&stripeItem{addr: addr, val: val})
}

func (ws *writeSet) get(addr int) ([]byte, bool) {
	it := ws.tree.Get(&stripeItem{addr: addr})
	if it == nil {
		return nil, false
	}
	return it.(*stripeItem).val, true
}

func (ws *writeSet) contains(addr int) bool {
	return ws.tree.Has(&stripeItem{addr: addr})
}

// ascend calls fn for every buffered stripe in address order until fn returns false.
func (ws *writeSet) ascend(fn func(addr int, val []byte) bool) {
	ws.tree.Ascend(func(i btree.Item) bool {
		it := i.(*stripeItem)
		return fn(it.addr, it.val)
	})
}
