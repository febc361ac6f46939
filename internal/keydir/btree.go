package keydir

import (
	"bytes"
	"sync"

	"github.com/google/btree"
)

const btreeDegree = 32

type item struct {
	key   []byte
	entry Entry
}

func lessItem(a, b item) bool {
	return bytes.Compare(a.key, b.key) < 0
}

// BTree is an ordered keydir on google/btree. Keys come back sorted.
type BTree struct {
	mu   sync.RWMutex
	tree *btree.BTreeG[item]
}

func NewBTree() *BTree {
	return &BTree{tree: btree.NewG(btreeDegree, lessItem)}
}

func (b *BTree) Get(key []byte) (Entry, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	it, ok := b.tree.Get(item{key: key})
	return it.entry, ok
}

func (b *BTree) Put(key []byte, entry Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.tree.ReplaceOrInsert(item{key: clone(key), entry: entry})
}

func (b *BTree) Remove(key []byte) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, ok := b.tree.Delete(item{key: key})
	return ok
}

func (b *BTree) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.tree.Len()
}

func (b *BTree) Keys() [][]byte {
	b.mu.RLock()
	defer b.mu.RUnlock()

	keys := make([][]byte, 0, b.tree.Len())
	b.tree.Ascend(func(it item) bool {
		keys = append(keys, clone(it.key))
		return true
	})
	return keys
}
