package keydir

import (
	"sync"

	art "github.com/plar/go-adaptive-radix-tree"
)

// ART is a keydir on an adaptive radix tree. Shared key prefixes are stored
// once, which suits keyspaces like "user:1234:..." Keys come back sorted.
type ART struct {
	mu   sync.RWMutex
	tree art.Tree
}

func NewART() *ART {
	return &ART{tree: art.New()}
}

func (a *ART) Get(key []byte) (Entry, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	v, ok := a.tree.Search(art.Key(key))
	if !ok {
		return Entry{}, false
	}
	return v.(Entry), true
}

func (a *ART) Put(key []byte, entry Entry) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.tree.Insert(art.Key(clone(key)), entry)
}

func (a *ART) Remove(key []byte) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	_, deleted := a.tree.Delete(art.Key(key))
	return deleted
}

func (a *ART) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return a.tree.Size()
}

func (a *ART) Keys() [][]byte {
	a.mu.RLock()
	defer a.mu.RUnlock()

	keys := make([][]byte, 0, a.tree.Size())
	a.tree.ForEach(func(node art.Node) bool {
		keys = append(keys, clone(node.Key()))
		return true
	}, art.TraverseLeaf)
	return keys
}
