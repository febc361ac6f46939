// Package keydir holds the in-memory index that maps every live key to the
// location of its latest value on disk.
//
// Several implementations are provided behind one interface so the
// locking strategy and memory layout can change without touching callers.
// All of them are safe for concurrent use, and a Get always observes a
// complete Entry.
package keydir

import (
	"errors"
	"fmt"
)

// Entry points at the newest value of a key.
type Entry struct {
	FileID      uint64 // id of the data file holding the record
	ValueSize   uint32 // length of the value in bytes
	ValueOffset int64  // byte offset of the value inside the data file
	Timestamp   int64  // write time of the record, Unix nanoseconds
}

// Keydir is the capability the datastore needs from its index.
type Keydir interface {
	// Get returns the entry for key.
	Get(key []byte) (Entry, bool)

	// Put stores entry for key, replacing whatever was there. The keydir keeps
	// its own copy of key.
	Put(key []byte, entry Entry)

	// Remove drops key and reports whether it was present.
	Remove(key []byte) bool

	// Len returns the number of live keys.
	Len() int

	// Keys returns a copy of every live key. Ordered implementations return
	// them in byte order.
	Keys() [][]byte
}

// Names accepted by New.
const (
	KindMap     = "map"
	KindBTree   = "btree"
	KindART     = "art"
	KindSharded = "sharded"
)

// Kinds lists every implementation New can build.
var Kinds = []string{KindMap, KindBTree, KindART, KindSharded}

var ErrUnknownKind = errors.New("keydir: unknown implementation")

// New builds the keydir implementation called kind. An empty kind selects the
// plain map.
func New(kind string) (Keydir, error) {
	switch kind {
	case "", KindMap:
		return NewMap(), nil
	case KindBTree:
		return NewBTree(), nil
	case KindART:
		return NewART(), nil
	case KindSharded:
		return NewSharded(DefaultShards), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

func clone(key []byte) []byte {
	return append([]byte(nil), key...)
}
