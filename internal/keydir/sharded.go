package keydir

import "github.com/twmb/murmur3"

const DefaultShards = 16

// Sharded spreads keys over several Map shards by murmur3 hash so writers to
// different shards do not contend on one lock.
type Sharded struct {
	shards []*Map
}

func NewSharded(n int) *Sharded {
	if n <= 0 {
		n = DefaultShards
	}
	shards := make([]*Map, n)
	for i := range shards {
		shards[i] = NewMap()
	}
	return &Sharded{shards: shards}
}

func (s *Sharded) shard(key []byte) *Map {
	return s.shards[murmur3.Sum32(key)%uint32(len(s.shards))]
}

func (s *Sharded) Get(key []byte) (Entry, bool) { return s.shard(key).Get(key) }

func (s *Sharded) Put(key []byte, entry Entry) { s.shard(key).Put(key, entry) }

func (s *Sharded) Remove(key []byte) bool { return s.shard(key).Remove(key) }

func (s *Sharded) Len() int {
	n := 0
	for _, m := range s.shards {
		n += m.Len()
	}
	return n
}

func (s *Sharded) Keys() [][]byte {
	var keys [][]byte
	for _, m := range s.shards {
		keys = append(keys, m.Keys()...)
	}
	return keys
}
