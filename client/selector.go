package client

import (
	"github.com/zeebo/xxh3"
)

// ServerSelector picks the index of the server that owns key.
type ServerSelector func(key string, serverCount int) int

// DefaultServerSelector maps keys to servers with Jump consistent hashing over
// the xxh3 hash of the key. Adding a server only moves about 1/n of the keys.
func DefaultServerSelector(key string, serverCount int) int {
	return jumpHash(xxh3.HashString(key), serverCount)
}

// jumpHash is Google's Jump consistent hash: https://arxiv.org/abs/1406.2294
func jumpHash(key uint64, buckets int) int {
	if buckets <= 0 {
		return 0
	}

	b, j := int64(-1), int64(0)
	for j < int64(buckets) {
		b = j
		key = key*2862933555777941757 + 1
		j = int64(float64(b+1) * (float64(int64(1)<<31) / float64((key>>33)+1)))
	}
	return int(b)
}

// staticSelector always routes to the same server; used in tests.
func staticSelector(index int) ServerSelector {
	return func(key string, serverCount int) int {
		return index % serverCount
	}
}
