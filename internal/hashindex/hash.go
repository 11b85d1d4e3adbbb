// Package hashindex implements an in-memory, equality-only hash index:
// insert appends to the bucket for hash(key); get iterates the bucket;
// duplicates are allowed. It is rebuilt from a sequential heap scan
// after every reopen.
package hashindex

import (
	"hash/fnv"

	"github.com/relstore/reldb/internal/pager"
)

const bucketCount = 256

// HashIndex maps int64 keys to one or more pager.RowID values.
type HashIndex struct {
	buckets [bucketCount][]entry
}

type entry struct {
	key   int64
	value pager.RowID
}

// New returns an empty hash index.
func New() *HashIndex {
	return &HashIndex{}
}

func bucketFor(key int64) int {
	h := fnv.New64a()
	var b [8]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(key >> (8 * i))
	}
	_, _ = h.Write(b[:])
	return int(h.Sum64() % bucketCount)
}

// Insert appends value to the bucket for key. Duplicate keys are allowed;
// each key may map to multiple values.
func (h *HashIndex) Insert(key int64, value pager.RowID) {
	b := bucketFor(key)
	h.buckets[b] = append(h.buckets[b], entry{key: key, value: value})
}

// Get returns every value stored under key.
func (h *HashIndex) Get(key int64) []pager.RowID {
	b := bucketFor(key)
	var out []pager.RowID
	for _, e := range h.buckets[b] {
		if e.key == key {
			out = append(out, e.value)
		}
	}
	return out
}

// Delete removes the first occurrence of (key, value) from its bucket, if
// present.
func (h *HashIndex) Delete(key int64, value pager.RowID) {
	b := bucketFor(key)
	bucket := h.buckets[b]
	for i, e := range bucket {
		if e.key == key && e.value == value {
			h.buckets[b] = append(bucket[:i], bucket[i+1:]...)
			return
		}
	}
}
