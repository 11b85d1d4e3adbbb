// Package btree implements an on-disk B+Tree index: i64 keys, fixed
// MAX_KEYS=10 fanout, one node per page, leaf sibling linking for range
// scans. Values are pager.RowID rather than a bare PageID — the node
// format widens its value slots to 8 bytes (u64) to carry the full
// (PageID, SlotID) pair; see DESIGN.md for the rationale.
package btree

import (
	"fmt"

	"github.com/relstore/reldb/internal/pager"
	"github.com/relstore/reldb/internal/pagecodec"
)

// MaxKeys is the maximum number of keys per node (order - 1), a small
// compile-time constant.
const MaxKeys = 10

// BTree is a persistent B+Tree index operating entirely through a
// pager.BufferPool.
type BTree struct {
	pool   *pager.BufferPool
	rootID pager.PageID
}

// packRowID encodes a RowID into the tree's 8-byte value slot.
func packRowID(r pager.RowID) uint64 {
	return uint64(r.PageID)<<16 | uint64(r.SlotID)
}

func unpackRowID(v uint64) pager.RowID {
	return pager.RowID{PageID: pager.PageID(v >> 16), SlotID: pager.SlotID(v & 0xffff)}
}

// Create allocates a new, empty leaf page as root and returns a tree
// rooted there.
func Create(pool *pager.BufferPool) (*BTree, error) {
	root, err := pool.NewPage(pager.PageBTreeLeaf)
	if err != nil {
		return nil, fmt.Errorf("btree: create root: %w", err)
	}
	data := serializeLeaf(nil, nil, 0)
	if _, err := root.AddRow(data); err != nil {
		return nil, fmt.Errorf("btree: init root: %w", err)
	}
	pool.UnpinPage(root.ID(), true)
	return &BTree{pool: pool, rootID: root.ID()}, nil
}

// Flush flushes the underlying buffer pool.
func (t *BTree) Flush() error { return t.pool.FlushAll() }

// --- node (de)serialization -------------------------------------------------
//
// Leaf:     num_keys:u16, MAX_KEYS x i64 keys, MAX_KEYS x u64 values, next:u32
// Internal: num_keys:u16, MAX_KEYS x i64 keys, (MAX_KEYS+1) x u32 children

func serializeLeaf(keys []int64, values []uint64, next pager.PageID) []byte {
	w := pagecodec.NewWriter(nil)
	w.U16(uint16(len(keys)))
	for _, k := range keys {
		w.I64(k)
	}
	for i := len(keys); i < MaxKeys; i++ {
		w.I64(0)
	}
	for _, v := range values {
		w.U64(v)
	}
	for i := len(values); i < MaxKeys; i++ {
		w.U64(0)
	}
	w.U32(uint32(next))
	return w.Bytes()
}

func deserializeLeaf(data []byte) (keys []int64, values []uint64, next pager.PageID, err error) {
	r := pagecodec.NewReader(data)
	n, err := r.U16()
	if err != nil {
		return nil, nil, 0, err
	}
	num := int(n)
	keys = make([]int64, 0, num)
	for i := 0; i < MaxKeys; i++ {
		k, err := r.I64()
		if err != nil {
			return nil, nil, 0, err
		}
		if i < num {
			keys = append(keys, k)
		}
	}
	values = make([]uint64, 0, num)
	for i := 0; i < MaxKeys; i++ {
		v, err := r.U64()
		if err != nil {
			return nil, nil, 0, err
		}
		if i < num {
			values = append(values, v)
		}
	}
	nx, err := r.U32()
	if err != nil {
		return nil, nil, 0, err
	}
	return keys, values, pager.PageID(nx), nil
}

func serializeInternal(keys []int64, children []pager.PageID) []byte {
	w := pagecodec.NewWriter(nil)
	w.U16(uint16(len(keys)))
	for _, k := range keys {
		w.I64(k)
	}
	for i := len(keys); i < MaxKeys; i++ {
		w.I64(0)
	}
	for _, c := range children {
		w.U32(uint32(c))
	}
	for i := len(children); i <= MaxKeys; i++ {
		w.U32(0)
	}
	return w.Bytes()
}

func deserializeInternal(data []byte) (keys []int64, children []pager.PageID, err error) {
	r := pagecodec.NewReader(data)
	n, err := r.U16()
	if err != nil {
		return nil, nil, err
	}
	num := int(n)
	keys = make([]int64, 0, num)
	for i := 0; i < MaxKeys; i++ {
		k, err := r.I64()
		if err != nil {
			return nil, nil, err
		}
		if i < num {
			keys = append(keys, k)
		}
	}
	children = make([]pager.PageID, 0, num+1)
	for i := 0; i <= MaxKeys; i++ {
		c, err := r.U32()
		if err != nil {
			return nil, nil, err
		}
		if i <= num {
			children = append(children, pager.PageID(c))
		}
	}
	return keys, children, nil
}

// searchChild returns the child index to descend to for key, applying
// the "equal keys go to the right child of the matching separator" rule.
func searchChild(keys []int64, key int64) int {
	lo, hi := 0, len(keys)
	for lo < hi {
		mid := (lo + hi) / 2
		if keys[mid] <= key {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// binarySearch returns (index, true) if key is present in sorted keys,
// else (insertion point, false).
func binarySearch(keys []int64, key int64) (int, bool) {
	lo, hi := 0, len(keys)
	for lo < hi {
		mid := (lo + hi) / 2
		switch {
		case keys[mid] == key:
			return mid, true
		case keys[mid] < key:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return lo, false
}

// Search returns the value for key, if present.
func (t *BTree) Search(key int64) (pager.RowID, bool, error) {
	pageID := t.rootID
	for {
		page, err := t.pool.FetchPage(pageID)
		if err != nil {
			return pager.RowID{}, false, err
		}
		raw, ok := page.GetRow(0)
		if !ok {
			t.pool.UnpinPage(pageID, false)
			return pager.RowID{}, false, fmt.Errorf("btree: empty node at page %d", pageID)
		}
		switch page.Type() {
		case pager.PageBTreeInternal:
			keys, children, err := deserializeInternal(raw)
			t.pool.UnpinPage(pageID, false)
			if err != nil {
				return pager.RowID{}, false, err
			}
			pageID = children[searchChild(keys, key)]
		case pager.PageBTreeLeaf:
			keys, values, _, err := deserializeLeaf(raw)
			t.pool.UnpinPage(pageID, false)
			if err != nil {
				return pager.RowID{}, false, err
			}
			idx, found := binarySearch(keys, key)
			if !found {
				return pager.RowID{}, false, nil
			}
			return unpackRowID(values[idx]), true, nil
		default:
			t.pool.UnpinPage(pageID, false)
			return pager.RowID{}, false, fmt.Errorf("btree: invalid page type %v during descent", page.Type())
		}
	}
}

// Delete removes key, if present. It does not rebalance or merge
// underfull nodes — entries below the leaf's minimum occupancy are left
// in place, matching this tree's "no in-page compaction" design (see
// DESIGN.md Open Question 3); a leaf with zero keys is simply an empty
// node rather than being unlinked from its parent.
func (t *BTree) Delete(key int64) error {
	pageID := t.rootID
	for {
		page, err := t.pool.FetchPage(pageID)
		if err != nil {
			return err
		}
		raw, ok := page.GetRow(0)
		if !ok {
			t.pool.UnpinPage(pageID, false)
			return fmt.Errorf("btree: empty node at page %d", pageID)
		}
		switch page.Type() {
		case pager.PageBTreeInternal:
			keys, children, err := deserializeInternal(raw)
			t.pool.UnpinPage(pageID, false)
			if err != nil {
				return err
			}
			pageID = children[searchChild(keys, key)]
		case pager.PageBTreeLeaf:
			t.pool.UnpinPage(pageID, false)
			return t.deleteLeaf(pageID, key)
		default:
			t.pool.UnpinPage(pageID, false)
			return fmt.Errorf("btree: invalid page type %v during descent", page.Type())
		}
	}
}

func (t *BTree) deleteLeaf(pageID pager.PageID, key int64) error {
	page, err := t.pool.FetchPage(pageID)
	if err != nil {
		return err
	}
	raw, ok := page.GetRow(0)
	if !ok {
		t.pool.UnpinPage(pageID, false)
		return fmt.Errorf("btree: empty leaf node")
	}
	keys, values, next, err := deserializeLeaf(raw)
	t.pool.UnpinPage(pageID, false)
	if err != nil {
		return err
	}

	idx, found := binarySearch(keys, key)
	if !found {
		return nil
	}
	keys = append(keys[:idx], keys[idx+1:]...)
	values = append(values[:idx], values[idx+1:]...)

	return t.writeNode(pageID, serializeLeaf(keys, values, next))
}

// Insert inserts or replaces the value for key.
func (t *BTree) Insert(key int64, value pager.RowID) error {
	splitKey, newChild, err := t.insertRecursive(t.rootID, key, value)
	if err != nil {
		return err
	}
	if newChild == 0 && splitKey == 0 {
		return nil
	}
	if newChild != 0 {
		newRoot, err := t.pool.NewPage(pager.PageBTreeInternal)
		if err != nil {
			return err
		}
		data := serializeInternal([]int64{splitKey}, []pager.PageID{t.rootID, newChild})
		if _, err := newRoot.AddRow(data); err != nil {
			return err
		}
		t.pool.UnpinPage(newRoot.ID(), true)
		t.rootID = newRoot.ID()
	}
	return nil
}

// insertRecursive returns (splitKey, newRightPageID) if a split propagated
// up; newRightPageID == 0 means no split occurred (a split always
// allocates a fresh page, and fresh pages get ids of 1 or more because
// page 0 is the tree's first page).
func (t *BTree) insertRecursive(pageID pager.PageID, key int64, value pager.RowID) (int64, pager.PageID, error) {
	page, err := t.pool.FetchPage(pageID)
	if err != nil {
		return 0, 0, err
	}
	pageType := page.Type()
	t.pool.UnpinPage(pageID, false)

	switch pageType {
	case pager.PageBTreeInternal:
		return t.insertInternal(pageID, key, value)
	case pager.PageBTreeLeaf:
		return t.insertLeaf(pageID, key, value)
	default:
		return 0, 0, fmt.Errorf("btree: invalid page type %v", pageType)
	}
}

func (t *BTree) insertInternal(pageID pager.PageID, key int64, value pager.RowID) (int64, pager.PageID, error) {
	page, err := t.pool.FetchPage(pageID)
	if err != nil {
		return 0, 0, err
	}
	raw, ok := page.GetRow(0)
	if !ok {
		t.pool.UnpinPage(pageID, false)
		return 0, 0, fmt.Errorf("btree: empty internal node")
	}
	keys, children, err := deserializeInternal(raw)
	t.pool.UnpinPage(pageID, false)
	if err != nil {
		return 0, 0, err
	}

	childIdx := searchChild(keys, key)
	splitKey, newChildID, err := t.insertRecursive(children[childIdx], key, value)
	if err != nil {
		return 0, 0, err
	}
	if newChildID == 0 {
		return 0, 0, nil
	}

	keys = insertAt(keys, childIdx, splitKey)
	children = insertChildAt(children, childIdx+1, newChildID)

	if len(keys) > MaxKeys {
		return t.splitInternal(pageID, keys, children)
	}
	return 0, 0, t.writeNode(pageID, serializeInternal(keys, children))
}

func (t *BTree) insertLeaf(pageID pager.PageID, key int64, value pager.RowID) (int64, pager.PageID, error) {
	page, err := t.pool.FetchPage(pageID)
	if err != nil {
		return 0, 0, err
	}
	raw, ok := page.GetRow(0)
	if !ok {
		t.pool.UnpinPage(pageID, false)
		return 0, 0, fmt.Errorf("btree: empty leaf node")
	}
	keys, values, next, err := deserializeLeaf(raw)
	t.pool.UnpinPage(pageID, false)
	if err != nil {
		return 0, 0, err
	}

	idx, found := binarySearch(keys, key)
	if found {
		values[idx] = packRowID(value)
	} else {
		keys = insertAt(keys, idx, key)
		values = insertValueAt(values, idx, packRowID(value))
	}

	if len(keys) > MaxKeys {
		return t.splitLeaf(pageID, keys, values, next)
	}
	return 0, 0, t.writeNode(pageID, serializeLeaf(keys, values, next))
}

// splitInternal splits an overfull internal node at
// mid = ceil(MaxKeys/2), pushing the median key up and removing it from
// both halves.
func (t *BTree) splitInternal(pageID pager.PageID, keys []int64, children []pager.PageID) (int64, pager.PageID, error) {
	mid := (MaxKeys + 1) / 2
	splitKey := keys[mid]
	rightKeys := append([]int64(nil), keys[mid+1:]...)
	rightChildren := append([]pager.PageID(nil), children[mid+1:]...)
	leftKeys := keys[:mid]
	leftChildren := children[:mid+1]

	if err := t.writeNode(pageID, serializeInternal(leftKeys, leftChildren)); err != nil {
		return 0, 0, err
	}

	rightPage, err := t.pool.NewPage(pager.PageBTreeInternal)
	if err != nil {
		return 0, 0, err
	}
	if _, err := rightPage.AddRow(serializeInternal(rightKeys, rightChildren)); err != nil {
		return 0, 0, err
	}
	t.pool.UnpinPage(rightPage.ID(), true)

	return splitKey, rightPage.ID(), nil
}

// splitLeaf splits an overfull leaf at mid = ceil(MaxKeys/2), copying the
// median key up; the median's key-value pair stays only in the right half.
func (t *BTree) splitLeaf(pageID pager.PageID, keys []int64, values []uint64, next pager.PageID) (int64, pager.PageID, error) {
	mid := (MaxKeys + 1) / 2
	splitKey := keys[mid]
	rightKeys := append([]int64(nil), keys[mid:]...)
	rightValues := append([]uint64(nil), values[mid:]...)
	leftKeys := keys[:mid]
	leftValues := values[:mid]

	rightPage, err := t.pool.NewPage(pager.PageBTreeLeaf)
	if err != nil {
		return 0, 0, err
	}
	if _, err := rightPage.AddRow(serializeLeaf(rightKeys, rightValues, next)); err != nil {
		return 0, 0, err
	}
	t.pool.UnpinPage(rightPage.ID(), true)

	if err := t.writeNode(pageID, serializeLeaf(leftKeys, leftValues, rightPage.ID())); err != nil {
		return 0, 0, err
	}
	return splitKey, rightPage.ID(), nil
}

func (t *BTree) writeNode(pageID pager.PageID, data []byte) error {
	page, err := t.pool.FetchPage(pageID)
	if err != nil {
		return err
	}
	if err := page.UpdateRow(0, data); err != nil {
		t.pool.UnpinPage(pageID, false)
		return fmt.Errorf("btree: write node %d: %w", pageID, err)
	}
	t.pool.UnpinPage(pageID, true)
	return nil
}

func insertAt(s []int64, idx int, v int64) []int64 {
	s = append(s, 0)
	copy(s[idx+1:], s[idx:len(s)-1])
	s[idx] = v
	return s
}

func insertValueAt(s []uint64, idx int, v uint64) []uint64 {
	s = append(s, 0)
	copy(s[idx+1:], s[idx:len(s)-1])
	s[idx] = v
	return s
}

func insertChildAt(s []pager.PageID, idx int, v pager.PageID) []pager.PageID {
	s = append(s, 0)
	copy(s[idx+1:], s[idx:len(s)-1])
	s[idx] = v
	return s
}

// Entry is one (key, value) pair yielded by RangeScan.
type Entry struct {
	Key   int64
	Value pager.RowID
}

// RangeScan returns every entry with lo <= key <= hi in ascending order,
// inclusive on both ends.
func (t *BTree) RangeScan(lo, hi int64) ([]Entry, error) {
	var out []Entry

	pageID := t.rootID
	for {
		page, err := t.pool.FetchPage(pageID)
		if err != nil {
			return nil, err
		}
		raw, ok := page.GetRow(0)
		pageType := page.Type()
		if !ok {
			t.pool.UnpinPage(pageID, false)
			return nil, fmt.Errorf("btree: empty node at page %d", pageID)
		}
		if pageType == pager.PageBTreeLeaf {
			t.pool.UnpinPage(pageID, false)
			break
		}
		keys, children, err := deserializeInternal(raw)
		t.pool.UnpinPage(pageID, false)
		if err != nil {
			return nil, err
		}
		pageID = children[searchChild(keys, lo)]
	}

	for {
		page, err := t.pool.FetchPage(pageID)
		if err != nil {
			return nil, err
		}
		raw, ok := page.GetRow(0)
		if !ok {
			t.pool.UnpinPage(pageID, false)
			return nil, fmt.Errorf("btree: empty leaf at page %d", pageID)
		}
		keys, values, next, err := deserializeLeaf(raw)
		t.pool.UnpinPage(pageID, false)
		if err != nil {
			return nil, err
		}

		done := false
		for i, k := range keys {
			if k < lo {
				continue
			}
			if k > hi {
				done = true
				break
			}
			out = append(out, Entry{Key: k, Value: unpackRowID(values[i])})
		}
		if done || next == 0 {
			break
		}
		pageID = next
	}
	return out, nil
}
