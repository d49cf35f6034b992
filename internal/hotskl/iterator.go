/*
 * Copyright 2017 Dgraph Labs, Inc. and Contributors
 * Modifications copyright (C) 2017 Andy Kimball and Contributors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package hotskl

import "github.com/lsmkit/hotmem/internal/base"

// Iterator is an iterator over the skiplist in internal key order. Its
// current state can be cloned by value copying the struct. Iterator methods
// are safe to run concurrently with a writer.
type Iterator struct {
	list *Skiplist
	nd   *node
}

// NewIter returns an unpositioned iterator over the skiplist.
func (s *Skiplist) NewIter() Iterator {
	return Iterator{list: s}
}

// Valid returns true iff the iterator is positioned at a valid node.
func (it *Iterator) Valid() bool { return it.nd != nil }

// Entry returns the encoded entry at the current position.
func (it *Iterator) Entry() []byte { return it.nd.entryBytes() }

// Key returns the decoded internal key at the current position.
func (it *Iterator) Key() base.InternalKey {
	return base.DecodeInternalKey(base.EntryKey(it.nd.entryBytes()))
}

// Value returns the value at the current position. The returned slice
// borrows arena memory.
func (it *Iterator) Value() []byte {
	return base.EntryValue(it.nd.entryBytes())
}

// Next advances to the next position.
func (it *Iterator) Next() {
	it.nd = it.nd.next(0)
}

// NextUserKey advances to the first entry whose user key differs from the
// current one, skipping the older versions of the current user key.
func (it *Iterator) NextUserKey() {
	it.nd = it.list.nextUserKey(it.nd)
}

// Prev moves to the previous position. Instead of maintaining explicit
// backward links, it searches for the last node before the current key.
func (it *Iterator) Prev() {
	nd := it.list.findLessThan(it.nd.entryBytes())
	if nd == it.list.head {
		nd = nil
	}
	it.nd = nd
}

// SeekGE moves the iterator to the first entry at or after the target, a
// varint32-prefixed encoded internal key.
func (it *Iterator) SeekGE(target []byte) {
	it.nd = it.list.findGreaterOrEqual(target, nil)
}

// First positions the iterator at the first entry. The final state is
// Valid() iff the list is not empty.
func (it *Iterator) First() {
	it.nd = it.list.head.next(0)
}

// Last positions the iterator at the last entry. The final state is Valid()
// iff the list is not empty.
func (it *Iterator) Last() {
	nd := it.list.findLast()
	if nd == it.list.head {
		nd = nil
	}
	it.nd = nd
}

// FIFOIterator iterates the FIFO chain in insertion order. It must only be
// used while no writer is active: the FIFO links are writer-side state.
type FIFOIterator struct {
	list *Skiplist
	nd   *node
}

// NewFIFOIter returns an unpositioned iterator over the FIFO chain.
func (s *Skiplist) NewFIFOIter() FIFOIterator {
	return FIFOIterator{list: s}
}

// Valid returns true iff the iterator is positioned at a valid node.
func (it *FIFOIterator) Valid() bool { return it.nd != nil }

// Entry returns the encoded entry at the current position.
func (it *FIFOIterator) Entry() []byte { return it.nd.entryBytes() }

// Key returns the decoded internal key at the current position.
func (it *FIFOIterator) Key() base.InternalKey {
	return base.DecodeInternalKey(base.EntryKey(it.nd.entryBytes()))
}

// Value returns the value at the current position.
func (it *FIFOIterator) Value() []byte {
	return base.EntryValue(it.nd.entryBytes())
}

// Next advances towards the tail.
func (it *FIFOIterator) Next() {
	it.nd = it.nd.fifoNextNode()
}

// Prev advances towards the head.
func (it *FIFOIterator) Prev() {
	it.nd = it.nd.fifoPrevNode()
}

// SeekToFirst positions the iterator at the oldest live node.
func (it *FIFOIterator) SeekToFirst() {
	it.nd = it.list.fifo.head
}

// SeekToNormal positions the iterator at the oldest hot node. The final
// state is Valid() iff the hot zone is not empty.
func (it *FIFOIterator) SeekToNormal() {
	it.nd = it.list.fifo.normalHead
}

// SeekToLast positions the iterator at the newest node.
func (it *FIFOIterator) SeekToLast() {
	it.nd = it.list.fifo.tail
}
