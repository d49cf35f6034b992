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

import (
	"sync/atomic"
	"unsafe"
)

const (
	maxNodeSize = int(unsafe.Sizeof(node{}))
	linkSize    = int(unsafe.Sizeof(unsafe.Pointer(nil)))
)

// node is the arena-resident record shared by the skiplist and the FIFO
// chain. Except for the FIFO links and the tower's forward links (which later
// inserts and Separate rewrite), every field is immutable once the node has
// been published into the skiplist's lowest level.
type node struct {
	// entry points at the encoded entry record in the arena:
	// varint32(klen) klen-bytes varint32(vlen) vlen-bytes.
	entry    unsafe.Pointer
	entryLen uint32
	height   uint32

	// size is the number of bytes this node contributes to the FIFO byte
	// accounting: the arena footprint of the node itself plus the encoded
	// entry. Set once before publication.
	size uint64

	// fifoNext and fifoPrev thread the node onto the insertion-order chain.
	// After a node is thawed, fifoNext is reused as the singly-linked
	// obsolete list pointer; obsolete nodes are never relinked into the live
	// chain, so the aliasing is safe.
	fifoNext unsafe.Pointer
	fifoPrev unsafe.Pointer

	// tower[0] is the lowest level link. The node's arena footprint is
	// truncated to its height, so links at or above the height must never be
	// accessed.
	tower [maxHeight]unsafe.Pointer
}

// newNode allocates a node of the given height and associates it with entry.
// The node is private to the caller until it is linked into the skiplist.
func newNode(a *Arena, height int, entry []byte) *node {
	nd := newRawNode(a, height)
	nd.entry = unsafe.Pointer(&entry[0])
	nd.entryLen = uint32(len(entry))
	nd.size += uint64(len(entry))
	return nd
}

func newRawNode(a *Arena, height int) *node {
	if height < 1 || height > maxHeight {
		panic("hotskl: node height out of range")
	}
	unusedSize := (maxHeight - height) * linkSize
	nodeSize := maxNodeSize - unusedSize
	buf := a.AllocAligned(nodeSize)
	nd := (*node)(unsafe.Pointer(&buf[0]))
	nd.height = uint32(height)
	nd.size = uint64(nodeSize)
	return nd
}

func (n *node) entryBytes() []byte {
	if n.entry == nil {
		return nil
	}
	return unsafe.Slice((*byte)(n.entry), n.entryLen)
}

// next returns the forward link at level h with acquire semantics, so that a
// reader following the link observes a fully initialized node.
func (n *node) next(h int) *node {
	return (*node)(atomic.LoadPointer(&n.tower[h]))
}

// setNext publishes x as the forward link at level h with release semantics.
func (n *node) setNext(h int, x *node) {
	atomic.StorePointer(&n.tower[h], unsafe.Pointer(x))
}

// nobarrierNext and nobarrierSetNext are used by the single writer while
// stitching a node that has not been published yet. Go's atomics do not
// expose relaxed ordering, so these are full atomic operations; the distinct
// names preserve which accesses the publication protocol actually relies on.
func (n *node) nobarrierNext(h int) *node {
	return (*node)(atomic.LoadPointer(&n.tower[h]))
}

func (n *node) nobarrierSetNext(h int, x *node) {
	atomic.StorePointer(&n.tower[h], unsafe.Pointer(x))
}

func (n *node) fifoNextNode() *node {
	return (*node)(atomic.LoadPointer(&n.fifoNext))
}

func (n *node) setFifoNext(x *node) {
	atomic.StorePointer(&n.fifoNext, unsafe.Pointer(x))
}

func (n *node) fifoPrevNode() *node {
	return (*node)(atomic.LoadPointer(&n.fifoPrev))
}

func (n *node) setFifoPrev(x *node) {
	atomic.StorePointer(&n.fifoPrev, unsafe.Pointer(x))
}
