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

// Package hotskl provides an arena-backed skiplist whose nodes are
// additionally threaded onto an insertion-order FIFO chain partitioned into
// a byte-budgeted hot zone and an unbounded cold zone.
//
// Thread safety: writes require external synchronization, most likely a
// mutex. Ordered reads (seeks and iteration over the skiplist links) are
// lock-free and may run concurrently with a writer. The FIFO chain and the
// separate operation are writer-side state and must not be accessed
// concurrently with an active writer.
package hotskl

import (
	"math"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"golang.org/x/exp/rand"

	"github.com/lsmkit/hotmem/internal/base"
	"github.com/lsmkit/hotmem/internal/invariants"
)

const (
	maxHeight = 12

	// Branching factor of 4: each node extends one more level with
	// probability 1/4.
	pValue = 0.25
)

var probabilities [maxHeight]uint32

func init() {
	// Precompute the skiplist probabilities so that only a single random
	// number needs to be generated per insert.
	p := float64(1.0)
	for i := 0; i < maxHeight; i++ {
		probabilities[i] = uint32(float64(math.MaxUint32) * p)
		p *= pValue
	}
}

// Skiplist is an ordered index over arena-encoded entries, keyed by the
// entries' internal keys (user key ascending, sequence number descending,
// kind descending). Every live node is simultaneously linked onto the FIFO
// chain; Insert maintains both structures and demotes superseded versions of
// a user key onto the obsolete list.
type Skiplist struct {
	arena *Arena
	cmp   base.Compare // user key comparator
	head  *node        // sentinel, full height

	// Modified only by Insert. Read racily by readers; a stale value only
	// costs the reader a wasted level descent.
	height atomic.Int32

	fifo fifo

	// Read/written only by Insert.
	rnd rand.PCGSource
}

// NewSkiplist constructs a skiplist that allocates from arena, orders user
// keys with cmp, and budgets threshold bytes for the hot zone.
func NewSkiplist(arena *Arena, cmp base.Compare, threshold uint64) *Skiplist {
	s := &Skiplist{
		arena: arena,
		cmp:   cmp,
		head:  newRawNode(arena, maxHeight),
	}
	s.height.Store(1)
	s.fifo.threshold = threshold
	s.rnd.Seed(0xdeadbeef)
	return s
}

// Height returns the current height of the skiplist.
func (s *Skiplist) Height() int { return int(s.height.Load()) }

// Empty returns true if no entry has ever been inserted.
func (s *Skiplist) Empty() bool { return s.fifo.head == nil }

// Count returns the number of live nodes on the FIFO chain.
func (s *Skiplist) Count() int {
	n := 0
	for x := s.fifo.head; x != nil; x = x.fifoNextNode() {
		n++
	}
	return n
}

// HotMemoryUsage returns the bytes accounted to the hot zone.
func (s *Skiplist) HotMemoryUsage() uint64 { return uint64(s.fifo.hotBytes.Load()) }

// ColdMemoryUsage returns the bytes accounted to the cold zone.
func (s *Skiplist) ColdMemoryUsage() uint64 { return uint64(s.fifo.coldBytes.Load()) }

// Insert adds a node for entry to the index and appends it to the FIFO
// chain, demoting any prior version of the same user key onto the obsolete
// list. The entry must already reside in the skiplist's arena, and nothing
// that compares equal to its internal key may be present.
//
// Insert requires external synchronization with other mutating operations.
func (s *Skiplist) Insert(entry []byte) {
	var prev [maxHeight]*node
	if nd := s.findGreaterOrEqual(entry, &prev); nd != nil &&
		base.CompareEntries(s.cmp, entry, nd.entryBytes()) == 0 {
		panic(errors.AssertionFailedf("hotskl: duplicate internal key %s",
			base.DecodeInternalKey(base.EntryKey(entry))))
	}

	height := s.randomHeight()
	if lh := s.Height(); height > lh {
		for i := lh; i < height; i++ {
			prev[i] = s.head
		}
		// It is ok to mutate height without synchronizing with concurrent
		// readers. A reader that observes the new height will see either the
		// old nil links from the head (and immediately drop a level, since
		// nil sorts after all keys) or the new links set below.
		s.height.Store(int32(height))
	}

	x := newNode(s.arena, height, entry)

	// Thread x onto the FIFO chain before publication; the chain is
	// writer-side state, but x's size must be final before any reader can
	// observe the node.
	s.fifo.insert(x)

	for i := 0; i < height; i++ {
		// nobarrierSetNext suffices since the release store below publishes
		// x in prev[i].
		x.nobarrierSetNext(i, prev[i].nobarrierNext(i))
		prev[i].setNext(i, x)
	}

	s.thawDuplicate(x)

	if invariants.Enabled {
		s.fifo.check()
	}
}

// thawDuplicate demotes the prior version of x's user key, if one exists,
// from the FIFO chain onto the obsolete list. The prior version is x's
// level-0 successor: versions of a user key sort newest first, and all
// versions older than the successor were demoted by earlier inserts.
func (s *Skiplist) thawDuplicate(x *node) {
	y := x.next(0)
	if y == nil {
		return
	}
	xkey := base.ExtractUserKey(base.EntryKey(x.entryBytes()))
	ykey := base.ExtractUserKey(base.EntryKey(y.entryBytes()))
	if s.cmp(xkey, ykey) != 0 {
		return
	}
	// Classify y against the oldest hot node. When the hot zone is empty
	// every live node is cold.
	r := 1
	if nh := s.fifo.normalHead; nh != nil {
		r = base.CompareSequence(y.entryBytes(), nh.entryBytes())
	}
	s.fifo.thaw(y, r)
}

// Contains returns true iff an entry that compares equal to key is in the
// list. key is an encoded search key: varint32-prefixed internal key.
func (s *Skiplist) Contains(key []byte) bool {
	nd := s.findGreaterOrEqual(key, nil)
	return nd != nil && base.CompareEntries(s.cmp, key, nd.entryBytes()) == 0
}

// Separate narrows the skiplist to its cold residue in preparation for a
// flush. It returns false, leaving the list untouched, when a hot zone
// exists but holds the newest version of every user key (nothing to flush).
// After Separate returns true, a forward iteration from the head visits
// exactly the live cold nodes; only the level-0 links are rewritten, so the
// residual list must be consumed by an in-order level-0 walk.
func (s *Skiplist) Separate() bool {
	if s.fifo.head == nil {
		panic(errors.AssertionFailedf("hotskl: Separate on empty skiplist"))
	}
	nh := s.fifo.normalHead
	if nh == nil {
		// Only cold data; rewriting drops obsolete nodes only.
		s.separate(nil)
		return true
	}
	return s.separate(nh.entryBytes())
}

// separate rewrites the level-0 links to form a chain over the newest
// version of each user key that is strictly older than boundary. A nil
// boundary keeps the newest version of every user key. Returns false, with
// the list unchanged, if a non-nil boundary excludes every node.
func (s *Skiplist) separate(boundary []byte) bool {
	keep := func(x *node) bool {
		return boundary == nil || base.CompareSequence(x.entryBytes(), boundary) > 0
	}

	var first *node
	for x := s.head.next(0); x != nil; x = s.nextUserKey(x) {
		if keep(x) {
			first = x
			break
		}
	}
	if first == nil {
		if boundary != nil {
			return false
		}
		s.head.setNext(0, nil)
		return true
	}

	s.head.setNext(0, first)
	prev := first
	// The cursor stays ahead of every rewritten link, so it always follows
	// the original chain.
	for x := s.nextUserKey(first); x != nil; x = s.nextUserKey(x) {
		if keep(x) {
			prev.setNext(0, x)
			prev = x
		}
	}
	prev.setNext(0, nil)
	return true
}

// nextUserKey returns the first node after x whose user key differs from
// x's, skipping the older versions of x's user key.
func (s *Skiplist) nextUserKey(x *node) *node {
	key := base.ExtractUserKey(base.EntryKey(x.entryBytes()))
	for y := x.next(0); y != nil; y = y.next(0) {
		if s.cmp(key, base.ExtractUserKey(base.EntryKey(y.entryBytes()))) != 0 {
			return y
		}
	}
	return nil
}

func (s *Skiplist) randomHeight() int {
	rnd := uint32(s.rnd.Uint64())
	h := 1
	for h < maxHeight && rnd <= probabilities[h] {
		h++
	}
	return h
}

// keyIsAfterNode returns true if key is greater than the entry stored in n.
// A nil n is considered infinite.
func (s *Skiplist) keyIsAfterNode(key []byte, n *node) bool {
	return n != nil && base.CompareEntries(s.cmp, n.entryBytes(), key) < 0
}

// findGreaterOrEqual returns the earliest node at or after key, or nil if
// there is no such node. If prev is non-nil, it is filled with the
// predecessor at every level in [0, Height()); higher entries are left as
// they are.
func (s *Skiplist) findGreaterOrEqual(key []byte, prev *[maxHeight]*node) *node {
	x := s.head
	level := s.Height() - 1
	for {
		next := x.next(level)
		if s.keyIsAfterNode(key, next) {
			// Keep searching in this list.
			x = next
			continue
		}
		if prev != nil {
			prev[level] = x
		}
		if level == 0 {
			return next
		}
		// Switch to next list.
		level--
	}
}

// findLessThan returns the latest node with an entry < key, or the head
// sentinel if there is no such node.
func (s *Skiplist) findLessThan(key []byte) *node {
	x := s.head
	level := s.Height() - 1
	for {
		next := x.next(level)
		if next != nil && base.CompareEntries(s.cmp, next.entryBytes(), key) < 0 {
			x = next
			continue
		}
		if level == 0 {
			return x
		}
		level--
	}
}

// findLast returns the last node in the list, or the head sentinel if the
// list is empty.
func (s *Skiplist) findLast() *node {
	x := s.head
	level := s.Height() - 1
	for {
		next := x.next(level)
		if next != nil {
			x = next
			continue
		}
		if level == 0 {
			return x
		}
		level--
	}
}
