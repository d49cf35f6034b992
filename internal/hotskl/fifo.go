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
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/cockroachdb/errors"

	"github.com/lsmkit/hotmem/internal/base"
)

// fifo is the insertion-order chain threaded through the skiplist nodes. It
// is partitioned into a cold zone (oldest nodes, unbounded) followed by a
// hot zone (newest nodes, at most threshold bytes). Structural invariants:
//
//   - head is the oldest live node: coldHead when a cold zone exists,
//     normalHead otherwise.
//   - sequence numbers strictly increase along fifoNext from head to tail.
//   - each user key has at most one node on the chain; superseded versions
//     live on the obsolete list.
//   - coldHead != nil iff coldBytes > 0, and normalHead != nil iff
//     hotBytes > 0.
//
// All pointer fields are written only by the externally serialized writer.
// The byte counters are atomics so they can be inspected without the writer
// mutex.
type fifo struct {
	head       *node
	coldHead   *node
	normalHead *node
	tail       *node

	// obsolete is a singly-linked list of demoted nodes, threaded through
	// fifoNext. New nodes are inserted directly after the list head.
	obsolete *node

	hotBytes  atomic.Int64
	coldBytes atomic.Int64

	// threshold is the hot zone byte budget. 0 classifies all data cold.
	threshold uint64
}

// insert appends x at the tail of the chain, first freezing the oldest hot
// nodes into the cold zone as needed to keep the hot zone within the
// threshold. It must run before x is published into the skiplist, and after
// x.size is final.
func (f *fifo) insert(x *node) {
	size := int64(x.size)

	// Freeze pass: migrate the oldest hot nodes to the cold zone until the
	// excess is covered. The walk may overshoot by up to one node.
	if f.normalHead != nil && uint64(f.hotBytes.Load())+x.size > f.threshold {
		excess := f.hotBytes.Load() + size - int64(f.threshold)
		if f.coldHead == nil {
			f.coldHead = f.head
		}
		var moved int64
		n := f.normalHead
		for n != nil && moved < excess {
			moved += int64(n.size)
			n = n.fifoNextNode()
		}
		f.normalHead = n
		f.hotBytes.Add(-moved)
		f.coldBytes.Add(moved)
	}

	// Classify x.
	switch {
	case f.head == nil:
		// First node.
		if x.size <= f.threshold {
			f.head, f.normalHead, f.tail = x, x, x
			f.hotBytes.Store(size)
		} else {
			f.head, f.coldHead, f.tail = x, x, x
			f.coldBytes.Store(size)
		}
		return
	case f.normalHead == nil:
		if x.size <= f.threshold {
			f.normalHead = x
			f.hotBytes.Add(size)
		} else {
			// A single entry larger than the whole budget goes straight to
			// the cold zone.
			f.coldBytes.Add(size)
			if f.coldHead == nil {
				f.coldHead = f.head
			}
		}
	default:
		f.hotBytes.Add(size)
	}

	// Link x at the tail.
	x.setFifoPrev(f.tail)
	f.tail.setFifoNext(x)
	f.tail = x
}

// thaw removes the superseded node y from the chain and pushes it onto the
// obsolete list. r is the sign of comparing y's sequence number against the
// oldest hot node (positive when y is older, i.e. cold); it decides which
// byte counter the node is debited from.
//
// y is never the tail: thaw only runs after a newer version of y's user key
// has been appended.
func (f *fifo) thaw(y *node, r int) {
	if y == f.tail {
		panic(errors.AssertionFailedf("hotskl: thaw of FIFO tail"))
	}
	size := int64(y.size)
	if r > 0 {
		f.coldBytes.Add(-size)
	} else {
		f.hotBytes.Add(-size)
	}

	next := y.fifoNextNode()
	prev := y.fifoPrevNode()
	switch {
	case y == f.head:
		f.head = next
		if y == f.coldHead {
			f.coldHead = next
		} else if y == f.normalHead {
			f.normalHead = next
		}
		next.setFifoPrev(nil)
	case y == f.normalHead:
		f.normalHead = next
		prev.setFifoNext(next)
		next.setFifoPrev(prev)
	default:
		prev.setFifoNext(next)
		next.setFifoPrev(prev)
	}

	// An emptied zone drops its head pointer; the boundary pointers never
	// dangle into the other zone.
	if f.coldBytes.Load() == 0 {
		f.coldHead = nil
	}
	if f.hotBytes.Load() == 0 {
		f.normalHead = nil
	}

	// Push y onto the obsolete list. fifoNext is reused as the obsolete
	// link; y is never relinked into the live chain.
	if f.obsolete == nil {
		f.obsolete = y
		y.setFifoNext(nil)
		y.setFifoPrev(nil)
	} else {
		y.setFifoNext(f.obsolete.fifoNextNode())
		f.obsolete.setFifoNext(y)
	}
}

// obsoleteCount returns the length of the obsolete list.
func (f *fifo) obsoleteCount() int {
	n := 0
	for x := f.obsolete; x != nil; x = x.fifoNextNode() {
		n++
	}
	return n
}

// check validates the chain invariants. Called after every mutation in
// invariants builds.
func (f *fifo) check() {
	var total int64
	var prevSeq base.SeqNum
	seen := make(map[string]struct{})
	first := true
	foundNormal := false
	for x := f.head; x != nil; x = x.fifoNextNode() {
		total += int64(x.size)
		k := base.DecodeInternalKey(base.EntryKey(x.entryBytes()))
		if !first && k.SeqNum() <= prevSeq {
			panic(errors.AssertionFailedf(
				"hotskl: FIFO sequence numbers not increasing: %s after %s", k.SeqNum(), prevSeq))
		}
		if _, ok := seen[string(k.UserKey)]; ok {
			panic(errors.AssertionFailedf("hotskl: duplicate user key %q on FIFO chain", k.UserKey))
		}
		seen[string(k.UserKey)] = struct{}{}
		if x == f.normalHead {
			foundNormal = true
		}
		first = false
		prevSeq = k.SeqNum()
	}
	if f.normalHead != nil && !foundNormal {
		panic(errors.AssertionFailedf("hotskl: normalHead not on FIFO chain"))
	}
	if total != f.hotBytes.Load()+f.coldBytes.Load() {
		panic(errors.AssertionFailedf("hotskl: FIFO byte accounting mismatch: %d != %d+%d",
			total, f.hotBytes.Load(), f.coldBytes.Load()))
	}
	if uint64(f.hotBytes.Load()) > f.threshold {
		panic(errors.AssertionFailedf("hotskl: hot zone over budget: %d > %d",
			f.hotBytes.Load(), f.threshold))
	}
	if (f.coldHead != nil) != (f.coldBytes.Load() > 0) {
		panic(errors.AssertionFailedf("hotskl: coldHead / coldBytes disagree"))
	}
	if (f.normalHead != nil) != (f.hotBytes.Load() > 0) {
		panic(errors.AssertionFailedf("hotskl: normalHead / hotBytes disagree"))
	}
}

// DebugString renders the chain state for tests and tooling.
func (s *Skiplist) DebugString() string {
	f := &s.fifo
	var b strings.Builder
	zone := "cold"
	if f.coldHead == nil {
		zone = "hot"
	}
	fmt.Fprintf(&b, "hot=%d cold=%d threshold=%d\n", f.hotBytes.Load(), f.coldBytes.Load(), f.threshold)
	for x := f.head; x != nil; x = x.fifoNextNode() {
		if x == f.normalHead {
			zone = "hot"
		}
		k := base.DecodeInternalKey(base.EntryKey(x.entryBytes()))
		fmt.Fprintf(&b, "%s: %s\n", zone, k)
	}
	fmt.Fprintf(&b, "obsolete: %d\n", f.obsoleteCount())
	return b.String()
}
