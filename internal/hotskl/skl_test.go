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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lsmkit/hotmem/internal/base"
)

// makeEntry encodes an entry the way the memtable does: varint32-prefixed
// internal key followed by a varint32-prefixed value.
func makeEntry(key string, seqNum base.SeqNum, kind base.InternalKeyKind, value string) []byte {
	ik := base.MakeInternalKey([]byte(key), seqNum, kind)
	buf := make([]byte, base.VarintLength(uint32(ik.Size()))+ik.Size()+
		base.VarintLength(uint32(len(value)))+len(value))
	n := base.EncodeVarint32(buf, uint32(ik.Size()))
	ik.Encode(buf[n:])
	n += ik.Size()
	n += base.EncodeVarint32(buf[n:], uint32(len(value)))
	copy(buf[n:], value)
	return buf
}

// makeSearchKey encodes the probe form used for seeks: a varint32-prefixed
// internal key with no value.
func makeSearchKey(key string, seqNum base.SeqNum) []byte {
	ik := base.MakeSearchKey([]byte(key), seqNum)
	buf := make([]byte, base.VarintLength(uint32(ik.Size()))+ik.Size())
	n := base.EncodeVarint32(buf, uint32(ik.Size()))
	ik.Encode(buf[n:])
	return buf
}

// insertEntry copies the encoded entry into the skiplist's arena and inserts
// it, mirroring the memtable's Add.
func insertEntry(s *Skiplist, key string, seqNum base.SeqNum, kind base.InternalKeyKind, value string) {
	e := makeEntry(key, seqNum, kind, value)
	buf := s.arena.Alloc(len(e))
	copy(buf, e)
	s.Insert(buf)
}

func newTestSkiplist(threshold uint64) *Skiplist {
	return NewSkiplist(NewArena(), base.DefaultComparer.Compare, threshold)
}

// collect returns "key#seq=value" for every entry in iteration order.
func collect(s *Skiplist) []string {
	var out []string
	it := s.NewIter()
	for it.First(); it.Valid(); it.Next() {
		k := it.Key()
		out = append(out, fmt.Sprintf("%s#%d=%s", k.UserKey, k.SeqNum(), it.Value()))
	}
	return out
}

func TestSkiplistEmpty(t *testing.T) {
	s := newTestSkiplist(1024)
	require.True(t, s.Empty())
	require.Zero(t, s.Count())

	it := s.NewIter()
	it.First()
	require.False(t, it.Valid())
	it.Last()
	require.False(t, it.Valid())
	it.SeekGE(makeSearchKey("a", base.SeqNumMax))
	require.False(t, it.Valid())
}

func TestSkiplistOrdering(t *testing.T) {
	s := newTestSkiplist(1 << 20)
	insertEntry(s, "banana", 1, base.InternalKeyKindSet, "b1")
	insertEntry(s, "apple", 2, base.InternalKeyKindSet, "a1")
	insertEntry(s, "cherry", 3, base.InternalKeyKindSet, "c1")

	require.Equal(t, []string{"apple#2=a1", "banana#1=b1", "cherry#3=c1"}, collect(s))
	require.Equal(t, 3, s.Count())
	require.False(t, s.Empty())
}

func TestSkiplistVersionsSortNewestFirst(t *testing.T) {
	// With no threshold pressure the older version is demoted to the
	// obsolete list but remains in the ordered index.
	s := newTestSkiplist(1 << 20)
	insertEntry(s, "k", 10, base.InternalKeyKindSet, "old")
	insertEntry(s, "k", 20, base.InternalKeyKindSet, "new")

	require.Equal(t, []string{"k#20=new", "k#10=old"}, collect(s))
	// Only the newest version is live.
	require.Equal(t, 1, s.Count())
}

func TestSkiplistSeekGE(t *testing.T) {
	s := newTestSkiplist(1 << 20)
	insertEntry(s, "k", 10, base.InternalKeyKindSet, "a")
	insertEntry(s, "k", 20, base.InternalKeyKindSet, "b")
	insertEntry(s, "m", 5, base.InternalKeyKindSet, "m1")

	it := s.NewIter()
	// A horizon between the two versions lands on the older one.
	it.SeekGE(makeSearchKey("k", 15))
	require.True(t, it.Valid())
	require.Equal(t, base.SeqNum(10), it.Key().SeqNum())

	// A horizon above both lands on the newest.
	it.SeekGE(makeSearchKey("k", 25))
	require.True(t, it.Valid())
	require.Equal(t, base.SeqNum(20), it.Key().SeqNum())

	// Past every version of k: next user key.
	it.SeekGE(makeSearchKey("k", 5))
	require.True(t, it.Valid())
	require.Equal(t, "m", string(it.Key().UserKey))

	// Past everything.
	it.SeekGE(makeSearchKey("z", base.SeqNumMax))
	require.False(t, it.Valid())
}

func TestSkiplistPrev(t *testing.T) {
	s := newTestSkiplist(1 << 20)
	keys := []string{"a", "b", "c", "d"}
	for i, k := range keys {
		insertEntry(s, k, base.SeqNum(i+1), base.InternalKeyKindSet, k)
	}

	it := s.NewIter()
	it.Last()
	for i := len(keys) - 1; i >= 0; i-- {
		require.True(t, it.Valid())
		require.Equal(t, keys[i], string(it.Key().UserKey))
		it.Prev()
	}
	require.False(t, it.Valid())
}

func TestSkiplistNextUserKey(t *testing.T) {
	s := newTestSkiplist(1 << 20)
	insertEntry(s, "a", 1, base.InternalKeyKindSet, "")
	insertEntry(s, "a", 2, base.InternalKeyKindSet, "")
	insertEntry(s, "a", 3, base.InternalKeyKindSet, "")
	insertEntry(s, "b", 4, base.InternalKeyKindSet, "")
	insertEntry(s, "c", 5, base.InternalKeyKindSet, "")

	it := s.NewIter()
	it.First()
	require.Equal(t, "a", string(it.Key().UserKey))
	require.Equal(t, base.SeqNum(3), it.Key().SeqNum())
	it.NextUserKey()
	require.Equal(t, "b", string(it.Key().UserKey))
	it.NextUserKey()
	require.Equal(t, "c", string(it.Key().UserKey))
	it.NextUserKey()
	require.False(t, it.Valid())
}

func TestSkiplistContains(t *testing.T) {
	s := newTestSkiplist(1 << 20)
	insertEntry(s, "k", 7, base.InternalKeyKindSet, "v")
	require.True(t, s.Contains(makeSearchKey("k", 7)))
	require.False(t, s.Contains(makeSearchKey("k", 8)))
	require.False(t, s.Contains(makeSearchKey("j", 7)))
}

func TestSkiplistManyEntries(t *testing.T) {
	s := newTestSkiplist(1 << 20)
	const n = 1000
	for i := 0; i < n; i++ {
		// Insertion order is scattered; iteration order must be sorted.
		k := fmt.Sprintf("key%06d", (i*7919)%n)
		insertEntry(s, k, base.SeqNum(i+1), base.InternalKeyKindSet, "v")
	}
	require.Equal(t, n, s.Count())

	it := s.NewIter()
	var prev string
	count := 0
	for it.First(); it.Valid(); it.Next() {
		k := string(it.Key().UserKey)
		if count > 0 {
			require.Less(t, prev, k)
		}
		prev = k
		count++
	}
	require.Equal(t, n, count)
}

func TestSkiplistSeparateColdOnly(t *testing.T) {
	// Threshold 0 classifies everything cold.
	s := newTestSkiplist(0)
	insertEntry(s, "a", 1, base.InternalKeyKindSet, "a1")
	insertEntry(s, "b", 2, base.InternalKeyKindSet, "b1")
	insertEntry(s, "a", 3, base.InternalKeyKindSet, "a2")

	require.True(t, s.Separate())
	// The obsolete a#1 is dropped; the cold residue is newest-per-key.
	require.Equal(t, []string{"a#3=a2", "b#2=b1"}, collect(s))
}

func TestSkiplistSeparateNothingCold(t *testing.T) {
	s := newTestSkiplist(1 << 20)
	insertEntry(s, "a", 1, base.InternalKeyKindSet, "a1")
	insertEntry(s, "b", 2, base.InternalKeyKindSet, "b1")

	before := collect(s)
	require.False(t, s.Separate())
	require.Equal(t, before, collect(s))
}

func TestSkiplistSeparateEmptyPanics(t *testing.T) {
	s := newTestSkiplist(1024)
	require.Panics(t, func() { s.Separate() })
}
