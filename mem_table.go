// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package hotmem implements the in-memory write buffer of a log-structured
// key-value store with hot/cold separation. Recently written entries live in
// a sorted, concurrently readable structure; at flush time only the cold
// portion spills to disk while the hot portion is recycled into a freshly
// allocated memtable, reducing write amplification for frequently
// re-written keys.
//
// A MemTable is implemented on top of a lock-free arena-backed skiplist
// whose nodes are additionally threaded onto an insertion-order FIFO chain.
// The chain is partitioned into a cold zone (oldest entries, unbounded) and
// a hot zone capped at Options.HotThreshold bytes; a superseded version of a
// user key is demoted onto an obsolete list and stays arena-resident until
// the memtable is released.
//
// Mutating operations (Add, Separate, Recycle) must be externally
// serialized, typically under the database's write mutex. Get and ordered
// iteration are safe to run concurrently with a writer for any caller
// holding a reference.
package hotmem

import (
	"encoding/binary"
	"sync/atomic"

	"github.com/cockroachdb/errors"

	"github.com/lsmkit/hotmem/internal/base"
	"github.com/lsmkit/hotmem/internal/hotskl"
)

// A MemTable holds recently written entries in internal key order. Records
// are added but never removed; deletion writes a tombstone that masks older
// versions. The memtable and every slice it hands out remain valid while
// the reference count is non-zero.
type MemTable struct {
	opts  *Options
	cmp   *base.Comparer
	arena *hotskl.Arena
	skl   *hotskl.Skiplist
	refs  atomic.Int32
}

// New returns a new empty MemTable holding one reference for the caller.
func New(o *Options) *MemTable {
	o = o.EnsureDefaults()
	m := &MemTable{
		opts:  o,
		cmp:   o.Comparer,
		arena: hotskl.NewArena(),
	}
	m.skl = hotskl.NewSkiplist(m.arena, o.Comparer.Compare, o.HotThreshold)
	m.refs.Store(1)
	return m
}

// Ref acquires a reference.
func (m *MemTable) Ref() {
	m.refs.Add(1)
}

// Unref releases a reference. When the count reaches zero the memtable
// drops its arena; entries and borrowed slices are reclaimed as their last
// users let go of them.
func (m *MemTable) Unref() {
	switch v := m.refs.Add(-1); {
	case v < 0:
		panic(errors.AssertionFailedf("hotmem: inconsistent reference count: %d", v))
	case v == 0:
		m.skl = nil
		m.arena = nil
	}
}

// Add inserts an entry for the specified user key. kind is
// base.InternalKeyKindSet for a put and base.InternalKeyKindDelete for a
// tombstone. value is stored for either kind, but Get never returns a
// tombstone's value. The sequence number must be larger than that
// of any previously added entry.
//
// Add never fails; allocation failure is a process-level fatal condition.
func (m *MemTable) Add(seqNum base.SeqNum, kind base.InternalKeyKind, key, value []byte) {
	// Format of an entry is the concatenation of:
	//  key_size     : varint32 of len(key)+8
	//  key bytes    : char[len(key)]
	//  tag          : uint64 little-endian of (seqNum<<8)|kind
	//  value_size   : varint32 of len(value)
	//  value bytes  : char[len(value)]
	ikeyLen := len(key) + base.InternalTrailerLen
	encodedLen := base.VarintLength(uint32(ikeyLen)) + ikeyLen +
		base.VarintLength(uint32(len(value))) + len(value)

	buf := m.arena.Alloc(encodedLen)
	p := base.EncodeVarint32(buf, uint32(ikeyLen))
	p += copy(buf[p:], key)
	binary.LittleEndian.PutUint64(buf[p:], uint64(base.MakeTrailer(seqNum, kind)))
	p += base.InternalTrailerLen
	p += base.EncodeVarint32(buf[p:], uint32(len(value)))
	p += copy(buf[p:], value)
	if p != encodedLen {
		panic(errors.AssertionFailedf("hotmem: entry encoding wrote %d of %d bytes", p, encodedLen))
	}

	m.skl.Insert(buf)
}

// A LookupKey is the probe form of a user key used by Get. It carries a
// sequence number marking the visibility horizon: the lookup sees the
// newest version of the key with a sequence number at or below it.
type LookupKey struct {
	// memtableKey is varint32(len(userKey)+8), userKey, tag. The tag's
	// maximal kind makes a seek position at the newest visible version.
	memtableKey []byte
	ukeyStart   int
}

// MakeLookupKey constructs a LookupKey for the specified user key and
// visibility horizon.
func MakeLookupKey(userKey []byte, seqNum base.SeqNum) LookupKey {
	ikeyLen := len(userKey) + base.InternalTrailerLen
	buf := make([]byte, base.VarintLength(uint32(ikeyLen))+ikeyLen)
	n := base.EncodeVarint32(buf, uint32(ikeyLen))
	start := n
	n += copy(buf[n:], userKey)
	binary.LittleEndian.PutUint64(buf[n:], uint64(base.MakeTrailer(seqNum, base.InternalKeyKindMax)))
	return LookupKey{memtableKey: buf, ukeyStart: start}
}

// MemtableKey returns the encoded probe key.
func (k LookupKey) MemtableKey() []byte { return k.memtableKey }

// UserKey returns the user key portion of the lookup key.
func (k LookupKey) UserKey() []byte {
	return k.memtableKey[k.ukeyStart : len(k.memtableKey)-base.InternalTrailerLen]
}

// Get looks up the newest version of the lookup key's user key visible at
// its sequence horizon. found reports whether the memtable holds a visible
// version at all: if that version is a put, its value is returned; if it is
// a tombstone, err is base.ErrNotFound and the caller must not consult
// older tables. When found is false the caller should keep searching.
//
// The returned value borrows arena memory and is valid while the caller
// holds a reference.
func (m *MemTable) Get(key LookupKey) (value []byte, found bool, err error) {
	it := m.skl.NewIter()
	it.SeekGE(key.MemtableKey())
	if !it.Valid() {
		return nil, false, nil
	}
	// The seek skipped every version with a sequence number above the
	// horizon; only user key equality remains to be checked.
	ik := it.Key()
	if m.cmp.Compare(ik.UserKey, key.UserKey()) != 0 {
		return nil, false, nil
	}
	switch ik.Kind() {
	case base.InternalKeyKindSet:
		return it.Value(), true, nil
	case base.InternalKeyKindDelete:
		return nil, true, base.ErrNotFound
	default:
		panic(errors.AssertionFailedf("hotmem: unknown kind %s", ik.Kind()))
	}
}

// NewIter returns an unpositioned iterator over the memtable in internal
// key order: user key ascending, then sequence number descending, so the
// newest version of a user key is encountered first. Keys and values borrow
// arena memory.
func (m *MemTable) NewIter() Iterator {
	return Iterator{iter: m.skl.NewIter()}
}

// NewFIFOIter returns an unpositioned iterator over the FIFO chain in
// insertion order. It must only be used in non-concurrent phases.
func (m *MemTable) NewFIFOIter() FIFOIterator {
	return FIFOIterator{iter: m.skl.NewFIFOIter()}
}

// KV is a decoded entry produced by ExtractHot.
type KV struct {
	Key   []byte
	Value []byte
	Seq   base.SeqNum
	Kind  base.InternalKeyKind
}

// ExtractHot appends the hot zone's entries to out in insertion order and
// returns the extended slice. Each user key appears at most once, carrying
// its newest version. The tuples borrow arena memory; re-adding them to a
// successor memtable copies them out.
func (m *MemTable) ExtractHot(out []KV) []KV {
	it := m.skl.NewFIFOIter()
	for it.SeekToNormal(); it.Valid(); it.Next() {
		ik := it.Key()
		out = append(out, KV{
			Key:   ik.UserKey,
			Value: it.Value(),
			Seq:   ik.SeqNum(),
			Kind:  ik.Kind(),
		})
	}
	return out
}

// Separate narrows the memtable's ordered index to its cold residue so a
// flusher can walk only the data destined for disk. It returns false,
// leaving the memtable untouched, when there is nothing to flush. After a
// true return the caller must add no further writes (Add does not check
// this); iterate it for the flush, extract the hot zone, and release it.
//
// Separate requires external synchronization with all other operations.
func (m *MemTable) Separate() bool {
	return m.skl.Separate()
}

// Recycle prepares the memtable for flushing and builds its successor: it
// runs Separate and, if there is data to flush, re-adds the hot zone's
// entries to a fresh memtable constructed with the same options. It returns
// (nil, false) when nothing needs flushing and the memtable should simply
// keep absorbing writes.
//
// On success the receiver holds only cold data; the caller flushes it and
// drops its reference, directing subsequent writes at the successor.
func (m *MemTable) Recycle() (*MemTable, bool) {
	if !m.Separate() {
		return nil, false
	}
	succ := New(m.opts)
	for _, kv := range m.ExtractHot(nil) {
		succ.Add(kv.Seq, kv.Kind, kv.Key, kv.Value)
	}
	return succ, true
}

// Empty returns true if the memtable holds no entries.
func (m *MemTable) Empty() bool { return m.skl.Empty() }

// Count returns the number of live entries: obsolete versions are excluded.
func (m *MemTable) Count() int { return m.skl.Count() }

// ApproximateMemoryUsage returns the number of bytes of arena memory held
// by the memtable.
func (m *MemTable) ApproximateMemoryUsage() uint64 { return m.arena.MemoryUsage() }

// HotMemoryUsage returns the bytes accounted to the hot zone.
func (m *MemTable) HotMemoryUsage() uint64 { return m.skl.HotMemoryUsage() }

// ColdMemoryUsage returns the bytes accounted to the cold zone.
func (m *MemTable) ColdMemoryUsage() uint64 { return m.skl.ColdMemoryUsage() }

// Iterator iterates a memtable in internal key order. The zero value is not
// positioned; call a Seek method first.
type Iterator struct {
	iter hotskl.Iterator
	buf  []byte
}

// Valid returns true iff the iterator is positioned at an entry.
func (it *Iterator) Valid() bool { return it.iter.Valid() }

// Key returns the internal key at the current position, borrowing arena
// memory for the user key.
func (it *Iterator) Key() base.InternalKey { return it.iter.Key() }

// Value returns the value at the current position, borrowing arena memory.
func (it *Iterator) Value() []byte { return it.iter.Value() }

// Next advances to the next entry.
func (it *Iterator) Next() { it.iter.Next() }

// NextUserKey advances to the newest version of the next user key.
func (it *Iterator) NextUserKey() { it.iter.NextUserKey() }

// Prev moves to the previous entry.
func (it *Iterator) Prev() { it.iter.Prev() }

// SeekGE positions the iterator at the first entry at or after key.
func (it *Iterator) SeekGE(key base.InternalKey) {
	it.buf = appendMemtableKey(it.buf[:0], key)
	it.iter.SeekGE(it.buf)
}

// SeekToFirst positions the iterator at the first entry.
func (it *Iterator) SeekToFirst() { it.iter.First() }

// SeekToLast positions the iterator at the last entry.
func (it *Iterator) SeekToLast() { it.iter.Last() }

// FIFOIterator iterates a memtable in insertion order.
type FIFOIterator struct {
	iter hotskl.FIFOIterator
}

// Valid returns true iff the iterator is positioned at an entry.
func (it *FIFOIterator) Valid() bool { return it.iter.Valid() }

// Key returns the internal key at the current position.
func (it *FIFOIterator) Key() base.InternalKey { return it.iter.Key() }

// Value returns the value at the current position.
func (it *FIFOIterator) Value() []byte { return it.iter.Value() }

// Next advances towards the newest entry.
func (it *FIFOIterator) Next() { it.iter.Next() }

// Prev moves towards the oldest entry.
func (it *FIFOIterator) Prev() { it.iter.Prev() }

// SeekToFirst positions the iterator at the oldest live entry.
func (it *FIFOIterator) SeekToFirst() { it.iter.SeekToFirst() }

// SeekToNormal positions the iterator at the oldest hot entry.
func (it *FIFOIterator) SeekToNormal() { it.iter.SeekToNormal() }

// SeekToLast positions the iterator at the newest entry.
func (it *FIFOIterator) SeekToLast() { it.iter.SeekToLast() }

// appendMemtableKey appends the memtable-encoded form of an internal key:
// varint32 length prefix followed by the encoded key.
func appendMemtableKey(buf []byte, key base.InternalKey) []byte {
	n := len(buf)
	sz := key.Size()
	buf = append(buf, make([]byte, base.VarintLength(uint32(sz))+sz)...)
	n += base.EncodeVarint32(buf[n:], uint32(sz))
	key.Encode(buf[n:])
	return buf
}
