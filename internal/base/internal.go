// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package base holds the key model shared by the memtable and its callers:
// sequence numbers, internal keys, comparators, and the varint coding used by
// the arena entry format.
package base

import (
	"cmp"
	"encoding/binary"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
)

// SeqNum is a sequence number defining precedence among versions of the same
// user key. A version with a higher sequence number shadows versions of the
// same user key with lower sequence numbers. Sequence numbers are stored
// within the internal key trailer as a 7-byte (uint56) integer and are
// assigned in increasing order as writes are committed.
type SeqNum uint64

const (
	// SeqNumZero is the zero sequence number.
	SeqNumZero SeqNum = 0
	// SeqNumMax is the largest valid sequence number.
	SeqNumMax SeqNum = 1<<56 - 1
)

// String implements fmt.Stringer.
func (s SeqNum) String() string {
	if s == SeqNumMax {
		return "inf"
	}
	return fmt.Sprintf("%d", uint64(s))
}

// SafeFormat implements redact.SafeFormatter.
func (s SeqNum) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Print(redact.SafeString(s.String()))
}

// InternalKeyKind enumerates the kind of an internal key: a deletion
// tombstone or a set value.
type InternalKeyKind uint8

// These constants are shared with the write-ahead log and sstable formats of
// the surrounding store and must not be changed.
const (
	InternalKeyKindDelete InternalKeyKind = 0
	InternalKeyKindSet    InternalKeyKind = 1

	// InternalKeyKindMax is the largest valid kind. Because the trailer orders
	// kinds descending for equal user keys and sequence numbers, a search key
	// built with InternalKeyKindMax sorts at or before every real key with the
	// same user key and sequence number.
	InternalKeyKindMax InternalKeyKind = InternalKeyKindSet

	// InternalKeyKindInvalid marks a key that failed to decode.
	InternalKeyKindInvalid InternalKeyKind = 255
)

// String implements fmt.Stringer.
func (k InternalKeyKind) String() string {
	switch k {
	case InternalKeyKindDelete:
		return "DEL"
	case InternalKeyKindSet:
		return "SET"
	default:
		return fmt.Sprintf("UNKNOWN:%d", uint8(k))
	}
}

// SafeFormat implements redact.SafeFormatter.
func (k InternalKeyKind) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Print(redact.SafeString(k.String()))
}

// ParseKind parses the string representation of an internal key kind.
func ParseKind(s string) InternalKeyKind {
	switch s {
	case "DEL":
		return InternalKeyKindDelete
	case "SET":
		return InternalKeyKindSet
	}
	panic(errors.AssertionFailedf("unknown kind: %q", s))
}

// InternalKeyTrailer encodes a SeqNum and an InternalKeyKind as
// (seqNum << 8) | kind. It is stored as a little-endian fixed64 suffix of
// the internal key.
type InternalKeyTrailer uint64

// MakeTrailer constructs an internal key trailer from the specified sequence
// number and kind.
func MakeTrailer(seqNum SeqNum, kind InternalKeyKind) InternalKeyTrailer {
	return (InternalKeyTrailer(seqNum) << 8) | InternalKeyTrailer(kind)
}

// SeqNum returns the sequence number component of the trailer.
func (t InternalKeyTrailer) SeqNum() SeqNum {
	return SeqNum(t >> 8)
}

// Kind returns the key kind component of the trailer.
func (t InternalKeyTrailer) Kind() InternalKeyKind {
	return InternalKeyKind(t & 0xff)
}

// String implements fmt.Stringer.
func (t InternalKeyTrailer) String() string {
	return fmt.Sprintf("%s,%s", t.SeqNum(), t.Kind())
}

// InternalTrailerLen is the number of bytes used to encode the trailer.
const InternalTrailerLen = 8

// InternalKey is a key stored in the memtable. It consists of the user key
// (as given by the code that uses this package) followed by an 8-byte
// trailer: 1 byte for the kind and 7 bytes for the sequence number, encoded
// together as a little-endian fixed64.
type InternalKey struct {
	UserKey []byte
	Trailer InternalKeyTrailer
}

// MakeInternalKey constructs an internal key from a specified user key,
// sequence number and kind.
func MakeInternalKey(userKey []byte, seqNum SeqNum, kind InternalKeyKind) InternalKey {
	return InternalKey{
		UserKey: userKey,
		Trailer: MakeTrailer(seqNum, kind),
	}
}

// MakeSearchKey constructs an internal key appropriate for searching for the
// specified user key at the specified visibility horizon. The key carries the
// maximal kind so that it sorts at or before every version of the user key
// with sequence number <= seqNum.
func MakeSearchKey(userKey []byte, seqNum SeqNum) InternalKey {
	return MakeInternalKey(userKey, seqNum, InternalKeyKindMax)
}

// DecodeInternalKey decodes an encoded internal key. See InternalKey.Encode.
func DecodeInternalKey(encodedKey []byte) InternalKey {
	n := len(encodedKey) - InternalTrailerLen
	var trailer InternalKeyTrailer
	if n >= 0 {
		trailer = InternalKeyTrailer(binary.LittleEndian.Uint64(encodedKey[n:]))
		encodedKey = encodedKey[:n:n]
	} else {
		trailer = InternalKeyTrailer(InternalKeyKindInvalid)
		encodedKey = nil
	}
	return InternalKey{
		UserKey: encodedKey,
		Trailer: trailer,
	}
}

// InternalCompare compares two internal keys using the specified user key
// comparison function. For equal user keys, internal keys compare in
// descending sequence number order, then descending kind order.
func InternalCompare(userCmp Compare, a, b InternalKey) int {
	if x := userCmp(a.UserKey, b.UserKey); x != 0 {
		return x
	}
	// Reverse order for trailer comparison.
	return cmp.Compare(b.Trailer, a.Trailer)
}

// Encode encodes the receiver into buf, which must be able to hold Size()
// bytes.
func (k InternalKey) Encode(buf []byte) {
	i := copy(buf, k.UserKey)
	binary.LittleEndian.PutUint64(buf[i:], uint64(k.Trailer))
}

// Size returns the encoded size of the key.
func (k InternalKey) Size() int {
	return len(k.UserKey) + InternalTrailerLen
}

// SeqNum returns the sequence number component of the key.
func (k InternalKey) SeqNum() SeqNum {
	return k.Trailer.SeqNum()
}

// Kind returns the kind component of the key.
func (k InternalKey) Kind() InternalKeyKind {
	return k.Trailer.Kind()
}

// String implements fmt.Stringer.
func (k InternalKey) String() string {
	return fmt.Sprintf("%s#%s,%s", k.UserKey, k.SeqNum(), k.Kind())
}

// ExtractUserKey returns the user key portion of an encoded internal key:
// all bytes except the trailing 8-byte trailer.
func ExtractUserKey(internalKey []byte) []byte {
	n := len(internalKey) - InternalTrailerLen
	if n < 0 {
		panic(errors.AssertionFailedf("invalid internal key %x", internalKey))
	}
	return internalKey[:n:n]
}

// EntryKey returns the encoded internal key of an arena entry. Entries are
// laid out as varint32(klen) klen-bytes varint32(vlen) vlen-bytes, with the
// internal key trailer occupying the last 8 bytes of the key.
func EntryKey(entry []byte) []byte {
	key, _ := GetLengthPrefixedSlice(entry)
	return key
}

// EntryValue returns the value bytes of an arena entry.
func EntryValue(entry []byte) []byte {
	_, rest := GetLengthPrefixedSlice(entry)
	value, _ := GetLengthPrefixedSlice(rest)
	return value
}

// CompareEntries compares two arena entries by their internal keys.
func CompareEntries(userCmp Compare, a, b []byte) int {
	return InternalCompare(userCmp, DecodeInternalKey(EntryKey(a)), DecodeInternalKey(EntryKey(b)))
}

// CompareSequence compares the trailers of two arena entries, ignoring user
// keys. It returns a negative value if a is newer than b (larger sequence
// number), a positive value if a is older, and zero if the trailers carry
// the same sequence number. The hot/cold accounting uses the sign to decide
// on which side of the hot boundary an entry lies.
func CompareSequence(a, b []byte) int {
	aseq := DecodeInternalKey(EntryKey(a)).SeqNum()
	bseq := DecodeInternalKey(EntryKey(b)).SeqNum()
	return cmp.Compare(bseq, aseq)
}
