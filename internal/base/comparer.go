// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import "bytes"

// Compare returns -1, 0, or +1 depending on whether a is 'less than', 'equal
// to' or 'greater than' b. The comparison must define a total ordering over
// the space of user keys.
type Compare func(a, b []byte) int

// Equal returns true if a and b are equivalent. For a given Compare,
// Equal(a, b) must return true iff Compare(a, b) returns zero, but it may be
// cheaper to evaluate.
type Equal func(a, b []byte) bool

// Comparer defines a total ordering over the space of user keys.
type Comparer struct {
	Compare Compare
	Equal   Equal

	// Name is the name of the comparer.
	//
	// The on-disk format of the surrounding store stores the comparer name,
	// and opening a store fails if the comparer of the data does not match the
	// comparer passed at open time.
	Name string
}

// EnsureDefaults ensures that all nil fields of c are populated, deriving
// Equal from Compare if necessary. If c is nil, DefaultComparer is returned.
func (c *Comparer) EnsureDefaults() *Comparer {
	if c == nil {
		return DefaultComparer
	}
	if c.Compare == nil {
		panic("hotmem: comparer has no Compare function")
	}
	if c.Equal != nil && c.Name != "" {
		return c
	}
	n := &Comparer{}
	*n = *c
	if n.Equal == nil {
		cmp := n.Compare
		n.Equal = func(a, b []byte) bool { return cmp(a, b) == 0 }
	}
	if n.Name == "" {
		n.Name = "unknown"
	}
	return n
}

// DefaultComparer is the default bytewise comparer.
var DefaultComparer = &Comparer{
	Compare: bytes.Compare,
	Equal:   bytes.Equal,

	// This name is part of the on-disk format of the surrounding store, and
	// is the same as the name of the corresponding comparer in LevelDB.
	Name: "leveldb.BytewiseComparator",
}
