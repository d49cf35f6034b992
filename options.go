// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package hotmem

import "github.com/lsmkit/hotmem/internal/base"

// Options holds the parameters needed to construct a MemTable.
type Options struct {
	// Comparer defines the ordering of user keys. The default is a bytewise
	// ordering.
	Comparer *base.Comparer

	// HotThreshold is the byte budget of the hot zone. Entries beyond the
	// budget age into the cold zone and spill to disk on flush, while hot
	// entries are recycled into the successor memtable. 0 classifies all
	// data cold, disabling recycling.
	HotThreshold uint64

	// Logger is carried with the options; the default logs to the Go stdlib
	// logs. The memtable itself does not log: irrecoverable conditions panic.
	Logger base.Logger
}

// EnsureDefaults returns a new Options struct holding a copy of o with all
// unset fields populated; o itself is not modified. If o is nil, a fully
// defaulted Options is returned.
func (o *Options) EnsureDefaults() *Options {
	if o == nil {
		o = &Options{}
	}
	n := *o
	n.Comparer = o.Comparer.EnsureDefaults()
	if n.Logger == nil {
		n.Logger = base.DefaultLogger{}
	}
	return &n
}
