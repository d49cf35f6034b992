// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import "github.com/cockroachdb/errors"

// ErrNotFound means that a get call did not find the requested key, or found
// a deletion tombstone masking it.
var ErrNotFound = errors.New("hotmem: not found")
