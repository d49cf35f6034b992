//go:build race

// Copyright 2020 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package hotskl

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lsmkit/hotmem/internal/base"
)

// TestConcurrentReaders exercises the lock-free reader contract: a single
// serialized writer inserts while readers seek and iterate. Run under the
// race detector this validates the publication protocol (release store on
// the level-0 link, acquire loads on traversal).
func TestConcurrentReaders(t *testing.T) {
	const n = 500
	s := newTestSkiplist(1 << 16)

	var wg sync.WaitGroup
	done := make(chan struct{})
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				it := s.NewIter()
				var prev []byte
				count := 0
				for it.First(); it.Valid(); it.Next() {
					key := it.Key()
					if count > 0 && base.DefaultComparer.Compare(prev, key.UserKey) >= 0 {
						panic(fmt.Sprintf("out of order: %q then %q", prev, key.UserKey))
					}
					prev = append(prev[:0], key.UserKey...)
					count++
				}
				it.SeekGE(makeSearchKey("key00250", base.SeqNumMax))
			}
		}()
	}

	for i := 0; i < n; i++ {
		insertEntry(s, fmt.Sprintf("key%05d", i), base.SeqNum(i+1), base.InternalKeyKindSet, "v")
	}
	close(done)
	wg.Wait()

	require.Equal(t, n, s.Count())
}
