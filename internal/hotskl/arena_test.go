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
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func TestArenaAlloc(t *testing.T) {
	a := NewArena()
	require.Zero(t, a.MemoryUsage())

	b1 := a.Alloc(10)
	require.Len(t, b1, 10)
	require.Equal(t, uint64(blockSize), a.MemoryUsage())

	// Small allocations are served from the same block.
	b2 := a.Alloc(20)
	require.Len(t, b2, 20)
	require.Equal(t, uint64(blockSize), a.MemoryUsage())

	// Fresh memory is zeroed and distinct.
	for i := range b1 {
		require.Zero(t, b1[i])
		b1[i] = 0xff
	}
	for i := range b2 {
		require.Zero(t, b2[i])
	}
}

func TestArenaAllocAligned(t *testing.T) {
	a := NewArena()
	// Skew the bump pointer.
	_ = a.Alloc(3)
	for i := 0; i < 100; i++ {
		b := a.AllocAligned(13)
		require.Len(t, b, 13)
		require.Zero(t, uintptr(unsafe.Pointer(&b[0]))%align)
	}
}

func TestArenaOversize(t *testing.T) {
	a := NewArena()
	_ = a.Alloc(10)
	usage := a.MemoryUsage()

	// An oversize request gets a dedicated block and leaves the current
	// block intact.
	big := a.Alloc(3 * blockSize)
	require.Len(t, big, 3*blockSize)
	require.Equal(t, usage+uint64(3*blockSize), a.MemoryUsage())

	small := a.Alloc(10)
	require.Len(t, small, 10)
	require.Equal(t, usage+uint64(3*blockSize), a.MemoryUsage())
}

func TestArenaUsageMonotonic(t *testing.T) {
	a := NewArena()
	prev := a.MemoryUsage()
	for i := 1; i < 1000; i++ {
		a.Alloc(i % 512)
		cur := a.MemoryUsage()
		require.GreaterOrEqual(t, cur, prev)
		prev = cur
	}
}
