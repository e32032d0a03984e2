// Package pool provides the flat byte-buffer pool used by tcpsocket for
// its per-connection read buffers. Grounded on the
// teacher's pool/bytepool.go fallback-allocation idiom; the NUMA-aware
// slab-pool machinery above it is dropped (see DESIGN.md) since nothing in
// this spec allocates per-NUMA-node.
// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT
package pool

import "sync"

// BytePool hands out []byte buffers of a fixed capacity, backed by a
// sync.Pool so steady-state operation does zero extra allocation.
type BytePool struct {
	size int
	pool sync.Pool
}

// NewBytePool creates a pool of buffers each with capacity size.
func NewBytePool(size int) *BytePool {
	bp := &BytePool{size: size}
	bp.pool.New = func() any {
		return make([]byte, size)
	}
	return bp
}

// Get returns a buffer with len == size. Callers that need more must grow
// it themselves; Put only accepts buffers of exactly size capacity back.
func (b *BytePool) Get() []byte {
	buf := b.pool.Get().([]byte)
	return buf[:b.size]
}

// Put returns buf to the pool. Buffers with a different capacity are
// silently dropped rather than corrupting the pool's size invariant.
func (b *BytePool) Put(buf []byte) {
	if cap(buf) != b.size {
		return
	}
	b.pool.Put(buf[:b.size])
}
