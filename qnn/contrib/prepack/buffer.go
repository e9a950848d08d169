// Copyright 2025 go-qnnpack Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package prepack

import (
	"fmt"
	"math/bits"
	"sync/atomic"
	"unsafe"
)

// BufferAlignment is the byte alignment of every packed buffer, matching
// what malloc guarantees to the micro-kernels.
const BufferAlignment = 16

// Buffer is a packed weight buffer. It is written once by the packer that
// allocates it and is read-only afterwards, so any number of goroutines may
// read Bytes concurrently. Release drops the memory exactly once; reading
// after Release sees a nil slice.
type Buffer struct {
	data     atomic.Pointer[[]byte]
	size     int
	released atomic.Bool
}

// newBuffer allocates an aligned buffer of size bytes.
func newBuffer(size int) *Buffer {
	raw := make([]byte, size+BufferAlignment-1)
	off := 0
	if size > 0 {
		if rem := uintptr(unsafe.Pointer(&raw[0])) % BufferAlignment; rem != 0 {
			off = int(BufferAlignment - rem)
		}
	}
	data := raw[off : off+size : off+size]
	b := &Buffer{size: size}
	b.data.Store(&data)
	return b
}

// Bytes returns the packed bytes, or nil once the buffer is released.
// Callers must not modify the returned slice.
func (b *Buffer) Bytes() []byte {
	if p := b.data.Load(); p != nil {
		return *p
	}
	return nil
}

// Len returns the size in bytes the buffer was allocated with.
func (b *Buffer) Len() int { return b.size }

// Released reports whether Release has been called.
func (b *Buffer) Released() bool { return b.released.Load() }

// Release drops the buffer. Only the first call has an effect; it reports
// whether this call released the buffer.
func (b *Buffer) Release() bool {
	if !b.released.CompareAndSwap(false, true) {
		return false
	}
	b.data.Store(nil)
	return true
}

// fill sets every byte of the buffer to v.
func (b *Buffer) fill(v byte) {
	data := b.Bytes()
	if len(data) == 0 {
		return
	}
	data[0] = v
	for n := 1; n < len(data); n *= 2 {
		copy(data[n:], data[:n])
	}
}

// allocate sizes a buffer of groups regions of (taps*kStride + bias) *
// nStride bytes, checking for overflow and the configured limit.
func (c Config) allocate(taps, kStride, nStride, groups int) (*Buffer, error) {
	size, ok := packedSize(taps, kStride, nStride, groups)
	if !ok {
		err := fmt.Errorf("%w: packed size of %d groups of %dx(%dx%d+%d) bytes overflows",
			ErrAllocation, groups, nStride, taps, kStride, biasSize)
		c.logger().Error("failed to allocate packed weights", "error", err)
		return nil, err
	}
	if c.MaxPackedBytes > 0 && size > c.MaxPackedBytes {
		err := fmt.Errorf("%w: failed to allocate %d bytes for packed weights: limit is %d bytes",
			ErrAllocation, size, c.MaxPackedBytes)
		c.logger().Error("failed to allocate packed weights", "bytes", size, "limit", c.MaxPackedBytes, "error", err)
		return nil, err
	}
	return newBuffer(size), nil
}

// packedSize computes (taps*kStride + biasSize) * nStride * groups,
// reporting false on overflow.
func packedSize(taps, kStride, nStride, groups int) (int, bool) {
	perChannel, ok := mulInt(taps, kStride)
	if !ok {
		return 0, false
	}
	perGroup, ok := mulInt(perChannel+biasSize, nStride)
	if !ok {
		return 0, false
	}
	return mulInt(perGroup, groups)
}

func mulInt(a, b int) (int, bool) {
	if a < 0 || b < 0 {
		return 0, false
	}
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	if hi != 0 || lo > uint64(maxAlloc) {
		return 0, false
	}
	return int(lo), true
}

// maxAlloc leaves room for the alignment slack.
const maxAlloc = int(^uint(0)>>1) - BufferAlignment
