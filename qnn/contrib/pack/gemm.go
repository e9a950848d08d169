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

package pack

import "encoding/binary"

// BiasSize is the width in bytes of one packed bias word.
const BiasSize = 4

// GEMMWeights packs an nc x kc row-major weight matrix k and its bias b for
// the dense-matrix micro-kernels.
//
// The packed layout is organized as blocks of nr output channels:
//   - nr bias words (slots past the last channel are skipped)
//   - for each step of kr input channels, for each channel in the block:
//     kr weight bytes (bytes past kc are skipped)
//   - a partial block is followed by ((nr - rows) mod np) * kr skipped bytes
//     per step
//
// Skipped bytes are never written, so dst keeps whatever fill the caller
// chose for padding. With np == nr a block of n rows occupies
// nr * (BiasSize + roundUp(kc, kr)) bytes.
//
// izp and kzp are the input and kernel zero points. The packed bias is
// b + kc*izp*kzp - izp*sum(row); with izp == 0 it is b unchanged. A nil b
// packs zero bias.
//
// Returns the number of bytes the packing cursor advanced.
func GEMMWeights(nc, kc, nr, np, kr int, izp, kzp uint8, k []uint8, b []int32, dst []byte) int {
	if len(k) < nc*kc {
		panic("pack: gemm kernel slice too short")
	}
	if b != nil && len(b) < nc {
		panic("pack: gemm bias slice too short")
	}
	boff := int32(kc) * int32(izp) * int32(kzp)

	p := 0
	for nStart := 0; nStart < nc; nStart += nr {
		nSize := min(nc-nStart, nr)
		for i := range nSize {
			row := k[(nStart+i)*kc : (nStart+i+1)*kc]
			putBias(dst, p, biasAt(b, nStart+i)+boff-int32(izp)*rowSum(row))
			p += BiasSize
		}
		p += (nr - nSize) * BiasSize

		for kStart := 0; kStart < kc; kStart += kr {
			kSize := min(kc-kStart, kr)
			for i := range nSize {
				src := (nStart+i)*kc + kStart
				copy(dst[p:p+kSize], k[src:src+kSize])
				p += kr
			}
			p += ((nr - nSize) % np) * kr
		}
	}
	return p
}

func putBias(dst []byte, off int, v int32) {
	binary.NativeEndian.PutUint32(dst[off:off+BiasSize], uint32(v))
}

func biasAt(b []int32, i int) int32 {
	if b == nil {
		return 0
	}
	return b[i]
}

func rowSum(row []uint8) int32 {
	var sum int32
	for _, v := range row {
		sum += int32(v)
	}
	return sum
}
