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

// ConvWeights packs convolution weights for the general convolution
// micro-kernels.
//
// k is n x ks x kc in row-major order: n output channels, ks kernel taps
// (kernel height * width), kc input channels. Output channels are grouped
// in blocks of nr; each block holds nr bias words followed, for every tap and
// every step of kr input channels, by kr bytes per channel of the block and
// (nr - rows) * kr skipped bytes. A block occupies
// nr * (BiasSize + ks*roundUp(kc, kr)) bytes.
//
// Bias handling and the return value are as for GEMMWeights, with the zero
// point offset scaled by ks*kc.
func ConvWeights(n, ks, kc, nr, kr int, izp, kzp uint8, k []uint8, b []int32, dst []byte) int {
	if len(k) < n*ks*kc {
		panic("pack: conv kernel slice too short")
	}
	if b != nil && len(b) < n {
		panic("pack: conv bias slice too short")
	}
	boff := int32(ks) * int32(kc) * int32(izp) * int32(kzp)

	p := 0
	for nStart := 0; nStart < n; nStart += nr {
		nSize := min(n-nStart, nr)
		for i := range nSize {
			row := k[(nStart+i)*ks*kc : (nStart+i+1)*ks*kc]
			putBias(dst, p, biasAt(b, nStart+i)+boff-int32(izp)*rowSum(row))
			p += BiasSize
		}
		p += (nr - nSize) * BiasSize

		for ki := range ks {
			for kStart := 0; kStart < kc; kStart += kr {
				kSize := min(kc-kStart, kr)
				for i := range nSize {
					src := ((nStart+i)*ks+ki)*kc + kStart
					copy(dst[p:p+kSize], k[src:src+kSize])
					p += kr
				}
				p += (nr - nSize) * kr
			}
		}
	}
	return p
}
