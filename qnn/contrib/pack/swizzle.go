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

// SwizzleGEMMWeights packs an n x kc weight matrix for the zero-point
// transformed (XZP) dense-matrix micro-kernels.
//
// The block structure is that of GEMMWeights with np == nr, except that
// inside every full block of sr input channels the kr-wide slices are
// rotated per output channel: row r of the block reads its slice at
// ((kStart + r*kr) mod sr) within the sr block. Input channels past the last
// full sr block are packed unrotated. sr must be a power of two and a
// multiple of kr.
//
// The packed bias is b + kc*izp*kzp - izp*sum(row).
func SwizzleGEMMWeights(n, kc, nr, kr, sr int, izp, kzp uint8, k []uint8, b []int32, dst []byte) int {
	if len(k) < n*kc {
		panic("pack: swizzle kernel slice too short")
	}
	if b != nil && len(b) < n {
		panic("pack: swizzle bias slice too short")
	}
	boff := int32(kc) * int32(izp) * int32(kzp)
	kFull := kc &^ (sr - 1)

	p := 0
	for nStart := 0; nStart < n; nStart += nr {
		nSize := min(n-nStart, nr)
		for i := range nSize {
			row := k[(nStart+i)*kc : (nStart+i+1)*kc]
			putBias(dst, p, biasAt(b, nStart+i)+boff-int32(izp)*rowSum(row))
			p += BiasSize
		}
		p += (nr - nSize) * BiasSize

		for kStart := 0; kStart < kFull; kStart += kr {
			for i := range nSize {
				src := (nStart+i)*kc + (kStart &^ (sr - 1)) + ((kStart + i*kr) & (sr - 1))
				copy(dst[p:p+kr], k[src:src+kr])
				p += kr
			}
			p += (nr - nSize) * kr
		}

		for kStart := kFull; kStart < kc; kStart += kr {
			kSize := min(kc-kStart, kr)
			for i := range nSize {
				src := (nStart+i)*kc + kStart
				copy(dst[p:p+kSize], k[src:src+kSize])
				p += kr
			}
			p += (nr - nSize) * kr
		}
	}
	return p
}
