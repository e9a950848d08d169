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

// DepthwiseWeights packs an h x w depthwise kernel over c channels.
//
// k is c x h x w in row-major order. Channels are grouped in blocks of cr;
// each block holds cr bias words and then, column by column (x outer, y
// inner), one byte per channel of the block followed by cr - channels
// skipped bytes. A block occupies cr * (BiasSize + h*w) bytes.
//
// The packed bias is b + h*w*izp*kzp - izp*sum(taps).
func DepthwiseWeights(h, w, c, cr int, izp, kzp uint8, k []uint8, b []int32, dst []byte) int {
	if len(k) < c*h*w {
		panic("pack: depthwise kernel slice too short")
	}
	if b != nil && len(b) < c {
		panic("pack: depthwise bias slice too short")
	}
	boff := int32(h) * int32(w) * int32(izp) * int32(kzp)

	p := 0
	for cStart := 0; cStart < c; cStart += cr {
		cSize := min(c-cStart, cr)
		for i := range cSize {
			taps := k[(cStart+i)*h*w : (cStart+i+1)*h*w]
			putBias(dst, p, biasAt(b, cStart+i)+boff-int32(izp)*rowSum(taps))
			p += BiasSize
		}
		p += (cr - cSize) * BiasSize

		for x := range w {
			for y := range h {
				for i := range cSize {
					dst[p] = k[((cStart+i)*h+y)*w+x]
					p++
				}
				p += cr - cSize
			}
		}
	}
	return p
}

// DepthwiseDilationWeights packs the sub-kernel of rows [yStart, yEnd) and
// columns [xStart, xEnd) of an h x w depthwise kernel, for micro-kernels that
// walk a large kernel in several passes.
//
// The layout matches DepthwiseWeights restricted to the sub-kernel. Bias words
// are written only when packBias is set, and are copied from b as-is (zero when
// b is nil); when packBias is false a block has no bias slots at all.
func DepthwiseDilationWeights(h, w, c, cr, yStart, yEnd, xStart, xEnd int, k []uint8, b []int32, dst []byte, packBias bool) int {
	if len(k) < c*h*w {
		panic("pack: depthwise kernel slice too short")
	}
	if packBias && b != nil && len(b) < c {
		panic("pack: depthwise bias slice too short")
	}

	p := 0
	for cStart := 0; cStart < c; cStart += cr {
		cSize := min(c-cStart, cr)
		if packBias {
			for i := range cSize {
				putBias(dst, p, biasAt(b, cStart+i))
				p += BiasSize
			}
			p += (cr - cSize) * BiasSize
		}
		for x := xStart; x < xEnd; x++ {
			for y := yStart; y < yEnd; y++ {
				for i := range cSize {
					dst[p] = k[((cStart+i)*h+y)*w+x]
					p++
				}
				p += cr - cSize
			}
		}
	}
	return p
}
