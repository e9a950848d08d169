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

// Package qnn holds the runtime-wide state of the quantized kernels: the
// detected dispatch level and the tables of micro-kernel tile widths that
// weight packing must agree on.
//
// Tile tables are plain values. DefaultParams picks one from the CPU (or
// from QNN_TILE_PARAMS); tests and tools can build their own:
//
//	p := qnn.ParamsNEON64()
//	p.Conv.KR = 2
//	if err := p.Validate(); err != nil {
//		return err
//	}
//
// Setting QNN_NO_SIMD=1 forces the scalar level.
package qnn
