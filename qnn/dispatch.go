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

package qnn

import "github.com/ajroetker/go-qnnpack/envconfig"

// DispatchLevel represents the family of quantized micro-kernels the
// runtime would dispatch to. It decides which tile table is the default.
type DispatchLevel int

const (
	// DispatchScalar indicates the portable scalar kernels.
	DispatchScalar DispatchLevel = iota

	// DispatchSSE2 indicates the x86-64 SSE2 kernels.
	DispatchSSE2

	// DispatchAVX2 indicates an x86-64 CPU with AVX2. The quantized kernels
	// are still the SSE2 ones, so it shares their tile table.
	DispatchAVX2

	// DispatchNEON32 indicates AArch32 NEON kernels.
	DispatchNEON32

	// DispatchNEON64 indicates AArch64 NEON kernels.
	DispatchNEON64
)

// String returns a human-readable name for the dispatch level.
func (d DispatchLevel) String() string {
	switch d {
	case DispatchScalar:
		return "scalar"
	case DispatchSSE2:
		return "sse2"
	case DispatchAVX2:
		return "avx2"
	case DispatchNEON32:
		return "neon32"
	case DispatchNEON64:
		return "neon64"
	default:
		return "unknown"
	}
}

// currentLevel is the detected level for this runtime.
// Set by init() in dispatch_*.go files.
var currentLevel DispatchLevel

func init() {
	currentLevel = detectLevel(envconfig.NoSIMD())
}

// CurrentLevel returns the detected dispatch level.
func CurrentLevel() DispatchLevel {
	return currentLevel
}
