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

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/bits"

	"github.com/ajroetker/go-qnnpack/envconfig"
)

// ErrInvalidParams is wrapped by every tile table validation error.
var ErrInvalidParams = errors.New("invalid tile parameters")

// GEMMParams are the register tile widths of the dense-matrix and general
// convolution micro-kernels (q8conv / q8gemm).
type GEMMParams struct {
	MR int // Output pixels (rows of A) per micro-tile
	NR int // Output channels per micro-tile
	KR int // Input channels consumed per step
}

// XZPParams are the tile widths of the zero-point-transformed dense-matrix
// micro-kernels (q8conv_xzp).
type XZPParams struct {
	MR int
	NR int
	KR int
	KC int // Swizzle width (sr): input channels are interleaved in blocks of KC

	// KThreshold is the per-group input channel count from which the XZP
	// kernels are chosen over the plain ones. The built-in tables use
	// math.MaxInt, which no real layer reaches.
	KThreshold int
}

// DWParams is the channel tile of the depthwise micro-kernels (q8dw9).
type DWParams struct {
	CR int
}

// Params is the table of micro-kernel tile widths the packers consult.
//
// A Params value must match the one used by the compute kernels that later
// read the packed buffers: a mismatch is not detected and silently corrupts
// results.
type Params struct {
	Name string
	Conv GEMMParams
	XZP  XZPParams
	DW   DWParams
}

// ParamsNEON64 returns the AArch64 NEON table: 8x8 GEMM tiles, no K blocking.
func ParamsNEON64() Params {
	return Params{
		Name: "neon64",
		Conv: GEMMParams{MR: 8, NR: 8, KR: 1},
		XZP:  XZPParams{MR: 4, NR: 8, KR: 2, KC: 8, KThreshold: math.MaxInt},
		DW:   DWParams{CR: 8},
	}
}

// ParamsNEON32 returns the AArch32 NEON table.
func ParamsNEON32() Params {
	return Params{
		Name: "neon32",
		Conv: GEMMParams{MR: 4, NR: 8, KR: 1},
		XZP:  XZPParams{MR: 4, NR: 8, KR: 2, KC: 8, KThreshold: math.MaxInt},
		DW:   DWParams{CR: 8},
	}
}

// ParamsSSE2 returns the x86-64 SSE2 table: 4x4 GEMM tiles over pairs of
// input channels.
func ParamsSSE2() Params {
	return Params{
		Name: "sse2",
		Conv: GEMMParams{MR: 4, NR: 4, KR: 2},
		XZP:  XZPParams{MR: 4, NR: 8, KR: 2, KC: 8, KThreshold: math.MaxInt},
		DW:   DWParams{CR: 8},
	}
}

// ParamsScalar returns the table of the portable scalar kernels.
func ParamsScalar() Params {
	return Params{
		Name: "scalar",
		Conv: GEMMParams{MR: 2, NR: 4, KR: 1},
		XZP:  XZPParams{MR: 2, NR: 4, KR: 1, KC: 4, KThreshold: math.MaxInt},
		DW:   DWParams{CR: 1},
	}
}

// BuiltinParams returns every built-in table.
func BuiltinParams() []Params {
	return []Params{ParamsNEON64(), ParamsNEON32(), ParamsSSE2(), ParamsScalar()}
}

// ParamsByName returns the built-in table with the given name.
func ParamsByName(name string) (Params, bool) {
	for _, p := range BuiltinParams() {
		if p.Name == name {
			return p, true
		}
	}
	return Params{}, false
}

// ParamsForLevel returns the built-in table used at a dispatch level.
func ParamsForLevel(level DispatchLevel) Params {
	switch level {
	case DispatchSSE2, DispatchAVX2:
		return ParamsSSE2()
	case DispatchNEON32:
		return ParamsNEON32()
	case DispatchNEON64:
		return ParamsNEON64()
	default:
		return ParamsScalar()
	}
}

// DefaultParams returns the table for the detected dispatch level, or the
// table named by QNN_TILE_PARAMS when it is set to a known name.
func DefaultParams() Params {
	if name := envconfig.TileParams(); name != "" {
		if p, ok := ParamsByName(name); ok {
			return p
		}
		slog.Warn("unknown tile table, using detected one", "QNN_TILE_PARAMS", name, "level", CurrentLevel())
	}
	return ParamsForLevel(CurrentLevel())
}

// Validate checks the widths the packers rely on: every width positive,
// the rounded widths powers of two and the swizzle width a multiple of KR.
func (p Params) Validate() error {
	checks := []struct {
		name  string
		value int
		pow2  bool
	}{
		{"conv MR", p.Conv.MR, false},
		{"conv NR", p.Conv.NR, true},
		{"conv KR", p.Conv.KR, true},
		{"xzp MR", p.XZP.MR, false},
		{"xzp NR", p.XZP.NR, true},
		{"xzp KR", p.XZP.KR, true},
		{"xzp KC", p.XZP.KC, true},
		{"dw CR", p.DW.CR, true},
	}
	for _, c := range checks {
		if c.value <= 0 {
			return fmt.Errorf("%w: %s table: %s is %d, must be positive", ErrInvalidParams, p.Name, c.name, c.value)
		}
		if c.pow2 && bits.OnesCount(uint(c.value)) != 1 {
			return fmt.Errorf("%w: %s table: %s is %d, must be a power of two", ErrInvalidParams, p.Name, c.name, c.value)
		}
	}
	if p.XZP.KC%p.XZP.KR != 0 {
		return fmt.Errorf("%w: %s table: xzp KC %d is not a multiple of KR %d", ErrInvalidParams, p.Name, p.XZP.KC, p.XZP.KR)
	}
	if p.XZP.KThreshold <= 0 {
		return fmt.Errorf("%w: %s table: xzp KThreshold is %d, must be positive", ErrInvalidParams, p.Name, p.XZP.KThreshold)
	}
	return nil
}

// RoundUp rounds n up to the next multiple of q.
func RoundUp(n, q int) int {
	return (n + q - 1) / q * q
}
