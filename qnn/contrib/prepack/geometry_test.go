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
	"bytes"
	"io"
	"log/slog"
	"math"
	"math/bits"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ajroetker/go-qnnpack/qnn"
)

// testParams is a small table that makes partial tiles easy to hit.
func testParams() qnn.Params {
	return qnn.Params{
		Name: "test",
		Conv: qnn.GEMMParams{MR: 2, NR: 4, KR: 2},
		XZP:  qnn.XZPParams{MR: 2, NR: 4, KR: 2, KC: 4, KThreshold: math.MaxInt},
		DW:   qnn.DWParams{CR: 4},
	}
}

func quietConfig(p qnn.Params) Config {
	return Config{Params: p, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// capturingConfig returns a Config logging at every level into the returned
// buffer.
func capturingConfig(p qnn.Params) (Config, *bytes.Buffer) {
	var buf bytes.Buffer
	h := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return Config{Params: p, Logger: slog.New(h)}, &buf
}

// conv returns a unit-stride, undilated, unpadded convolution.
func conv(kw, kh, groups, in, out int) ConvParams {
	return ConvParams{
		KernelDims:      [2]int{kw, kh},
		SubsamplingDims: [2]int{1, 1},
		Dilation:        [2]int{1, 1},
		Groups:          groups,
		InputChannels:   in,
		OutputChannels:  out,
		KernelZeroPoint: 128,
		KernelScale:     0.5,
		OutputMax:       255,
	}
}

func TestResolveStrategy(t *testing.T) {
	strided := conv(1, 1, 1, 8, 8)
	strided.SubsamplingDims = [2]int{2, 2}
	padded := conv(1, 1, 1, 8, 8)
	padded.Padding = [4]int{0, 0, 1, 0}
	dilated := conv(1, 1, 1, 8, 8)
	dilated.Dilation = [2]int{2, 2}
	dilatedDW := conv(3, 3, 16, 16, 16)
	dilatedDW.Dilation = [2]int{2, 2}

	tests := []struct {
		name string
		p    ConvParams
		want Strategy
	}{
		{"depthwise 3x3", conv(3, 3, 4, 4, 4), StrategyDWConv},
		{"depthwise 5x5", conv(5, 5, 8, 8, 8), StrategyDWConv},
		{"depthwise dilated", dilatedDW, StrategyDWConv},
		{"3x3 single group", conv(3, 3, 1, 1, 1), StrategyConv},
		{"3x3 two inputs per group", conv(3, 3, 2, 4, 2), StrategyConv},
		{"3x3 channel multiplier", conv(3, 3, 4, 4, 8), StrategyConv},
		{"5x5 dense", conv(5, 5, 1, 16, 16), StrategyConv},
		{"1x1 dense", conv(1, 1, 1, 8, 8), StrategyGEMM},
		{"1x1 grouped", conv(1, 1, 4, 8, 8), StrategyGEMM},
		{"1x1 dilated", dilated, StrategyGEMM},
		{"1x1 strided", strided, StrategyConv},
		{"1x1 padded", padded, StrategyConv},
		{"3x1", conv(3, 1, 1, 8, 8), StrategyConv},
		{"7x7", conv(7, 7, 1, 3, 64), StrategyConv},
	}
	cfg := quietConfig(testParams())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := cfg.Resolve(tt.p)
			require.NoError(t, err)
			if g.Strategy() != tt.want {
				t.Errorf("Strategy() = %v, want %v", g.Strategy(), tt.want)
			}
		})
	}
}

func TestResolveXZPThreshold(t *testing.T) {
	p := testParams()
	p.XZP.KThreshold = 4
	cfg := quietConfig(p)

	g, err := cfg.Resolve(conv(1, 1, 1, 8, 8))
	require.NoError(t, err)
	if g.Strategy() != StrategyXZPGEMM {
		t.Errorf("8 group inputs: Strategy() = %v, want %v", g.Strategy(), StrategyXZPGEMM)
	}

	g, err = cfg.Resolve(conv(1, 1, 4, 8, 8))
	require.NoError(t, err)
	if g.Strategy() != StrategyGEMM {
		t.Errorf("2 group inputs: Strategy() = %v, want %v", g.Strategy(), StrategyGEMM)
	}

	// Spatial kernels never use the XZP family.
	g, err = cfg.Resolve(conv(3, 3, 1, 8, 8))
	require.NoError(t, err)
	if g.Strategy() != StrategyConv {
		t.Errorf("3x3: Strategy() = %v, want %v", g.Strategy(), StrategyConv)
	}
}

func TestResolveGroupChannels(t *testing.T) {
	cfg := quietConfig(testParams())
	for _, groups := range []int{1, 2, 3, 4, 6, 12} {
		g, err := cfg.Resolve(conv(3, 3, groups, 12, 24))
		require.NoError(t, err)
		if got := g.GroupInputChannels() * groups; got != 12 {
			t.Errorf("groups=%d: GroupInputChannels()*groups = %d, want 12", groups, got)
		}
		if got := g.GroupOutputChannels() * groups; got != 24 {
			t.Errorf("groups=%d: GroupOutputChannels()*groups = %d, want 24", groups, got)
		}
		if g.Params() != conv(3, 3, groups, 12, 24) {
			t.Errorf("groups=%d: Resolve modified the declared params", groups)
		}
	}
}

func TestResolveErrors(t *testing.T) {
	with := func(f func(p *ConvParams)) ConvParams {
		p := conv(3, 3, 1, 4, 4)
		f(&p)
		return p
	}
	tests := []struct {
		name    string
		p       ConvParams
		wantErr error
		wantMsg string
	}{
		{"zero kernel width", with(func(p *ConvParams) { p.KernelDims = [2]int{0, 3} }), ErrInvalidGeometry, "kernel dimensions must be non-zero"},
		{"zero kernel height", with(func(p *ConvParams) { p.KernelDims = [2]int{3, 0} }), ErrInvalidGeometry, "kernel dimensions must be non-zero"},
		// 2^32 x 2^32 on 64-bit platforms, which wraps the tap count to zero.
		{"kernel size overflow", with(func(p *ConvParams) { p.KernelDims = [2]int{1 << (bits.UintSize / 2), 1 << (bits.UintSize / 2)} }), ErrInvalidGeometry, "kernel dimensions overflow"},
		{"kernel size overflow one axis", with(func(p *ConvParams) { p.KernelDims = [2]int{math.MaxInt / 2, 3} }), ErrInvalidGeometry, "kernel dimensions overflow"},
		{"zero subsampling", with(func(p *ConvParams) { p.SubsamplingDims = [2]int{1, 0} }), ErrInvalidGeometry, "subsampling dimensions must be non-zero"},
		{"zero dilation", with(func(p *ConvParams) { p.Dilation = [2]int{0, 1} }), ErrInvalidGeometry, "dilation dimensions must be non-zero"},
		{"zero scale", with(func(p *ConvParams) { p.KernelScale = 0 }), ErrInvalidScale, "scale must be finite and positive"},
		{"negative scale", with(func(p *ConvParams) { p.KernelScale = -1 }), ErrInvalidScale, "scale must be finite and positive"},
		{"NaN scale", with(func(p *ConvParams) { p.KernelScale = float32(math.NaN()) }), ErrInvalidScale, "scale must be finite and positive"},
		{"infinite scale", with(func(p *ConvParams) { p.KernelScale = float32(math.Inf(1)) }), ErrInvalidScale, "scale must be finite and positive"},
		{"subnormal scale", with(func(p *ConvParams) { p.KernelScale = math.SmallestNonzeroFloat32 }), ErrInvalidScale, "scale must be finite and positive"},
		{"negative padding", with(func(p *ConvParams) { p.Padding = [4]int{0, -1, 0, 0} }), ErrInvalidGeometry, "padding must be non-negative"},
		{"zero groups", with(func(p *ConvParams) { p.Groups = 0 }), ErrInvalidGeometry, "group count must be positive"},
		{"zero channels", with(func(p *ConvParams) { p.OutputChannels = 0 }), ErrInvalidGeometry, "channel counts must be positive"},
		{"indivisible inputs", with(func(p *ConvParams) { p.Groups = 4; p.InputChannels = 6; p.OutputChannels = 8 }), ErrInvalidGeometry, "not divisible by 4 groups"},
		{"indivisible outputs", with(func(p *ConvParams) { p.Groups = 2; p.OutputChannels = 3 }), ErrInvalidGeometry, "not divisible by 2 groups"},
		{"inverted output range", with(func(p *ConvParams) { p.OutputMin, p.OutputMax = 10, 5 }), ErrInvalidGeometry, "output min must not exceed output max"},
		// Kernel dimensions are checked before the scale.
		{"zero kernel and scale", with(func(p *ConvParams) { p.KernelDims = [2]int{0, 0}; p.KernelScale = 0 }), ErrInvalidGeometry, "kernel dimensions"},
	}
	cfg := quietConfig(testParams())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := cfg.Resolve(tt.p)
			require.ErrorIs(t, err, tt.wantErr)
			require.ErrorContains(t, err, tt.wantMsg)
			if g != (Geometry{}) {
				t.Errorf("Resolve returned %+v with an error, want the zero Geometry", g)
			}
		})
	}
}

func TestGeometryParamsIsACopy(t *testing.T) {
	cfg := quietConfig(testParams())
	g, err := cfg.Resolve(conv(1, 1, 2, 4, 4))
	require.NoError(t, err)

	p := g.Params()
	p.Groups = 1
	p.InputChannels = 64
	if g.Params() != conv(1, 1, 2, 4, 4) {
		t.Errorf("changing the returned params changed the geometry: %+v", g.Params())
	}
	if g.GroupInputChannels() != 2 || g.KernelSize() != 1 {
		t.Errorf("GroupInputChannels() = %d, KernelSize() = %d, want 2, 1", g.GroupInputChannels(), g.KernelSize())
	}
}

func TestResolveInvalidParams(t *testing.T) {
	_, err := quietConfig(qnn.Params{}).Resolve(conv(1, 1, 1, 8, 8))
	require.ErrorIs(t, err, qnn.ErrInvalidParams)
}

func TestResolveLogsFailure(t *testing.T) {
	cfg, logs := capturingConfig(testParams())
	p := conv(3, 3, 1, 4, 4)
	p.KernelScale = 0
	_, err := cfg.Resolve(p)
	require.Error(t, err)

	out := logs.String()
	if !strings.Contains(out, "level=ERROR") || !strings.Contains(out, "failed to create convolution") {
		t.Errorf("expected an error record, got %q", out)
	}
	if !strings.Contains(out, "kernel=3x3") {
		t.Errorf("expected the kernel dimensions in the record, got %q", out)
	}
}

func TestResolveAdvisories(t *testing.T) {
	tests := []struct {
		name   string
		modify func(p *ConvParams)
		want   []string
	}{
		{
			name:   "subsampling larger than kernel",
			modify: func(p *ConvParams) { p.KernelDims = [2]int{1, 1}; p.SubsamplingDims = [2]int{3, 3} },
			want: []string{
				"height subsampling is greater than kernel height",
				"width subsampling is greater than kernel width",
			},
		},
		{
			name:   "padding as large as kernel",
			modify: func(p *ConvParams) { p.Padding = [4]int{3, 3, 3, 3} },
			want: []string{
				"input top padding is greater or equal to kernel height",
				"input bottom padding is greater or equal to kernel height",
				"input left padding is greater or equal to kernel width",
				"input right padding is greater or equal to kernel width",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, logs := capturingConfig(testParams())
			p := conv(3, 3, 1, 4, 4)
			tt.modify(&p)
			g, err := cfg.Resolve(p)
			require.NoError(t, err)
			if g.Strategy() != StrategyConv {
				t.Errorf("Strategy() = %v, want %v", g.Strategy(), StrategyConv)
			}
			out := logs.String()
			for _, msg := range tt.want {
				if !strings.Contains(out, msg) {
					t.Errorf("missing advisory %q in %q", msg, out)
				}
			}
			if strings.Contains(out, "level=ERROR") {
				t.Errorf("advisories must not be errors: %q", out)
			}
		})
	}

	// An efficient shape logs nothing at info level.
	cfg, logs := capturingConfig(testParams())
	_, err := cfg.Resolve(conv(3, 3, 1, 4, 4))
	require.NoError(t, err)
	if strings.Contains(logs.String(), "inefficiency") {
		t.Errorf("unexpected advisory: %q", logs.String())
	}
}

func TestStrategyString(t *testing.T) {
	want := map[Strategy]string{
		StrategyNone:    "none",
		StrategyGEMM:    "gemm",
		StrategyXZPGEMM: "xzp_gemm",
		StrategyConv:    "conv",
		StrategyDWConv:  "dwconv",
		Strategy(99):    "unknown",
	}
	for s, name := range want {
		if s.String() != name {
			t.Errorf("Strategy(%d).String() = %q, want %q", int(s), s.String(), name)
		}
	}
}

func TestValidScale(t *testing.T) {
	valid := []float32{math.SmallestNonzeroFloat32 * (1 << 23), 1e-30, 0.02, 1, math.MaxFloat32}
	for _, s := range valid {
		if !validScale(s) {
			t.Errorf("validScale(%g) = false, want true", s)
		}
	}
	invalid := []float32{0, float32(math.Copysign(0, -1)), -0.5, math.SmallestNonzeroFloat32, float32(math.Inf(1)), float32(math.Inf(-1)), float32(math.NaN())}
	for _, s := range invalid {
		if validScale(s) {
			t.Errorf("validScale(%g) = true, want false", s)
		}
	}
}
