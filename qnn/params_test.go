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
	"testing"
)

func TestBuiltinParamsValid(t *testing.T) {
	for _, p := range BuiltinParams() {
		if err := p.Validate(); err != nil {
			t.Errorf("%s: %v", p.Name, err)
		}
	}
}

func TestParamsValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Params)
	}{
		{"zero NR", func(p *Params) { p.Conv.NR = 0 }},
		{"negative MR", func(p *Params) { p.Conv.MR = -1 }},
		{"NR not pow2", func(p *Params) { p.Conv.NR = 6 }},
		{"KR not pow2", func(p *Params) { p.Conv.KR = 3 }},
		{"CR not pow2", func(p *Params) { p.DW.CR = 12 }},
		{"KC not multiple of KR", func(p *Params) { p.XZP.KR = 4; p.XZP.KC = 2 }},
		{"zero threshold", func(p *Params) { p.XZP.KThreshold = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := ParamsNEON64()
			tt.mutate(&p)
			err := p.Validate()
			if !errors.Is(err, ErrInvalidParams) {
				t.Errorf("Validate() = %v, want ErrInvalidParams", err)
			}
		})
	}
}

func TestParamsByName(t *testing.T) {
	for _, want := range BuiltinParams() {
		got, ok := ParamsByName(want.Name)
		if !ok {
			t.Fatalf("ParamsByName(%q) not found", want.Name)
		}
		if got != want {
			t.Errorf("ParamsByName(%q) = %+v, want %+v", want.Name, got, want)
		}
	}
	if _, ok := ParamsByName("avx512"); ok {
		t.Error("ParamsByName(avx512) found a table, want none")
	}
}

func TestParamsForLevel(t *testing.T) {
	tests := []struct {
		level DispatchLevel
		want  string
	}{
		{DispatchScalar, "scalar"},
		{DispatchSSE2, "sse2"},
		{DispatchAVX2, "sse2"},
		{DispatchNEON32, "neon32"},
		{DispatchNEON64, "neon64"},
		{DispatchLevel(42), "scalar"},
	}
	for _, tt := range tests {
		if got := ParamsForLevel(tt.level).Name; got != tt.want {
			t.Errorf("ParamsForLevel(%v) = %s, want %s", tt.level, got, tt.want)
		}
	}
}

func TestDefaultParamsOverride(t *testing.T) {
	t.Setenv("QNN_TILE_PARAMS", "sse2")
	if got := DefaultParams().Name; got != "sse2" {
		t.Errorf("DefaultParams() with QNN_TILE_PARAMS=sse2 = %s", got)
	}

	t.Setenv("QNN_TILE_PARAMS", "bogus")
	if got, want := DefaultParams().Name, ParamsForLevel(CurrentLevel()).Name; got != want {
		t.Errorf("DefaultParams() with unknown name = %s, want detected %s", got, want)
	}
}

func TestDetectLevelNoSIMD(t *testing.T) {
	if got := detectLevel(true); got != DispatchScalar {
		t.Errorf("detectLevel(noSIMD) = %v, want scalar", got)
	}
}

func TestDispatchLevelString(t *testing.T) {
	names := map[DispatchLevel]string{
		DispatchScalar:    "scalar",
		DispatchSSE2:      "sse2",
		DispatchAVX2:      "avx2",
		DispatchNEON32:    "neon32",
		DispatchNEON64:    "neon64",
		DispatchLevel(-1): "unknown",
	}
	for level, want := range names {
		if got := level.String(); got != want {
			t.Errorf("DispatchLevel(%d).String() = %q, want %q", int(level), got, want)
		}
	}
}

func TestRoundUp(t *testing.T) {
	tests := []struct{ n, q, want int }{
		{0, 8, 0},
		{1, 8, 8},
		{8, 8, 8},
		{9, 8, 16},
		{3, 1, 3},
		{5, 4, 8},
	}
	for _, tt := range tests {
		if got := RoundUp(tt.n, tt.q); got != tt.want {
			t.Errorf("RoundUp(%d, %d) = %d, want %d", tt.n, tt.q, got, tt.want)
		}
	}
}
