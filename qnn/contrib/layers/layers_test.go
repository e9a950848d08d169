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


package layers

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/ajroetker/go-qnnpack/qnn"
	"github.com/ajroetker/go-qnnpack/qnn/contrib/prepack"
)

func testConfig() prepack.Config {
	cfg := prepack.NewConfig(qnn.Params{
		Name: "test",
		Conv: qnn.GEMMParams{MR: 2, NR: 4, KR: 2},
		XZP:  qnn.XZPParams{MR: 2, NR: 4, KR: 2, KC: 4, KThreshold: math.MaxInt},
		DW:   qnn.DWParams{CR: 4},
	})
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return cfg
}

func ramp(n int) []uint8 {
	k := make([]uint8, n)
	for i := range k {
		k[i] = uint8(i%251 + 1)
	}
	return k
}

func convLayer(name string, kw, kh, groups, in, out int) Layer {
	p := prepack.ConvParams{
		KernelDims:      [2]int{kw, kh},
		SubsamplingDims: [2]int{1, 1},
		Dilation:        [2]int{1, 1},
		Groups:          groups,
		InputChannels:   in,
		OutputChannels:  out,
		KernelZeroPoint: 128,
		KernelScale:     0.1,
		OutputMax:       255,
	}
	return Layer{Name: name, Kind: KindConv, Conv: p, Kernel: ramp(out * kw * kh * in / groups)}
}

func linearLayer(name string, in, out int) Layer {
	bias := make([]int32, out)
	for i := range bias {
		bias[i] = int32(i - 2)
	}
	return Layer{
		Name: name, Kind: KindLinear,
		InputChannels: in, OutputChannels: out,
		KernelZeroPoint: 127, KernelScale: 0.5,
		Kernel: ramp(in * out), Bias: bias,
	}
}

func model() []Layer {
	return []Layer{
		convLayer("stem", 3, 3, 1, 3, 8),
		convLayer("dw1", 3, 3, 8, 8, 8),
		convLayer("pw1", 1, 1, 1, 8, 16),
		convLayer("dw2", 5, 5, 16, 16, 16),
		convLayer("pw2", 1, 1, 2, 16, 16),
		linearLayer("fc", 16, 10),
	}
}

func TestPackAll(t *testing.T) {
	cfg := testConfig()
	layers := model()

	packed, err := PackAll(context.Background(), cfg, layers, 3)
	require.NoError(t, err)
	defer CloseAll(packed)

	require.Equal(t, []string{"stem", "dw1", "pw1", "dw2", "pw2", "fc"}, Names(packed))
	wantStrategies := []prepack.Strategy{
		prepack.StrategyConv, prepack.StrategyDWConv, prepack.StrategyGEMM,
		prepack.StrategyDWConv, prepack.StrategyGEMM, prepack.StrategyGEMM,
	}
	total := 0
	for i, p := range packed {
		if p.Strategy != wantStrategies[i] {
			t.Errorf("%s: Strategy = %v, want %v", p.Name, p.Strategy, wantStrategies[i])
		}

		// Concurrent packing produces the same bytes as packing alone.
		alone, err := Pack(cfg, layers[i])
		require.NoError(t, err)
		if diff := cmp.Diff(alone.Weights.PackedWeights(), p.Weights.PackedWeights()); diff != "" {
			t.Errorf("%s: packed weights mismatch (-alone +batch):\n%s", p.Name, diff)
		}
		alone.Weights.Close()
		total += p.Size()
	}
	require.Equal(t, total, TotalBytes(packed))
}

func TestPackAllStopsOnError(t *testing.T) {
	layers := model()
	bad := convLayer("bad", 3, 3, 1, 3, 8)
	bad.Conv.KernelScale = 0
	layers = append(layers[:2], append([]Layer{bad}, layers[2:]...)...)

	packed, err := PackAll(context.Background(), testConfig(), layers, 1)
	require.ErrorIs(t, err, prepack.ErrInvalidScale)
	require.ErrorContains(t, err, `layer "bad"`)
	require.Nil(t, packed)
}

func TestPackAllCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := PackAll(ctx, testConfig(), model(), 2)
	require.ErrorIs(t, err, context.Canceled)
}

func TestPackAllDuplicateNames(t *testing.T) {
	layers := []Layer{linearLayer("fc", 4, 4), linearLayer("fc", 8, 8)}
	_, err := PackAll(context.Background(), testConfig(), layers, 0)
	require.ErrorContains(t, err, `duplicate layer name "fc"`)
}

func TestPackUnknownKind(t *testing.T) {
	_, err := Pack(testConfig(), Layer{Name: "pool", Kind: "maxpool"})
	require.ErrorIs(t, err, ErrUnknownKind)
}

func TestPackAllManyLayers(t *testing.T) {
	var layers []Layer
	for i := range 64 {
		layers = append(layers, linearLayer(fmt.Sprintf("fc%d", i), i%7+1, i%5+1))
	}
	packed, err := PackAll(context.Background(), testConfig(), layers, 0)
	require.NoError(t, err)
	require.Len(t, packed, 64)

	CloseAll(packed)
	for _, p := range packed {
		if p.Weights.PackedWeights() != nil {
			t.Fatalf("%s: buffer not released by CloseAll", p.Name)
		}
	}
	require.Equal(t, 0, TotalBytes([]Packed{{Name: "empty"}}))
}
