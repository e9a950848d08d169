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


// Package layers packs the weights of a whole model at load time, one
// goroutine per operator.
package layers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/ajroetker/go-qnnpack/envconfig"
	"github.com/ajroetker/go-qnnpack/qnn/contrib/prepack"
)

// ErrUnknownKind reports a layer that is neither a convolution nor a
// fully-connected operator.
var ErrUnknownKind = errors.New("unknown layer kind")

// Kind is the operator type of a Layer.
type Kind string

const (
	KindConv   Kind = "conv"
	KindLinear Kind = "linear"
)

// Layer is one operator's raw weights.
type Layer struct {
	Name string
	Kind Kind

	// Conv is the declared geometry of a KindConv layer.
	Conv prepack.ConvParams

	// InputChannels, OutputChannels, KernelZeroPoint and KernelScale
	// describe a KindLinear layer.
	InputChannels   int
	OutputChannels  int
	KernelZeroPoint uint8
	KernelScale     float32

	Kernel []uint8
	Bias   []int32 // nil for zero bias
}

// Weights is the packed form of a layer, a *prepack.ConvWeights or a
// *prepack.LinearWeights.
type Weights interface {
	PackedWeights() []byte
	Size() int
	Close() error
}

// Packed is the result of packing one Layer.
type Packed struct {
	Name     string
	Kind     Kind
	Strategy prepack.Strategy
	Weights  Weights
}

// Size returns the packed size in bytes.
func (p Packed) Size() int { return p.Weights.Size() }

// Pack packs a single layer.
func Pack(cfg prepack.Config, l Layer) (Packed, error) {
	switch l.Kind {
	case KindConv:
		g, err := cfg.Resolve(l.Conv)
		if err != nil {
			return Packed{}, fmt.Errorf("layer %q: %w", l.Name, err)
		}
		w, err := cfg.NewConvWeights(g, l.Kernel, l.Bias)
		if err != nil {
			return Packed{}, fmt.Errorf("layer %q: %w", l.Name, err)
		}
		return Packed{Name: l.Name, Kind: l.Kind, Strategy: g.Strategy(), Weights: w}, nil
	case KindLinear:
		w, err := cfg.NewLinearWeights(l.InputChannels, l.OutputChannels, l.KernelZeroPoint, l.KernelScale, l.Kernel, l.Bias)
		if err != nil {
			return Packed{}, fmt.Errorf("layer %q: %w", l.Name, err)
		}
		return Packed{Name: l.Name, Kind: l.Kind, Strategy: prepack.StrategyGEMM, Weights: w}, nil
	default:
		return Packed{}, fmt.Errorf("layer %q: %w %q", l.Name, ErrUnknownKind, l.Kind)
	}
}

// PackAll packs layers concurrently, at most limit at a time; limit <= 0
// uses QNN_NUM_PARALLEL. Results are in layer order.
//
// The first failure cancels the layers not yet started, releases every
// buffer already packed and is returned.
func PackAll(ctx context.Context, cfg prepack.Config, layers []Layer, limit int) ([]Packed, error) {
	if limit <= 0 {
		limit = max(int(envconfig.NumParallel()), 1)
	}
	if dups := lo.FindDuplicatesBy(layers, func(l Layer) string { return l.Name }); len(dups) > 0 {
		return nil, fmt.Errorf("duplicate layer name %q", dups[0].Name)
	}

	packed := make([]Packed, len(layers))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, l := range layers {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			p, err := Pack(cfg, l)
			if err != nil {
				return err
			}
			packed[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		CloseAll(packed)
		return nil, err
	}

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	log.Debug("packed layers", "layers", len(packed), "bytes", TotalBytes(packed), "parallel", limit)
	return packed, nil
}

// TotalBytes returns the summed packed size of ps.
func TotalBytes(ps []Packed) int {
	return lo.SumBy(ps, func(p Packed) int {
		if p.Weights == nil {
			return 0
		}
		return p.Size()
	})
}

// CloseAll releases every packed buffer in ps. Zero entries are skipped.
func CloseAll(ps []Packed) {
	lo.ForEach(ps, func(p Packed, _ int) {
		if p.Weights != nil {
			p.Weights.Close()
		}
	})
}

// Names returns the layer names of ps, in order.
func Names(ps []Packed) []string {
	return lo.Map(ps, func(p Packed, _ int) string { return p.Name })
}
