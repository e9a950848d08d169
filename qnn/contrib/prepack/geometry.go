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
	"fmt"
	"math"
)

// Strategy is the family of micro-kernels, and therefore the packed layout,
// chosen for an operator.
type Strategy int

const (
	// StrategyNone is the zero value; no packer accepts it.
	StrategyNone Strategy = iota

	// StrategyGEMM is the dense-matrix kernel for 1x1 unstrided, unpadded
	// convolutions.
	StrategyGEMM

	// StrategyXZPGEMM is the dense-matrix kernel with a transformed zero
	// point. Only selected when a tile table lowers XZP.KThreshold.
	StrategyXZPGEMM

	// StrategyConv is the general spatial convolution kernel.
	StrategyConv

	// StrategyDWConv is the depthwise kernel for 3x3 and 5x5 kernels with one
	// channel per group.
	StrategyDWConv
)

// String returns a human-readable name for the strategy.
func (s Strategy) String() string {
	switch s {
	case StrategyNone:
		return "none"
	case StrategyGEMM:
		return "gemm"
	case StrategyXZPGEMM:
		return "xzp_gemm"
	case StrategyConv:
		return "conv"
	case StrategyDWConv:
		return "dwconv"
	default:
		return "unknown"
	}
}

// ConvParams is the declared shape of a quantized convolution.
type ConvParams struct {
	KernelDims      [2]int // kernel width, height
	SubsamplingDims [2]int // stride width, height
	Dilation        [2]int // dilation width, height
	Padding         [4]int // input padding top, left, bottom, right

	Groups         int
	InputChannels  int
	OutputChannels int

	KernelZeroPoint uint8
	KernelScale     float32
	OutputMin       uint8
	OutputMax       uint8
}

// Geometry is a validated ConvParams with its derived per-group channel
// counts and strategy. Obtain one from Config.Resolve; its fields cannot be
// changed afterwards.
type Geometry struct {
	params ConvParams

	strategy            Strategy
	groupInputChannels  int
	groupOutputChannels int
}

// Params returns a copy of the declared parameters the geometry was resolved
// from.
func (g Geometry) Params() ConvParams { return g.params }

// Strategy returns the packing strategy chosen for the geometry.
func (g Geometry) Strategy() Strategy { return g.strategy }

// GroupInputChannels returns the input channels of one group.
func (g Geometry) GroupInputChannels() int { return g.groupInputChannels }

// GroupOutputChannels returns the output channels of one group.
func (g Geometry) GroupOutputChannels() int { return g.groupOutputChannels }

// KernelSize returns the number of kernel taps, width * height.
func (g Geometry) KernelSize() int { return g.params.KernelDims[0] * g.params.KernelDims[1] }

// AnyPadding reports whether any side of the input is padded.
func (g Geometry) AnyPadding() bool {
	return g.params.Padding != [4]int{}
}

// Resolve validates p and derives its per-group channels and strategy.
//
// Every rejection is logged at error level with the offending values and
// returned as ErrInvalidGeometry or ErrInvalidScale. Shapes that are valid
// but wasteful (subsampling larger than the kernel, padding at least as large
// as the kernel) are logged at info level and otherwise accepted.
func (c Config) Resolve(p ConvParams) (Geometry, error) {
	log := c.logger()
	kw, kh := p.KernelDims[0], p.KernelDims[1]
	sw, sh := p.SubsamplingDims[0], p.SubsamplingDims[1]
	top, left, bottom, right := p.Padding[0], p.Padding[1], p.Padding[2], p.Padding[3]

	fail := func(err error) (Geometry, error) {
		log.Error("failed to create convolution", "kernel", dims(p.KernelDims), "groups", p.Groups,
			"input_channels", p.InputChannels, "output_channels", p.OutputChannels, "error", err)
		return Geometry{}, err
	}

	if err := c.Params.Validate(); err != nil {
		return fail(err)
	}
	if kw <= 0 || kh <= 0 {
		return fail(fmt.Errorf("%w: %dx%d kernel: kernel dimensions must be non-zero", ErrInvalidGeometry, kw, kh))
	}
	if _, ok := mulInt(kw, kh); !ok {
		return fail(fmt.Errorf("%w: %dx%d kernel: kernel dimensions overflow the kernel size", ErrInvalidGeometry, kw, kh))
	}
	if sw <= 0 || sh <= 0 {
		return fail(fmt.Errorf("%w: %dx%d subsampling: subsampling dimensions must be non-zero", ErrInvalidGeometry, sw, sh))
	}
	if p.Dilation[0] <= 0 || p.Dilation[1] <= 0 {
		return fail(fmt.Errorf("%w: %dx%d dilation: dilation dimensions must be non-zero", ErrInvalidGeometry, p.Dilation[0], p.Dilation[1]))
	}
	if !validScale(p.KernelScale) {
		return fail(fmt.Errorf("%w: %.7g kernel scale: scale must be finite and positive", ErrInvalidScale, p.KernelScale))
	}
	if top < 0 || left < 0 || bottom < 0 || right < 0 {
		return fail(fmt.Errorf("%w: %d+%dx%d+%d padding: padding must be non-negative", ErrInvalidGeometry, top, bottom, left, right))
	}
	if p.Groups <= 0 {
		return fail(fmt.Errorf("%w: %d groups: group count must be positive", ErrInvalidGeometry, p.Groups))
	}
	if p.InputChannels <= 0 || p.OutputChannels <= 0 {
		return fail(fmt.Errorf("%w: %d input and %d output channels: channel counts must be positive",
			ErrInvalidGeometry, p.InputChannels, p.OutputChannels))
	}
	if p.InputChannels%p.Groups != 0 || p.OutputChannels%p.Groups != 0 {
		return fail(fmt.Errorf("%w: %d input and %d output channels are not divisible by %d groups",
			ErrInvalidGeometry, p.InputChannels, p.OutputChannels, p.Groups))
	}
	if p.OutputMin > p.OutputMax {
		return fail(fmt.Errorf("%w: [%d, %d] output range: output min must not exceed output max",
			ErrInvalidGeometry, p.OutputMin, p.OutputMax))
	}

	if sh > kh {
		log.Info("inefficiency in convolution: height subsampling is greater than kernel height; subsampling should be performed before the convolution",
			"kernel", dims(p.KernelDims), "subsampling", dims(p.SubsamplingDims))
	}
	if sw > kw {
		log.Info("inefficiency in convolution: width subsampling is greater than kernel width; subsampling should be performed before the convolution",
			"kernel", dims(p.KernelDims), "subsampling", dims(p.SubsamplingDims))
	}
	if top >= kh {
		log.Info("inefficiency in convolution: input top padding is greater or equal to kernel height",
			"kernel", dims(p.KernelDims), "padding_top", top, "padding_bottom", bottom)
	}
	if bottom >= kh {
		log.Info("inefficiency in convolution: input bottom padding is greater or equal to kernel height",
			"kernel", dims(p.KernelDims), "padding_top", top, "padding_bottom", bottom)
	}
	if right >= kw {
		log.Info("inefficiency in convolution: input right padding is greater or equal to kernel width",
			"kernel", dims(p.KernelDims), "padding_left", left, "padding_right", right)
	}
	if left >= kw {
		log.Info("inefficiency in convolution: input left padding is greater or equal to kernel width",
			"kernel", dims(p.KernelDims), "padding_left", left, "padding_right", right)
	}

	g := Geometry{
		params:              p,
		groupInputChannels:  p.InputChannels / p.Groups,
		groupOutputChannels: p.OutputChannels / p.Groups,
	}
	g.strategy = c.classify(g)
	return g, nil
}

// classify picks the strategy from the shape alone; weight values are never
// inspected. The first matching rule wins.
func (c Config) classify(g Geometry) Strategy {
	kernelSize := g.KernelSize()
	switch {
	case (kernelSize == 9 || kernelSize == 25) &&
		g.groupInputChannels == 1 && g.groupOutputChannels == 1 && g.params.Groups > 1:
		return StrategyDWConv
	case kernelSize == 1 && g.params.SubsamplingDims == [2]int{1, 1} && !g.AnyPadding():
		if g.groupInputChannels >= c.Params.XZP.KThreshold {
			return StrategyXZPGEMM
		}
		return StrategyGEMM
	default:
		return StrategyConv
	}
}

// validScale reports whether s is positive and normal: not zero, subnormal,
// infinite or NaN.
func validScale(s float32) bool {
	if s <= 0 {
		return false
	}
	exp := math.Float32bits(s) >> 23 & 0xFF
	return exp != 0 && exp != 0xFF
}

func dims(d [2]int) string {
	return fmt.Sprintf("%dx%d", d[0], d[1])
}
