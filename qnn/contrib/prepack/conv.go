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

	"github.com/ajroetker/go-qnnpack/internal/logutil"
	"github.com/ajroetker/go-qnnpack/qnn"
	"github.com/ajroetker/go-qnnpack/qnn/contrib/pack"
)

const biasSize = pack.BiasSize

// ConvWeights owns the packed weights of one convolution operator.
type ConvWeights struct {
	buf      *Buffer
	geometry Geometry
}

// PackedWeights returns the packed buffer bytes, nil after Close.
func (w *ConvWeights) PackedWeights() []byte { return w.buf.Bytes() }

// Buffer returns the packed buffer.
func (w *ConvWeights) Buffer() *Buffer { return w.buf }

// Size returns the packed buffer size in bytes.
func (w *ConvWeights) Size() int { return w.buf.Len() }

// OutputChannels returns the operator's total output channels.
func (w *ConvWeights) OutputChannels() int { return w.geometry.params.OutputChannels }

// Geometry returns the geometry the weights were packed for.
func (w *ConvWeights) Geometry() Geometry { return w.geometry }

// Close releases the packed buffer. Calling Close more than once is safe.
func (w *ConvWeights) Close() error {
	w.buf.Release()
	return nil
}

// convLayout is the sizing of a strategy's packed buffer.
type convLayout struct {
	taps    int // kernel taps per channel row
	kStride int // input channels rounded up to the column tile
	nStride int // output channels (or groups) rounded up to the row tile
	groups  int // number of independently packed regions
}

func (c Config) convLayout(g Geometry) (convLayout, error) {
	if err := c.Params.Validate(); err != nil {
		return convLayout{}, err
	}
	switch g.Strategy() {
	case StrategyDWConv:
		switch g.KernelSize() {
		case 9:
		case 25:
			// The 25-tap passes read kernel columns [0,5).
			if g.params.KernelDims[0] < 5 {
				return convLayout{}, fmt.Errorf("%w: depthwise strategy with %s kernel: 25-tap kernels need at least 5 columns",
					ErrInvalidGeometry, dims(g.params.KernelDims))
			}
		default:
			return convLayout{}, fmt.Errorf("%w: depthwise strategy with %s kernel", ErrInvalidGeometry, dims(g.params.KernelDims))
		}
		// One channel per group: the whole buffer is a single region of
		// groups channels, rounded up to the channel tile.
		return convLayout{
			taps:    g.KernelSize(),
			kStride: 1,
			nStride: qnn.RoundUp(g.params.Groups, c.Params.DW.CR),
			groups:  1,
		}, nil
	case StrategyXZPGEMM:
		return convLayout{
			taps:    g.KernelSize(),
			kStride: qnn.RoundUp(g.GroupInputChannels(), c.Params.XZP.KR),
			nStride: qnn.RoundUp(g.GroupOutputChannels(), c.Params.XZP.NR),
			groups:  g.params.Groups,
		}, nil
	case StrategyGEMM, StrategyConv:
		return convLayout{
			taps:    g.KernelSize(),
			kStride: qnn.RoundUp(g.GroupInputChannels(), c.Params.Conv.KR),
			nStride: qnn.RoundUp(g.GroupOutputChannels(), c.Params.Conv.NR),
			groups:  g.params.Groups,
		}, nil
	default:
		return convLayout{}, fmt.Errorf("%w: unsupported strategy %v", ErrInvalidGeometry, g.Strategy())
	}
}

// ConvPackedSize returns the size in bytes of the buffer NewConvWeights
// would allocate for g.
func (c Config) ConvPackedSize(g Geometry) (int, error) {
	l, err := c.convLayout(g)
	if err != nil {
		return 0, err
	}
	size, ok := packedSize(l.taps, l.kStride, l.nStride, l.groups)
	if !ok {
		return 0, fmt.Errorf("%w: packed size overflows", ErrAllocation)
	}
	return size, nil
}

// NewConvWeights allocates a buffer laid out for g's strategy and packs
// kernel and bias into it.
//
// kernel is [groups][group output channels][kernel height * width * group
// input channels] uint8 values; bias holds one int32 per output channel, or
// is nil for zero bias. Padding introduced by tile rounding reads as the
// kernel zero point, except for the XZP strategy where it reads as zero.
func (c Config) NewConvWeights(g Geometry, kernel []uint8, bias []int32) (*ConvWeights, error) {
	log := c.logger()

	l, err := c.convLayout(g)
	if err != nil {
		log.Error("failed to pack convolution weights", "strategy", g.Strategy(), "error", err)
		return nil, err
	}
	// The packed size bounds the kernel length: once it fits, the length
	// check cannot overflow.
	buf, err := c.allocate(l.taps, l.kStride, l.nStride, l.groups)
	if err != nil {
		return nil, err
	}
	if err := checkInputs(g.params.OutputChannels*g.KernelSize()*g.GroupInputChannels(), g.params.OutputChannels, kernel, bias); err != nil {
		buf.Release()
		log.Error("failed to pack convolution weights", "strategy", g.Strategy(), "error", err)
		return nil, err
	}
	dst := buf.Bytes()

	switch g.Strategy() {
	case StrategyDWConv:
		c.packDepthwise(g, l, kernel, bias, dst)

	case StrategyXZPGEMM:
		// The XZP kernels read padding as zero.
		buf.fill(0)
		nr, kr, sr := c.Params.XZP.NR, c.Params.XZP.KR, c.Params.XZP.KC
		groupSize := len(dst) / l.groups
		gIn, gOut := g.GroupInputChannels(), g.GroupOutputChannels()
		for group := range g.params.Groups {
			pack.SwizzleGEMMWeights(gOut, gIn, nr, kr, sr, 0, g.params.KernelZeroPoint,
				kernel[group*gOut*gIn:], groupBias(bias, group, gOut), dst[group*groupSize:])
			logutil.Trace(log, "packed xzp group", "group", group, "offset", group*groupSize, "bytes", groupSize)
		}

	case StrategyGEMM, StrategyConv:
		buf.fill(g.params.KernelZeroPoint)
		nr, kr := c.Params.Conv.NR, c.Params.Conv.KR
		groupSize := len(dst) / l.groups
		gIn, gOut, ks := g.GroupInputChannels(), g.GroupOutputChannels(), g.KernelSize()
		for group := range g.params.Groups {
			region := dst[group*groupSize:]
			if g.Strategy() == StrategyGEMM {
				pack.GEMMWeights(gOut, gIn, nr, nr, kr, 0, g.params.KernelZeroPoint,
					kernel[group*gOut*gIn:], groupBias(bias, group, gOut), region)
			} else {
				pack.ConvWeights(gOut, ks, gIn, nr, kr, 0, g.params.KernelZeroPoint,
					kernel[group*gOut*ks*gIn:], groupBias(bias, group, gOut), region)
			}
			logutil.Trace(log, "packed group", "strategy", g.Strategy(), "group", group, "offset", group*groupSize, "bytes", groupSize)
		}
	}

	log.Debug("packed convolution weights", "strategy", g.Strategy(), "kernel", dims(g.params.KernelDims),
		"groups", g.params.Groups, "bytes", buf.Len(), "tiles", c.Params.Name)
	return &ConvWeights{buf: buf, geometry: g}, nil
}

// Depthwise 25-tap kernels are packed in three passes over kernel columns
// [0,2), [2,4) and [4,5), each covering every row. The first pass carries
// the bias, so the passes start at byte offsets 0, (10+bias)*cStride and
// (20+bias)*cStride and tile the buffer exactly. The passes assume a 5x5
// kernel: a 25x1 kernel only has its first five columns packed.
var dw25Passes = [3]struct {
	xStart, xEnd int
	offsetTaps   int
	packBias     bool
}{
	{0, 2, 0, true},
	{2, 4, 10, false},
	{4, 5, 20, false},
}

func (c Config) packDepthwise(g Geometry, l convLayout, kernel []uint8, bias []int32, dst []byte) {
	kw, kh := g.params.KernelDims[0], g.params.KernelDims[1]
	cr := c.Params.DW.CR
	cStride := l.nStride

	if g.KernelSize() == 9 {
		pack.DepthwiseWeights(kh, kw, g.params.Groups, cr, 0, g.params.KernelZeroPoint, kernel, bias, dst)
		return
	}
	if kw != 5 || kh != 5 {
		c.logger().Warn("depthwise 25-tap kernel is not 5x5, only columns [0,5) are packed", "kernel", dims(g.params.KernelDims))
	}
	for i, pass := range dw25Passes {
		offset := 0
		if pass.offsetTaps > 0 {
			offset = (pass.offsetTaps + biasSize) * cStride
		}
		pack.DepthwiseDilationWeights(kh, kw, g.params.Groups, cr, 0, kh, pass.xStart, pass.xEnd,
			kernel, bias, dst[offset:], pass.packBias)
		logutil.Trace(c.logger(), "packed depthwise pass", "pass", i, "columns", fmt.Sprintf("[%d,%d)", pass.xStart, pass.xEnd), "offset", offset)
	}
}

// groupBias returns the bias sub-vector of a group, nil when bias is nil.
func groupBias(bias []int32, group, groupOutputChannels int) []int32 {
	if bias == nil {
		return nil
	}
	return bias[group*groupOutputChannels:]
}

func checkInputs(kernelLen, biasLen int, kernel []uint8, bias []int32) error {
	if len(kernel) < kernelLen {
		return fmt.Errorf("%w: kernel has %d bytes, need %d", ErrShortInput, len(kernel), kernelLen)
	}
	if bias != nil && len(bias) < biasLen {
		return fmt.Errorf("%w: bias has %d values, need %d", ErrShortInput, len(bias), biasLen)
	}
	return nil
}
