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

	"github.com/ajroetker/go-qnnpack/qnn"
	"github.com/ajroetker/go-qnnpack/qnn/contrib/pack"
)

// LinearWeights owns the packed weights of one fully-connected operator.
type LinearWeights struct {
	buf            *Buffer
	inputChannels  int
	outputChannels int
}

// PackedWeights returns the packed buffer bytes, nil after Close.
func (w *LinearWeights) PackedWeights() []byte { return w.buf.Bytes() }

// Buffer returns the packed buffer.
func (w *LinearWeights) Buffer() *Buffer { return w.buf }

// Size returns the packed buffer size in bytes.
func (w *LinearWeights) Size() int { return w.buf.Len() }

// InputChannels returns the operator's input channels.
func (w *LinearWeights) InputChannels() int { return w.inputChannels }

// OutputChannels returns the operator's output channels.
func (w *LinearWeights) OutputChannels() int { return w.outputChannels }

// Close releases the packed buffer. Calling Close more than once is safe.
func (w *LinearWeights) Close() error {
	w.buf.Release()
	return nil
}

// LinearPackedSize returns the size in bytes of the buffer NewLinearWeights
// would allocate.
func (c Config) LinearPackedSize(inputChannels, outputChannels int) (int, error) {
	if err := c.Params.Validate(); err != nil {
		return 0, err
	}
	size, ok := packedSize(1,
		qnn.RoundUp(inputChannels, c.Params.Conv.KR),
		qnn.RoundUp(outputChannels, c.Params.Conv.NR), 1)
	if !ok {
		return 0, fmt.Errorf("%w: packed size overflows", ErrAllocation)
	}
	return size, nil
}

// NewLinearWeights packs an [outputChannels][inputChannels] weight matrix
// and its bias with the dense-matrix layout: a single group, no spatial
// kernel, padding filled with the kernel zero point. Bias words are copied
// unchanged; a nil bias packs zeros.
func (c Config) NewLinearWeights(inputChannels, outputChannels int, kernelZeroPoint uint8, kernelScale float32, kernel []uint8, bias []int32) (*LinearWeights, error) {
	log := c.logger()
	fail := func(err error) (*LinearWeights, error) {
		log.Error("failed to create fully connected operator", "input_channels", inputChannels,
			"output_channels", outputChannels, "error", err)
		return nil, err
	}

	if !validScale(kernelScale) {
		return fail(fmt.Errorf("%w: %.7g kernel scale: scale must be finite and positive", ErrInvalidScale, kernelScale))
	}
	if inputChannels <= 0 || outputChannels <= 0 {
		return fail(fmt.Errorf("%w: %d input and %d output channels: channel counts must be positive",
			ErrInvalidGeometry, inputChannels, outputChannels))
	}
	if err := c.Params.Validate(); err != nil {
		return fail(err)
	}

	nr, kr := c.Params.Conv.NR, c.Params.Conv.KR
	buf, err := c.allocate(1, qnn.RoundUp(inputChannels, kr), qnn.RoundUp(outputChannels, nr), 1)
	if err != nil {
		return nil, err
	}
	if err := checkInputs(inputChannels*outputChannels, outputChannels, kernel, bias); err != nil {
		buf.Release()
		return fail(err)
	}
	buf.fill(kernelZeroPoint)
	pack.GEMMWeights(outputChannels, inputChannels, nr, nr, kr, 0, 0, kernel, bias, buf.Bytes())

	log.Debug("packed fully connected weights", "input_channels", inputChannels,
		"output_channels", outputChannels, "bytes", buf.Len(), "tiles", c.Params.Name)
	return &LinearWeights{buf: buf, inputChannels: inputChannels, outputChannels: outputChannels}, nil
}
