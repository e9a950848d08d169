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
	"log/slog"
	"math"

	"github.com/ajroetker/go-qnnpack/envconfig"
	"github.com/ajroetker/go-qnnpack/qnn"
)

// Config carries what resolving and packing consult: the tile table, the
// logger and the allocation limit. The zero value is not usable; start from
// DefaultConfig or NewConfig.
type Config struct {
	// Params is the tile table. It must be the table the compute kernels use.
	Params qnn.Params

	// Logger receives fatal-error, advisory and trace records.
	// Nil means slog.Default().
	Logger *slog.Logger

	// MaxPackedBytes caps the size of one packed buffer. 0 means no cap.
	MaxPackedBytes int
}

// NewConfig returns a Config using params, the default logger and no
// allocation limit.
func NewConfig(params qnn.Params) Config {
	return Config{Params: params}
}

// DefaultConfig returns a Config for the detected CPU, honoring
// QNN_TILE_PARAMS and QNN_MAX_PACKED_BYTES.
func DefaultConfig() Config {
	limit := envconfig.MaxPackedBytes()
	if limit > math.MaxInt {
		limit = 0
	}
	return Config{
		Params:         qnn.DefaultParams(),
		MaxPackedBytes: int(limit),
	}
}

func (c Config) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

// Resolve validates p and classifies it using DefaultConfig.
func Resolve(p ConvParams) (Geometry, error) {
	return DefaultConfig().Resolve(p)
}

// NewConvWeights packs convolution weights using DefaultConfig.
func NewConvWeights(g Geometry, kernel []uint8, bias []int32) (*ConvWeights, error) {
	return DefaultConfig().NewConvWeights(g, kernel, bias)
}

// NewLinearWeights packs fully-connected weights using DefaultConfig.
func NewLinearWeights(inputChannels, outputChannels int, kernelZeroPoint uint8, kernelScale float32, kernel []uint8, bias []int32) (*LinearWeights, error) {
	return DefaultConfig().NewLinearWeights(inputChannels, outputChannels, kernelZeroPoint, kernelScale, kernel, bias)
}
