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

// Package prepack turns raw quantized convolution and fully-connected
// weights into the packed buffers the quantized micro-kernels read.
//
// Packing is done once per operator, at model load time:
//
//	cfg := prepack.DefaultConfig()
//	g, err := cfg.Resolve(prepack.ConvParams{
//		KernelDims:      [2]int{3, 3},
//		SubsamplingDims: [2]int{1, 1},
//		Dilation:        [2]int{1, 1},
//		Groups:          32,
//		InputChannels:   32,
//		OutputChannels:  32,
//		KernelZeroPoint: 128,
//		KernelScale:     0.02,
//		OutputMax:       255,
//	})
//	if err != nil {
//		return err
//	}
//	w, err := cfg.NewConvWeights(g, kernel, bias)
//	if err != nil {
//		return err
//	}
//	defer w.Close()
//
// Resolve classifies the geometry into one of four strategies (dense matrix,
// zero-point-transformed dense matrix, general convolution, depthwise) and the
// packer lays the weights out for that strategy using the Config's tile
// table. The compute kernels must be given the same geometry and table.
//
// All errors are configuration errors: they are logged and returned, and
// retrying cannot succeed. Use Must to turn them into panics.
package prepack
