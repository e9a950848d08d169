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

// Package pack implements the tiled copies that lay out uint8 weights and
// int32 biases for the quantized micro-kernels.
//
// Each function walks a fixed loop nest over output channel blocks of the
// register tile width and writes bias words and weight bytes into dst.
// Padding positions introduced by rounding to tile widths are skipped, not
// written: callers pre-fill dst with the value padding must read as (the
// kernel zero point, or zero for the XZP kernels).
//
// These are low-level primitives. They panic on short input slices and do
// not bounds-check dst beyond what the Go runtime does; the prepack package
// sizes buffers and calls them.
package pack
