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


// Command qnnpack resolves quantized convolution geometries and packs their
// weights into the layouts the quantized micro-kernels read.
//
// Usage:
//
//	qnnpack classify --kernel 3x3 --groups 32 --in 32 --out 32
//	qnnpack pack-conv --kernel 1x1 --in 64 --out 128 --kernel-file w.u8 -o w.bin
//	qnnpack pack-linear --in 1024 --out 10 --kernel-file fc.u8 -o fc.bin
//	qnnpack pack-model model.json -o packed/ --jobs 4
//	qnnpack params
//	qnnpack env
package main

import (
	"context"
	"fmt"
	"os"
)

func main() {
	if err := NewCLI().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
