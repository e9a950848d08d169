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


// Package main prints the CPU features Go detects and the tile table the
// packers select from them.
package main

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/cpu"

	"github.com/ajroetker/go-qnnpack/envconfig"
	"github.com/ajroetker/go-qnnpack/qnn"
)

func main() {
	fmt.Printf("GOOS: %s\n", runtime.GOOS)
	fmt.Printf("GOARCH: %s\n", runtime.GOARCH)
	fmt.Printf("NumCPU: %d\n", runtime.NumCPU())
	fmt.Println()

	level := qnn.CurrentLevel()
	fmt.Printf("Dispatch level: %s\n", level)
	fmt.Printf("Level tile table: %s\n", qnn.ParamsForLevel(level).Name)
	if name := envconfig.TileParams(); name != "" {
		fmt.Printf("QNN_TILE_PARAMS: %s\n", name)
	}
	p := qnn.DefaultParams()
	fmt.Printf("Selected tile table: %s\n", p.Name)
	fmt.Printf("  conv MR=%d NR=%d KR=%d\n", p.Conv.MR, p.Conv.NR, p.Conv.KR)
	fmt.Printf("  xzp  MR=%d NR=%d KR=%d KC=%d KThreshold=%d\n", p.XZP.MR, p.XZP.NR, p.XZP.KR, p.XZP.KC, p.XZP.KThreshold)
	fmt.Printf("  dw   CR=%d\n", p.DW.CR)
	fmt.Println()

	switch runtime.GOARCH {
	case "arm64":
		printARM64Features()
	case "arm":
		printARMFeatures()
	case "amd64":
		printAMD64Features()
	}
}

func printARM64Features() {
	fmt.Println("=== golang.org/x/sys/cpu.ARM64 ===")
	fmt.Printf("  HasASIMD:    %v (NEON baseline)\n", cpu.ARM64.HasASIMD)
	fmt.Printf("  HasASIMDDP:  %v (dot product)\n", cpu.ARM64.HasASIMDDP)
	fmt.Printf("  HasSVE:      %v\n", cpu.ARM64.HasSVE)
	fmt.Printf("  HasSVE2:     %v\n", cpu.ARM64.HasSVE2)
}

func printARMFeatures() {
	fmt.Println("=== golang.org/x/sys/cpu.ARM ===")
	fmt.Printf("  HasNEON:     %v\n", cpu.ARM.HasNEON)
	fmt.Printf("  HasVFPv4:    %v\n", cpu.ARM.HasVFPv4)
}

func printAMD64Features() {
	fmt.Println("=== golang.org/x/sys/cpu.X86 ===")
	fmt.Printf("  HasSSE2:     %v\n", cpu.X86.HasSSE2)
	fmt.Printf("  HasSSSE3:    %v\n", cpu.X86.HasSSSE3)
	fmt.Printf("  HasSSE41:    %v\n", cpu.X86.HasSSE41)
	fmt.Printf("  HasAVX2:     %v\n", cpu.X86.HasAVX2)
	fmt.Printf("  HasAVX512BW: %v\n", cpu.X86.HasAVX512BW)
	fmt.Printf("  HasAVX512VL: %v\n", cpu.X86.HasAVX512VL)
}
