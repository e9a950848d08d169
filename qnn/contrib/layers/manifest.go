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
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ajroetker/go-qnnpack/qnn/contrib/prepack"
)

// Manifest describes a model's quantized layers on disk. Kernel files hold
// raw uint8 weights; bias files hold little-endian int32 words. Paths are
// relative to the manifest's directory.
//
//	{
//	  "layers": [
//	    {"name": "conv1", "kind": "conv", "kernel": [3, 3], "groups": 1,
//	     "input_channels": 3, "output_channels": 16,
//	     "kernel_zero_point": 128, "kernel_scale": 0.02,
//	     "kernel_file": "conv1.u8", "bias_file": "conv1.i32"},
//	    {"name": "fc", "kind": "linear", "input_channels": 1024,
//	     "output_channels": 10, "kernel_zero_point": 127,
//	     "kernel_scale": 0.004, "kernel_file": "fc.u8"}
//	  ]
//	}
type Manifest struct {
	Layers []ManifestLayer `json:"layers"`
}

// ManifestLayer is one entry of a Manifest. Omitted stride and dilation
// default to 1x1, omitted groups to 1 and omitted output_max to 255.
type ManifestLayer struct {
	Name string `json:"name"`
	Kind Kind   `json:"kind"`

	Kernel   [2]int `json:"kernel,omitempty"`
	Stride   [2]int `json:"stride,omitempty"`
	Dilation [2]int `json:"dilation,omitempty"`
	Padding  [4]int `json:"padding,omitempty"`
	Groups   int    `json:"groups,omitempty"`

	InputChannels   int     `json:"input_channels"`
	OutputChannels  int     `json:"output_channels"`
	KernelZeroPoint uint8   `json:"kernel_zero_point"`
	KernelScale     float32 `json:"kernel_scale"`
	OutputMin       uint8   `json:"output_min,omitempty"`
	OutputMax       *uint8  `json:"output_max,omitempty"`

	KernelFile string `json:"kernel_file"`
	BiasFile   string `json:"bias_file,omitempty"`
}

// LoadManifest reads the manifest at path and the weight files it names.
func LoadManifest(path string) ([]Layer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var m Manifest
	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	layers := make([]Layer, 0, len(m.Layers))
	for _, ml := range m.Layers {
		l, err := ml.load(dir)
		if err != nil {
			return nil, fmt.Errorf("manifest %s: layer %q: %w", path, ml.Name, err)
		}
		layers = append(layers, l)
	}
	return layers, nil
}

func (ml ManifestLayer) load(dir string) (Layer, error) {
	if ml.Name == "" {
		return Layer{}, errors.New("missing name")
	}
	if ml.KernelFile == "" {
		return Layer{}, errors.New("missing kernel_file")
	}

	l := Layer{
		Name:            ml.Name,
		Kind:            ml.Kind,
		InputChannels:   ml.InputChannels,
		OutputChannels:  ml.OutputChannels,
		KernelZeroPoint: ml.KernelZeroPoint,
		KernelScale:     ml.KernelScale,
	}
	if ml.Kind == KindConv {
		l.Conv = ml.convParams()
	}

	kernel, err := os.ReadFile(resolvePath(dir, ml.KernelFile))
	if err != nil {
		return Layer{}, err
	}
	l.Kernel = kernel

	if ml.BiasFile != "" {
		raw, err := os.ReadFile(resolvePath(dir, ml.BiasFile))
		if err != nil {
			return Layer{}, err
		}
		if l.Bias, err = DecodeBias(raw); err != nil {
			return Layer{}, fmt.Errorf("%s: %w", ml.BiasFile, err)
		}
	}
	return l, nil
}

func (ml ManifestLayer) convParams() prepack.ConvParams {
	p := prepack.ConvParams{
		KernelDims:      ml.Kernel,
		SubsamplingDims: ml.Stride,
		Dilation:        ml.Dilation,
		Padding:         ml.Padding,
		Groups:          ml.Groups,
		InputChannels:   ml.InputChannels,
		OutputChannels:  ml.OutputChannels,
		KernelZeroPoint: ml.KernelZeroPoint,
		KernelScale:     ml.KernelScale,
		OutputMin:       ml.OutputMin,
		OutputMax:       255,
	}
	if p.SubsamplingDims == [2]int{} {
		p.SubsamplingDims = [2]int{1, 1}
	}
	if p.Dilation == [2]int{} {
		p.Dilation = [2]int{1, 1}
	}
	if p.Groups == 0 {
		p.Groups = 1
	}
	if ml.OutputMax != nil {
		p.OutputMax = *ml.OutputMax
	}
	return p
}

func resolvePath(dir, name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(dir, name)
}

// DecodeBias decodes little-endian int32 bias words.
func DecodeBias(raw []byte) ([]int32, error) {
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("bias data is %d bytes, not a multiple of 4", len(raw))
	}
	bias := make([]int32, len(raw)/4)
	for i := range bias {
		bias[i] = int32(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return bias, nil
}

// EncodeBias encodes bias as little-endian int32 words.
func EncodeBias(bias []int32) []byte {
	raw := make([]byte, 0, 4*len(bias))
	for _, b := range bias {
		raw = binary.LittleEndian.AppendUint32(raw, uint32(b))
	}
	return raw
}
