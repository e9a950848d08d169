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


package main

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/ajroetker/go-qnnpack/envconfig"
	"github.com/ajroetker/go-qnnpack/internal/logutil"
	"github.com/ajroetker/go-qnnpack/qnn"
	"github.com/ajroetker/go-qnnpack/qnn/contrib/layers"
	"github.com/ajroetker/go-qnnpack/qnn/contrib/prepack"
)

// NewCLI builds the qnnpack command tree.
func NewCLI() *cobra.Command {
	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:           "qnnpack",
		Short:         "Pack quantized convolution and fully connected weights",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			slog.SetDefault(logutil.NewLogger(cmd.ErrOrStderr(), envconfig.LogLevel()))
		},
	}
	rootCmd.PersistentFlags().String("tiles", "", "Tile table to pack for (neon64, neon32, sse2, scalar); default detects the CPU")

	classifyCmd := &cobra.Command{
		Use:   "classify",
		Short: "Validate a convolution geometry and show its packing strategy",
		Args:  cobra.NoArgs,
		RunE:  ClassifyHandler,
	}
	addGeometryFlags(classifyCmd)

	packConvCmd := &cobra.Command{
		Use:   "pack-conv",
		Short: "Pack convolution weights",
		Args:  cobra.NoArgs,
		RunE:  PackConvHandler,
	}
	addGeometryFlags(packConvCmd)
	addWeightFlags(packConvCmd)

	packLinearCmd := &cobra.Command{
		Use:   "pack-linear",
		Short: "Pack fully connected weights",
		Args:  cobra.NoArgs,
		RunE:  PackLinearHandler,
	}
	packLinearCmd.Flags().Int("in", 0, "Input channels")
	packLinearCmd.Flags().Int("out", 0, "Output channels")
	packLinearCmd.Flags().Uint8("zero-point", 0, "Kernel zero point")
	packLinearCmd.Flags().Float32("scale", 1, "Kernel scale")
	addWeightFlags(packLinearCmd)

	packModelCmd := &cobra.Command{
		Use:   "pack-model MANIFEST",
		Short: "Pack every layer of a model manifest",
		Args:  cobra.ExactArgs(1),
		RunE:  PackModelHandler,
	}
	packModelCmd.Flags().StringP("output", "o", ".", "Output directory, one .bin file per layer")
	packModelCmd.Flags().Int("jobs", 0, "Layers packed concurrently (default QNN_NUM_PARALLEL)")

	paramsCmd := &cobra.Command{
		Use:   "params",
		Short: "List the built-in tile tables",
		Args:  cobra.NoArgs,
		RunE:  ParamsHandler,
	}

	envCmd := &cobra.Command{
		Use:   "env",
		Short: "Show the environment configuration",
		Args:  cobra.NoArgs,
		RunE:  EnvHandler,
	}

	rootCmd.AddCommand(classifyCmd, packConvCmd, packLinearCmd, packModelCmd, paramsCmd, envCmd)
	return rootCmd
}

func addGeometryFlags(cmd *cobra.Command) {
	cmd.Flags().String("kernel", "1x1", "Kernel dimensions, WxH")
	cmd.Flags().String("stride", "1x1", "Subsampling dimensions, WxH")
	cmd.Flags().String("dilation", "1x1", "Dilation dimensions, WxH")
	cmd.Flags().String("padding", "0", "Input padding, one value or top,left,bottom,right")
	cmd.Flags().Int("groups", 1, "Number of groups")
	cmd.Flags().Int("in", 0, "Total input channels")
	cmd.Flags().Int("out", 0, "Total output channels")
	cmd.Flags().Uint8("zero-point", 0, "Kernel zero point")
	cmd.Flags().Float32("scale", 1, "Kernel scale")
	cmd.Flags().Uint8("output-min", 0, "Output clamp minimum")
	cmd.Flags().Uint8("output-max", 255, "Output clamp maximum")
}

func addWeightFlags(cmd *cobra.Command) {
	cmd.Flags().String("kernel-file", "", "Raw uint8 kernel weights")
	cmd.Flags().String("bias-file", "", "Little-endian int32 bias, omit for zero bias")
	cmd.Flags().StringP("output", "o", "", "Packed output file")
	cmd.MarkFlagRequired("kernel-file")
	cmd.MarkFlagRequired("output")
}

// configFromFlags returns the default Config, with the table chosen by
// --tiles when set.
func configFromFlags(cmd *cobra.Command) (prepack.Config, error) {
	cfg := prepack.DefaultConfig()
	name, _ := cmd.Flags().GetString("tiles")
	if name == "" {
		return cfg, nil
	}
	params, ok := qnn.ParamsByName(name)
	if !ok {
		names := lo.Map(qnn.BuiltinParams(), func(p qnn.Params, _ int) string { return p.Name })
		return cfg, fmt.Errorf("unknown tile table %q, want one of %s", name, strings.Join(names, ", "))
	}
	cfg.Params = params
	return cfg, nil
}

func geometryFromFlags(cmd *cobra.Command) (prepack.ConvParams, error) {
	var p prepack.ConvParams
	var err error
	flags := cmd.Flags()

	for _, d := range []struct {
		flag string
		dst  *[2]int
	}{
		{"kernel", &p.KernelDims},
		{"stride", &p.SubsamplingDims},
		{"dilation", &p.Dilation},
	} {
		s, _ := flags.GetString(d.flag)
		if *d.dst, err = parseDims(s); err != nil {
			return p, fmt.Errorf("--%s: %w", d.flag, err)
		}
	}
	s, _ := flags.GetString("padding")
	if p.Padding, err = parsePadding(s); err != nil {
		return p, fmt.Errorf("--padding: %w", err)
	}

	p.Groups, _ = flags.GetInt("groups")
	p.InputChannels, _ = flags.GetInt("in")
	p.OutputChannels, _ = flags.GetInt("out")
	p.KernelZeroPoint, _ = flags.GetUint8("zero-point")
	p.KernelScale, _ = flags.GetFloat32("scale")
	p.OutputMin, _ = flags.GetUint8("output-min")
	p.OutputMax, _ = flags.GetUint8("output-max")
	return p, nil
}

// parseDims parses "WxH", or "N" for NxN.
func parseDims(s string) ([2]int, error) {
	w, h, found := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !found {
		h = w
	}
	width, err := strconv.Atoi(w)
	if err != nil {
		return [2]int{}, fmt.Errorf("invalid dimensions %q", s)
	}
	height, err := strconv.Atoi(h)
	if err != nil {
		return [2]int{}, fmt.Errorf("invalid dimensions %q", s)
	}
	return [2]int{width, height}, nil
}

// parsePadding parses "top,left,bottom,right", or one value for all sides.
func parsePadding(s string) ([4]int, error) {
	fields := strings.Split(s, ",")
	if len(fields) != 1 && len(fields) != 4 {
		return [4]int{}, fmt.Errorf("invalid padding %q, want 1 or 4 values", s)
	}
	var pad [4]int
	for i := range pad {
		v, err := strconv.Atoi(strings.TrimSpace(fields[i%len(fields)]))
		if err != nil {
			return [4]int{}, fmt.Errorf("invalid padding %q", s)
		}
		pad[i] = v
	}
	return pad, nil
}

func readWeights(cmd *cobra.Command) ([]uint8, []int32, error) {
	kernelFile, _ := cmd.Flags().GetString("kernel-file")
	kernel, err := os.ReadFile(kernelFile)
	if err != nil {
		return nil, nil, err
	}
	biasFile, _ := cmd.Flags().GetString("bias-file")
	if biasFile == "" {
		return kernel, nil, nil
	}
	raw, err := os.ReadFile(biasFile)
	if err != nil {
		return nil, nil, err
	}
	bias, err := layers.DecodeBias(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", biasFile, err)
	}
	return kernel, bias, nil
}

// ClassifyHandler prints the strategy and packed size of a geometry.
func ClassifyHandler(cmd *cobra.Command, args []string) error {
	cfg, err := configFromFlags(cmd)
	if err != nil {
		return err
	}
	p, err := geometryFromFlags(cmd)
	if err != nil {
		return err
	}
	g, err := cfg.Resolve(p)
	if err != nil {
		return err
	}
	size, err := cfg.ConvPackedSize(g)
	if err != nil {
		return err
	}

	out := message.NewPrinter(language.English)
	w := cmd.OutOrStdout()
	out.Fprintf(w, "strategy         %s\n", g.Strategy())
	out.Fprintf(w, "group channels   %d in, %d out\n", g.GroupInputChannels(), g.GroupOutputChannels())
	out.Fprintf(w, "packed size      %d bytes\n", size)
	out.Fprintf(w, "tiles            %s\n", cfg.Params.Name)
	return nil
}

// PackConvHandler packs convolution weights into the --output file.
func PackConvHandler(cmd *cobra.Command, args []string) error {
	cfg, err := configFromFlags(cmd)
	if err != nil {
		return err
	}
	p, err := geometryFromFlags(cmd)
	if err != nil {
		return err
	}
	g, err := cfg.Resolve(p)
	if err != nil {
		return err
	}
	kernel, bias, err := readWeights(cmd)
	if err != nil {
		return err
	}
	w, err := cfg.NewConvWeights(g, kernel, bias)
	if err != nil {
		return err
	}
	defer w.Close()
	return writePacked(cmd, w.PackedWeights(), g.Strategy().String())
}

// PackLinearHandler packs fully connected weights into the --output file.
func PackLinearHandler(cmd *cobra.Command, args []string) error {
	cfg, err := configFromFlags(cmd)
	if err != nil {
		return err
	}
	in, _ := cmd.Flags().GetInt("in")
	out, _ := cmd.Flags().GetInt("out")
	zp, _ := cmd.Flags().GetUint8("zero-point")
	scale, _ := cmd.Flags().GetFloat32("scale")
	kernel, bias, err := readWeights(cmd)
	if err != nil {
		return err
	}
	w, err := cfg.NewLinearWeights(in, out, zp, scale, kernel, bias)
	if err != nil {
		return err
	}
	defer w.Close()
	return writePacked(cmd, w.PackedWeights(), "linear")
}

func writePacked(cmd *cobra.Command, data []byte, kind string) error {
	path, _ := cmd.Flags().GetString("output")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	message.NewPrinter(language.English).Fprintf(cmd.OutOrStdout(), "wrote %d bytes of %s weights to %s\n", len(data), kind, path)
	return nil
}

// PackModelHandler packs every layer of a manifest, one file per layer.
func PackModelHandler(cmd *cobra.Command, args []string) error {
	cfg, err := configFromFlags(cmd)
	if err != nil {
		return err
	}
	dir, _ := cmd.Flags().GetString("output")
	jobs, _ := cmd.Flags().GetInt("jobs")

	model, err := layers.LoadManifest(args[0])
	if err != nil {
		return err
	}
	packed, err := layers.PackAll(cmd.Context(), cfg, model, jobs)
	if err != nil {
		return err
	}
	defer layers.CloseAll(packed)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	title := cases.Title(language.English)
	printer := message.NewPrinter(language.English)
	var data [][]string
	for _, p := range packed {
		if err := os.WriteFile(filepath.Join(dir, p.Name+".bin"), p.Weights.PackedWeights(), 0o644); err != nil {
			return err
		}
		data = append(data, []string{p.Name, title.String(string(p.Kind)), p.Strategy.String(), printer.Sprintf("%d", p.Size())})
	}
	data = append(data, []string{"", "", "TOTAL", printer.Sprintf("%d", layers.TotalBytes(packed))})
	renderTable(cmd.OutOrStdout(), []string{"NAME", "KIND", "STRATEGY", "BYTES"}, data)
	return nil
}

// ParamsHandler lists the built-in tile tables, marking the selected one.
func ParamsHandler(cmd *cobra.Command, args []string) error {
	cfg, err := configFromFlags(cmd)
	if err != nil {
		return err
	}
	var data [][]string
	for _, p := range qnn.BuiltinParams() {
		selected := ""
		if p.Name == cfg.Params.Name {
			selected = "*"
		}
		threshold := "off"
		if p.XZP.KThreshold < math.MaxInt {
			threshold = strconv.Itoa(p.XZP.KThreshold)
		}
		data = append(data, []string{
			p.Name,
			fmt.Sprintf("%dx%dx%d", p.Conv.MR, p.Conv.NR, p.Conv.KR),
			fmt.Sprintf("%dx%dx%d/%d", p.XZP.MR, p.XZP.NR, p.XZP.KR, p.XZP.KC),
			threshold,
			strconv.Itoa(p.DW.CR),
			selected,
		})
	}
	renderTable(cmd.OutOrStdout(), []string{"NAME", "CONV MRxNRxKR", "XZP MRxNRxKR/KC", "XZP THRESHOLD", "DW CR", "SELECTED"}, data)
	fmt.Fprintf(cmd.OutOrStdout(), "\ndispatch level: %s\n", qnn.CurrentLevel())
	return nil
}

// EnvHandler prints every environment variable with its effective value.
func EnvHandler(cmd *cobra.Command, args []string) error {
	vars := envconfig.AsMap()
	values := envconfig.Values()
	data := lo.Map(sortedKeys(vars), func(name string, _ int) []string {
		return []string{name, values[name], vars[name].Description}
	})
	renderTable(cmd.OutOrStdout(), []string{"NAME", "VALUE", "DESCRIPTION"}, data)
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := lo.Keys(m)
	slices.Sort(keys)
	return keys
}

func renderTable(w io.Writer, header []string, data [][]string) {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()
}
