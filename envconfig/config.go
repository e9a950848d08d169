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

// Package envconfig reads the QNN_* environment variables that configure
// weight packing. Getters are evaluated on every call so tests can use
// t.Setenv.
package envconfig

import (
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/ajroetker/go-qnnpack/internal/logutil"
)

// Var returns an environment variable stripped of leading and trailing quotes or spaces.
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}

// BoolWithDefault returns a getter for a boolean variable. A set but
// unparsable value counts as true.
func BoolWithDefault(k string) func(defaultValue bool) bool {
	return func(defaultValue bool) bool {
		if s := Var(k); s != "" {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return true
			}
			return b
		}
		return defaultValue
	}
}

// Bool returns a getter for a boolean variable that defaults to false.
func Bool(k string) func() bool {
	withDefault := BoolWithDefault(k)
	return func() bool {
		return withDefault(false)
	}
}

// String returns a getter for a string variable.
func String(s string) func() string {
	return func() string {
		return Var(s)
	}
}

// Uint returns a getter for an unsigned integer variable.
func Uint(key string, defaultValue uint) func() uint {
	return func() uint {
		if s := Var(key); s != "" {
			if n, err := strconv.ParseUint(s, 10, 64); err != nil {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return uint(n)
			}
		}
		return defaultValue
	}
}

// Uint64 returns a getter for a 64-bit unsigned integer variable.
func Uint64(key string, defaultValue uint64) func() uint64 {
	return func() uint64 {
		if s := Var(key); s != "" {
			if n, err := strconv.ParseUint(s, 10, 64); err != nil {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return n
			}
		}
		return defaultValue
	}
}

var (
	// NoSIMD forces the scalar dispatch level and therefore the scalar tile table.
	NoSIMD = Bool("QNN_NO_SIMD")
	// TileParams names a built-in tile table that overrides CPU detection.
	TileParams = String("QNN_TILE_PARAMS")
	// MaxPackedBytes caps a single packed weight buffer. 0 means no cap.
	MaxPackedBytes = Uint64("QNN_MAX_PACKED_BYTES", 0)
	// NumParallel bounds how many layers are packed concurrently at model load.
	NumParallel = Uint("QNN_NUM_PARALLEL", uint(max(runtime.GOMAXPROCS(0)-1, 1)))
)

// LogLevel returns the log level from QNN_DEBUG: unset or false is info,
// true or 1 is debug, 2 and above is trace.
func LogLevel() slog.Level {
	level := slog.LevelInfo
	if s := Var("QNN_DEBUG"); s != "" {
		if b, _ := strconv.ParseBool(s); b {
			level = slog.LevelDebug
		} else if i, _ := strconv.ParseInt(s, 10, 64); i != 0 {
			level = slog.Level(i * -4)
		}
	}
	if level < logutil.LevelTrace {
		level = logutil.LevelTrace
	}
	return level
}

// EnvVar describes one configuration variable.
type EnvVar struct {
	Name        string
	Value       any
	Description string
}

// AsMap returns every configuration variable with its current value.
func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"QNN_DEBUG":            {"QNN_DEBUG", LogLevel(), "Show additional debug information (e.g. QNN_DEBUG=1, QNN_DEBUG=2 for trace)"},
		"QNN_NO_SIMD":          {"QNN_NO_SIMD", NoSIMD(), "Use the scalar dispatch level and tile table"},
		"QNN_TILE_PARAMS":      {"QNN_TILE_PARAMS", TileParams(), "Built-in tile table to use instead of CPU detection (neon64, neon32, sse2, scalar)"},
		"QNN_MAX_PACKED_BYTES": {"QNN_MAX_PACKED_BYTES", MaxPackedBytes(), "Largest packed weight buffer to allocate, 0 for no limit"},
		"QNN_NUM_PARALLEL":     {"QNN_NUM_PARALLEL", NumParallel(), "Maximum number of layers packed concurrently"},
	}
}

// Values returns the configuration as strings keyed by variable name.
func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = stringValue(v.Value)
	}
	return vals
}

func stringValue(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case uint:
		return strconv.FormatUint(uint64(v), 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case slog.Level:
		return v.String()
	default:
		return ""
	}
}
