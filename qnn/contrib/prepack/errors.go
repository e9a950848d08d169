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

import "errors"

// Errors returned by Resolve and the packers. They are fatal configuration
// errors: retrying with the same input fails the same way.
var (
	// ErrInvalidGeometry reports a convolution shape the packers cannot handle.
	ErrInvalidGeometry = errors.New("invalid convolution geometry")

	// ErrInvalidScale reports a kernel scale that is not a positive normal number.
	ErrInvalidScale = errors.New("invalid kernel scale")

	// ErrAllocation reports a packed buffer whose size overflows or exceeds
	// the configured limit.
	ErrAllocation = errors.New("packed weight allocation failed")

	// ErrShortInput reports kernel or bias data smaller than the geometry needs.
	ErrShortInput = errors.New("weight or bias data too short")
)

// Must returns v, or panics with err. It is for callers that treat
// configuration errors as fatal.
func Must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}
