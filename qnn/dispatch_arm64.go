//go:build arm64

package qnn

import "golang.org/x/sys/cpu"

// detectLevel reports the AArch64 level.
// ASIMD is part of the ARMv8-A base architecture; it is checked anyway so a
// stripped-down core falls back to scalar.
func detectLevel(noSIMD bool) DispatchLevel {
	if noSIMD || !cpu.ARM64.HasASIMD {
		return DispatchScalar
	}
	return DispatchNEON64
}
