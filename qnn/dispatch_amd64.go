//go:build amd64

package qnn

import "golang.org/x/sys/cpu"

// detectLevel reports the x86-64 level. SSE2 is baseline for all amd64 CPUs.
func detectLevel(noSIMD bool) DispatchLevel {
	switch {
	case noSIMD:
		return DispatchScalar
	case cpu.X86.HasAVX2:
		return DispatchAVX2
	default:
		return DispatchSSE2
	}
}
