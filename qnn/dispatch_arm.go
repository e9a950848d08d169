//go:build arm

package qnn

import "golang.org/x/sys/cpu"

func detectLevel(noSIMD bool) DispatchLevel {
	if noSIMD || !cpu.ARM.HasNEON {
		return DispatchScalar
	}
	return DispatchNEON32
}
