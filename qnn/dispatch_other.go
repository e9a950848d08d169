//go:build !amd64 && !arm64 && !arm

package qnn

// Other architectures only have the scalar kernels.
func detectLevel(bool) DispatchLevel {
	return DispatchScalar
}
