package dense

import "errors"

var (
	// ErrUnsupportedConversion indicates a binary-to-float conversion request.
	// Quantization discards magnitudes, so the float vectors cannot be
	// reconstructed without re-embedding.
	ErrUnsupportedConversion = errors.New("binary to float conversion is not supported")
)
