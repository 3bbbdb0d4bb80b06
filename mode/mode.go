package mode

import (
	"fmt"
	"strings"
)

// Mode is the operating mode of the indexing and retrieval stack.
type Mode int

const (
	// Eco minimizes memory: serial embedding, small chunks, binary vectors.
	Eco Mode = iota
	// Balanced is the middle ground: small batches, binary vectors.
	Balanced
	// Performance maximizes quality: large batches, full float32 vectors.
	Performance
)

// Settings is the fixed configuration a mode carries.
type Settings struct {
	// BatchSize is the number of chunks embedded per service call.
	BatchSize int
	// ChunkSize is the target chunk length in bytes.
	ChunkSize int
	// ChunkOverlap is the number of bytes shared between adjacent chunks.
	ChunkOverlap int
	// Quantized selects binary (sign-bit) vector storage.
	Quantized bool
}

var settingsTable = map[Mode]Settings{
	Eco:         {BatchSize: 1, ChunkSize: 512, ChunkOverlap: 50, Quantized: true},
	Balanced:    {BatchSize: 4, ChunkSize: 1000, ChunkOverlap: 100, Quantized: true},
	Performance: {BatchSize: 16, ChunkSize: 1000, ChunkOverlap: 100, Quantized: false},
}

// Settings returns the fixed configuration for the mode.
func (m Mode) Settings() Settings {
	return settingsTable[m]
}

// Valid reports whether m is one of the three defined modes.
func (m Mode) Valid() bool {
	_, ok := settingsTable[m]
	return ok
}

func (m Mode) String() string {
	switch m {
	case Eco:
		return "eco"
	case Balanced:
		return "balanced"
	case Performance:
		return "performance"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode converts a user-supplied mode name. Unknown names are rejected
// here at the boundary rather than deep in the pipeline.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "eco":
		return Eco, nil
	case "balanced":
		return Balanced, nil
	case "performance":
		return Performance, nil
	default:
		return Eco, fmt.Errorf("unknown mode %q (want eco, balanced, or performance)", s)
	}
}
