package mode

import (
	"fmt"

	"github.com/shirou/gopsutil/v4/mem"
)

// RAM thresholds for auto-detection.
const (
	ecoThreshold      = 2 << 30 // below 2 GiB available, run eco
	balancedThreshold = 4 << 30 // below 4 GiB available, run balanced
)

// Detector selects an operating mode from the host's resources.
type Detector interface {
	Detect() (Mode, error)
}

// SystemDetector inspects available RAM via gopsutil. Detection is always
// re-run at startup and never persisted from a prior session.
type SystemDetector struct{}

var _ Detector = (*SystemDetector)(nil)

// NewSystemDetector creates a detector backed by host memory statistics.
func NewSystemDetector() *SystemDetector {
	return &SystemDetector{}
}

// Detect maps available RAM onto a mode: <2GiB eco, <4GiB balanced,
// otherwise performance.
func (d *SystemDetector) Detect() (Mode, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return Eco, fmt.Errorf("failed to read memory stats: %w", err)
	}
	return modeForRAM(vm.Available), nil
}

func modeForRAM(available uint64) Mode {
	switch {
	case available < ecoThreshold:
		return Eco
	case available < balancedThreshold:
		return Balanced
	default:
		return Performance
	}
}
