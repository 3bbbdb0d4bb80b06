// Copyright 2025 Poiesic Systems
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


package mode

import (
	"fmt"
	"log/slog"
	"sync"
)

// State is a snapshot of the controller's current configuration.
type State struct {
	Mode         Mode
	Dim          int
	Quantized    bool
	BatchSize    int
	AutoDetected bool
	Switching    bool
}

// Transition reports a completed mode change.
type Transition struct {
	Previous Mode
	Current  Mode
}

// SwitchFunc is invoked while a mode change is in flight, before the new
// mode becomes visible. Implementations reconfigure the retrievers (vector
// re-encoding, cache drops). An error aborts the switch.
type SwitchFunc func(previous, next Mode, settings Settings) error

// Controller owns the process-wide mode state. All transitions go through
// it: explicit Set, startup AutoDetect, or HandleOOM during indexing.
type Controller struct {
	mu            sync.Mutex
	mode          Mode
	dim           int
	batchOverride int
	autoDetected  bool
	switching     bool
	overridden    bool
	detector      Detector
	onSwitch      SwitchFunc
	logger        *slog.Logger
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithMode pins the mode explicitly. An explicit mode wins over detection;
// AutoDetect becomes a no-op until Set is called.
func WithMode(m Mode) ControllerOption {
	return func(c *Controller) {
		c.mode = m
		c.overridden = true
	}
}

// WithBatchSize overrides the mode's embedding batch size.
func WithBatchSize(n int) ControllerOption {
	return func(c *Controller) {
		c.batchOverride = n
	}
}

// WithDetector replaces the hardware detector, mainly for tests.
func WithDetector(d Detector) ControllerOption {
	return func(c *Controller) {
		c.detector = d
	}
}

// WithControllerLogger sets a custom logger.
func WithControllerLogger(logger *slog.Logger) ControllerOption {
	return func(c *Controller) {
		c.logger = logger
	}
}

// NewController creates a controller for vectors of the given dimension,
// starting in Balanced unless an explicit mode is injected.
func NewController(dim int, opts ...ControllerOption) *Controller {
	c := &Controller{
		mode:     Balanced,
		dim:      dim,
		detector: NewSystemDetector(),
		logger:   slog.Default().With("component", "mode-controller"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnSwitch registers the reconfiguration hook run during transitions.
func (c *Controller) OnSwitch(fn SwitchFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onSwitch = fn
}

// State returns a snapshot of the current configuration.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		Mode:         c.mode,
		Dim:          c.dim,
		Quantized:    c.mode.Settings().Quantized,
		BatchSize:    c.batchSizeLocked(),
		AutoDetected: c.autoDetected,
		Switching:    c.switching,
	}
}

// Mode returns the current mode.
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Settings returns the current mode's configuration with any injected batch
// override applied.
func (c *Controller) Settings() Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.mode.Settings()
	s.BatchSize = c.batchSizeLocked()
	return s
}

func (c *Controller) batchSizeLocked() int {
	if c.batchOverride > 0 {
		return c.batchOverride
	}
	return c.mode.Settings().BatchSize
}

// Set switches to the requested mode, running the registered switch hook
// while the transition is in flight.
func (c *Controller) Set(m Mode) (Transition, error) {
	if !m.Valid() {
		return Transition{}, fmt.Errorf("invalid mode %v", m)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	t, err := c.switchLocked(m)
	if err != nil {
		return Transition{}, err
	}
	c.autoDetected = false
	c.overridden = true
	return t, nil
}

// AutoDetect re-runs hardware detection and applies the result, unless an
// explicit mode override is in place. Returns the detected mode either way.
func (c *Controller) AutoDetect() (Mode, error) {
	detected, err := c.detector.Detect()
	if err != nil {
		return Eco, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.overridden {
		c.logger.Debug("auto-detection skipped, mode pinned",
			"detected", detected.String(), "pinned", c.mode.String())
		return detected, nil
	}

	if _, err := c.switchLocked(detected); err != nil {
		return detected, err
	}
	c.autoDetected = true
	c.logger.Info("auto-detected operating mode", "mode", detected.String())
	return detected, nil
}

// HandleOOM drops to Eco in response to an out-of-memory event so indexing
// can resume from the last committed chunk. Returns the transition and
// whether a switch actually happened.
func (c *Controller) HandleOOM() (Transition, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mode == Eco {
		return Transition{Previous: Eco, Current: Eco}, false
	}

	t, err := c.switchLocked(Eco)
	if err != nil {
		// Recovery must not strand indexing in a failed switch; force eco
		c.logger.Error("switch hook failed during recovery, forcing eco", "err", err)
		c.mode = Eco
		c.switching = false
		t = Transition{Previous: t.Previous, Current: Eco}
	}
	c.autoDetected = false
	c.logger.Warn("out of memory, downgraded to eco",
		"previous", t.Previous.String())
	return t, true
}

func (c *Controller) switchLocked(next Mode) (Transition, error) {
	previous := c.mode
	t := Transition{Previous: previous, Current: next}
	if previous == next {
		return t, nil
	}

	c.switching = true
	defer func() { c.switching = false }()

	if c.onSwitch != nil {
		settings := next.Settings()
		if c.batchOverride > 0 {
			settings.BatchSize = c.batchOverride
		}
		if err := c.onSwitch(previous, next, settings); err != nil {
			return t, fmt.Errorf("mode switch %s -> %s failed: %w",
				previous.String(), next.String(), err)
		}
	}

	c.mode = next
	c.logger.Info("switched mode", "from", previous.String(), "to", next.String())
	return t, nil
}
