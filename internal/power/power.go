package power

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/smartcrop/sensor-node/internal/clock"
	"github.com/smartcrop/sensor-node/internal/config"
	"github.com/smartcrop/sensor-node/internal/gpio"
	"github.com/smartcrop/sensor-node/internal/model"
)

// Rail is a switched supply line feeding one sensor.
type Rail struct {
	Name string
	Pin  model.GPIOPin
}

// RailsFor derives the sensor supply rails, in declaration order, and the LED lines
// that must be held off.
func RailsFor(cfg *config.Config) (rails, leds []Rail) {
	activeHigh := cfg.Power.ActiveHigh == nil || *cfg.Power.ActiveHigh
	for _, s := range cfg.Sensors {
		if s.PowerPin != nil {
			rails = append(rails, Rail{Name: string(s.Kind), Pin: model.GPIOPin{Number: *s.PowerPin, ActiveHigh: activeHigh}})
		}
		if s.LEDPin != nil {
			leds = append(leds, Rail{Name: string(s.Kind) + ".led", Pin: model.GPIOPin{Number: *s.LEDPin, ActiveHigh: true}})
		}
	}
	return rails, leds
}

// Manager owns the sensor power rails for the life of the process. Sensors without a
// rail are assumed to be always powered.
type Manager struct {
	clock  clock.Clock
	settle time.Duration
	rails  []Rail
}

func NewManager(clk clock.Clock, settle time.Duration) *Manager {
	return &Manager{clock: clk, settle: settle}
}

// Enable drives each rail on and waits the settle interval after every activation so
// the sensor is ready before the bus probes it. A rail that fails to switch is logged
// and skipped.
func (m *Manager) Enable(ctx context.Context, rails []Rail) error {
	for _, r := range rails {
		if err := gpio.Activate(r.Pin); err != nil {
			log.Error().Err(err).Str("sensor", r.Name).Int("pin", r.Pin.Number).Msg("Failed to power sensor rail")
			continue
		}
		m.rails = append(m.rails, r)
		log.Info().Str("sensor", r.Name).Int("pin", r.Pin.Number).Msg("Sensor rail powered")
		if err := m.clock.Sleep(ctx, m.settle); err != nil {
			return err
		}
	}
	return nil
}

// Disable drives the given lines off without taking ownership of them, e.g. the
// color sensor's illumination LED.
func (m *Manager) Disable(lines []Rail) {
	for _, r := range lines {
		if err := gpio.Deactivate(r.Pin); err != nil {
			log.Error().Err(err).Str("line", r.Name).Int("pin", r.Pin.Number).Msg("Failed to switch line off")
		}
	}
}

// Verify reads back every powered rail.
func (m *Manager) Verify() error {
	checks := make([]gpio.PinCheck, 0, len(m.rails))
	for _, r := range m.rails {
		checks = append(checks, gpio.PinCheck{Name: r.Name, Pin: r.Pin, ShouldBeOn: true})
	}
	return gpio.ValidatePinStates(checks)
}

// Off powers every managed rail down, last enabled first.
func (m *Manager) Off() {
	for i := len(m.rails) - 1; i >= 0; i-- {
		r := m.rails[i]
		if err := gpio.Deactivate(r.Pin); err != nil {
			log.Error().Err(err).Str("sensor", r.Name).Int("pin", r.Pin.Number).Msg("Failed to power down sensor rail")
			continue
		}
		log.Info().Str("sensor", r.Name).Int("pin", r.Pin.Number).Msg("Sensor rail powered down")
	}
	m.rails = nil
}

func (m *Manager) Rails() []Rail {
	out := make([]Rail, len(m.rails))
	copy(out, m.rails)
	return out
}
