package gpio

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/smartcrop/sensor-node/internal/model"
	"github.com/smartcrop/sensor-node/internal/pinctrl"
)

var safeMode bool

func SetSafeMode(enabled bool) {
	safeMode = enabled
}

func SafeMode() bool {
	return safeMode
}

// PinCheck is one pin expected to be in a given state.
type PinCheck struct {
	Name       string
	Pin        model.GPIOPin
	ShouldBeOn bool
}

// ValidatePinStates reads every pin back and fails on the first one that does not
// match its expected state.
func ValidatePinStates(checks []PinCheck) error {
	for _, check := range checks {
		level, err := ReadLevel(check.Pin.Number)
		if err != nil {
			return fmt.Errorf("failed to read pin level for %s (GPIO %d): %w", check.Name, check.Pin.Number, err)
		}
		isActive := (check.Pin.ActiveHigh && level) || (!check.Pin.ActiveHigh && !level)
		if isActive != check.ShouldBeOn {
			return fmt.Errorf("pin %d (%s) is in wrong state (expected active=%v)", check.Pin.Number, check.Name, check.ShouldBeOn)
		}
	}
	return nil
}

// ReadLevel and setPin are the hardware seams; tests replace them through MockGPIO.
var ReadLevel = pinctrl.ReadLevel

var setPin = pinctrl.SetPin

// Options returns the pinctrl options that drive pin to the requested logical state.
func Options(pin model.GPIOPin, on bool) []string {
	high := pin.ActiveHigh == on
	if high {
		return []string{"op", "pn", "dh"}
	}
	return []string{"op", "pn", "dl"}
}

var Activate = func(pin model.GPIOPin) error {
	return drive(pin, true)
}

var Deactivate = func(pin model.GPIOPin) error {
	return drive(pin, false)
}

func drive(pin model.GPIOPin, on bool) error {
	if safeMode {
		log.Debug().Int("pin", pin.Number).Bool("on", on).Msg("Safe mode, skipping pin write")
		return nil
	}
	if err := setPin(pin.Number, Options(pin, on)...); err != nil {
		if on {
			return fmt.Errorf("failed to activate pin %d: %w", pin.Number, err)
		}
		return fmt.Errorf("failed to deactivate pin %d: %w", pin.Number, err)
	}
	return nil
}

var CurrentlyActive = func(pin model.GPIOPin) (bool, error) {
	level, err := ReadLevel(pin.Number)
	if err != nil {
		return false, err
	}
	return pin.ActiveHigh == level, nil
}

// MockGPIO replaces pin writes and reads with in-memory functions.
func MockGPIO(write func(pin int, high bool), read func(pin int) bool) {
	setPin = func(pin int, opts ...string) error {
		write(pin, opts[len(opts)-1] == "dh")
		return nil
	}
	ReadLevel = func(pin int) (bool, error) {
		return read(pin), nil
	}
}

// ResetGPIO restores the pinctrl-backed implementations.
func ResetGPIO() {
	setPin = pinctrl.SetPin
	ReadLevel = pinctrl.ReadLevel
	safeMode = false
}
