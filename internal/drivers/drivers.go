// Package drivers holds minimal register-level drivers for the node's I2C sensors.
// They expose raw measurements only; sampling, retry and reduction policy live in
// package sensor.
package drivers

import (
	"time"

	"github.com/pkg/errors"
	"periph.io/x/periph/conn/i2c"
)

// Default 7-bit addresses.
const (
	AHT21Address    = 0x38
	ENS160Address   = 0x53
	TCS34725Address = 0x29
	MLX90614Address = 0x5A
	LTR390Address   = 0x53
)

// sleep is swapped in tests so conversions do not wait on real time.
var sleep = time.Sleep

// Climate is one temperature/humidity measurement.
type Climate struct {
	Temperature float64 // °C
	Humidity    float64 // %RH
}

// Color is one light/color measurement.
type Color struct {
	Red, Green, Blue, Clear uint16
	Packed                  int     // 0xRRGGBB
	Temperature             float64 // correlated color temperature, K
	Lux                     float64
	RGB                     [3]uint8
}

// Infrared is one non-contact thermometer measurement.
type Infrared struct {
	Ambient float64 // °C
	Object  float64 // °C
}

// UV is one ultraviolet/ambient light measurement.
type UV struct {
	UVI   float64
	Lux   float64
	Light uint32
	UVS   uint32
}

func readReg(d *i2c.Dev, reg byte, n int) ([]byte, error) {
	buf := make([]byte, n)
	if err := d.Tx([]byte{reg}, buf); err != nil {
		return nil, errors.Wrapf(err, "read register 0x%02X at 0x%02X", reg, d.Addr)
	}
	return buf, nil
}

func writeReg(d *i2c.Dev, reg byte, data ...byte) error {
	if err := d.Tx(append([]byte{reg}, data...), nil); err != nil {
		return errors.Wrapf(err, "write register 0x%02X at 0x%02X", reg, d.Addr)
	}
	return nil
}
