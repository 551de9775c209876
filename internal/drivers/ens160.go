package drivers

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/pkg/errors"
	"periph.io/x/periph/conn/i2c"
)

const (
	ensRegPartID = 0x00
	ensRegOpMode = 0x10
	ensRegTempIn = 0x13
	ensRegRHIn   = 0x15
	ensRegAQI    = 0x21
	ensRegTVOC   = 0x22
	ensRegECO2   = 0x24

	ensModeStandard = 0x02
	ensPartID       = 0x0160
)

// ENS160 is the metal-oxide air quality sensor. Its readings are compensated with
// ambient temperature and humidity written to TEMP_IN and RH_IN.
type ENS160 struct {
	dev *i2c.Dev
}

func NewENS160(b i2c.Bus, addr uint16) (*ENS160, error) {
	d := &ENS160{dev: &i2c.Dev{Bus: b, Addr: addr}}
	id, err := readReg(d.dev, ensRegPartID, 2)
	if err != nil {
		return nil, err
	}
	if part := binary.LittleEndian.Uint16(id); part != ensPartID {
		return nil, errors.Errorf("ens160: unexpected part id 0x%04X", part)
	}
	if err := writeReg(d.dev, ensRegOpMode, ensModeStandard); err != nil {
		return nil, err
	}
	sleep(10 * time.Millisecond)
	return d, nil
}

// SetCompensation writes ambient temperature (°C) and relative humidity (%).
func (d *ENS160) SetCompensation(temperature, humidity float64) error {
	t := uint16(math.Round((temperature + 273.15) * 64))
	h := uint16(math.Round(humidity * 512))
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint16(buf[0:2], t)
	binary.LittleEndian.PutUint16(buf[2:4], h)
	if err := writeReg(d.dev, ensRegTempIn, buf[0], buf[1]); err != nil {
		return err
	}
	return writeReg(d.dev, ensRegRHIn, buf[2], buf[3])
}

// AQI returns the UBA air quality index (1-5).
func (d *ENS160) AQI() (int, error) {
	b, err := readReg(d.dev, ensRegAQI, 1)
	if err != nil {
		return 0, err
	}
	return int(b[0] & 0x07), nil
}

// TVOC returns total volatile organic compounds in ppb.
func (d *ENS160) TVOC() (int, error) {
	b, err := readReg(d.dev, ensRegTVOC, 2)
	if err != nil {
		return 0, err
	}
	return int(binary.LittleEndian.Uint16(b)), nil
}

// ECO2 returns equivalent CO2 in ppm.
func (d *ENS160) ECO2() (int, error) {
	b, err := readReg(d.dev, ensRegECO2, 2)
	if err != nil {
		return 0, err
	}
	return int(binary.LittleEndian.Uint16(b)), nil
}
