package drivers

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/pkg/errors"
	"periph.io/x/periph/conn/i2c"
)

const (
	tcsCommand    = 0x80
	tcsAutoInc    = 0x20
	tcsRegEnable  = 0x00
	tcsRegATime   = 0x01
	tcsRegControl = 0x0F
	tcsRegID      = 0x12
	tcsRegCData   = 0x14

	tcsEnablePON = 0x01
	tcsEnableAEN = 0x02

	// 0xEB = 21 cycles of 2.4ms.
	tcsDefaultATime = 0xEB
	tcsGain4x       = 0x01
)

// TCS34725 is the RGB color sensor.
type TCS34725 struct {
	dev   *i2c.Dev
	atime byte
	gain  float64
}

func NewTCS34725(b i2c.Bus, addr uint16) (*TCS34725, error) {
	d := &TCS34725{dev: &i2c.Dev{Bus: b, Addr: addr}, atime: tcsDefaultATime, gain: 4}
	id, err := readReg(d.dev, tcsCommand|tcsRegID, 1)
	if err != nil {
		return nil, err
	}
	if id[0] != 0x44 && id[0] != 0x4D {
		return nil, errors.Errorf("tcs34725: unexpected id 0x%02X", id[0])
	}
	if err := writeReg(d.dev, tcsCommand|tcsRegATime, d.atime); err != nil {
		return nil, err
	}
	if err := writeReg(d.dev, tcsCommand|tcsRegControl, tcsGain4x); err != nil {
		return nil, err
	}
	if err := writeReg(d.dev, tcsCommand|tcsRegEnable, tcsEnablePON); err != nil {
		return nil, err
	}
	sleep(3 * time.Millisecond)
	if err := writeReg(d.dev, tcsCommand|tcsRegEnable, tcsEnablePON|tcsEnableAEN); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *TCS34725) Sense() (Color, error) {
	b, err := readReg(d.dev, tcsCommand|tcsAutoInc|tcsRegCData, 8)
	if err != nil {
		return Color{}, err
	}
	c := Color{
		Clear: binary.LittleEndian.Uint16(b[0:2]),
		Red:   binary.LittleEndian.Uint16(b[2:4]),
		Green: binary.LittleEndian.Uint16(b[4:6]),
		Blue:  binary.LittleEndian.Uint16(b[6:8]),
	}
	c.RGB = normalizeRGB(c.Red, c.Green, c.Blue, c.Clear)
	c.Packed = int(c.RGB[0])<<16 | int(c.RGB[1])<<8 | int(c.RGB[2])
	c.Temperature, c.Lux = d.temperatureAndLux(c)
	return c, nil
}

func normalizeRGB(r, g, b, clear uint16) [3]uint8 {
	if clear == 0 {
		return [3]uint8{}
	}
	scale := func(v uint16) uint8 {
		return uint8(math.Min(255, float64(v)/float64(clear)*255))
	}
	return [3]uint8{scale(r), scale(g), scale(b)}
}

// temperatureAndLux follows the AMS DN40 method with the IR component removed.
func (d *TCS34725) temperatureAndLux(c Color) (float64, float64) {
	r, g, b, clear := float64(c.Red), float64(c.Green), float64(c.Blue), float64(c.Clear)
	ir := 0.0
	if r+g+b > clear {
		ir = (r + g + b - clear) / 2
	}
	r2, g2, b2 := r-ir, g-ir, b-ir

	atimeMS := float64(256-int(d.atime)) * 2.4
	cpl := atimeMS * d.gain / 310
	lux := (0.136*r2 + 1.0*g2 - 0.444*b2) / cpl

	if r2 == 0 {
		return 0, lux
	}
	return 3810*b2/r2 + 1391, lux
}
