package drivers

import (
	"time"

	"github.com/pkg/errors"
	"periph.io/x/periph/conn/i2c"
)

const (
	ltrRegMainCtrl = 0x00
	ltrRegMeasRate = 0x04
	ltrRegGain     = 0x05
	ltrRegPartID   = 0x06
	ltrRegALSData  = 0x0D
	ltrRegUVSData  = 0x10

	ltrEnable  = 0x02
	ltrModeUVS = 0x08

	// 18-bit resolution, 100ms rate; gain x3.
	ltrMeasRate      = 0x22
	ltrGain3         = 0x01
	ltrUVSensitivity = 2300.0
)

type LTR390 struct {
	dev *i2c.Dev
}

func NewLTR390(b i2c.Bus, addr uint16) (*LTR390, error) {
	d := &LTR390{dev: &i2c.Dev{Bus: b, Addr: addr}}
	id, err := readReg(d.dev, ltrRegPartID, 1)
	if err != nil {
		return nil, err
	}
	if id[0]>>4 != 0xB {
		return nil, errors.Errorf("ltr390: unexpected part id 0x%02X", id[0])
	}
	if err := writeReg(d.dev, ltrRegMeasRate, ltrMeasRate); err != nil {
		return nil, err
	}
	if err := writeReg(d.dev, ltrRegGain, ltrGain3); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *LTR390) Sense() (UV, error) {
	uvs, err := d.measure(ltrEnable|ltrModeUVS, ltrRegUVSData)
	if err != nil {
		return UV{}, err
	}
	light, err := d.measure(ltrEnable, ltrRegALSData)
	if err != nil {
		return UV{}, err
	}
	return UV{
		UVS:   uvs,
		Light: light,
		UVI:   float64(uvs) / ltrUVSensitivity,
		Lux:   0.6 * float64(light) / 3,
	}, nil
}

func (d *LTR390) measure(mode, reg byte) (uint32, error) {
	if err := writeReg(d.dev, ltrRegMainCtrl, mode); err != nil {
		return 0, err
	}
	sleep(110 * time.Millisecond)
	b, err := readReg(d.dev, reg, 3)
	if err != nil {
		return 0, err
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2]&0x0F)<<16, nil
}
