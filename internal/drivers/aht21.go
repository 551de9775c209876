package drivers

import (
	"time"

	"github.com/pkg/errors"
	"periph.io/x/periph/conn/i2c"
)

const (
	ahtCmdCalibrate = 0xBE
	ahtCmdTrigger   = 0xAC
	ahtCmdReset     = 0xBA
	ahtStatusBusy   = 0x80
	ahtStatusCal    = 0x08
)

// AHT21 is the AHT2x temperature/humidity sensor.
type AHT21 struct {
	dev *i2c.Dev
}

func NewAHT21(b i2c.Bus, addr uint16) (*AHT21, error) {
	d := &AHT21{dev: &i2c.Dev{Bus: b, Addr: addr}}
	if err := d.dev.Tx([]byte{ahtCmdReset}, nil); err != nil {
		return nil, errors.Wrap(err, "aht21 soft reset")
	}
	sleep(20 * time.Millisecond)

	status := make([]byte, 1)
	if err := d.dev.Tx(nil, status); err != nil {
		return nil, errors.Wrap(err, "aht21 read status")
	}
	if status[0]&ahtStatusCal == 0 {
		if err := d.dev.Tx([]byte{ahtCmdCalibrate, 0x08, 0x00}, nil); err != nil {
			return nil, errors.Wrap(err, "aht21 calibrate")
		}
		sleep(10 * time.Millisecond)
	}
	return d, nil
}

// Sense triggers one conversion and returns the result.
func (d *AHT21) Sense() (Climate, error) {
	if err := d.dev.Tx([]byte{ahtCmdTrigger, 0x33, 0x00}, nil); err != nil {
		return Climate{}, errors.Wrap(err, "aht21 trigger")
	}
	sleep(80 * time.Millisecond)

	raw := make([]byte, 6)
	for attempt := 0; ; attempt++ {
		if err := d.dev.Tx(nil, raw); err != nil {
			return Climate{}, errors.Wrap(err, "aht21 read measurement")
		}
		if raw[0]&ahtStatusBusy == 0 {
			break
		}
		if attempt >= 3 {
			return Climate{}, errors.New("aht21 stayed busy after conversion")
		}
		sleep(10 * time.Millisecond)
	}
	return decodeAHT(raw), nil
}

func decodeAHT(raw []byte) Climate {
	hum := uint32(raw[1])<<12 | uint32(raw[2])<<4 | uint32(raw[3])>>4
	temp := uint32(raw[3]&0x0F)<<16 | uint32(raw[4])<<8 | uint32(raw[5])
	return Climate{
		Humidity:    float64(hum) * 100 / (1 << 20),
		Temperature: float64(temp)*200/(1<<20) - 50,
	}
}
