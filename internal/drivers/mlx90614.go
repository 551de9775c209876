package drivers

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"periph.io/x/periph/conn/i2c"
)

const (
	mlxRegAmbient = 0x06
	mlxRegObject1 = 0x07
)

type MLX90614 struct {
	dev *i2c.Dev
}

func NewMLX90614(b i2c.Bus, addr uint16) (*MLX90614, error) {
	d := &MLX90614{dev: &i2c.Dev{Bus: b, Addr: addr}}
	if _, err := d.readTemp(mlxRegAmbient); err != nil {
		return nil, errors.Wrap(err, "mlx90614 probe")
	}
	return d, nil
}

func (d *MLX90614) Sense() (Infrared, error) {
	ambient, err := d.readTemp(mlxRegAmbient)
	if err != nil {
		return Infrared{}, err
	}
	object, err := d.readTemp(mlxRegObject1)
	if err != nil {
		return Infrared{}, err
	}
	return Infrared{Ambient: ambient, Object: object}, nil
}

// readTemp reads an SMBus word (LSB, MSB, PEC) in units of 0.02 K.
func (d *MLX90614) readTemp(reg byte) (float64, error) {
	b, err := readReg(d.dev, reg, 3)
	if err != nil {
		return 0, err
	}
	raw := binary.LittleEndian.Uint16(b[0:2])
	if raw&0x8000 != 0 {
		return 0, errors.Errorf("mlx90614: error flag set in register 0x%02X", reg)
	}
	return float64(raw)*0.02 - 273.15, nil
}
