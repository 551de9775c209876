package sensor

import (
	"github.com/rs/zerolog/log"
	"periph.io/x/periph/conn/i2c"

	"github.com/smartcrop/sensor-node/internal/clock"
	"github.com/smartcrop/sensor-node/internal/drivers"
	"github.com/smartcrop/sensor-node/internal/model"
)

// Settings are the cycle-wide parameters every constructor receives.
type Settings struct {
	Samples    int
	AirQuality AirQualityPolicy
	Clock      clock.Clock
}

// Spec names one sensor to construct. A zero Address selects the kind's default.
type Spec struct {
	Kind    model.Kind
	Address uint16
}

type Constructor func(b i2c.Bus, addr uint16, s Settings) (Sensor, error)

type Registry map[model.Kind]Constructor

func addrOr(addr, def uint16) uint16 {
	if addr == 0 {
		return def
	}
	return addr
}

var DefaultRegistry = Registry{
	model.KindTempHumidity: func(b i2c.Bus, addr uint16, s Settings) (Sensor, error) {
		d, err := drivers.NewAHT21(b, addrOr(addr, drivers.AHT21Address))
		if err != nil {
			return nil, err
		}
		return NewTempHumidity(d, s.Samples), nil
	},
	model.KindAirQuality: func(b i2c.Bus, addr uint16, s Settings) (Sensor, error) {
		d, err := drivers.NewENS160(b, addrOr(addr, drivers.ENS160Address))
		if err != nil {
			return nil, err
		}
		return NewAirQuality(d, s.Samples, s.AirQuality, s.Clock), nil
	},
	model.KindColor: func(b i2c.Bus, addr uint16, s Settings) (Sensor, error) {
		d, err := drivers.NewTCS34725(b, addrOr(addr, drivers.TCS34725Address))
		if err != nil {
			return nil, err
		}
		return NewColor(d, s.Samples), nil
	},
	model.KindInfrared: func(b i2c.Bus, addr uint16, s Settings) (Sensor, error) {
		d, err := drivers.NewMLX90614(b, addrOr(addr, drivers.MLX90614Address))
		if err != nil {
			return nil, err
		}
		return NewInfrared(d, s.Samples), nil
	},
	model.KindUV: func(b i2c.Bus, addr uint16, s Settings) (Sensor, error) {
		d, err := drivers.NewLTR390(b, addrOr(addr, drivers.LTR390Address))
		if err != nil {
			return nil, err
		}
		return NewUV(d, s.Samples), nil
	},
}

// Build constructs every configured sensor. A sensor that fails to initialize is
// logged and left out so the rest of the node keeps running. The camera is not an
// I2C device and is skipped here.
func (r Registry) Build(b i2c.Bus, specs []Spec, s Settings) []Sensor {
	var out []Sensor
	for _, spec := range specs {
		if spec.Kind == model.KindCamera {
			continue
		}
		ctor, ok := r[spec.Kind]
		if !ok {
			log.Warn().Str("sensor", string(spec.Kind)).Msg("No constructor registered for sensor kind")
			continue
		}
		sn, err := ctor(b, spec.Address, s)
		if err != nil {
			log.Error().Err(err).Str("sensor", string(spec.Kind)).Msg("Failed to initialize sensor")
			continue
		}
		log.Info().Str("sensor", string(spec.Kind)).Msg("Sensor initialized")
		out = append(out, sn)
	}
	return out
}
