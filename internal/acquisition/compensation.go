package acquisition

import (
	"github.com/smartcrop/sensor-node/internal/model"
	"github.com/smartcrop/sensor-node/internal/sensor"
)

// CompensationSource yields the ambient temperature and humidity sampled this cycle.
type CompensationSource interface {
	FirstSample() (temperature, humidity float64, ok bool)
}

// CompensationTarget accepts ambient inputs before each of its samples.
type CompensationTarget interface {
	SetCompensation(temperature, humidity float64)
}

// Order returns the sampling order for a cycle. When the CO2 sensor would be sampled
// before the temperature/humidity sensor it is moved to the end, so the first climate
// sample always exists before CO2 needs it. The input slice is not modified.
func Order(sensors []sensor.Sensor) []sensor.Sensor {
	ordered := make([]sensor.Sensor, len(sensors))
	copy(ordered, sensors)

	temp := indexOf(ordered, model.KindTempHumidity)
	co2 := indexOf(ordered, model.KindAirQuality)
	if temp < 0 || co2 < 0 || co2 > temp {
		return ordered
	}
	moved := ordered[co2]
	ordered = append(ordered[:co2], ordered[co2+1:]...)
	return append(ordered, moved)
}

func indexOf(sensors []sensor.Sensor, kind model.Kind) int {
	for i, s := range sensors {
		if s.Kind() == kind {
			return i
		}
	}
	return -1
}

type compensator struct {
	source      CompensationSource
	target      CompensationTarget
	temperature float64
	humidity    float64
}

func newCompensator(sensors []sensor.Sensor, defaultTemperature, defaultHumidity float64) *compensator {
	c := &compensator{temperature: defaultTemperature, humidity: defaultHumidity}
	for _, s := range sensors {
		switch s.Kind() {
		case model.KindTempHumidity:
			if src, ok := s.(CompensationSource); ok {
				c.source = src
			}
		case model.KindAirQuality:
			if tgt, ok := s.(CompensationTarget); ok {
				c.target = tgt
			}
		}
	}
	return c
}

func (c *compensator) isTarget(s sensor.Sensor) bool {
	if c.target == nil {
		return false
	}
	tgt, ok := s.(CompensationTarget)
	return ok && tgt == c.target
}

// inject pushes the climate sensor's first raw sample into the CO2 sensor. Zero
// readings and a missing climate sensor fall back to the defaults.
func (c *compensator) inject() (temperature, humidity float64) {
	temperature, humidity = c.temperature, c.humidity
	if c.source != nil {
		if t, h, ok := c.source.FirstSample(); ok {
			if t != 0 {
				temperature = t
			}
			if h != 0 {
				humidity = h
			}
		}
	}
	if c.target != nil {
		c.target.SetCompensation(temperature, humidity)
	}
	return temperature, humidity
}
