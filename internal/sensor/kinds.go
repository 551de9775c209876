package sensor

import (
	"context"
	"fmt"

	"github.com/smartcrop/sensor-node/internal/drivers"
	"github.com/smartcrop/sensor-node/internal/model"
)

type ClimateReader interface {
	Sense() (drivers.Climate, error)
}

type ColorReader interface {
	Sense() (drivers.Color, error)
}

type InfraredReader interface {
	Sense() (drivers.Infrared, error)
}

type UVReader interface {
	Sense() (drivers.UV, error)
}

// TempHumidity wraps the AHT21. Its first sample of each cycle feeds CO2 compensation.
type TempHumidity struct {
	drv ClimateReader
	acc accumulator
}

func NewTempHumidity(drv ClimateReader, samples int) *TempHumidity {
	return &TempHumidity{drv: drv, acc: newAccumulator(samples, "temperature", "relative_humidity")}
}

func (s *TempHumidity) Kind() model.Kind { return model.KindTempHumidity }

func (s *TempHumidity) Collect(context.Context) error {
	c, err := s.drv.Sense()
	if err != nil {
		return fmt.Errorf("read temperature/humidity: %w", err)
	}
	s.acc.add("temperature", model.Float(c.Temperature))
	s.acc.add("relative_humidity", model.Float(c.Humidity))
	return nil
}

// FirstSample returns the raw temperature and humidity of the cycle's first sample.
func (s *TempHumidity) FirstSample() (temperature, humidity float64, ok bool) {
	t, ok := s.acc.first("temperature")
	if !ok {
		return 0, 0, false
	}
	h, ok := s.acc.first("relative_humidity")
	if !ok {
		return 0, 0, false
	}
	return t.Float(), h.Float(), true
}

func (s *TempHumidity) Reduce() bool { return s.acc.reduce() }

func (s *TempHumidity) Package(node int) (model.Reading, bool) {
	return s.acc.reading(s.Kind(), node)
}

func (s *TempHumidity) Reset() { s.acc.reset() }

// Color wraps the TCS34725.
type Color struct {
	drv ColorReader
	acc accumulator
}

func NewColor(drv ColorReader, samples int) *Color {
	return &Color{drv: drv, acc: newAccumulator(samples, "color", "color_temperature", "lux", "color_rgb_bytes")}
}

func (s *Color) Kind() model.Kind { return model.KindColor }

func (s *Color) Collect(context.Context) error {
	c, err := s.drv.Sense()
	if err != nil {
		return fmt.Errorf("read color: %w", err)
	}
	s.acc.add("color", model.Int(c.Packed))
	s.acc.add("color_temperature", model.Float(c.Temperature))
	s.acc.add("lux", model.Float(c.Lux))
	s.acc.add("color_rgb_bytes", model.Tuple(float64(c.RGB[0]), float64(c.RGB[1]), float64(c.RGB[2])))
	return nil
}

func (s *Color) Reduce() bool { return s.acc.reduce() }

func (s *Color) Package(node int) (model.Reading, bool) {
	return s.acc.reading(s.Kind(), node)
}

func (s *Color) Reset() { s.acc.reset() }

// Infrared wraps the MLX90614.
type Infrared struct {
	drv InfraredReader
	acc accumulator
}

func NewInfrared(drv InfraredReader, samples int) *Infrared {
	return &Infrared{drv: drv, acc: newAccumulator(samples, "ambient_temperature", "object_temperature")}
}

func (s *Infrared) Kind() model.Kind { return model.KindInfrared }

func (s *Infrared) Collect(context.Context) error {
	ir, err := s.drv.Sense()
	if err != nil {
		return fmt.Errorf("read infrared: %w", err)
	}
	s.acc.add("ambient_temperature", model.Float(ir.Ambient))
	s.acc.add("object_temperature", model.Float(ir.Object))
	return nil
}

func (s *Infrared) Reduce() bool { return s.acc.reduce() }

func (s *Infrared) Package(node int) (model.Reading, bool) {
	return s.acc.reading(s.Kind(), node)
}

func (s *Infrared) Reset() { s.acc.reset() }

// UV wraps the LTR390.
type UV struct {
	drv UVReader
	acc accumulator
}

func NewUV(drv UVReader, samples int) *UV {
	return &UV{drv: drv, acc: newAccumulator(samples, "uvi", "lux", "light", "uvs")}
}

func (s *UV) Kind() model.Kind { return model.KindUV }

func (s *UV) Collect(context.Context) error {
	uv, err := s.drv.Sense()
	if err != nil {
		return fmt.Errorf("read uv: %w", err)
	}
	s.acc.add("uvi", model.Float(uv.UVI))
	s.acc.add("lux", model.Float(uv.Lux))
	s.acc.add("light", model.Int(int(uv.Light)))
	s.acc.add("uvs", model.Int(int(uv.UVS)))
	return nil
}

func (s *UV) Reduce() bool { return s.acc.reduce() }

func (s *UV) Package(node int) (model.Reading, bool) {
	return s.acc.reading(s.Kind(), node)
}

func (s *UV) Reset() { s.acc.reset() }
