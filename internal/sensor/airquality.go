package sensor

import (
	"context"
	"fmt"
	"time"

	"github.com/smartcrop/sensor-node/internal/clock"
	"github.com/smartcrop/sensor-node/internal/model"
)

type AirQualityReader interface {
	SetCompensation(temperature, humidity float64) error
	AQI() (int, error)
	TVOC() (int, error)
	ECO2() (int, error)
}

// AirQualityPolicy configures the CO2 family's zero-reading retry and packaging.
type AirQualityPolicy struct {
	// Attempts is the read budget per attribute; the first non-zero reading wins.
	Attempts      int
	RetryInterval time.Duration
	// RequireNonZero drops the whole reading when any reduced attribute is zero.
	RequireNonZero     bool
	DefaultTemperature float64
	DefaultHumidity    float64
}

func DefaultAirQualityPolicy() AirQualityPolicy {
	return AirQualityPolicy{
		Attempts:           5,
		RetryInterval:      100 * time.Millisecond,
		RequireNonZero:     true,
		DefaultTemperature: 25,
		DefaultHumidity:    50,
	}
}

const (
	attrAQI  = "AQI"
	attrTVOC = "TVOC"
	attrECO2 = "eCO2"
)

// AirQuality wraps the ENS160.
type AirQuality struct {
	drv    AirQualityReader
	policy AirQualityPolicy
	clock  clock.Clock
	acc    accumulator

	temperature float64
	humidity    float64
}

func NewAirQuality(drv AirQualityReader, samples int, policy AirQualityPolicy, clk clock.Clock) *AirQuality {
	if policy.Attempts < 1 {
		policy.Attempts = 1
	}
	return &AirQuality{
		drv:         drv,
		policy:      policy,
		clock:       clk,
		acc:         newAccumulator(samples, attrAQI, attrTVOC, attrECO2),
		temperature: policy.DefaultTemperature,
		humidity:    policy.DefaultHumidity,
	}
}

func (s *AirQuality) Kind() model.Kind { return model.KindAirQuality }

// SetCompensation sets the ambient inputs used for the next samples.
func (s *AirQuality) SetCompensation(temperature, humidity float64) {
	s.temperature = temperature
	s.humidity = humidity
}

func (s *AirQuality) Compensation() (temperature, humidity float64) {
	return s.temperature, s.humidity
}

func (s *AirQuality) Collect(ctx context.Context) error {
	if err := s.drv.SetCompensation(s.temperature, s.humidity); err != nil {
		return fmt.Errorf("write air quality compensation: %w", err)
	}
	aqi, err := s.readNonZero(ctx, s.drv.AQI)
	if err != nil {
		return fmt.Errorf("read %s: %w", attrAQI, err)
	}
	tvoc, err := s.readNonZero(ctx, s.drv.TVOC)
	if err != nil {
		return fmt.Errorf("read %s: %w", attrTVOC, err)
	}
	eco2, err := s.readNonZero(ctx, s.drv.ECO2)
	if err != nil {
		return fmt.Errorf("read %s: %w", attrECO2, err)
	}
	s.acc.add(attrAQI, model.Int(aqi))
	s.acc.add(attrTVOC, model.Int(tvoc))
	s.acc.add(attrECO2, model.Int(eco2))
	return nil
}

// readNonZero retries a read until it is non-zero or the budget runs out, in which
// case the last (zero) reading is accepted.
func (s *AirQuality) readNonZero(ctx context.Context, read func() (int, error)) (int, error) {
	var v int
	for attempt := 1; attempt <= s.policy.Attempts; attempt++ {
		var err error
		v, err = read()
		if err != nil {
			return 0, err
		}
		if v != 0 {
			return v, nil
		}
		if attempt < s.policy.Attempts {
			if err := s.clock.Sleep(ctx, s.policy.RetryInterval); err != nil {
				return 0, err
			}
		}
	}
	return v, nil
}

func (s *AirQuality) Reduce() bool { return s.acc.reduce() }

func (s *AirQuality) Package(node int) (model.Reading, bool) {
	r, ok := s.acc.reading(s.Kind(), node)
	if !ok {
		return model.Reading{}, false
	}
	if s.policy.RequireNonZero {
		for _, v := range r.Values {
			if v.IsZero() {
				return model.Reading{}, false
			}
		}
	}
	r.Values["temperature_compensation"] = model.Float(s.temperature)
	r.Values["relative_humidity_compensation"] = model.Float(s.humidity)
	return r, true
}

func (s *AirQuality) Reset() { s.acc.reset() }
