package sensor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/periph/conn/i2c"

	"github.com/smartcrop/sensor-node/internal/clock"
	"github.com/smartcrop/sensor-node/internal/drivers"
	"github.com/smartcrop/sensor-node/internal/model"
)

type fakeClimate struct {
	temps []float64
	i     int
}

func (f *fakeClimate) Sense() (drivers.Climate, error) {
	t := f.temps[f.i%len(f.temps)]
	f.i++
	return drivers.Climate{Temperature: t, Humidity: t * 2}, nil
}

// scripted returns successive values from a sequence, repeating the last one.
type scripted struct {
	seq []int
	n   int
}

func (s *scripted) next() (int, error) {
	i := s.n
	if i >= len(s.seq) {
		i = len(s.seq) - 1
	}
	s.n++
	return s.seq[i], nil
}

type fakeAirQuality struct {
	aqi, tvoc, eco2 *scripted
	compensations   [][2]float64
}

func newFakeAirQuality(aqi, tvoc, eco2 []int) *fakeAirQuality {
	return &fakeAirQuality{aqi: &scripted{seq: aqi}, tvoc: &scripted{seq: tvoc}, eco2: &scripted{seq: eco2}}
}

func (f *fakeAirQuality) SetCompensation(t, h float64) error {
	f.compensations = append(f.compensations, [2]float64{t, h})
	return nil
}
func (f *fakeAirQuality) AQI() (int, error)  { return f.aqi.next() }
func (f *fakeAirQuality) TVOC() (int, error) { return f.tvoc.next() }
func (f *fakeAirQuality) ECO2() (int, error) { return f.eco2.next() }

func TestMedianPicksUpperMiddle(t *testing.T) {
	values := []model.Value{}
	for _, i := range []int{7, 3, 10, 1, 5, 9, 2, 8, 6, 4} {
		values = append(values, model.Int(i))
	}
	m, ok := Median(values, 10)
	require.True(t, ok)
	assert.Equal(t, model.Int(6), m)

	m, ok = Median(values[:3], 3)
	require.True(t, ok)
	assert.Equal(t, model.Int(7), m)
}

func TestMedianRequiresExactCount(t *testing.T) {
	values := []model.Value{model.Float(1), model.Float(2)}
	_, ok := Median(values, 3)
	assert.False(t, ok)
	_, ok = Median(nil, 0)
	assert.False(t, ok)

	eleven := make([]model.Value, 11)
	for i := range eleven {
		eleven[i] = model.Int(i)
	}
	_, ok = Median(eleven, 10)
	assert.False(t, ok, "one sample too many")
	_, ok = Median(eleven[:9], 10)
	assert.False(t, ok, "one sample too few")
}

func TestMedianOrdersTuplesLexicographically(t *testing.T) {
	values := []model.Value{
		model.Tuple(10, 0, 0),
		model.Tuple(9, 255, 255),
		model.Tuple(10, 0, 1),
	}
	m, ok := Median(values, 3)
	require.True(t, ok)
	assert.Equal(t, model.Tuple(10, 0, 0), m)
}

func TestMedianDoesNotReorderInput(t *testing.T) {
	values := []model.Value{model.Int(3), model.Int(1), model.Int(2)}
	_, ok := Median(values, 3)
	require.True(t, ok)
	assert.Equal(t, []model.Value{model.Int(3), model.Int(1), model.Int(2)}, values)
}

func TestTempHumidityCycle(t *testing.T) {
	s := NewTempHumidity(&fakeClimate{temps: []float64{21, 19, 20}}, 3)
	_, _, ok := s.FirstSample()
	assert.False(t, ok)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Collect(context.Background()))
	}
	temp, hum, ok := s.FirstSample()
	require.True(t, ok)
	assert.Equal(t, 21.0, temp)
	assert.Equal(t, 42.0, hum)

	require.True(t, s.Reduce())
	r, ok := s.Package(4)
	require.True(t, ok)
	assert.Equal(t, model.KindTempHumidity, r.Sensor)
	assert.Equal(t, 4, r.Node)
	assert.Equal(t, model.Float(20), r.Values["temperature"])
	assert.Equal(t, model.Float(40), r.Values["relative_humidity"])

	s.Reset()
	_, ok = s.Package(4)
	assert.False(t, ok)
}

func TestReduceFailsOnShortCount(t *testing.T) {
	s := NewTempHumidity(&fakeClimate{temps: []float64{21}}, 3)
	require.NoError(t, s.Collect(context.Background()))
	require.NoError(t, s.Collect(context.Background()))
	assert.False(t, s.Reduce())
	_, ok := s.Package(1)
	assert.False(t, ok)
}

func TestReduceFailsOnExtraSample(t *testing.T) {
	s := NewTempHumidity(&fakeClimate{temps: []float64{21, 19, 20}}, 3)
	for i := 0; i < 4; i++ {
		require.NoError(t, s.Collect(context.Background()))
	}
	assert.False(t, s.Reduce())
	_, ok := s.Package(1)
	assert.False(t, ok)
}

func TestAirQualityRetriesUntilNonZero(t *testing.T) {
	clk := clock.NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	drv := newFakeAirQuality([]int{0, 0, 0, 7, 0}, []int{120}, []int{400})
	policy := DefaultAirQualityPolicy()
	s := NewAirQuality(drv, 1, policy, clk)

	require.NoError(t, s.Collect(context.Background()))
	require.True(t, s.Reduce())
	r, ok := s.Package(1)
	require.True(t, ok)
	assert.Equal(t, model.Int(7), r.Values["AQI"])
	assert.Equal(t, model.Int(120), r.Values["TVOC"])
	assert.Equal(t, model.Int(400), r.Values["eCO2"])
	assert.Equal(t, []time.Duration{policy.RetryInterval, policy.RetryInterval, policy.RetryInterval}, clk.Sleeps())
}

func TestAirQualityExhaustedBudgetRecordsZero(t *testing.T) {
	clk := clock.NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	drv := newFakeAirQuality([]int{0}, []int{120}, []int{400})
	policy := DefaultAirQualityPolicy()
	policy.RequireNonZero = false
	s := NewAirQuality(drv, 1, policy, clk)

	require.NoError(t, s.Collect(context.Background()))
	assert.Equal(t, 5, drv.aqi.n)
	assert.Len(t, clk.Sleeps(), 4)

	require.True(t, s.Reduce())
	r, ok := s.Package(1)
	require.True(t, ok)
	assert.Equal(t, model.Int(0), r.Values["AQI"])
}

func TestAirQualityRequireNonZeroDropsReading(t *testing.T) {
	clk := clock.NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	drv := newFakeAirQuality([]int{0}, []int{120}, []int{400})
	s := NewAirQuality(drv, 1, DefaultAirQualityPolicy(), clk)

	require.NoError(t, s.Collect(context.Background()))
	require.True(t, s.Reduce())
	_, ok := s.Package(1)
	assert.False(t, ok)
}

func TestAirQualityCompensation(t *testing.T) {
	clk := clock.NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	drv := newFakeAirQuality([]int{2}, []int{120}, []int{400})
	s := NewAirQuality(drv, 2, DefaultAirQualityPolicy(), clk)

	require.NoError(t, s.Collect(context.Background()))
	s.SetCompensation(21.5, 40)
	require.NoError(t, s.Collect(context.Background()))
	assert.Equal(t, [][2]float64{{25, 50}, {21.5, 40}}, drv.compensations)

	require.True(t, s.Reduce())
	r, ok := s.Package(1)
	require.True(t, ok)
	assert.Equal(t, model.Float(21.5), r.Values["temperature_compensation"])
	assert.Equal(t, model.Float(40), r.Values["relative_humidity_compensation"])
}

func TestAirQualityRetryHonorsCancellation(t *testing.T) {
	clk := clock.NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	drv := newFakeAirQuality([]int{0}, []int{1}, []int{1})
	s := NewAirQuality(drv, 1, DefaultAirQualityPolicy(), clk)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.Collect(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, s.Reduce(), "a cancelled sample appends nothing")
}

func TestRegistryBuildSkipsFailures(t *testing.T) {
	reg := Registry{
		model.KindTempHumidity: func(i2c.Bus, uint16, Settings) (Sensor, error) {
			return NewTempHumidity(&fakeClimate{temps: []float64{20}}, 1), nil
		},
		model.KindUV: func(i2c.Bus, uint16, Settings) (Sensor, error) {
			return nil, errors.New("no device at 0x53")
		},
	}
	specs := []Spec{
		{Kind: model.KindTempHumidity},
		{Kind: model.KindUV},
		{Kind: model.KindInfrared},
		{Kind: model.KindCamera},
	}
	got := reg.Build(nil, specs, Settings{Samples: 1})
	require.Len(t, got, 1)
	assert.Equal(t, model.KindTempHumidity, got[0].Kind())
}

func TestAddrOr(t *testing.T) {
	assert.Equal(t, uint16(drivers.AHT21Address), addrOr(0, drivers.AHT21Address))
	assert.Equal(t, uint16(0x39), addrOr(0x39, drivers.AHT21Address))
}
