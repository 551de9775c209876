package acquisition

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartcrop/sensor-node/internal/bus"
	"github.com/smartcrop/sensor-node/internal/clock"
	"github.com/smartcrop/sensor-node/internal/drivers"
	"github.com/smartcrop/sensor-node/internal/model"
	"github.com/smartcrop/sensor-node/internal/sensor"
	"github.com/smartcrop/sensor-node/internal/snapshot"
)

var start = time.Date(2024, 6, 3, 9, 47, 0, 0, time.UTC)

type scriptedClimate struct {
	seq []drivers.Climate
	n   int
}

func (s *scriptedClimate) Sense() (drivers.Climate, error) {
	c := s.seq[s.n%len(s.seq)]
	s.n++
	return c, nil
}

type sequence struct {
	vals []int
	n    int
}

func (s *sequence) next() (int, error) {
	v := s.vals[s.n%len(s.vals)]
	s.n++
	return v, nil
}

type scriptedAirQuality struct {
	aqi, tvoc, eco2 sequence
	compensations   [][2]float64
}

func (f *scriptedAirQuality) SetCompensation(t, h float64) error {
	f.compensations = append(f.compensations, [2]float64{t, h})
	return nil
}
func (f *scriptedAirQuality) AQI() (int, error)  { return f.aqi.next() }
func (f *scriptedAirQuality) TVOC() (int, error) { return f.tvoc.next() }
func (f *scriptedAirQuality) ECO2() (int, error) { return f.eco2.next() }

// probe is a minimal sensor that records bus lock state and can fail on a given round.
type probe struct {
	kind    model.Kind
	lock    *bus.Lock
	failAt  int
	calls   int
	samples int
	n       int
	heldAll bool
	reduced bool
}

func newProbe(kind model.Kind, lock *bus.Lock, n int) *probe {
	return &probe{kind: kind, lock: lock, n: n, failAt: -1, heldAll: true}
}

func (p *probe) Kind() model.Kind { return p.kind }

func (p *probe) Collect(context.Context) error {
	p.heldAll = p.heldAll && p.lock.Held()
	p.calls++
	if p.calls-1 == p.failAt {
		return errors.New("i2c: nack")
	}
	p.samples++
	return nil
}

func (p *probe) Reduce() bool {
	p.reduced = p.samples == p.n
	return p.reduced
}

func (p *probe) Package(node int) (model.Reading, bool) {
	if !p.reduced {
		return model.Reading{}, false
	}
	return model.Reading{Sensor: p.kind, Node: node, Values: map[string]model.Value{"v": model.Int(p.samples)}}, true
}

func (p *probe) Reset() {
	p.samples = 0
	p.reduced = false
}

type recordingSink struct {
	mu    sync.Mutex
	snaps []*model.Snapshot
	err   error
}

func (r *recordingSink) Name() string { return "recorder" }

func (r *recordingSink) Consume(_ context.Context, s *model.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
	return r.err
}

type recordingObserver struct {
	cycles   int
	failures []string
	sinks    []string
}

func (o *recordingObserver) CycleCompleted(time.Duration, *model.Snapshot) { o.cycles++ }
func (o *recordingObserver) SensorFailed(k model.Kind, stage string) {
	o.failures = append(o.failures, string(k)+":"+stage)
}
func (o *recordingObserver) SinkFailed(s string) { o.sinks = append(o.sinks, s) }

type fakeCamera struct {
	captures int
	err      error
}

func (c *fakeCamera) Capture(context.Context) (string, error) {
	c.captures++
	if c.err != nil {
		return "", c.err
	}
	return "/tmp/img.png", nil
}

func TestOrderMovesAirQualityAfterClimate(t *testing.T) {
	lock := bus.NewLock()
	co2 := newProbe(model.KindAirQuality, lock, 1)
	temp := newProbe(model.KindTempHumidity, lock, 1)
	uv := newProbe(model.KindColor, lock, 1)

	in := []sensor.Sensor{co2, uv, temp}
	got := Order(in)
	assert.Equal(t, []sensor.Sensor{uv, temp, co2}, got)
	assert.Equal(t, []sensor.Sensor{co2, uv, temp}, in, "input untouched")

	already := []sensor.Sensor{temp, co2, uv}
	assert.Equal(t, already, Order(already))

	alone := []sensor.Sensor{co2, uv}
	assert.Equal(t, alone, Order(alone))
}

func TestCycleCompensatesWithFirstClimateSample(t *testing.T) {
	clk := clock.NewFake(start)
	lock := bus.NewLock()

	climate := &scriptedClimate{seq: []drivers.Climate{
		{Temperature: 30, Humidity: 40},
		{Temperature: 20, Humidity: 60},
		{Temperature: 25, Humidity: 50},
	}}
	aq := &scriptedAirQuality{
		aqi:  sequence{vals: []int{0, 3, 0, 0, 2}},
		tvoc: sequence{vals: []int{100}},
		eco2: sequence{vals: []int{400, 500, 450}},
	}
	policy := sensor.AirQualityPolicy{
		Attempts:           2,
		RetryInterval:      50 * time.Millisecond,
		RequireNonZero:     true,
		DefaultTemperature: 25,
		DefaultHumidity:    50,
	}
	temp := sensor.NewTempHumidity(climate, 3)
	co2 := sensor.NewAirQuality(aq, 3, policy, clk)

	c := New(Config{
		Node:               3,
		Samples:            3,
		ReadingInterval:    100 * time.Millisecond,
		Stagger:            20 * time.Minute,
		DefaultTemperature: 25,
		DefaultHumidity:    50,
		Lock:               lock,
		Clock:              clk,
		Sensors:            []sensor.Sensor{co2, temp},
	})

	snap, err := c.RunCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Readings, 2)
	assert.Same(t, snap, c.Cell().Latest())
	assert.False(t, lock.Held())

	assert.Equal(t, [][2]float64{{30, 40}, {30, 40}, {30, 40}}, aq.compensations)

	air := snap.Readings[model.KindAirQuality]
	assert.Equal(t, 3, air.Node)
	assert.Equal(t, model.Float(30), air.Values["temperature_compensation"])
	assert.Equal(t, model.Float(40), air.Values["relative_humidity_compensation"])
	assert.Equal(t, model.Int(2), air.Values["AQI"])
	assert.Equal(t, model.Int(450), air.Values["eCO2"])

	climateReading := snap.Readings[model.KindTempHumidity]
	assert.Equal(t, model.Float(25), climateReading.Values["temperature"])
	assert.Equal(t, model.Float(50), climateReading.Values["relative_humidity"])

	ms := time.Millisecond
	assert.Equal(t, []time.Duration{50 * ms, 100 * ms, 50 * ms, 100 * ms, 100 * ms}, clk.Sleeps())
	assert.Equal(t, start.Add(400*ms), snap.Timestamp)
}

func TestCycleWithoutClimateUsesDefaults(t *testing.T) {
	clk := clock.NewFake(start)
	aq := &scriptedAirQuality{
		aqi:  sequence{vals: []int{1}},
		tvoc: sequence{vals: []int{100}},
		eco2: sequence{vals: []int{400}},
	}
	co2 := sensor.NewAirQuality(aq, 2, sensor.DefaultAirQualityPolicy(), clk)
	c := New(Config{
		Node: 1, Samples: 2, DefaultTemperature: 25, DefaultHumidity: 50,
		Lock: bus.NewLock(), Clock: clk, Sensors: []sensor.Sensor{co2},
	})

	snap, err := c.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, [][2]float64{{25, 50}, {25, 50}}, aq.compensations)
	assert.Equal(t, model.Float(25), snap.Readings[model.KindAirQuality].Values["temperature_compensation"])
}

func TestCycleHoldsLockAndExcludesFailedSensor(t *testing.T) {
	clk := clock.NewFake(start)
	lock := bus.NewLock()
	good := newProbe(model.KindInfrared, lock, 4)
	bad := newProbe(model.KindUV, lock, 4)
	bad.failAt = 1
	obs := &recordingObserver{}
	sink := &recordingSink{}

	c := New(Config{
		Node: 1, Samples: 4, ReadingInterval: time.Millisecond,
		Lock: lock, Clock: clk, Sensors: []sensor.Sensor{good, bad},
		Sinks: []Sink{sink}, Observer: obs,
	})

	snap, err := c.RunCycle(context.Background())
	require.NoError(t, err)
	assert.True(t, good.heldAll)
	assert.True(t, bad.heldAll)
	assert.Equal(t, 2, bad.calls, "failed sensor is not polled again this cycle")

	require.Len(t, snap.Readings, 1)
	assert.Contains(t, snap.Readings, model.KindInfrared)
	assert.LessOrEqual(t, len(snap.Readings), len(c.cfg.Sensors))
	assert.Equal(t, []string{"UV_LTR390:collect", "UV_LTR390:reduce"}, obs.failures)
	assert.Equal(t, 1, obs.cycles)
	require.Len(t, sink.snaps, 1)
	assert.Same(t, snap, sink.snaps[0])
}

func TestCycleToleratesCameraAndSinkFaults(t *testing.T) {
	clk := clock.NewFake(start)
	lock := bus.NewLock()
	cam := &fakeCamera{err: errors.New("rpicam-still: no cameras available")}
	sink := &recordingSink{err: errors.New("hub unreachable")}
	obs := &recordingObserver{}

	c := New(Config{
		Node: 1, Samples: 1, Lock: lock, Clock: clk,
		Sensors: []sensor.Sensor{newProbe(model.KindColor, lock, 1)},
		Camera:  cam, Sinks: []Sink{sink}, Observer: obs,
	})
	snap, err := c.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Len(t, snap.Readings, 1)
	assert.Equal(t, 1, cam.captures)
	assert.Equal(t, []string{"Camera:capture"}, obs.failures)
	assert.Equal(t, []string{"recorder"}, obs.sinks)
}

func TestCycleWaitsForBusLock(t *testing.T) {
	clk := clock.NewFake(start)
	lock := bus.NewLock()
	require.NoError(t, lock.Acquire(context.Background()))

	c := New(Config{Node: 1, Samples: 1, Lock: lock, Clock: clk,
		Sensors: []sensor.Sensor{newProbe(model.KindColor, lock, 1)}})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.RunCycle(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Nil(t, c.Cell().Latest())
}

func TestRunAlignsCyclesToStagger(t *testing.T) {
	clk := clock.NewFake(start)
	lock := bus.NewLock()
	sink := &recordingSink{}
	cam := &fakeCamera{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	waits := 0
	clk.OnSleep = func(d time.Duration) {
		if d >= time.Minute {
			waits++
			if waits == 2 {
				cancel()
			}
		}
	}

	c := New(Config{
		Node: 1, Samples: 2, ReadingInterval: time.Second, Stagger: 20 * time.Minute,
		Lock: lock, Clock: clk, Camera: cam,
		Sensors: []sensor.Sensor{newProbe(model.KindInfrared, lock, 2)},
		Sinks:   []Sink{sink},
		Cell:    &snapshot.Cell{},
	})

	err := c.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, sink.snaps, 2)
	assert.Equal(t, start.Add(2*time.Second), sink.snaps[0].Timestamp)
	assert.Equal(t, time.Date(2024, 6, 3, 10, 0, 2, 0, time.UTC), sink.snaps[1].Timestamp)
	assert.Equal(t, 2, cam.captures)
	assert.Equal(t, time.Date(2024, 6, 3, 10, 20, 0, 0, time.UTC), clk.Now())
}
