package acquisition

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/smartcrop/sensor-node/internal/bus"
	"github.com/smartcrop/sensor-node/internal/clock"
	"github.com/smartcrop/sensor-node/internal/model"
	"github.com/smartcrop/sensor-node/internal/scheduler"
	"github.com/smartcrop/sensor-node/internal/sensor"
	"github.com/smartcrop/sensor-node/internal/snapshot"
)

// Sink receives every published snapshot: storage, transmission, metrics.
type Sink interface {
	Name() string
	Consume(ctx context.Context, snap *model.Snapshot) error
}

// Camera takes one picture per cycle and returns the file it wrote.
type Camera interface {
	Capture(ctx context.Context) (string, error)
}

// ImageSink takes ownership of a captured image file.
type ImageSink interface {
	Name() string
	HandleImage(ctx context.Context, path string) error
}

// Observer is notified of cycle outcomes; the metrics package implements it.
type Observer interface {
	CycleCompleted(d time.Duration, snap *model.Snapshot)
	SensorFailed(kind model.Kind, stage string)
	SinkFailed(sink string)
}

type nopObserver struct{}

func (nopObserver) CycleCompleted(time.Duration, *model.Snapshot) {}
func (nopObserver) SensorFailed(model.Kind, string) {}
func (nopObserver) SinkFailed(string) {}

type Config struct {
	Node               int
	Samples            int
	ReadingInterval    time.Duration
	Stagger            time.Duration
	DefaultTemperature float64
	DefaultHumidity    float64

	Lock    *bus.Lock
	Clock   clock.Clock
	Sensors []sensor.Sensor
	Cell    *snapshot.Cell

	// Optional collaborators.
	Camera   Camera
	Images   []ImageSink
	Sinks    []Sink
	Observer Observer
	Health   *Health
}

type Controller struct {
	cfg Config
}

func New(cfg Config) *Controller {
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	if cfg.Cell == nil {
		cfg.Cell = &snapshot.Cell{}
	}
	return &Controller{cfg: cfg}
}

func (c *Controller) Cell() *snapshot.Cell {
	return c.cfg.Cell
}

// Run executes a cycle immediately and then one per stagger boundary until ctx is
// cancelled. Cycle faults are logged and never stop the loop.
func (c *Controller) Run(ctx context.Context) error {
	log.Info().
		Int("node", c.cfg.Node).
		Int("sensors", len(c.cfg.Sensors)).
		Int("samples", c.cfg.Samples).
		Dur("stagger", c.cfg.Stagger).
		Msg("Starting acquisition loop")

	for {
		if _, err := c.RunCycle(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error().Err(err).Msg("Acquisition cycle failed")
		}

		now := c.cfg.Clock.Now()
		delay := scheduler.NextDelay(now, c.cfg.Stagger)
		log.Info().
			Dur("delay", delay).
			Time("next", now.Add(delay)).
			Msg("Waiting for next acquisition cycle")
		if err := c.cfg.Clock.Sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// RunCycle performs one full acquisition and publishes its snapshot. The bus lock is
// held from sensor reset until the snapshot is published; camera capture and sink
// delivery happen outside it.
func (c *Controller) RunCycle(ctx context.Context) (*model.Snapshot, error) {
	start := c.cfg.Clock.Now()
	c.captureImage(ctx)

	var snap *model.Snapshot
	err := c.cfg.Lock.Do(ctx, func() error {
		for _, s := range c.cfg.Sensors {
			s.Reset()
		}
		ordered := Order(c.cfg.Sensors)
		comp := newCompensator(ordered, c.cfg.DefaultTemperature, c.cfg.DefaultHumidity)

		if err := c.sample(ctx, ordered, comp); err != nil {
			return err
		}
		snap = snapshot.Assemble(c.cfg.Node, c.cfg.Clock.Now(), c.reduce(ordered))
		c.cfg.Cell.Publish(snap)

		for _, s := range c.cfg.Sensors {
			s.Reset()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Int("readings", len(snap.Readings)).
		Int("sensors", len(c.cfg.Sensors)).
		Time("timestamp", snap.Timestamp).
		Msg("Snapshot published")

	if c.cfg.Health != nil {
		c.cfg.Health.Observe(c.kinds(), snap)
	}
	c.deliver(ctx, snap)
	c.cfg.Observer.CycleCompleted(c.cfg.Clock.Now().Sub(start), snap)
	return snap, nil
}

// sample runs the configured number of rounds over every sensor. A sensor whose
// collection fails is skipped for the rest of the cycle; it cannot reach the sample
// count and will not reduce.
func (c *Controller) sample(ctx context.Context, ordered []sensor.Sensor, comp *compensator) error {
	failed := make(map[model.Kind]bool)
	for round := 0; round < c.cfg.Samples; round++ {
		for _, s := range ordered {
			kind := s.Kind()
			if failed[kind] {
				continue
			}
			if comp.isTarget(s) {
				comp.inject()
			}
			if err := s.Collect(ctx); err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				failed[kind] = true
				c.cfg.Observer.SensorFailed(kind, "collect")
				log.Warn().Err(err).Str("sensor", string(kind)).Int("round", round).Msg("Sample collection failed")
			}
		}
		if err := c.cfg.Clock.Sleep(ctx, c.cfg.ReadingInterval); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) reduce(ordered []sensor.Sensor) []model.Reading {
	readings := make([]model.Reading, 0, len(ordered))
	for _, s := range ordered {
		kind := s.Kind()
		if !s.Reduce() {
			c.cfg.Observer.SensorFailed(kind, "reduce")
			log.Warn().Str("sensor", string(kind)).Msg("Sensor did not collect a full sample set, skipping")
			continue
		}
		r, ok := s.Package(c.cfg.Node)
		if !ok {
			c.cfg.Observer.SensorFailed(kind, "package")
			log.Warn().Str("sensor", string(kind)).Msg("Sensor reading rejected, skipping")
			continue
		}
		readings = append(readings, r)
	}
	return readings
}

func (c *Controller) captureImage(ctx context.Context) {
	if c.cfg.Camera == nil {
		return
	}
	path, err := c.cfg.Camera.Capture(ctx)
	if err != nil {
		c.cfg.Observer.SensorFailed(model.KindCamera, "capture")
		log.Error().Err(err).Msg("Image capture failed")
		return
	}
	for _, img := range c.cfg.Images {
		if err := img.HandleImage(ctx, path); err != nil {
			c.cfg.Observer.SinkFailed(img.Name())
			log.Error().Err(err).Str("sink", img.Name()).Str("path", path).Msg("Failed to hand off image")
		}
	}
}

func (c *Controller) deliver(ctx context.Context, snap *model.Snapshot) {
	for _, sink := range c.cfg.Sinks {
		if err := sink.Consume(ctx, snap); err != nil {
			if errors.Is(err, context.Canceled) && ctx.Err() != nil {
				return
			}
			c.cfg.Observer.SinkFailed(sink.Name())
			log.Error().Err(err).Str("sink", sink.Name()).Msg("Failed to deliver snapshot")
		}
	}
}

func (c *Controller) kinds() []model.Kind {
	out := make([]model.Kind, 0, len(c.cfg.Sensors))
	for _, s := range c.cfg.Sensors {
		out = append(out, s.Kind())
	}
	return out
}
