// Package display cycles the latest snapshot and the time to the next cycle across
// the node's character LCD. It shares the I2C bus with the sensors and takes the bus
// lock for each screen write only.
package display

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/smartcrop/sensor-node/internal/bus"
	"github.com/smartcrop/sensor-node/internal/clock"
	"github.com/smartcrop/sensor-node/internal/scheduler"
	"github.com/smartcrop/sensor-node/internal/snapshot"
)

type Writer interface {
	WriteScreen(Screen) error
}

type Config struct {
	Lock     *bus.Lock
	Clock    clock.Clock
	Cell     *snapshot.Cell
	Stagger  time.Duration
	PageHold time.Duration
	Refresh  time.Duration
}

type Monitor struct {
	w   Writer
	cfg Config
}

func NewMonitor(w Writer, cfg Config) *Monitor {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	return &Monitor{w: w, cfg: cfg}
}

// Run shows every page of the latest snapshot for PageHold each, then the countdown
// to the next cycle, and repeats every Refresh until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	log.Info().Msg("Display monitor started")
	for {
		if snap := m.cfg.Cell.Latest(); snap != nil {
			for _, page := range SnapshotPages(snap) {
				if err := m.show(ctx, page); err != nil {
					return err
				}
				if err := m.cfg.Clock.Sleep(ctx, m.cfg.PageHold); err != nil {
					return err
				}
			}
		}

		now := m.cfg.Clock.Now()
		remaining := scheduler.NextDelay(now, m.cfg.Stagger)
		if err := m.show(ctx, CountdownScreen(int(remaining.Seconds()))); err != nil {
			return err
		}
		if err := m.cfg.Clock.Sleep(ctx, m.cfg.Refresh); err != nil {
			return err
		}
	}
}

// show writes one screen under the bus lock. Display faults are logged and do not
// stop the loop; only cancellation does.
func (m *Monitor) show(ctx context.Context, s Screen) error {
	err := m.cfg.Lock.Do(ctx, func() error {
		return m.w.WriteScreen(s)
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn().Err(err).Msg("Failed to write to display")
	}
	return nil
}
