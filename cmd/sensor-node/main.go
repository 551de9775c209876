package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"periph.io/x/periph/conn/i2c"

	"github.com/smartcrop/sensor-node/db"
	"github.com/smartcrop/sensor-node/internal/acquisition"
	"github.com/smartcrop/sensor-node/internal/api"
	"github.com/smartcrop/sensor-node/internal/bus"
	"github.com/smartcrop/sensor-node/internal/camera"
	"github.com/smartcrop/sensor-node/internal/clock"
	"github.com/smartcrop/sensor-node/internal/config"
	"github.com/smartcrop/sensor-node/internal/datadog"
	"github.com/smartcrop/sensor-node/internal/display"
	"github.com/smartcrop/sensor-node/internal/env"
	"github.com/smartcrop/sensor-node/internal/export"
	"github.com/smartcrop/sensor-node/internal/gpio"
	"github.com/smartcrop/sensor-node/internal/logging"
	"github.com/smartcrop/sensor-node/internal/metrics"
	"github.com/smartcrop/sensor-node/internal/notifications"
	"github.com/smartcrop/sensor-node/internal/outbox"
	"github.com/smartcrop/sensor-node/internal/power"
	"github.com/smartcrop/sensor-node/internal/sensor"
	"github.com/smartcrop/sensor-node/internal/snapshot"
	"github.com/smartcrop/sensor-node/internal/store"
	"github.com/smartcrop/sensor-node/internal/transmit"
	"github.com/smartcrop/sensor-node/system/shutdown"
)

func main() {
	cfg := config.Load()
	logging.Init(cfg.LogLevel, cfg.LogFile)
	env.Cfg = &cfg

	log.Info().
		Int("node", cfg.NodeID).
		Str("config_file", cfg.ConfigFile).
		Dur("stagger", cfg.Schedule.Stagger).
		Msg("Starting sensor node")

	gpio.SetSafeMode(cfg.SafeMode)
	if cfg.SafeMode {
		log.Warn().Msg("SAFE MODE ENABLED: GPIO writes are disabled system-wide")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clk := clock.Real{}

	rails, leds := power.RailsFor(&cfg)
	pm := power.NewManager(clk, cfg.Power.Settle)
	if err := pm.Enable(ctx, rails); err != nil {
		shutdown.ShutdownWithError(pm, err, "Interrupted while powering sensors")
	}
	pm.Disable(leds)
	if !cfg.SafeMode {
		if err := pm.Verify(); err != nil {
			log.Warn().Err(err).Msg("Sensor rail read-back does not match")
		}
	}
	defer shutdown.Shutdown(pm)

	raw, err := bus.Open(cfg.Bus.Name)
	if err != nil {
		shutdown.ShutdownWithError(pm, err, "Failed to open I2C bus")
	}
	defer raw.Close()
	lock := bus.NewLock()
	guarded := bus.Guard(raw, lock)

	sensors := buildSensors(ctx, &cfg, guarded, lock, clk)
	log.Info().Int("sensors", len(sensors)).Msg("Sensors ready")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	observer := metrics.New(reg)

	var conn *sql.DB
	if cfg.Storage.Database != "" {
		conn, err = db.Open(cfg.Storage.Database)
		if err != nil {
			shutdown.ShutdownWithError(pm, err, "Failed to open database")
		}
		defer conn.Close()
		if err := db.SeedDatabase(conn, &cfg); err != nil {
			log.Warn().Err(err).Msg("Failed to record node configuration")
		}
	}

	cell := &snapshot.Cell{}
	sinks, closers := buildSinks(&cfg, conn, cell)
	defer func() {
		for _, c := range closers {
			c()
		}
	}()

	var health *acquisition.Health
	notifications.Init(cfg.Notifications.NtfyTopic)
	if notifications.Enabled() {
		health = acquisition.NewHealth(cfg.NodeID, cfg.Notifications.FailureAlertCycles, notifications.Ntfy{Priority: 4, Tags: []string{"seedling"}})
	}

	acq := acquisition.Config{
		Node:               cfg.NodeID,
		Samples:            cfg.Sampling.Samples,
		ReadingInterval:    cfg.Sampling.ReadingInterval,
		Stagger:            cfg.Schedule.Stagger,
		DefaultTemperature: *cfg.Sampling.DefaultTemperature,
		DefaultHumidity:    *cfg.Sampling.DefaultHumidity,
		Lock:               lock,
		Clock:              clk,
		Sensors:            sensors,
		Cell:               cell,
		Sinks:              sinks,
		Observer:           observer,
		Health:             health,
	}
	if cfg.CameraEnabled() {
		acq.Camera = camera.New(cfg.Camera, clk)
		acq.Images = buildImageSinks(&cfg, conn)
	}

	if cfg.API.Port != 0 {
		server := api.NewServer(conn, cell, clk, cfg.Schedule.Stagger, reg)
		go func() {
			if err := server.Start(ctx, cfg.API.Port); err != nil {
				log.Error().Err(err).Msg("REST API server stopped")
			}
		}()
	}

	if cfg.Display.Enabled {
		lcd := display.NewLCD(guarded, cfg.Display.Address)
		if err := lock.Do(ctx, lcd.Init); err != nil {
			log.Error().Err(err).Msg("Failed to initialize display, continuing without it")
		} else {
			monitor := display.NewMonitor(lcd, display.Config{
				Lock:     lock,
				Clock:    clk,
				Cell:     cell,
				Stagger:  cfg.Schedule.Stagger,
				PageHold: cfg.Display.PageHold,
				Refresh:  cfg.Display.Refresh,
			})
			go monitor.Run(ctx)
		}
	}

	if err := acquisition.New(acq).Run(ctx); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("Acquisition stopped")
	}
	log.Info().Msg("Sensor node shutting down")
}

// buildSensors constructs the configured sensors with the bus lock held, since
// construction probes the devices.
func buildSensors(ctx context.Context, cfg *config.Config, b i2c.Bus, lock *bus.Lock, clk clock.Clock) []sensor.Sensor {
	specs := make([]sensor.Spec, 0, len(cfg.Sensors))
	for _, s := range cfg.Sensors {
		specs = append(specs, sensor.Spec{Kind: s.Kind, Address: s.Address})
	}
	settings := sensor.Settings{
		Samples: cfg.Sampling.Samples,
		AirQuality: sensor.AirQualityPolicy{
			Attempts:           cfg.Sampling.CO2Attempts,
			RetryInterval:      cfg.Sampling.CO2RetryInterval,
			RequireNonZero:     *cfg.Sampling.RequireNonZeroAirQuality,
			DefaultTemperature: *cfg.Sampling.DefaultTemperature,
			DefaultHumidity:    *cfg.Sampling.DefaultHumidity,
		},
		Clock: clk,
	}

	var sensors []sensor.Sensor
	err := lock.Do(ctx, func() error {
		sensors = sensor.DefaultRegistry.Build(b, specs, settings)
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("Interrupted while initializing sensors")
	}
	return sensors
}

// buildSinks wires every configured snapshot consumer. The returned closers release
// resources the sinks hold.
// buildImageSinks lists the image handlers in run order. The copier may delete the
// local file, so it goes last.
func buildImageSinks(cfg *config.Config, conn *sql.DB) []acquisition.ImageSink {
	var sinks []acquisition.ImageSink
	if conn != nil {
		sinks = append(sinks, &db.ImageLog{DB: conn, Node: cfg.NodeID})
	}
	if cfg.ImageCopy.Enabled {
		sinks = append(sinks, &camera.Copier{Target: cfg.ImageCopy.Target, KeepLocal: cfg.ImageCopy.KeepLocal})
	}
	return sinks
}

func buildSinks(cfg *config.Config, conn *sql.DB, cell *snapshot.Cell) ([]acquisition.Sink, []func()) {
	var (
		sinks   []acquisition.Sink
		closers []func()
	)

	if cfg.Storage.LatestFile != "" {
		st := store.New(cfg.Storage.LatestFile)
		if prev, err := st.Load(); err != nil {
			log.Debug().Err(err).Msg("No previous snapshot loaded")
		} else {
			cell.Publish(prev)
			log.Info().Time("timestamp", prev.Timestamp).Msg("Loaded previous snapshot")
		}
		sinks = append(sinks, st)
	}
	if conn != nil {
		sinks = append(sinks, &db.Sink{DB: conn, Retain: cfg.Storage.Retain})
	}
	if cfg.Storage.XLSXFile != "" {
		sinks = append(sinks, export.NewWorkbook(cfg.Storage.XLSXFile))
	}

	t := cfg.Transmit
	reliable := func(name string, tr transmit.Transmitter) transmit.Transmitter {
		if t.OutboxDir == "" {
			return tr
		}
		o, err := outbox.Open(filepath.Join(t.OutboxDir, name))
		if err != nil {
			log.Error().Err(err).Str("transmitter", name).Msg("Outbox unavailable, sending without retry")
			return tr
		}
		o.Limit = t.OutboxLimit
		closers = append(closers, func() { o.Close() })
		return transmit.NewReliable(tr, o)
	}
	if t.TCPAddr != "" {
		sinks = append(sinks, transmit.NewSink("tcp", reliable("tcp", &transmit.TCP{Addr: t.TCPAddr, Timeout: t.Timeout})))
	}
	if t.HTTPURL != "" {
		sinks = append(sinks, transmit.NewSink("http", reliable("http", transmit.NewHTTP(t.HTTPURL, t.Gzip, t.Timeout))))
	}

	if cfg.Datadog.Enabled {
		datadog.InitMetrics(cfg.Datadog.AgentAddr, cfg.Datadog.Namespace, cfg.Datadog.Tags)
		sinks = append(sinks, datadog.Sink{})
	}
	return sinks, closers
}
