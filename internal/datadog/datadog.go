package datadog

import (
	"context"
	"strings"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/rs/zerolog/log"

	"github.com/smartcrop/sensor-node/internal/model"
)

type gauger interface {
	Gauge(name string, value float64, tags []string, rate float64) error
}

var dogstatsd gauger

func InitMetrics(addr, namespace string, tags []string) {
	client, err := statsd.New(addr)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create DogStatsD client")
		return
	}

	client.Namespace = namespace
	client.Tags = tags
	dogstatsd = client

	log.Info().
		Str("addr", addr).
		Str("namespace", namespace).
		Strs("tags", tags).
		Msg("Datadog metrics initialized")
}

func Gauge(name string, value float64, tags ...string) {
	if dogstatsd != nil {
		err := dogstatsd.Gauge(name, value, tags, 1)
		if err != nil {
			log.Warn().Err(err).Str("metric", name).Msg("Failed to emit gauge metric")
		}
	}
}

// MetricName renders sensor.<kind>.<attribute> in lower case.
func MetricName(kind model.Kind, attr string) string {
	return "sensor." + strings.ToLower(string(kind)) + "." + strings.ToLower(attr)
}

// Sink emits every scalar attribute of a snapshot as a gauge.
type Sink struct{}

func (Sink) Name() string { return "datadog" }

func (Sink) Consume(_ context.Context, snap *model.Snapshot) error {
	for kind, r := range snap.Readings {
		for attr, v := range r.Values {
			if v.IsTuple() {
				continue
			}
			Gauge(MetricName(kind, attr), v.Float(), "component:sensor", "sensor:"+string(kind))
		}
	}
	return nil
}
