package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/smartcrop/sensor-node/internal/model"
)

func TestMetricsRecordCycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	snap := &model.Snapshot{
		Node:      1,
		Timestamp: time.Unix(1717405200, 0),
		Readings: map[model.Kind]model.Reading{
			model.KindTempHumidity: {Sensor: model.KindTempHumidity, Values: map[string]model.Value{
				"temperature": model.Float(21.5),
			}},
			model.KindColor: {Sensor: model.KindColor, Values: map[string]model.Value{
				"color_rgb_bytes": model.Tuple(1, 2, 3),
				"lux":             model.Float(80),
			}},
		},
	}
	m.CycleCompleted(3*time.Second, snap)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.cycles))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.readings))
	assert.Equal(t, 1717405200.0, testutil.ToFloat64(m.lastCycle))
	assert.Equal(t, 21.5, testutil.ToFloat64(m.values.WithLabelValues("TEMP_AHT21", "temperature")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.values), "tuples are not exported")
	assert.Equal(t, 1, testutil.CollectAndCount(m.cycleDuration))
}

func TestMetricsFailures(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.SensorFailed(model.KindUV, "collect")
	m.SensorFailed(model.KindUV, "collect")
	m.SinkFailed("tcp")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.sensorFailures.WithLabelValues("UV_LTR390", "collect")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sinkFailures.WithLabelValues("tcp")))
}
