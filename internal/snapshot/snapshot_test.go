package snapshot

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartcrop/sensor-node/internal/model"
)

func TestAssembleSkipsEmptyReadings(t *testing.T) {
	ts := time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)
	snap := Assemble(2, ts, []model.Reading{
		{Sensor: model.KindTempHumidity, Node: 2, Values: map[string]model.Value{"temperature": model.Float(21)}},
		{Sensor: model.KindUV, Node: 2},
	})
	assert.Equal(t, 2, snap.Node)
	assert.Equal(t, ts, snap.Timestamp)
	require.Len(t, snap.Readings, 1)
	assert.Contains(t, snap.Readings, model.KindTempHumidity)
}

func TestCellPublishReplaces(t *testing.T) {
	var c Cell
	assert.Nil(t, c.Latest())

	first := Assemble(1, time.Unix(100, 0), nil)
	c.Publish(first)
	held := c.Latest()
	assert.Same(t, first, held)

	second := Assemble(1, time.Unix(200, 0), nil)
	c.Publish(second)
	assert.Same(t, second, c.Latest())
	assert.Equal(t, time.Unix(100, 0), held.Timestamp, "readers keep the snapshot they loaded")
}

func TestCellConcurrentReaders(t *testing.T) {
	var c Cell
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				if s := c.Latest(); s != nil {
					_ = s.Timestamp
				}
			}
		}()
	}
	for i := 0; i < 1000; i++ {
		c.Publish(Assemble(1, time.Unix(int64(i), 0), nil))
	}
	wg.Wait()
	assert.Equal(t, time.Unix(999, 0), c.Latest().Timestamp)
}
