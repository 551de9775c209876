package snapshot

import (
	"sync/atomic"
	"time"

	"github.com/smartcrop/sensor-node/internal/model"
)

// Assemble builds a snapshot from the readings packaged this cycle. Readings without
// values are left out, and a later reading of the same kind replaces an earlier one.
func Assemble(node int, ts time.Time, readings []model.Reading) *model.Snapshot {
	s := &model.Snapshot{
		Node:      node,
		Timestamp: ts,
		Readings:  make(map[model.Kind]model.Reading, len(readings)),
	}
	for _, r := range readings {
		if len(r.Values) == 0 {
			continue
		}
		s.Readings[r.Sensor] = r
	}
	return s
}

// Cell holds the latest published snapshot. Readers get the snapshot pointer as it was
// at the time of the call; a publish swaps in a new one and never touches the old.
type Cell struct {
	p atomic.Pointer[model.Snapshot]
}

func (c *Cell) Publish(s *model.Snapshot) {
	c.p.Store(s)
}

// Latest returns nil until the first cycle completes.
func (c *Cell) Latest() *model.Snapshot {
	return c.p.Load()
}
