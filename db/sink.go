package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/smartcrop/sensor-node/internal/model"
)

// Sink appends every snapshot to the history database and trims it to Retain rows.
type Sink struct {
	DB     *sql.DB
	Retain int
}

func (s *Sink) Name() string { return "sqlite" }

func (s *Sink) Consume(_ context.Context, snap *model.Snapshot) error {
	id, err := InsertSnapshot(s.DB, snap)
	if err != nil {
		return err
	}
	log.Debug().Int64("snapshot_id", id).Int("readings", len(snap.Readings)).Msg("Snapshot stored")

	if s.Retain > 0 {
		if n, err := PruneSnapshots(s.DB, s.Retain); err != nil {
			log.Warn().Err(err).Msg("Failed to prune snapshot history")
		} else if n > 0 {
			log.Debug().Int64("pruned", n).Msg("Old snapshots pruned")
		}
	}
	return nil
}

// ImageLog records captured image paths alongside the snapshot history.
type ImageLog struct {
	DB   *sql.DB
	Node int
	Now  func() time.Time
}

func (l *ImageLog) Name() string { return "sqlite-images" }

func (l *ImageLog) HandleImage(_ context.Context, path string) error {
	now := time.Now
	if l.Now != nil {
		now = l.Now
	}
	return InsertImage(l.DB, l.Node, path, now())
}
