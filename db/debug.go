package db

import (
	"github.com/smartcrop/sensor-node/internal/model"
)

// RecentSnapshotsCLI opens the database at dbPath and returns its newest snapshots.
func RecentSnapshotsCLI(dbPath string, limit int) ([]*model.Snapshot, error) {
	conn, err := Open(dbPath)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	return GetRecentSnapshots(conn, limit)
}
