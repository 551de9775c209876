package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/smartcrop/sensor-node/internal/model"
)

// GetRecentSnapshots returns up to limit snapshots, newest first, with their readings.
func GetRecentSnapshots(db *sql.DB, limit int) ([]*model.Snapshot, error) {
	rows, err := db.Query(`
		SELECT s.id, s.node_id, s.taken_at, r.sensor, r.attribute, r.value
		FROM snapshots s
		LEFT JOIN readings r ON r.snapshot_id = s.id
		WHERE s.id IN (SELECT id FROM snapshots ORDER BY taken_at DESC, id DESC LIMIT ?)
		ORDER BY s.taken_at DESC, s.id DESC`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var (
		out    []*model.Snapshot
		byID   = map[int64]*model.Snapshot{}
		sensor sql.NullString
		attr   sql.NullString
		value  sql.NullString
	)
	for rows.Next() {
		var (
			id      int64
			node    int
			takenAt string
		)
		if err := rows.Scan(&id, &node, &takenAt, &sensor, &attr, &value); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}

		snap, ok := byID[id]
		if !ok {
			ts, err := time.Parse(time.RFC3339Nano, takenAt)
			if err != nil {
				return nil, fmt.Errorf("bad timestamp on snapshot %d: %w", id, err)
			}
			snap = &model.Snapshot{Node: node, Timestamp: ts, Readings: map[model.Kind]model.Reading{}}
			byID[id] = snap
			out = append(out, snap)
		}
		if !sensor.Valid {
			continue
		}

		var v model.Value
		if err := json.Unmarshal([]byte(value.String), &v); err != nil {
			return nil, fmt.Errorf("bad value for %s.%s: %w", sensor.String, attr.String, err)
		}
		kind := model.Kind(sensor.String)
		r, ok := snap.Readings[kind]
		if !ok {
			r = model.Reading{Sensor: kind, Node: node, Values: map[string]model.Value{}}
		}
		r.Values[attr.String] = v
		snap.Readings[kind] = r
	}
	return out, rows.Err()
}

func GetSnapshotCount(db *sql.DB) (int, error) {
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM snapshots`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count snapshots: %w", err)
	}
	return n, nil
}

// GetConfiguredSensors returns the sensor kinds recorded by SeedDatabase.
func GetConfiguredSensors(db *sql.DB) ([]model.Kind, error) {
	rows, err := db.Query(`SELECT kind FROM sensors ORDER BY kind`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sensors: %w", err)
	}
	defer rows.Close()

	var kinds []model.Kind
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("failed to scan sensor: %w", err)
		}
		kinds = append(kinds, model.Kind(k))
	}
	return kinds, rows.Err()
}

func GetNodeID(db *sql.DB) (int, error) {
	var id int
	if err := db.QueryRow(`SELECT node_id FROM node WHERE id = 1`).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to get node id: %w", err)
	}
	return id, nil
}
