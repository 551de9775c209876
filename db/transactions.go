package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/smartcrop/sensor-node/internal/model"
)

// StartTransaction starts a new database transaction.
func StartTransaction(db *sql.DB) (*sql.Tx, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	return tx, nil
}

// CommitTransaction commits the given transaction.
func CommitTransaction(tx *sql.Tx) error {
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RollbackTransaction rolls back the given transaction.
func RollbackTransaction(tx *sql.Tx) {
	tx.Rollback()
}

// timeLayout is fixed width so taken_at sorts chronologically as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// InsertSnapshot stores a snapshot and all of its readings atomically.
func InsertSnapshot(db *sql.DB, snap *model.Snapshot) (int64, error) {
	tx, err := StartTransaction(db)
	if err != nil {
		return 0, err
	}
	id, err := InsertSnapshotWithTx(tx, snap)
	if err != nil {
		RollbackTransaction(tx)
		return 0, err
	}
	return id, CommitTransaction(tx)
}

func InsertSnapshotWithTx(tx *sql.Tx, snap *model.Snapshot) (int64, error) {
	res, err := tx.Exec(`INSERT INTO snapshots (node_id, taken_at, reading_count) VALUES (?, ?, ?)`,
		snap.Node, snap.Timestamp.UTC().Format(timeLayout), len(snap.Readings))
	if err != nil {
		return 0, fmt.Errorf("insert snapshot: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("snapshot id: %w", err)
	}

	for kind, r := range snap.Readings {
		for attr, v := range r.Values {
			encoded, err := json.Marshal(v)
			if err != nil {
				return 0, fmt.Errorf("encode %s.%s: %w", kind, attr, err)
			}
			_, err = tx.Exec(`INSERT INTO readings (snapshot_id, sensor, attribute, value) VALUES (?, ?, ?, ?)`,
				id, string(kind), attr, string(encoded))
			if err != nil {
				return 0, fmt.Errorf("insert reading %s.%s: %w", kind, attr, err)
			}
		}
	}
	return id, nil
}

// PruneSnapshots deletes all but the newest keep snapshots.
func PruneSnapshots(db *sql.DB, keep int) (int64, error) {
	tx, err := StartTransaction(db)
	if err != nil {
		return 0, err
	}
	const keepIDs = `SELECT id FROM snapshots ORDER BY taken_at DESC, id DESC LIMIT ?`
	if _, err := tx.Exec(`DELETE FROM readings WHERE snapshot_id NOT IN (`+keepIDs+`)`, keep); err != nil {
		RollbackTransaction(tx)
		return 0, fmt.Errorf("prune readings: %w", err)
	}
	res, err := tx.Exec(`DELETE FROM snapshots WHERE id NOT IN (`+keepIDs+`)`, keep)
	if err != nil {
		RollbackTransaction(tx)
		return 0, fmt.Errorf("prune snapshots: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, CommitTransaction(tx)
}

func InsertImage(db *sql.DB, node int, path string, takenAt time.Time) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("start transaction: %w", err)
	}
	_, err = tx.Exec(`INSERT INTO images (node_id, path, taken_at) VALUES (?, ?, ?)`, node, path, takenAt.UTC().Format(timeLayout))
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("insert image: %w", err)
	}
	return tx.Commit()
}
