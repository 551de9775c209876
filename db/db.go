package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/smartcrop/sensor-node/internal/config"
)

const schema = `
CREATE TABLE IF NOT EXISTS node (
	id INTEGER PRIMARY KEY CHECK(id=1),
	node_id INTEGER NOT NULL,
	samples INTEGER NOT NULL,
	stagger_seconds INTEGER NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sensors (
	kind TEXT PRIMARY KEY,
	power_pin INTEGER,
	address INTEGER
);

CREATE TABLE IF NOT EXISTS snapshots (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	node_id INTEGER NOT NULL,
	taken_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS snapshots_taken_at ON snapshots(taken_at);

CREATE TABLE IF NOT EXISTS readings (
	snapshot_id INTEGER NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
	sensor TEXT NOT NULL,
	attribute TEXT NOT NULL,
	value TEXT NOT NULL,
	PRIMARY KEY (snapshot_id, sensor, attribute)
);

CREATE TABLE IF NOT EXISTS images (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	node_id INTEGER NOT NULL,
	path TEXT NOT NULL,
	taken_at TEXT NOT NULL
);
`

// columns added after the first deployed schema
var migrations = []struct {
	table, column, ddl string
}{
	{"snapshots", "reading_count", "ALTER TABLE snapshots ADD COLUMN reading_count INTEGER NOT NULL DEFAULT 0"},
}

// Open opens (creating if needed) the sqlite history database and brings its schema
// up to date. SQLite allows one writer, so the pool is capped at one connection.
func Open(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	conn, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := ApplyMigrations(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// ApplyMigrations creates missing tables and adds columns introduced since the
// database was first created.
func ApplyMigrations(conn *sql.DB) error {
	if _, err := conn.Exec(schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	for _, m := range migrations {
		exists, err := hasColumn(conn, m.table, m.column)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if _, err := conn.Exec(m.ddl); err != nil {
			return fmt.Errorf("failed to add %s.%s: %w", m.table, m.column, err)
		}
		log.Info().Str("table", m.table).Str("column", m.column).Msg("Database column added")
	}
	return nil
}

func hasColumn(conn *sql.DB, table, column string) (bool, error) {
	rows, err := conn.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, fmt.Errorf("failed to inspect table %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid          int
			name, typ    string
			notNull      bool
			defaultValue *string
			pk           int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultValue, &pk); err != nil {
			return false, fmt.Errorf("failed to scan table info: %w", err)
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// SeedDatabase records the node identity and its declared sensors so stored history
// can be read without the config file.
func SeedDatabase(conn *sql.DB, cfg *config.Config) error {
	tx, err := StartTransaction(conn)
	if err != nil {
		return err
	}
	defer RollbackTransaction(tx)

	_, err = tx.Exec(`INSERT OR REPLACE INTO node (id, node_id, samples, stagger_seconds, updated_at) VALUES (1, ?, ?, ?, ?)`,
		cfg.NodeID, cfg.Sampling.Samples, int(cfg.Schedule.Stagger.Seconds()), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to insert node record: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM sensors`); err != nil {
		return fmt.Errorf("failed to clear sensors: %w", err)
	}
	for _, s := range cfg.Sensors {
		_, err = tx.Exec(`INSERT INTO sensors (kind, power_pin, address) VALUES (?, ?, ?)`, string(s.Kind), s.PowerPin, s.Address)
		if err != nil {
			return fmt.Errorf("failed to insert sensor %s: %w", s.Kind, err)
		}
	}

	return CommitTransaction(tx)
}
