// Package export keeps a local spreadsheet of snapshots, one sheet per sensor kind,
// for operators who pull the SD card instead of querying the hub.
package export

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"

	"github.com/smartcrop/sensor-node/db"
	"github.com/smartcrop/sensor-node/internal/model"
)

const defaultSheet = "Sheet1"

var fixedColumns = []string{"Timestamp", "Node"}

type Workbook struct {
	path string
	mu   sync.Mutex
}

func NewWorkbook(path string) *Workbook {
	return &Workbook{path: path}
}

func (w *Workbook) Name() string { return "xlsx" }

func (w *Workbook) Consume(_ context.Context, snap *model.Snapshot) error {
	return w.Append(snap)
}

// Append adds one row per reading to the sheet of its sensor kind, creating the
// workbook and sheets on first use. Attributes not yet in a sheet's header are added
// as new columns.
func (w *Workbook) Append(snaps ...*model.Snapshot) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, fresh, err := w.open()
	if err != nil {
		return err
	}
	defer f.Close()

	for _, snap := range snaps {
		for _, kind := range model.Kinds {
			r, ok := snap.Readings[kind]
			if !ok {
				continue
			}
			if err := appendReading(f, &fresh, snap.Timestamp, r); err != nil {
				return fmt.Errorf("failed to write %s row: %w", kind, err)
			}
		}
	}

	if dir := filepath.Dir(w.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create workbook directory: %w", err)
		}
	}
	if err := f.SaveAs(w.path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

func (w *Workbook) open() (*excelize.File, bool, error) {
	f, err := excelize.OpenFile(w.path)
	if err == nil {
		return f, false, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, false, fmt.Errorf("failed to open workbook: %w", err)
	}
	log.Info().Str("path", w.path).Msg("Creating new workbook")
	return excelize.NewFile(), true, nil
}

func appendReading(f *excelize.File, fresh *bool, ts time.Time, r model.Reading) error {
	sheet := string(r.Sensor)
	idx, err := f.GetSheetIndex(sheet)
	if err != nil {
		return err
	}
	if idx == -1 {
		if *fresh {
			f.SetSheetName(defaultSheet, sheet)
			*fresh = false
		} else if _, err := f.NewSheet(sheet); err != nil {
			return err
		}
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return err
	}
	var header []string
	if len(rows) > 0 {
		header = rows[0]
	} else {
		header = slices.Clone(fixedColumns)
	}
	header = extendHeader(header, r.Values)
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}

	row := make([]interface{}, len(header))
	row[0] = ts.Format(time.RFC3339)
	row[1] = r.Node
	for i, name := range header[len(fixedColumns):] {
		if v, ok := r.Values[name]; ok {
			row[i+len(fixedColumns)] = cellValue(v)
		}
	}
	cell, err := excelize.CoordinatesToCellName(1, max(len(rows), 1)+1)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &row)
}

// extendHeader appends attributes missing from header, sorted by name.
func extendHeader(header []string, values map[string]model.Value) []string {
	var missing []string
	for name := range values {
		if name != model.NodeKey && !slices.Contains(header, name) {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return append(header, missing...)
}

func cellValue(v model.Value) interface{} {
	switch {
	case v.IsTuple():
		return v.String()
	case v.IsInt():
		return int(v.Float())
	default:
		return v.Float()
	}
}

// FromDB writes up to limit stored snapshots, oldest first, to the workbook at path.
func FromDB(conn *sql.DB, path string, limit int) (int, error) {
	snaps, err := db.GetRecentSnapshots(conn, limit)
	if err != nil {
		return 0, err
	}
	slices.Reverse(snaps)
	if err := NewWorkbook(path).Append(snaps...); err != nil {
		return 0, err
	}
	return len(snaps), nil
}
