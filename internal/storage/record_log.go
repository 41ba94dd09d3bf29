package storage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"shhe-backend/internal/models"
)

// Columns is the fixed on-disk schema of the record log
var Columns = []string{"ts", "device", "temp", "hum", "gas", "ai", "heartrate"}

// RecordLog is an append-only CSV log of classified records.
// Every append rewrites the file through a temporary file and an atomic
// rename, so readers never observe a partially written log. Appends cost
// O(n) in the size of the log.
type RecordLog struct {
	path   string
	logger *slog.Logger
	mu     sync.Mutex
}

// NewRecordLog opens the log at path, creating it with a header row if absent
func NewRecordLog(path string, logger *slog.Logger) (*RecordLog, error) {
	if logger == nil {
		logger = slog.Default()
	}
	l := &RecordLog{
		path:   path,
		logger: logger.With("component", "storage"),
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create log directory: %w", err)
			}
		}
		if err := l.writeRows(nil); err != nil {
			return nil, fmt.Errorf("failed to create record log: %w", err)
		}
		l.logger.Info("created record log", "path", path)
	} else if err != nil {
		return nil, fmt.Errorf("failed to stat record log: %w", err)
	}

	return l, nil
}

// Path returns the log file location
func (l *RecordLog) Path() string {
	return l.path
}

// Append adds one record to the log
func (l *RecordLog) Append(rec models.ClassifiedRecord) error {
	return l.AppendBatch([]models.ClassifiedRecord{rec})
}

// AppendBatch adds records in order. An empty batch leaves the file untouched.
func (l *RecordLog) AppendBatch(recs []models.ClassifiedRecord) error {
	if len(recs) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	rows := l.readRowsLocked()
	for _, rec := range recs {
		rows = append(rows, encodeRecord(rec))
	}

	if err := l.writeRows(rows); err != nil {
		return fmt.Errorf("failed to append %d record(s): %w", len(recs), err)
	}
	return nil
}

// ReadAll returns every parseable record in file order.
// Rows that cannot be parsed are skipped.
func (l *RecordLog) ReadAll() ([]models.ClassifiedRecord, error) {
	l.mu.Lock()
	rows := l.readRowsLocked()
	l.mu.Unlock()

	records := make([]models.ClassifiedRecord, 0, len(rows))
	for i, row := range rows {
		rec, err := decodeRecord(row)
		if err != nil {
			l.logger.Warn("skipping unreadable log row", "row", i+1, "error", err)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// CopyTo writes a consistent snapshot of the log file to w
func (l *RecordLog) CopyTo(w io.Writer) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		return 0, fmt.Errorf("failed to open record log: %w", err)
	}
	defer f.Close()

	return io.Copy(w, f)
}

// readRowsLocked returns the data rows in canonical column order. A missing
// or unreadable file yields an empty table.
func (l *RecordLog) readRowsLocked() [][]string {
	f, err := os.Open(l.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			l.logger.Warn("failed to open record log, starting empty", "error", err)
		}
		return nil
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	all, err := r.ReadAll()
	if err != nil {
		l.logger.Warn("record log is corrupt, starting empty", "error", err)
		return nil
	}
	if len(all) == 0 {
		return nil
	}

	order, hasHeader := columnOrder(all[0])
	if order == nil {
		l.logger.Warn("record log has an unknown header, starting empty", "header", all[0])
		return nil
	}
	if hasHeader {
		all = all[1:]
	}

	rows := make([][]string, 0, len(all))
	for _, raw := range all {
		row := make([]string, len(Columns))
		for dst, src := range order {
			if src < len(raw) {
				row[dst] = raw[src]
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// columnOrder maps canonical column positions to positions in the file.
// A first row without a header but with the right width is treated as data.
func columnOrder(first []string) (order []int, hasHeader bool) {
	index := make(map[string]int, len(first))
	for i, name := range first {
		index[name] = i
	}

	order = make([]int, len(Columns))
	matched := 0
	for i, name := range Columns {
		if pos, ok := index[name]; ok {
			order[i] = pos
			matched++
		}
	}
	if matched == len(Columns) {
		return order, true
	}

	if matched == 0 && len(first) == len(Columns) {
		for i := range order {
			order[i] = i
		}
		return order, false
	}
	return nil, false
}

// writeRows replaces the log with header + rows via a temp file and rename
func (l *RecordLog) writeRows(rows [][]string) error {
	dir := filepath.Dir(l.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(l.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	w := csv.NewWriter(tmp)
	if err := w.Write(Columns); err != nil {
		tmp.Close()
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write rows: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpName, l.path); err != nil {
		return fmt.Errorf("failed to replace record log: %w", err)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func encodeRecord(rec models.ClassifiedRecord) []string {
	return []string{
		rec.Timestamp,
		rec.DeviceID,
		formatFloat(rec.Temp),
		formatFloat(rec.Hum),
		formatFloat(rec.Gas),
		rec.Label.String(),
		formatFloat(rec.HeartRate),
	}
}

func decodeRecord(row []string) (models.ClassifiedRecord, error) {
	var rec models.ClassifiedRecord
	if len(row) != len(Columns) {
		return rec, fmt.Errorf("row has %d columns, want %d", len(row), len(Columns))
	}

	label, err := models.ParseLabel(row[5])
	if err != nil {
		return rec, err
	}

	values := make([]float64, 0, 4)
	for _, col := range []int{2, 3, 4, 6} {
		v, err := parseFloat(row[col])
		if err != nil {
			return rec, fmt.Errorf("column %s: %w", Columns[col], err)
		}
		values = append(values, v)
	}

	rec = models.ClassifiedRecord{
		Timestamp: row[0],
		DeviceID:  row[1],
		Temp:      values[0],
		Hum:       values[1],
		Gas:       values[2],
		HeartRate: values[3],
		Label:     label,
	}
	return rec, nil
}

// parseFloat treats an empty cell as 0
func parseFloat(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}
