package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SpreadsheetRecord 参考表加载记录
type SpreadsheetRecord struct {
	ID       int64     `json:"id"`
	Filename string    `json:"filename"`
	RowCount int       `json:"rowCount"`
	Headers  []string  `json:"headers"`
	LoadedAt time.Time `json:"loadedAt"`
}

// RecordSpreadsheet 记录一次参考表加载
func (s *Store) RecordSpreadsheet(filename string, headers []string, rowCount int) (int64, error) {
	headersJSON, err := json.Marshal(headers)
	if err != nil {
		return 0, fmt.Errorf("failed to encode headers: %w", err)
	}
	res, err := s.db.Exec(`
		INSERT INTO spreadsheets (filename, row_count, headers_json) VALUES (?, ?, ?)
	`, filename, rowCount, string(headersJSON))
	if err != nil {
		return 0, fmt.Errorf("failed to record spreadsheet: %w", err)
	}
	return res.LastInsertId()
}

// LatestSpreadsheet 最近一次加载的参考表；没有记录返回 ErrNotFound
func (s *Store) LatestSpreadsheet() (*SpreadsheetRecord, error) {
	var (
		rec         SpreadsheetRecord
		headersJSON string
	)
	err := s.db.QueryRow(`
		SELECT id, filename, row_count, headers_json, loaded_at
		FROM spreadsheets ORDER BY id DESC LIMIT 1
	`).Scan(&rec.ID, &rec.Filename, &rec.RowCount, &headersJSON, &rec.LoadedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("spreadsheet: %w", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(headersJSON), &rec.Headers); err != nil {
		return nil, fmt.Errorf("failed to decode headers: %w", err)
	}
	return &rec, nil
}
