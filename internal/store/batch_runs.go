package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Spring-Family-IT/aiqc-spring/internal/batch"
	"github.com/Spring-Family-IT/aiqc-spring/internal/compare"
	"github.com/Spring-Family-IT/aiqc-spring/internal/filename"
)

// RunSummary 批处理历史列表项
type RunSummary struct {
	ID         string          `json:"id"`
	ModelID    string          `json:"modelId"`
	StartedAt  time.Time       `json:"startedAt"`
	FinishedAt time.Time       `json:"finishedAt"`
	Cancelled  bool            `json:"cancelled"`
	Aggregate  batch.Aggregate `json:"aggregate"`
}

// SaveReport 在一个事务中写入运行记录与全部文档结果
func (s *Store) SaveReport(r *batch.Report) error {
	failedByType, err := json.Marshal(r.Aggregate.FailedByType)
	if err != nil {
		return fmt.Errorf("failed to encode failed_by_type: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	agg := r.Aggregate
	_, err = tx.Exec(`
		INSERT INTO batch_runs (
			id, model_id, started_at, finished_at, cancelled,
			total_documents, successful, failed,
			fields_total, fields_correct, fields_incorrect, fields_not_found,
			average_match_rate, failed_by_type_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID, r.ModelID, formatTime(r.StartedAt), formatTime(r.FinishedAt), r.Cancelled,
		agg.TotalDocuments, agg.Successful, agg.Failed,
		agg.Fields.Total, agg.Fields.Correct, agg.Fields.Incorrect, agg.Fields.NotFound,
		agg.AverageMatchRate, string(failedByType),
	)
	if err != nil {
		return fmt.Errorf("failed to insert batch run: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO batch_items (
			batch_id, item_index, filename, parsed_json, selected_inputs_json, verdicts_json,
			total, correct, incorrect, not_found, error, error_type, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch item insert: %w", err)
	}
	defer stmt.Close()

	for _, it := range r.Items {
		var parsed sql.NullString
		if it.ParsedFilename != nil {
			parsed.String = mustJSON(it.ParsedFilename, "null")
			parsed.Valid = true
		}
		_, err := stmt.Exec(
			r.ID, it.Index, it.Filename, parsed,
			mustJSON(nonNilInputs(it.SelectedInputs), "[]"), mustJSON(nonNilVerdicts(it.ComparisonResults), "[]"),
			it.Summary.Total, it.Summary.Correct, it.Summary.Incorrect, it.Summary.NotFound,
			it.Error, string(it.ErrorType), it.DurationMS,
		)
		if err != nil {
			return fmt.Errorf("failed to insert batch item %d: %w", it.Index, err)
		}
	}

	return tx.Commit()
}

// ListRuns 最近的运行记录（按开始时间倒序）
func (s *Store) ListRuns(limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, model_id, started_at, finished_at, cancelled,
			total_documents, successful, failed,
			fields_total, fields_correct, fields_incorrect, fields_not_found,
			average_match_rate, failed_by_type_json
		FROM batch_runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query batch runs: %w", err)
	}
	defer rows.Close()

	out := make([]RunSummary, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *run)
	}
	return out, rows.Err()
}

// GetReport 读取完整运行结果；不存在返回 ErrNotFound
func (s *Store) GetReport(id string) (*batch.Report, error) {
	run, err := scanRun(s.db.QueryRow(`
		SELECT id, model_id, started_at, finished_at, cancelled,
			total_documents, successful, failed,
			fields_total, fields_correct, fields_incorrect, fields_not_found,
			average_match_rate, failed_by_type_json
		FROM batch_runs WHERE id = ?
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("batch %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	report := &batch.Report{
		ID:         run.ID,
		ModelID:    run.ModelID,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
		Cancelled:  run.Cancelled,
		Aggregate:  run.Aggregate,
		Items:      make([]batch.ItemResult, 0, run.Aggregate.TotalDocuments),
	}

	rows, err := s.db.Query(`
		SELECT item_index, filename, parsed_json, selected_inputs_json, verdicts_json,
			total, correct, incorrect, not_found, error, error_type, duration_ms
		FROM batch_items WHERE batch_id = ?
		ORDER BY item_index
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query batch items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			it                      batch.ItemResult
			parsed                  sql.NullString
			inputsJSON, verdictJSON string
			errorType               string
		)
		if err := rows.Scan(
			&it.Index, &it.Filename, &parsed, &inputsJSON, &verdictJSON,
			&it.Summary.Total, &it.Summary.Correct, &it.Summary.Incorrect, &it.Summary.NotFound,
			&it.Error, &errorType, &it.DurationMS,
		); err != nil {
			return nil, fmt.Errorf("failed to scan batch item: %w", err)
		}
		it.ErrorType = batch.ErrorType(errorType)
		if parsed.Valid {
			var key filename.DocumentKey
			if err := json.Unmarshal([]byte(parsed.String), &key); err != nil {
				return nil, fmt.Errorf("failed to decode parsed filename: %w", err)
			}
			it.ParsedFilename = &key
		}
		if err := json.Unmarshal([]byte(inputsJSON), &it.SelectedInputs); err != nil {
			return nil, fmt.Errorf("failed to decode selected inputs: %w", err)
		}
		if err := json.Unmarshal([]byte(verdictJSON), &it.ComparisonResults); err != nil {
			return nil, fmt.Errorf("failed to decode verdicts: %w", err)
		}
		report.Items = append(report.Items, it)
	}
	return report, rows.Err()
}

// DeleteRun 删除运行记录及其文档结果
func (s *Store) DeleteRun(id string) error {
	res, err := s.db.Exec("DELETE FROM batch_runs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete batch run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("batch %s: %w", id, ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*RunSummary, error) {
	var (
		run               RunSummary
		started, finished string
		failedByTypeJSON  string
		fields            compare.Summary
	)
	if err := row.Scan(
		&run.ID, &run.ModelID, &started, &finished, &run.Cancelled,
		&run.Aggregate.TotalDocuments, &run.Aggregate.Successful, &run.Aggregate.Failed,
		&fields.Total, &fields.Correct, &fields.Incorrect, &fields.NotFound,
		&run.Aggregate.AverageMatchRate, &failedByTypeJSON,
	); err != nil {
		return nil, err
	}
	run.Aggregate.Fields = fields
	run.StartedAt = parseTime(started)
	run.FinishedAt = parseTime(finished)

	run.Aggregate.FailedByType = make(map[batch.ErrorType]int)
	if err := json.Unmarshal([]byte(failedByTypeJSON), &run.Aggregate.FailedByType); err != nil {
		return nil, fmt.Errorf("failed to decode failed_by_type: %w", err)
	}
	return &run, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func mustJSON(v any, fallback string) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fallback
	}
	return string(b)
}

func nonNilInputs(in []compare.SelectedInput) []compare.SelectedInput {
	if in == nil {
		return []compare.SelectedInput{}
	}
	return in
}

func nonNilVerdicts(in []compare.Verdict) []compare.Verdict {
	if in == nil {
		return []compare.Verdict{}
	}
	return in
}
