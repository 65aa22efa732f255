package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hpungsan/uartscope/internal/errors"
	"github.com/hpungsan/uartscope/internal/uart"
)

// Run is a persisted decode run. Runs are written once and never updated.
type Run struct {
	ID          string
	CapturePath string
	SampleRate  int
	Channels    int
	SampleCount int64
	Settings    uart.Settings
	Profile     *string
	Baud        uart.BaudEstimate
	ByteCount   int
	ErrorCount  int
	SymbolCount int
	CreatedAt   int64
}

const runColumns = `
	id, capture_path, sample_rate, channels, sample_count, settings_json, profile,
	bit_length, baud_rate, exact_baud_rate, standard_rate, jitter, baud_valid, low_confidence,
	byte_count, error_count, symbol_count, created_at`

// InsertRun stores a run and its symbols in one transaction.
func InsertRun(ctx context.Context, db *sql.DB, r *Run, symbols []uart.Symbol) error {
	settingsJSON, err := json.Marshal(r.Settings)
	if err != nil {
		return errors.NewInternal(err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewInternal(err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.CapturePath, r.SampleRate, r.Channels, r.SampleCount, string(settingsJSON), toNullString(r.Profile),
		r.Baud.BitLength, r.Baud.BaudRate, r.Baud.ExactBaudRate, r.Baud.StandardRate, r.Baud.Jitter,
		r.Baud.Valid, r.Baud.LowConfidence,
		r.ByteCount, r.ErrorCount, r.SymbolCount, r.CreatedAt,
	)
	if err != nil {
		return errors.NewInternal(fmt.Errorf("insert run: %w", err))
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO symbols
		(run_id, seq, kind, scope, value, event, start_idx, end_idx, error_kind)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.NewInternal(err)
	}
	defer stmt.Close()

	for i, s := range symbols {
		event := sql.NullString{String: s.Event, Valid: s.Event != ""}
		errKind := sql.NullString{String: string(s.Error), Valid: s.Error != uart.ErrorNone}
		if _, err := stmt.ExecContext(ctx, r.ID, i, s.Kind.String(), s.Scope.String(), s.Value,
			event, s.Start, s.End, errKind); err != nil {
			return errors.NewInternal(fmt.Errorf("insert symbol %d: %w", i, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// GetRun retrieves a run by its ULID.
func GetRun(ctx context.Context, db *sql.DB, id string) (*Run, error) {
	row := db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return r, nil
}

// ListRuns returns runs newest first, with the total count for pagination.
func ListRuns(ctx context.Context, db *sql.DB, limit, offset int) ([]Run, int, error) {
	var total int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`).Scan(&total); err != nil {
		return nil, 0, errors.NewInternal(err)
	}

	rows, err := db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, 0, errors.NewInternal(err)
		}
		runs = append(runs, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	return runs, total, nil
}

// ListSymbols returns a run's symbols in log order. A limit <= 0 returns all
// symbols from offset on.
func ListSymbols(ctx context.Context, db *sql.DB, runID string, limit, offset int) ([]uart.Symbol, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.QueryContext(ctx, `SELECT kind, scope, value, event, start_idx, end_idx, error_kind
		FROM symbols WHERE run_id = ?
		ORDER BY seq
		LIMIT ? OFFSET ?`, runID, limit, offset)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	symbols := []uart.Symbol{}
	for rows.Next() {
		var (
			s       uart.Symbol
			kind    string
			scope   string
			event   sql.NullString
			errKind sql.NullString
		)
		if err := rows.Scan(&kind, &scope, &s.Value, &event, &s.Start, &s.End, &errKind); err != nil {
			return nil, errors.NewInternal(err)
		}
		if err := s.Kind.UnmarshalText([]byte(kind)); err != nil {
			return nil, errors.NewInternal(err)
		}
		if err := s.Scope.UnmarshalText([]byte(scope)); err != nil {
			return nil, errors.NewInternal(err)
		}
		s.Event = event.String
		s.Error = uart.ErrorKind(errKind.String)
		symbols = append(symbols, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return symbols, nil
}

// DeleteRun removes a run and, through the foreign key, its symbols.
func DeleteRun(ctx context.Context, db *sql.DB, id string) error {
	result, err := db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return errors.NewInternal(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if rowsAffected == 0 {
		return errors.NewNotFound(id)
	}
	return nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanRun scans a single row into a Run.
func scanRun(row scanner) (*Run, error) {
	var (
		r            Run
		settingsJSON string
		profile      sql.NullString
	)

	err := row.Scan(
		&r.ID, &r.CapturePath, &r.SampleRate, &r.Channels, &r.SampleCount, &settingsJSON, &profile,
		&r.Baud.BitLength, &r.Baud.BaudRate, &r.Baud.ExactBaudRate, &r.Baud.StandardRate, &r.Baud.Jitter,
		&r.Baud.Valid, &r.Baud.LowConfidence,
		&r.ByteCount, &r.ErrorCount, &r.SymbolCount, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(settingsJSON), &r.Settings); err != nil {
		return nil, err
	}
	r.Profile = fromNullString(profile)

	return &r, nil
}

// toNullString converts a *string to sql.NullString.
func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// fromNullString converts a sql.NullString to *string.
func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}
