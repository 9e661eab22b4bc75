package state

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// SetTransfer upserts the progress of a run.
func (s *SQLiteStore) SetTransfer(input, runKey string, st TransferState, passID, errMsg string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	var errorPtr *string
	if errMsg != "" {
		errorPtr = &errMsg
	}

	s.logger.Debug("recording transfer state",
		slog.String("input", input), slog.String("run", runKey), slog.String("state", string(st)))

	_, err := s.db.Exec(
		`INSERT INTO run_transfers (input, run_key, state, pass_id, updated_at, error)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (input, run_key) DO UPDATE SET
		   state = excluded.state,
		   pass_id = excluded.pass_id,
		   updated_at = excluded.updated_at,
		   error = excluded.error`,
		input, runKey, string(st), passID, time.Now().UTC(), errorPtr,
	)
	if err != nil {
		return fmt.Errorf("failed to record transfer %s/%s: %w", input, runKey, err)
	}
	return nil
}

// GetTransfer returns the recorded progress of a run, or nil when the run
// has never been transferred.
func (s *SQLiteStore) GetTransfer(input, runKey string) (*Transfer, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	t, err := scanTransfer(s.db.QueryRow(
		`SELECT input, run_key, state, pass_id, updated_at, error FROM run_transfers WHERE input = ? AND run_key = ?`,
		input, runKey,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transfer: %w", err)
	}
	return t, nil
}

// ListTransfers returns every recorded run of an input ordered by run key.
func (s *SQLiteStore) ListTransfers(input string) ([]*Transfer, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.Query(
		`SELECT input, run_key, state, pass_id, updated_at, error FROM run_transfers WHERE input = ? ORDER BY run_key`,
		input,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list transfers: %w", err)
	}
	defer rows.Close()

	var out []*Transfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transfer: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTransfer(row rowScanner) (*Transfer, error) {
	t := &Transfer{}
	var st string
	var errMsg sql.NullString
	if err := row.Scan(&t.Input, &t.RunKey, &st, &t.PassID, &t.UpdatedAt, &errMsg); err != nil {
		return nil, err
	}
	t.State = TransferState(st)
	if errMsg.Valid {
		t.Error = errMsg.String
	}
	return t, nil
}
