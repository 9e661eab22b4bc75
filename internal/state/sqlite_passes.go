package state

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const passColumns = `id, input, simulate, status, complete_runs, in_progress_runs, transferred_runs, started_at, completed_at, error`

// StartPass records the start of a pass.
func (s *SQLiteStore) StartPass(input string, simulate bool) (*Pass, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	p := &Pass{
		ID:        generateID(),
		Input:     input,
		Simulate:  simulate,
		Status:    PassStatusRunning,
		StartedAt: time.Now().UTC(),
	}

	s.logger.Debug("starting pass", slog.String("id", p.ID), slog.String("input", input))

	_, err := s.db.Exec(
		`INSERT INTO passes (id, input, simulate, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.Input, p.Simulate, string(p.Status), p.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start pass: %w", err)
	}
	return p, nil
}

// CompletePass stores the outcome of a pass.
func (s *SQLiteStore) CompletePass(id string, status PassStatus, counts PassCounts, errMsg string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	now := time.Now().UTC()
	var errorPtr *string
	if errMsg != "" {
		errorPtr = &errMsg
	}

	result, err := s.db.Exec(
		`UPDATE passes
		 SET status = ?, complete_runs = ?, in_progress_runs = ?, transferred_runs = ?, completed_at = ?, error = ?
		 WHERE id = ?`,
		string(status), counts.Complete, counts.InProgress, counts.Transferred, now, errorPtr, id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete pass: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("pass not found: %s", id)
	}
	return nil
}

// GetPass retrieves a pass by ID.
func (s *SQLiteStore) GetPass(id string) (*Pass, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	p, err := scanPass(s.db.QueryRow(`SELECT `+passColumns+` FROM passes WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("pass not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pass: %w", err)
	}
	return p, nil
}

// ListPasses returns the most recent passes, newest first.
func (s *SQLiteStore) ListPasses(limit int) ([]*Pass, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(`SELECT `+passColumns+` FROM passes ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list passes: %w", err)
	}
	defer rows.Close()

	var passes []*Pass
	for rows.Next() {
		p, err := scanPass(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pass: %w", err)
		}
		passes = append(passes, p)
	}
	return passes, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPass(row rowScanner) (*Pass, error) {
	p := &Pass{}
	var status string
	var completedAt sql.NullTime
	var errMsg sql.NullString

	err := row.Scan(&p.ID, &p.Input, &p.Simulate, &status, &p.Complete, &p.InProgress, &p.Transferred,
		&p.StartedAt, &completedAt, &errMsg)
	if err != nil {
		return nil, err
	}

	p.Status = PassStatus(status)
	if completedAt.Valid {
		t := completedAt.Time
		p.CompletedAt = &t
	}
	if errMsg.Valid {
		p.Error = errMsg.String
	}
	return p, nil
}
