package store

import (
	"context"
	"fmt"
	"time"

	"github.com/datallboy/gofichier/internal/domain"
)

// Snapshot replaces the stored transfers with tasks in a single transaction.
// On any failure the previous snapshot is kept.
func (s *PersistentStore) Snapshot(ctx context.Context, tasks []domain.TransferState) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &domain.PersistenceError{Op: "snapshot", Err: err}
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM transfers"); err != nil {
		return &domain.PersistenceError{Op: "snapshot", Err: err}
	}

	savedAt := time.Now().Unix()

	// Reuse a single DBO instance for efficiency
	var dbo transferDBO
	for i, st := range tasks {
		if !st.Status.IsResumable() {
			continue
		}
		dbo.FromDomain(i, st)

		_, err := tx.ExecContext(ctx, `
			INSERT INTO transfers (position, id, direct_url, display_name, password, bytes_written, total_bytes, status, file_path, saved_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			dbo.Position, dbo.ID, dbo.DirectURL, dbo.DisplayName, dbo.Password,
			dbo.BytesWritten, dbo.TotalBytes, dbo.Status, dbo.FilePath, savedAt,
		)
		if err != nil {
			return &domain.PersistenceError{Op: "snapshot", Err: fmt.Errorf("failed to save transfer %s: %w", st.ID, err)}
		}
	}

	if err := tx.Commit(); err != nil {
		return &domain.PersistenceError{Op: "snapshot", Err: err}
	}
	return nil
}

// Restore returns the last snapshot in row order, every entry Paused.
// Rows that cannot be decoded are logged and skipped.
func (s *PersistentStore) Restore(ctx context.Context) ([]domain.TransferState, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT position, id, direct_url, display_name, password, bytes_written, total_bytes, status, file_path
		FROM transfers
		ORDER BY position ASC`)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "restore", Err: err}
	}
	defer rows.Close()

	var out []domain.TransferState
	for rows.Next() {
		var dbo transferDBO
		err := rows.Scan(&dbo.Position, &dbo.ID, &dbo.DirectURL, &dbo.DisplayName,
			&dbo.Password, &dbo.BytesWritten, &dbo.TotalBytes, &dbo.Status, &dbo.FilePath)
		if err != nil {
			s.log.Warn("Skipping unreadable transfer row: %v", err)
			continue
		}

		st, err := dbo.ToDomain(len(out))
		if err != nil {
			s.log.Warn("Skipping corrupt transfer %s: %v", dbo.ID, err)
			continue
		}
		out = append(out, st)
	}

	if err := rows.Err(); err != nil {
		return out, &domain.PersistenceError{Op: "restore", Err: err}
	}

	return out, nil
}
