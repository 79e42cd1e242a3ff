package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/datallboy/gofichier/internal/domain"
)

func (s *PersistentStore) SaveSettings(ctx context.Context, settings domain.Settings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return &domain.PersistenceError{Op: "save settings", Err: err}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO settings (id, data, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		string(data), time.Now().Unix(),
	)
	if err != nil {
		return &domain.PersistenceError{Op: "save settings", Err: err}
	}
	return nil
}

// LoadSettings decodes the saved record on top of defaults, so fields the
// record lacks keep their default value. No record, or an undecodable one,
// returns defaults.
func (s *PersistentStore) LoadSettings(ctx context.Context, defaults domain.Settings) (domain.Settings, error) {
	var data string
	err := s.db.QueryRowContext(ctx, "SELECT data FROM settings WHERE id = 1").Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return defaults, nil
	}
	if err != nil {
		return defaults, &domain.PersistenceError{Op: "load settings", Err: err}
	}

	out := defaults
	if err := json.Unmarshal([]byte(data), &out); err != nil {
		s.log.Warn("Settings record is corrupt, using defaults: %v", err)
		return defaults, nil
	}
	return out.Normalize(), nil
}
