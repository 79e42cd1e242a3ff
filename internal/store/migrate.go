package store

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// upgradeSchema applies every migration in dir of src that the database has
// not seen yet.
func (s *PersistentStore) upgradeSchema(src fs.FS, dir string) error {
	d, err := iofs.New(src, dir)
	if err != nil {
		return err
	}

	// The migrate sqlite driver is backed by modernc.org/sqlite as well
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return err
	}

	m, err := migrate.NewWithInstance("iofs", d, "sqlite", driver)
	if err != nil {
		return err
	}

	from, _, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return err
	}

	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("migration from version %d failed: %w", from, err)
	}

	to, _, _ := m.Version()
	s.log.Debug("Schema migrated from version %d to %d", from, to)
	return nil
}
