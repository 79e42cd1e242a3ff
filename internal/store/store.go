package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/datallboy/gofichier/internal/domain"
	"github.com/datallboy/gofichier/internal/infra/logger"

	_ "modernc.org/sqlite"
)

type PersistentStore struct {
	db  *sql.DB
	log *logger.Logger
}

// NewPersistentStore opens (or creates) the sqlite database at dbPath.
// A file that exists but is not a usable database yields ErrCorruptStore and
// is left untouched.
func NewPersistentStore(dbPath string, log *logger.Logger) (*PersistentStore, error) {
	if log == nil {
		log = logger.Discard()
	}

	// Ensure the database directory exists
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, &domain.PersistenceError{Op: "open", Err: fmt.Errorf("failed to create database directory: %w", err)}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, &domain.PersistenceError{Op: "open", Err: fmt.Errorf("failed to open sqlite: %w", err)}
	}

	// Ping makes sure the file is actually accessible and the DSN is valid
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &domain.PersistenceError{Op: "open", Err: fmt.Errorf("%w: %v", domain.ErrCorruptStore, err)}
	}

	s := &PersistentStore{db: db, log: log}

	if err := s.upgradeSchema(migrationFiles, "migrations"); err != nil {
		db.Close()
		return nil, &domain.PersistenceError{Op: "migrate", Err: fmt.Errorf("%w: %v", domain.ErrCorruptStore, err)}
	}

	return s, nil
}

// OpenOrRecover opens dbPath like NewPersistentStore. A corrupt file is moved
// aside unchanged, to "<dbPath>.corrupt-<unix time>", and a new database is
// created in its place so later sessions keep persisting. The second return
// value is where the corrupt file went, empty when nothing was moved.
func OpenOrRecover(dbPath string, log *logger.Logger) (*PersistentStore, string, error) {
	if log == nil {
		log = logger.Discard()
	}

	s, err := NewPersistentStore(dbPath, log)
	if !errors.Is(err, domain.ErrCorruptStore) {
		return s, "", err
	}

	aside := fmt.Sprintf("%s.corrupt-%d", dbPath, time.Now().Unix())
	if rerr := os.Rename(dbPath, aside); rerr != nil {
		return nil, "", errors.Join(err, rerr)
	}
	// WAL side files belong to the corrupt database
	for _, suffix := range []string{"-wal", "-shm"} {
		if _, serr := os.Stat(dbPath + suffix); serr == nil {
			_ = os.Rename(dbPath+suffix, aside+suffix)
		}
	}
	log.Warn("Store %s is unreadable (%v); kept it as %s and started a new one", dbPath, err, aside)

	s, err = NewPersistentStore(dbPath, log)
	if err != nil {
		return nil, aside, err
	}
	return s, aside, nil
}

func (s *PersistentStore) Close() error {
	return s.db.Close()
}
