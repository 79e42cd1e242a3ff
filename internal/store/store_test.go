package store

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/datallboy/gofichier/internal/domain"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*PersistentStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "gofichier.db")
	s, err := NewPersistentStore(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func transfer(id string, written int64, status domain.TransferStatus) domain.TransferState {
	return domain.TransferState{
		ID: id,
		Descriptor: domain.DownloadDescriptor{
			DirectURL:   "https://cdn.example/" + id,
			DisplayName: id + ".bin",
			Password:    "secret-" + id,
		},
		BytesWritten: written,
		TotalBytes:   1000,
		Status:       status,
		Path:         "/downloads/" + id + ".bin",
	}
}

func TestSnapshotRestore_RoundTrip(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s, _ := newTestStore(t)

	// Given three unfinished tasks and one finished one
	tasks := []domain.TransferState{
		transfer("a", 100, domain.StatusRunning),
		transfer("b", 0, domain.StatusQueued),
		transfer("done", 1000, domain.StatusFinished),
		transfer("c", 512, domain.StatusPaused),
	}

	// When they are snapshotted and restored
	req.NoError(s.Snapshot(ctx, tasks))
	restored, err := s.Restore(ctx)
	req.NoError(err)

	// Then only unfinished tasks come back, in order, all Paused
	req.Len(restored, 3)
	expected := []domain.TransferState{tasks[0], tasks[1], tasks[3]}
	for i, st := range restored {
		req.Equal(expected[i].ID, st.ID)
		req.Equal(expected[i].Descriptor, st.Descriptor)
		req.Equal(expected[i].BytesWritten, st.BytesWritten)
		req.Equal(expected[i].TotalBytes, st.TotalBytes)
		req.Equal(expected[i].Path, st.Path)
		req.Equal(domain.StatusPaused, st.Status)
		req.Equal(i, st.RowIndex)
	}
}

func TestSnapshot_ReplacesPrevious(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s, _ := newTestStore(t)

	req.NoError(s.Snapshot(ctx, []domain.TransferState{transfer("a", 1, domain.StatusPaused)}))
	req.NoError(s.Snapshot(ctx, []domain.TransferState{transfer("b", 2, domain.StatusPaused)}))

	restored, err := s.Restore(ctx)
	req.NoError(err)
	req.Len(restored, 1)
	req.Equal("b", restored[0].ID)
}

func TestSnapshot_FailureKeepsPrevious(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s, _ := newTestStore(t)

	// Given a good snapshot
	req.NoError(s.Snapshot(ctx, []domain.TransferState{transfer("a", 10, domain.StatusPaused)}))

	// When a second snapshot fails half way (duplicate id)
	err := s.Snapshot(ctx, []domain.TransferState{
		transfer("x", 1, domain.StatusPaused),
		transfer("x", 2, domain.StatusPaused),
	})
	var perr *domain.PersistenceError
	req.ErrorAs(err, &perr)

	// Then the first snapshot is intact
	restored, err := s.Restore(ctx)
	req.NoError(err)
	req.Len(restored, 1)
	req.Equal("a", restored[0].ID)
	req.Equal(int64(10), restored[0].BytesWritten)
}

func TestRestore_EmptyStore(t *testing.T) {
	req := require.New(t)
	s, _ := newTestStore(t)

	restored, err := s.Restore(context.Background())
	req.NoError(err)
	req.Empty(restored)
}

func TestRestore_SkipsCorruptRows(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s, _ := newTestStore(t)

	req.NoError(s.Snapshot(ctx, []domain.TransferState{transfer("a", 10, domain.StatusPaused)}))
	_, err := s.db.Exec(`INSERT INTO transfers (position, id, direct_url, display_name, bytes_written, total_bytes, status, saved_at)
		VALUES (5, 'bad', 'https://x', 'x', 0, -1, 'melted', 0)`)
	req.NoError(err)

	restored, err := s.Restore(ctx)
	req.NoError(err)
	req.Len(restored, 1)
	req.Equal("a", restored[0].ID)
}

func TestNewPersistentStore_CorruptFileLeftInPlace(t *testing.T) {
	req := require.New(t)
	path := filepath.Join(t.TempDir(), "gofichier.db")
	garbage := bytes.Repeat([]byte("not a database "), 256)
	req.NoError(os.WriteFile(path, garbage, 0644))

	_, err := NewPersistentStore(path, nil)
	req.ErrorIs(err, domain.ErrCorruptStore)

	onDisk, err := os.ReadFile(path)
	req.NoError(err)
	req.Equal(garbage, onDisk)
}

func TestOpenOrRecover_CorruptFileSetAside(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "gofichier.db")

	// Given a database file that is not sqlite
	garbage := bytes.Repeat([]byte("not a database "), 256)
	req.NoError(os.WriteFile(path, garbage, 0644))

	// When it is opened for a session
	s, aside, err := OpenOrRecover(path, nil)
	req.NoError(err)

	// Then the corrupt bytes are kept next to it untouched
	req.NotEmpty(aside)
	onDisk, err := os.ReadFile(aside)
	req.NoError(err)
	req.Equal(garbage, onDisk)

	// And the session's snapshot survives into the next start
	tasks := []domain.TransferState{transfer("a", 10, domain.StatusPaused), transfer("b", 0, domain.StatusQueued)}
	req.NoError(s.Snapshot(ctx, tasks))
	req.NoError(s.Close())

	reopened, aside, err := OpenOrRecover(path, nil)
	req.NoError(err)
	defer reopened.Close()
	req.Empty(aside)

	restored, err := reopened.Restore(ctx)
	req.NoError(err)
	req.Len(restored, 2)
	req.Equal("a", restored[0].ID)
	req.Equal(int64(10), restored[0].BytesWritten)
	req.Equal("b", restored[1].ID)
}

func TestOpenOrRecover_HealthyFileIsKept(t *testing.T) {
	req := require.New(t)
	s, path := newTestStore(t)
	req.NoError(s.Snapshot(context.Background(), []domain.TransferState{transfer("a", 1, domain.StatusPaused)}))
	req.NoError(s.Close())

	again, aside, err := OpenOrRecover(path, nil)
	req.NoError(err)
	defer again.Close()
	req.Empty(aside)

	restored, err := again.Restore(context.Background())
	req.NoError(err)
	req.Len(restored, 1)
}

func TestSettings_RoundTrip(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s, path := newTestStore(t)

	want := domain.Settings{DownloadDirectory: "/tmp/x", ThemeIndex: 1, TimeoutSeconds: 45, Proxy: "http://p"}
	req.NoError(s.SaveSettings(ctx, want))
	req.NoError(s.Close())

	// Reopen to make sure it is durable
	reopened, err := NewPersistentStore(path, nil)
	req.NoError(err)
	defer reopened.Close()

	got, err := reopened.LoadSettings(ctx, domain.DefaultSettings())
	req.NoError(err)
	req.Equal(want, got)
}

func TestSettings_MissingAndPartial(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s, _ := newTestStore(t)

	// No record yet
	got, err := s.LoadSettings(ctx, domain.DefaultSettings())
	req.NoError(err)
	req.Equal(domain.DefaultSettings(), got)

	// A record missing fields keeps defaults for them
	_, err = s.db.Exec(`INSERT INTO settings (id, data, updated_at) VALUES (1, '{"proxy":"socks5://h:1"}', 0)`)
	req.NoError(err)
	got, err = s.LoadSettings(ctx, domain.DefaultSettings())
	req.NoError(err)
	req.Equal("socks5://h:1", got.Proxy)
	req.Equal(domain.DefaultTimeoutSeconds, got.TimeoutSeconds)
	req.Equal(domain.DefaultDownloadDir, got.DownloadDirectory)
}

func TestSettings_CorruptRecordIsDefaults(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s, _ := newTestStore(t)

	_, err := s.db.Exec(`INSERT INTO settings (id, data, updated_at) VALUES (1, '{{{', 0)`)
	req.NoError(err)

	got, err := s.LoadSettings(ctx, domain.DefaultSettings())
	req.NoError(err)
	req.Equal(domain.DefaultSettings(), got)

	// The transfer snapshot is unaffected
	req.NoError(s.Snapshot(ctx, []domain.TransferState{transfer("a", 1, domain.StatusPaused)}))
	restored, err := s.Restore(ctx)
	req.NoError(err)
	req.Len(restored, 1)
}

func TestMemoryStore(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	m := NewMemoryStore()

	req.NoError(m.Snapshot(ctx, []domain.TransferState{
		transfer("a", 1, domain.StatusRunning),
		transfer("b", 1, domain.StatusStopped),
	}))
	restored, err := m.Restore(ctx)
	req.NoError(err)
	req.Len(restored, 1)
	req.Equal(domain.StatusPaused, restored[0].Status)

	got, err := m.LoadSettings(ctx, domain.DefaultSettings())
	req.NoError(err)
	req.Equal(domain.DefaultSettings(), got)
}
