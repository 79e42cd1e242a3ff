package downloader

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/datallboy/gofichier/internal/app"
	"github.com/datallboy/gofichier/internal/domain"
	"github.com/datallboy/gofichier/internal/infra/config"
	"github.com/datallboy/gofichier/internal/infra/logger"
	"github.com/datallboy/gofichier/internal/resolver"
	"github.com/datallboy/gofichier/internal/store"
)

func content(name string) []byte {
	return bytes.Repeat([]byte(name+"-0123456789\n"), 4000)
}

// slowFiles serves content(name) for /name, honouring Range, in small
// delayed pieces.
func slowFiles(t *testing.T, delay time.Duration) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data := content(strings.TrimPrefix(r.URL.Path, "/"))
		start := 0
		if v := r.Header.Get("Range"); v != "" {
			fmt.Sscanf(v, "bytes=%d-", &start)
			if start >= len(data) {
				w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
				return
			}
			w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, len(data)-1, len(data)))
			w.Header().Set("Content-Length", fmt.Sprint(len(data)-start))
			w.WriteHeader(http.StatusPartialContent)
		} else {
			w.Header().Set("Content-Length", fmt.Sprint(len(data)))
		}

		for i := start; i < len(data); i += 2048 {
			if _, err := w.Write(data[i:min(i+2048, len(data))]); err != nil {
				return
			}
			w.(http.Flusher).Flush()
			select {
			case <-r.Context().Done():
				return
			case <-time.After(delay):
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// linkResolver maps "good:<name>" to a file on srv and fails anything else.
func linkResolver(srv *httptest.Server) resolver.Func {
	return func(ctx context.Context, req domain.LinkRequest) (domain.DownloadDescriptor, error) {
		name, ok := strings.CutPrefix(req.RawLink, "good:")
		if !ok {
			return domain.DownloadDescriptor{}, &domain.ResolutionError{Link: req.RawLink, Err: domain.ErrInvalidLink}
		}
		return domain.DownloadDescriptor{DirectURL: srv.URL + "/" + name, DisplayName: name, Password: req.Password}, nil
	}
}

func newTestService(t *testing.T, st app.Store, res resolver.Resolver, dir string) *Service {
	cfg := &config.Config{Download: config.DownloadConfig{
		ChunkSize:        1024,
		ProgressInterval: 5 * time.Millisecond,
		MaxTransfers:     1,
	}}
	a := app.NewContext(cfg, logger.Discard())
	a.Store = st
	a.Resolver = res

	svc := NewService(a, domain.Settings{DownloadDirectory: dir, TimeoutSeconds: 5})
	require.NoError(t, svc.Start(context.Background()))
	t.Cleanup(func() { _ = svc.Shutdown(context.Background()) })
	return svc
}

type eventLog struct {
	mu     sync.Mutex
	events []domain.Event
}

func record(svc *Service) *eventLog {
	l := &eventLog{}
	ch, _ := svc.Subscribe(4096)
	go func() {
		for e := range ch {
			l.mu.Lock()
			l.events = append(l.events, e)
			l.mu.Unlock()
		}
	}()
	return l
}

func (l *eventLog) count(kind domain.EventKind) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func (l *eventLog) alerts() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, e := range l.events {
		if e.Kind == domain.EventAlert {
			out = append(out, e.Message)
		}
	}
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 20*time.Second, 5*time.Millisecond)
}

func allStatus(svc *Service, want domain.TransferStatus) bool {
	for _, st := range svc.Tasks() {
		if st.Status != want {
			return false
		}
	}
	return true
}

func TestService_AddLinksDownloadsEach(t *testing.T) {
	req := require.New(t)

	// Given two good links and one bad one
	srv := slowFiles(t, time.Millisecond)
	dir := t.TempDir()
	svc := newTestService(t, store.NewMemoryStore(), linkResolver(srv), dir)
	log := record(svc)

	// When they are pasted together
	n, err := svc.AddLinks("good:one\n good:two  bad", "")
	req.NoError(err)
	req.Equal(3, n)

	// Then both good ones download and the bad one raises one alert
	waitFor(t, func() bool { return svc.Idle() && len(svc.Tasks()) == 2 && allStatus(svc, domain.StatusFinished) })

	for _, name := range []string{"one", "two"} {
		got, err := os.ReadFile(filepath.Join(dir, name))
		req.NoError(err)
		req.Equal(content(name), got)
	}

	waitFor(t, func() bool { return log.count(domain.EventRowAdded) == 2 && len(log.alerts()) == 1 })
	req.Contains(log.alerts()[0], "invalid link")
}

func TestService_EmptySelectionRaisesOneAlert(t *testing.T) {
	req := require.New(t)

	svc := newTestService(t, store.NewMemoryStore(), resolver.Func(nil), t.TempDir())
	log := record(svc)

	err := svc.ControlByIndex(nil, domain.CommandStop)
	req.ErrorIs(err, domain.ErrNothingSelected)

	waitFor(t, func() bool { return len(log.alerts()) == 1 })
	time.Sleep(20 * time.Millisecond)
	req.Equal([]string{"No rows were selected."}, log.alerts())
}

func TestService_SnapshotRestoreRoundTrip(t *testing.T) {
	req := require.New(t)

	srv := slowFiles(t, 3*time.Millisecond)
	dir := t.TempDir()
	dbPath := filepath.Join(t.TempDir(), "state.db")

	// Given three links, one of them part way through
	st1, err := store.NewPersistentStore(dbPath, nil)
	req.NoError(err)
	svc1 := newTestService(t, st1, linkResolver(srv), dir)

	_, err = svc1.AddLinks("good:a good:b good:c", "secret")
	req.NoError(err)
	waitFor(t, func() bool {
		tasks := svc1.Tasks()
		return len(tasks) == 3 && tasks[0].BytesWritten > 0
	})

	// When the service shuts down and a new one starts on the same database
	req.NoError(svc1.Shutdown(context.Background()))
	before := svc1.Tasks()
	req.NoError(st1.Close())

	st2, err := store.NewPersistentStore(dbPath, nil)
	req.NoError(err)
	t.Cleanup(func() { st2.Close() })
	svc2 := newTestService(t, st2, linkResolver(srv), dir)

	// Then every task is back, Paused, with the same descriptor and offset
	after := svc2.Tasks()
	req.Len(after, 3)
	for i := range before {
		req.Equal(before[i].ID, after[i].ID)
		req.Equal(before[i].Descriptor, after[i].Descriptor)
		req.Equal(before[i].BytesWritten, after[i].BytesWritten)
		req.Equal(before[i].Path, after[i].Path)
		req.Equal(domain.StatusPaused, after[i].Status)
		req.Equal(i, after[i].RowIndex)

		if after[i].BytesWritten > 0 {
			info, err := os.Stat(filepath.Join(dir, after[i].Descriptor.DisplayName+".part"))
			req.NoError(err)
			req.Equal(after[i].BytesWritten, info.Size())
		}
	}

	// And resuming them all completes the files intact
	req.NoError(svc2.ControlByIndex([]int{0, 1, 2}, domain.CommandResume))
	waitFor(t, func() bool { return allStatus(svc2, domain.StatusFinished) })
	for _, name := range []string{"a", "b", "c"} {
		got, err := os.ReadFile(filepath.Join(dir, name))
		req.NoError(err)
		req.Equal(content(name), got)
	}
}

func TestService_CorruptStoreStillPersists(t *testing.T) {
	req := require.New(t)

	srv := slowFiles(t, 3*time.Millisecond)
	dir := t.TempDir()
	dbPath := filepath.Join(t.TempDir(), "state.db")
	req.NoError(os.WriteFile(dbPath, bytes.Repeat([]byte("junk"), 1024), 0644))

	// Given a session started on a corrupt database
	st1, aside, err := store.OpenOrRecover(dbPath, nil)
	req.NoError(err)
	req.NotEmpty(aside)
	svc1 := newTestService(t, st1, linkResolver(srv), dir)
	req.Empty(svc1.Tasks())

	_, err = svc1.AddLinks("good:kept", "")
	req.NoError(err)
	waitFor(t, func() bool {
		tasks := svc1.Tasks()
		return len(tasks) == 1 && tasks[0].BytesWritten > 0
	})

	// When it shuts down and the next session opens the same path
	req.NoError(svc1.Shutdown(context.Background()))
	req.NoError(st1.Close())

	st2, aside, err := store.OpenOrRecover(dbPath, nil)
	req.NoError(err)
	req.Empty(aside)
	t.Cleanup(func() { st2.Close() })
	svc2 := newTestService(t, st2, linkResolver(srv), dir)

	// Then the unfinished task is back
	after := svc2.Tasks()
	req.Len(after, 1)
	req.Equal("kept", after[0].Descriptor.DisplayName)
	req.Equal(domain.StatusPaused, after[0].Status)
}

func TestService_ApplySettings(t *testing.T) {
	req := require.New(t)

	srv := slowFiles(t, 0)
	st := store.NewMemoryStore()
	svc := newTestService(t, st, linkResolver(srv), t.TempDir())

	// When the download directory changes
	newDir := t.TempDir()
	want := domain.Settings{DownloadDirectory: newDir, ThemeIndex: 1, TimeoutSeconds: 45, Proxy: ""}
	req.NoError(svc.ApplySettings(context.Background(), want))

	// Then it is persisted and used by the next task
	req.Equal(want, svc.Settings())
	saved, err := st.LoadSettings(context.Background(), domain.DefaultSettings())
	req.NoError(err)
	req.Equal(want, saved)

	_, err = svc.AddLinks("good:moved", "")
	req.NoError(err)
	waitFor(t, func() bool { return svc.Idle() && len(svc.Tasks()) == 1 })
	_, err = os.Stat(filepath.Join(newDir, "moved"))
	req.NoError(err)
}

func TestService_RejectsLinksAfterShutdown(t *testing.T) {
	req := require.New(t)

	svc := newTestService(t, store.NewMemoryStore(), resolver.Func(nil), t.TempDir())
	req.NoError(svc.Shutdown(context.Background()))
	req.NoError(svc.Shutdown(context.Background()))

	_, err := svc.AddLinks("good:x", "")
	req.ErrorIs(err, ErrShuttingDown)
}

func TestSplitLinks(t *testing.T) {
	req := require.New(t)

	req.Equal([]string{"a", "b", "c"}, SplitLinks(" a\nb\r\n\tc a "))
	req.Empty(SplitLinks(" \n "))
}
