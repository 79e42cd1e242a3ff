package engine

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/datallboy/gofichier/internal/domain"
)

type collector struct {
	mu     sync.Mutex
	events []domain.Event
}

func (c *collector) Publish(e domain.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *collector) ofKind(kind domain.EventKind) []domain.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []domain.Event
	for _, e := range c.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func payload(n int) []byte {
	var b bytes.Buffer
	for i := 0; b.Len() < n; i++ {
		fmt.Fprintf(&b, "line %06d\n", i)
	}
	return b.Bytes()[:n]
}

// fileServer serves data through http.ServeContent, so Range requests work.
func fileServer(t *testing.T, data []byte) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "file.bin", time.Time{}, bytes.NewReader(data))
	}))
	t.Cleanup(srv.Close)
	return srv
}

type slowServer struct {
	*httptest.Server

	mu     sync.Mutex
	ranges []string
}

func (s *slowServer) rangeHeaders() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ranges...)
}

// newSlowServer streams data in small pieces. With ranged false it ignores
// Range headers and always sends the whole body with 200.
func newSlowServer(t *testing.T, data []byte, ranged bool, delay time.Duration) *slowServer {
	s := &slowServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.ranges = append(s.ranges, r.Header.Get("Range"))
		s.mu.Unlock()

		start := 0
		if v := r.Header.Get("Range"); ranged && v != "" {
			n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(v, "bytes="), "-"))
			if err != nil || n >= len(data) {
				w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
				return
			}
			start = n
			w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, len(data)-1, len(data)))
			w.Header().Set("Content-Length", strconv.Itoa(len(data)-start))
			w.WriteHeader(http.StatusPartialContent)
		} else {
			w.Header().Set("Content-Length", strconv.Itoa(len(data)))
			w.WriteHeader(http.StatusOK)
		}

		flusher, _ := w.(http.Flusher)
		for i := start; i < len(data); i += 1024 {
			end := min(i+1024, len(data))
			if _, err := w.Write(data[i:end]); err != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
			select {
			case <-r.Context().Done():
				return
			case <-time.After(delay):
			}
		}
	}))
	t.Cleanup(s.Server.Close)
	return s
}

type harness struct {
	sched    *Scheduler
	events   *collector
	dir      string
	settings atomic.Pointer[domain.Settings]
	stop     func()
}

// setDir changes the download directory seen by tasks started from now on.
func (h *harness) setDir(dir string) {
	next := *h.settings.Load()
	next.DownloadDirectory = dir
	h.settings.Store(&next)
}

func newHarness(t *testing.T, maxTransfers int, timeoutSeconds int) *harness {
	dir := t.TempDir()
	events := &collector{}
	h := &harness{events: events, dir: dir}
	h.settings.Store(&domain.Settings{DownloadDirectory: dir, TimeoutSeconds: timeoutSeconds})

	sched := NewScheduler(func() domain.Settings { return *h.settings.Load() }, events, Options{
		ChunkSize:        512,
		ProgressInterval: 10 * time.Millisecond,
		MaxTransfers:     maxTransfers,
	}, nil)

	ctx, cancel := newTestContext()
	go sched.Start(ctx)

	h.sched = sched
	h.stop = func() {
		cancel()
		sched.Wait()
	}
	t.Cleanup(h.stop)
	return h
}

func waitStatus(t *testing.T, task *Task, want domain.TransferStatus) {
	t.Helper()
	require.Eventually(t, func() bool { return task.Status() == want }, 10*time.Second, 5*time.Millisecond,
		"task stayed %s, wanted %s", task.Status(), want)
}

func newTestContext() (context.Context, context.CancelFunc) {
	return context.WithCancel(context.Background())
}
