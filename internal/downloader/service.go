package downloader

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sourcegraph/conc/pool"

	"github.com/datallboy/gofichier/internal/app"
	"github.com/datallboy/gofichier/internal/domain"
	"github.com/datallboy/gofichier/internal/engine"
	"github.com/datallboy/gofichier/internal/events"
	"github.com/datallboy/gofichier/internal/infra/logger"
)

// ErrShuttingDown is returned for work submitted after Shutdown began.
var ErrShuttingDown = errors.New("service is shutting down")

// Service is the single entry point for a presentation layer: it takes links
// and row commands in and sends events out.
type Service struct {
	app      *app.Context
	log      *logger.Logger
	bus      *events.Bus
	sched    *engine.Scheduler
	settings atomic.Pointer[domain.Settings]

	mu        sync.RWMutex
	closed    bool
	resolvers *pool.ContextPool
	resolving atomic.Int64

	cancelResolve context.CancelFunc
	cancelSched   context.CancelFunc
	shutdownOnce  sync.Once
	shutdownErr   error
}

// NewService wires the orchestrator. initial is the settings value in effect
// until ApplySettings replaces it.
func NewService(a *app.Context, initial domain.Settings) *Service {
	log := a.Logger
	if log == nil {
		log = logger.Discard()
	}

	s := &Service{
		app: a,
		log: log.Named("service"),
		bus: events.NewBus(log.Named("events")),
	}

	initial = initial.Normalize()
	s.settings.Store(&initial)

	dl := a.Config.Download
	s.sched = engine.NewScheduler(s.Settings, s.bus, engine.Options{
		ChunkSize:        dl.ChunkSize,
		ProgressInterval: dl.ProgressInterval,
		MaxTransfers:     dl.MaxTransfers,
		UserAgent:        a.Config.Resolver.UserAgent,
	}, log.Named("engine"))

	return s
}

// Start re-registers the previous session's unfinished transfers as Paused
// and starts scheduling. It does not block.
func (s *Service) Start(ctx context.Context) error {
	states, err := s.app.Store.Restore(ctx)
	if err != nil {
		s.log.Warn("Could not restore previous session: %v", err)
		states = nil
	}

	for _, st := range states {
		st.Status = domain.StatusPaused
		s.sched.SubmitState(st)
	}
	if len(states) > 0 {
		s.log.Info("Restored %d unfinished transfer(s)", len(states))
	}

	resolveCtx, cancelResolve := context.WithCancel(context.WithoutCancel(ctx))
	schedCtx, cancelSched := context.WithCancel(context.WithoutCancel(ctx))

	s.mu.Lock()
	s.resolvers = pool.New().WithContext(resolveCtx)
	s.cancelResolve = cancelResolve
	s.cancelSched = cancelSched
	s.mu.Unlock()

	go s.sched.Start(schedCtx)

	return nil
}

// Subscribe returns the event stream. Call cancel to unsubscribe.
func (s *Service) Subscribe(buffer int) (<-chan domain.Event, func()) {
	return s.bus.Subscribe(buffer)
}

// AddLinks resolves every link in text concurrently. Each success is
// registered and queued as soon as it resolves; each failure raises one alert.
// It returns the number of links accepted for resolution.
func (s *Service) AddLinks(text, password string) (int, error) {
	links := SplitLinks(text)
	if len(links) == 0 {
		s.alert("No links were given.")
		return 0, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed || s.resolvers == nil {
		return 0, ErrShuttingDown
	}

	for _, link := range links {
		s.resolving.Add(1)
		s.resolvers.Go(func(ctx context.Context) error {
			defer s.resolving.Add(-1)
			s.resolve(ctx, domain.LinkRequest{RawLink: link, Password: password})
			return nil
		})
	}

	return len(links), nil
}

func (s *Service) resolve(ctx context.Context, req domain.LinkRequest) {
	desc, err := s.app.Resolver.Resolve(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.log.Warn("Resolution failed: %v", err)
		s.alert(err.Error())
		return
	}

	task, row := s.sched.Submit("", desc, 0, domain.UnknownSize, domain.StatusQueued)
	s.log.Info("Queued %s as row %d (%s)", desc.DisplayName, row, task.ID())
}

// Control applies cmd to tasks by their stable IDs.
func (s *Service) Control(ids []string, cmd domain.Command) error {
	if len(ids) == 0 {
		return s.nothingSelected(cmd)
	}
	return s.sched.Control(ids, cmd)
}

// ControlByIndex applies cmd to the rows currently at the given positions.
// An empty selection raises exactly one alert.
func (s *Service) ControlByIndex(rows []int, cmd domain.Command) error {
	if len(rows) == 0 {
		return s.nothingSelected(cmd)
	}
	return s.sched.ControlByIndex(rows, cmd)
}

func (s *Service) nothingSelected(cmd domain.Command) error {
	s.alert("No rows were selected.")
	return &domain.CommandError{Command: cmd, Err: domain.ErrNothingSelected}
}

// Tasks lists every registered task in row order.
func (s *Service) Tasks() []domain.TransferState {
	return s.sched.States()
}

// Task returns one task's state by ID.
func (s *Service) Task(id string) (domain.TransferState, bool) {
	reg := s.sched.Registry()
	t, ok := reg.Get(id)
	if !ok {
		return domain.TransferState{}, false
	}
	st := t.State()
	st.RowIndex = reg.Row(id)
	return st, true
}

// Settings returns the settings value in effect.
func (s *Service) Settings() domain.Settings {
	return *s.settings.Load()
}

// ApplySettings replaces the settings and persists them. Running transfers
// keep the values they started with.
func (s *Service) ApplySettings(ctx context.Context, settings domain.Settings) error {
	next := settings.Normalize()
	s.settings.Store(&next)

	if err := s.app.Store.SaveSettings(ctx, next); err != nil {
		s.log.Warn("Settings applied but not saved: %v", err)
		return err
	}
	return nil
}

// Idle reports whether nothing is resolving, queued or running.
func (s *Service) Idle() bool {
	if s.resolving.Load() > 0 {
		return false
	}
	for _, st := range s.sched.States() {
		if st.Status == domain.StatusQueued || st.Status == domain.StatusRunning {
			return false
		}
	}
	return true
}

// Shutdown stops resolving, lets every running transfer settle as Paused and
// writes the snapshot. It is safe to call more than once.
func (s *Service) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		resolvers, cancelResolve, cancelSched := s.resolvers, s.cancelResolve, s.cancelSched
		s.mu.Unlock()

		if resolvers != nil {
			cancelResolve()
			_ = resolvers.Wait()
		}
		if cancelSched != nil {
			cancelSched()
			s.sched.Wait()
		}

		states := s.sched.Resumable()
		if err := s.app.Store.Snapshot(ctx, states); err != nil {
			s.log.Error("Snapshot failed: %v", err)
			s.shutdownErr = fmt.Errorf("snapshot: %w", err)
		} else {
			s.log.Info("Saved %d unfinished transfer(s)", len(states))
		}

		s.bus.Close()
	})

	return s.shutdownErr
}

func (s *Service) alert(msg string) {
	s.bus.Publish(domain.Event{Kind: domain.EventAlert, Row: -1, Message: msg})
}

// SplitLinks breaks pasted text into individual links, one per whitespace
// separated field, dropping duplicates.
func SplitLinks(text string) []string {
	fields := strings.Fields(text)
	seen := make(map[string]struct{}, len(fields))
	links := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		links = append(links, f)
	}
	return links
}
