package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/datallboy/gofichier/internal/domain"
	"github.com/datallboy/gofichier/internal/infra/httpclient"
	"github.com/datallboy/gofichier/internal/infra/logger"
)

// Publisher receives every event the scheduler produces.
type Publisher interface {
	Publish(e domain.Event)
}

// SettingsFunc returns the settings in effect right now.
type SettingsFunc func() domain.Settings

type Options struct {
	ChunkSize        int
	ProgressInterval time.Duration
	MaxTransfers     int
	UserAgent        string
}

// Scheduler starts queued tasks in FIFO order while at most MaxTransfers are
// running, and applies pause, resume and stop commands to them.
type Scheduler struct {
	mu      sync.Mutex
	pending []*Task

	registry *Registry
	writer   *FileWriter
	paths    *pathBook
	slots    *semaphore.Weighted
	settings SettingsFunc
	events   Publisher
	opts     Options
	log      *logger.Logger

	newJobChan chan struct{}
	loopDone   chan struct{}
	started    bool
	wg         sync.WaitGroup
}

func NewScheduler(settings SettingsFunc, events Publisher, opts Options, log *logger.Logger) *Scheduler {
	if opts.MaxTransfers <= 0 {
		opts.MaxTransfers = 1
	}
	if log == nil {
		log = logger.Discard()
	}

	return &Scheduler{
		registry:   NewRegistry(),
		writer:     NewFileWriter(),
		paths:      newPathBook(),
		slots:      semaphore.NewWeighted(int64(opts.MaxTransfers)),
		settings:   settings,
		events:     events,
		opts:       opts,
		log:        log,
		newJobChan: make(chan struct{}, 1),
		loopDone:   make(chan struct{}),
	}
}

// Registry exposes the task table in row order.
func (s *Scheduler) Registry() *Registry { return s.registry }

// Submit registers a task at the end of the table and announces its row.
// Queued tasks are started when a slot frees up; Paused ones wait for Resume.
func (s *Scheduler) Submit(id string, desc domain.DownloadDescriptor, offset, total int64, status domain.TransferStatus) (*Task, int) {
	return s.SubmitState(domain.TransferState{
		ID:           id,
		Descriptor:   desc,
		BytesWritten: offset,
		TotalBytes:   total,
		Status:       status,
	})
}

// SubmitState registers a task from a saved state. A recorded Path is kept so
// the task finds its .part file again; otherwise a free name is picked in the
// current download directory.
func (s *Scheduler) SubmitState(st domain.TransferState) (*Task, int) {
	id := st.ID
	if id == "" {
		id = domain.NewTaskID()
	}
	status := st.Status
	if status != domain.StatusPaused {
		status = domain.StatusQueued
	}

	dir := s.settings().DownloadDirectory
	name := FileName(st.Descriptor, id)

	final := st.Path
	if final == "" && st.BytesWritten > 0 {
		// Saved without a path: the partial file sits under its plain name
		final = filepath.Join(dir, name)
	}
	if final == "" || !s.paths.claim(id, final) {
		final = s.paths.reserve(id, dir, name)
	}

	t := NewTask(id, st.Descriptor, final, st.BytesWritten, st.TotalBytes, status, s.writer, Hooks{
		Progress: s.onProgress,
		Failed:   s.onFailed,
	})
	t.paths = s.paths

	row := s.registry.Add(t)
	s.publish(domain.Event{
		Kind:        domain.EventRowAdded,
		TaskID:      id,
		Row:         row,
		DisplayName: st.Descriptor.DisplayName,
		HasPassword: st.Descriptor.Password != "",
	})
	t.mu.Lock()
	t.emitLocked(0)
	t.mu.Unlock()

	if status == domain.StatusQueued {
		s.enqueue(t)
	}

	return t, row
}

func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	defer close(s.loopDone)

	for {
		if err := s.slots.Acquire(ctx, 1); err != nil {
			return
		}

		next := s.next()
		if next == nil {
			s.slots.Release(1)
			select {
			case <-s.newJobChan:
				continue
			case <-ctx.Done():
				return
			}
		}

		if ctx.Err() != nil {
			s.slots.Release(1)
			return
		}

		env, err := s.env()
		if err != nil {
			s.slots.Release(1)
			next.fail(&domain.TransferError{TaskID: next.ID(), Op: "configure", Err: err})
			continue
		}

		s.wg.Add(1)
		go func(t *Task) {
			defer s.wg.Done()
			defer s.slots.Release(1)

			if err := t.Run(ctx, env); err != nil {
				s.log.Debug("Transfer %s ended: %v", t.ID(), err)
			}
			// Resumed while its pause was settling
			if t.Status() == domain.StatusQueued {
				s.enqueue(t)
			}
		}(next)
	}
}

// Wait blocks until Start has returned and every running task has settled.
// Cancel the context given to Start first.
func (s *Scheduler) Wait() {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if started {
		<-s.loopDone
	}
	s.wg.Wait()
	s.writer.CloseAll()
}

// Control applies cmd to each task. Unknown IDs and tasks the command does
// not apply to are skipped.
func (s *Scheduler) Control(ids []string, cmd domain.Command) error {
	switch cmd {
	case domain.CommandPause, domain.CommandResume, domain.CommandStop:
	default:
		return &domain.CommandError{Command: cmd, Err: fmt.Errorf("unknown command")}
	}

	for _, id := range ids {
		t, ok := s.registry.Get(id)
		if !ok {
			continue
		}

		switch cmd {
		case domain.CommandPause:
			if err := t.Pause(); err != nil {
				s.log.Debug("Pause %s skipped: %v", id, err)
			}
		case domain.CommandResume:
			requeue, err := t.Resume()
			if err != nil {
				s.log.Debug("Resume %s skipped: %v", id, err)
				continue
			}
			if requeue {
				s.enqueue(t)
			}
		case domain.CommandStop:
			t.Stop()
			s.dequeue(t)
			s.paths.release(id, t.FinalPath())
			if row := s.registry.Remove(id); row >= 0 {
				s.publish(domain.Event{Kind: domain.EventRowRemoved, TaskID: id, Row: row})
			}
		}
	}

	return nil
}

// ControlByIndex resolves rows against the current table and applies cmd.
// Stopping several rows removes exactly the tasks that were selected.
func (s *Scheduler) ControlByIndex(rows []int, cmd domain.Command) error {
	if len(rows) == 0 {
		return &domain.CommandError{Command: cmd, Err: domain.ErrNothingSelected}
	}
	return s.Control(s.registry.Resolve(rows), cmd)
}

// States returns every task's state in row order.
func (s *Scheduler) States() []domain.TransferState {
	tasks := s.registry.All()
	out := make([]domain.TransferState, 0, len(tasks))
	for i, t := range tasks {
		st := t.State()
		st.RowIndex = i
		out = append(out, st)
	}
	return out
}

// Resumable returns the tasks that belong in a snapshot, in row order.
func (s *Scheduler) Resumable() []domain.TransferState {
	tasks := s.registry.All()
	out := make([]domain.TransferState, 0, len(tasks))
	for i, t := range tasks {
		if st, ok := t.ResumableState(); ok {
			st.RowIndex = i
			out = append(out, st)
		}
	}
	return out
}

// Running counts tasks currently transferring.
func (s *Scheduler) Running() int {
	n := 0
	for _, t := range s.registry.All() {
		if t.Status() == domain.StatusRunning {
			n++
		}
	}
	return n
}

func (s *Scheduler) env() (RunEnv, error) {
	settings := s.settings()
	client, err := httpclient.New(settings)
	if err != nil {
		return RunEnv{}, err
	}

	return RunEnv{
		Dir:              settings.DownloadDirectory,
		Client:           client,
		Timeout:          settings.Timeout(),
		ChunkSize:        s.opts.ChunkSize,
		ProgressInterval: s.opts.ProgressInterval,
		UserAgent:        s.opts.UserAgent,
		Log:              s.log,
	}, nil
}

func (s *Scheduler) enqueue(t *Task) {
	s.mu.Lock()
	if !slices.Contains(s.pending, t) {
		s.pending = append(s.pending, t)
	}
	s.mu.Unlock()

	// Signal the Start() loop that there is work to do
	select {
	case s.newJobChan <- struct{}{}:
	default:
	}
}

func (s *Scheduler) dequeue(t *Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := slices.Index(s.pending, t); i >= 0 {
		s.pending = slices.Delete(s.pending, i, i+1)
	}
}

// next pops the oldest pending task that is still Queued.
func (s *Scheduler) next() *Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.pending) > 0 {
		t := s.pending[0]
		s.pending = s.pending[1:]
		if t.Status() == domain.StatusQueued {
			return t
		}
	}
	return nil
}

func (s *Scheduler) onProgress(t *Task, p domain.Progress) {
	row := s.registry.Row(t.ID())
	if row < 0 {
		return
	}
	s.publish(domain.Event{Kind: domain.EventProgress, TaskID: t.ID(), Row: row, Progress: &p})
}

func (s *Scheduler) onFailed(t *Task, err error) {
	s.log.Error("Transfer of %s failed: %v", t.desc.DisplayName, err)
	s.publish(domain.Event{
		Kind:    domain.EventAlert,
		TaskID:  t.ID(),
		Row:     s.registry.Row(t.ID()),
		Message: fmt.Sprintf("Download of %s failed: %v", t.desc.DisplayName, err),
	})
}

func (s *Scheduler) publish(e domain.Event) {
	if s.events != nil {
		s.events.Publish(e)
	}
}
