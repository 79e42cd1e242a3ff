package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/datallboy/gofichier/internal/domain"
)

// Hooks receive a task's events. They run with the task's lock held and must
// not call back into the task.
type Hooks struct {
	Progress func(t *Task, p domain.Progress)
	Failed   func(t *Task, err error)
}

const partSuffix = ".part"

// Task owns one file's transfer and its .part file.
type Task struct {
	id     string
	desc   domain.DownloadDescriptor
	name   string
	writer *FileWriter
	paths  *pathBook
	hooks  Hooks

	mu              sync.Mutex
	partPath        string
	finalPath       string
	status          domain.TransferStatus
	written         int64
	total           int64
	cancel          context.CancelFunc
	done            chan struct{}
	pauseRequested  bool
	resumeRequested bool
	stopRequested   bool
	lastErr         error
}

// FileName is the on-disk name for desc: the display name when it has one,
// else the last URL segment, else a name built from id.
func FileName(desc domain.DownloadDescriptor, id string) string {
	name := SanitizeFileName(desc.DisplayName)
	if name == "" {
		name = SanitizeFileName(NameFromURL(desc.DirectURL))
	}
	if name == "" {
		name = "download-" + id
	}
	return name
}

// NewTask binds a descriptor to the final path it will be saved as. status
// must be Queued (fresh or resumed work) or Paused (restored from a snapshot).
func NewTask(id string, desc domain.DownloadDescriptor, final string, offset, total int64, status domain.TransferStatus, writer *FileWriter, hooks Hooks) *Task {
	if offset < 0 {
		offset = 0
	}

	return &Task{
		id:        id,
		desc:      desc,
		name:      FileName(desc, id),
		writer:    writer,
		hooks:     hooks,
		partPath:  final + partSuffix,
		finalPath: final,
		status:    status,
		written:   offset,
		total:     total,
	}
}

// ID is the task's stable identifier; it survives restarts.
func (t *Task) ID() string { return t.id }

// Descriptor is what resolution produced for this task.
func (t *Task) Descriptor() domain.DownloadDescriptor { return t.desc }

// PartPath is where bytes land until the transfer finishes.
func (t *Task) PartPath() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.partPath
}

// FinalPath is the name the .part file is renamed to once complete.
func (t *Task) FinalPath() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.finalPath
}

// Status is the task's current place in the state machine.
func (t *Task) Status() domain.TransferStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Err is the cause of the last failure, if the task is Failed.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastErr
}

// State returns a copy of the task's progress. RowIndex is left to the registry.
func (t *Task) State() domain.TransferState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stateLocked()
}

func (t *Task) stateLocked() domain.TransferState {
	return domain.TransferState{
		ID:           t.id,
		Descriptor:   t.desc,
		BytesWritten: t.written,
		TotalBytes:   t.total,
		Status:       t.status,
		RowIndex:     -1,
		Path:         t.finalPath,
	}
}

// ResumableState returns the state to snapshot, or false when there is
// nothing left to resume (Finished or Stopped).
func (t *Task) ResumableState() (domain.TransferState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.status.IsResumable() {
		return domain.TransferState{}, false
	}
	return t.stateLocked(), true
}

// Run performs the transfer if the task is still Queued. It returns once the
// task is Finished, Paused, Stopped or Failed, or Queued again when a resume
// arrived while a pause was settling.
func (t *Task) Run(ctx context.Context, env RunEnv) error {
	t.mu.Lock()
	if t.status != domain.StatusQueued {
		t.mu.Unlock()
		return nil
	}
	if t.written == 0 && env.Dir != "" {
		t.bindDirLocked(env.Dir, env)
	}
	runCtx, cancel := context.WithCancel(ctx)
	t.moveLocked(domain.StatusRunning)
	t.cancel = cancel
	t.done = make(chan struct{})
	t.pauseRequested, t.resumeRequested, t.stopRequested = false, false, false
	t.lastErr = nil
	part, final := t.partPath, t.finalPath
	t.emitLocked(0)
	t.mu.Unlock()

	defer cancel()

	err := os.MkdirAll(filepath.Dir(part), 0755)
	if err == nil {
		err = t.transfer(runCtx, env, part)
	} else {
		err = &domain.TransferError{TaskID: t.id, Op: "mkdir", Err: err}
	}

	if cerr := t.writer.CloseFile(part); cerr != nil && err == nil {
		err = &domain.TransferError{TaskID: t.id, Op: "close", Err: cerr}
	}

	if err == nil {
		if merr := moveFile(part, final); merr != nil {
			err = &domain.TransferError{TaskID: t.id, Op: "finalize", Err: merr}
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	switch {
	case err == nil:
		t.moveLocked(domain.StatusFinished)
		if t.total < 0 {
			t.total = t.written
		}
		t.emitLocked(0)
	case t.stopRequested:
		t.moveLocked(domain.StatusStopped)
		if derr := t.writer.Discard(part); derr != nil && env.Log != nil {
			env.Log.Warn("Could not remove %s: %v", part, derr)
		}
		err = nil
	case t.pauseRequested && t.resumeRequested && ctx.Err() == nil:
		// The scheduler puts the task back in line once Run returns
		t.moveLocked(domain.StatusQueued)
		t.emitLocked(0)
		err = nil
	case t.pauseRequested || ctx.Err() != nil:
		// Scheduler shutdown is handled like a pause so the offset survives
		t.moveLocked(domain.StatusPaused)
		t.emitLocked(0)
		err = nil
	default:
		t.moveLocked(domain.StatusFailed)
		t.lastErr = err
		if t.hooks.Failed != nil {
			t.hooks.Failed(t, err)
		}
		t.emitLocked(0)
	}

	t.cancel = nil
	close(t.done)
	t.done = nil

	return err
}

// bindDirLocked moves a task that has no bytes yet into dir, so a directory
// change made while it waited applies to it.
func (t *Task) bindDirLocked(dir string, env RunEnv) {
	if t.paths == nil || filepath.Clean(dir) == filepath.Dir(t.finalPath) {
		return
	}

	oldFinal, oldPart := t.finalPath, t.partPath
	t.finalPath = t.paths.reserve(t.id, dir, t.name)
	t.partPath = t.finalPath + partSuffix
	t.paths.release(t.id, oldFinal)

	if err := t.writer.Discard(oldPart); err != nil && env.Log != nil {
		env.Log.Warn("Could not remove %s: %v", oldPart, err)
	}
}

// Pause closes the connection of a running task and keeps the .part file.
// A queued task is simply taken out of the line.
func (t *Task) Pause() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.status {
	case domain.StatusRunning:
		t.pauseRequested = true
		t.resumeRequested = false
		t.cancel()
		return nil
	case domain.StatusPaused:
		return nil
	}

	if !t.moveLocked(domain.StatusPaused) {
		return fmt.Errorf("pause %s: %w", t.status, domain.ErrInvalidTransition)
	}
	t.emitLocked(0)
	return nil
}

// Resume moves a Paused or Failed task back to Queued. It reports whether the
// task needs to be handed to the scheduler again. A task still settling a
// pause is re-queued by its runner instead.
func (t *Task) Resume() (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.status {
	case domain.StatusRunning:
		if t.pauseRequested && !t.stopRequested {
			t.resumeRequested = true
		}
		return false, nil
	case domain.StatusQueued:
		return false, nil
	}

	if !t.moveLocked(domain.StatusQueued) {
		return false, fmt.Errorf("resume %s: %w", t.status, domain.ErrInvalidTransition)
	}
	t.lastErr = nil
	t.emitLocked(0)
	return true, nil
}

// Stop ends the task for good and deletes its .part file. It is safe while a
// read or write is in flight: the connection is closed and Stop waits only for
// the runner to notice.
func (t *Task) Stop() {
	t.mu.Lock()

	if t.status.IsTerminal() {
		t.mu.Unlock()
		return
	}

	if t.status == domain.StatusRunning {
		t.stopRequested = true
		t.resumeRequested = false
		t.cancel()
		done := t.done
		t.mu.Unlock()
		<-done
		return
	}

	t.moveLocked(domain.StatusStopped)
	part := t.partPath
	t.mu.Unlock()
	_ = t.writer.Discard(part)
}

// moveLocked applies next if the state machine allows it.
func (t *Task) moveLocked(next domain.TransferStatus) bool {
	if !t.status.CanTransition(next) {
		return false
	}
	t.status = next
	return true
}

func (t *Task) emitLocked(rate float64) {
	if t.hooks.Progress == nil {
		return
	}
	t.hooks.Progress(t, domain.NewProgress(t.desc.DisplayName, t.written, t.total, rate, t.status))
}

func (t *Task) offsets() (int64, int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.written, t.total
}

func (t *Task) setProgress(written, total int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.written = written
	t.total = total
}

func (t *Task) setWritten(written int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.written = written
}

// emitSample reports a chunk sample while Running.
func (t *Task) emitSample(rate float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status == domain.StatusRunning {
		t.emitLocked(rate)
	}
}

// fail marks a task that could not be started.
func (t *Task) fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != domain.StatusQueued || !t.moveLocked(domain.StatusFailed) {
		return
	}
	t.lastErr = err
	if t.hooks.Failed != nil {
		t.hooks.Failed(t, err)
	}
	t.emitLocked(0)
}
