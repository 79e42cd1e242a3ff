package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/datallboy/gofichier/internal/domain"
	"github.com/datallboy/gofichier/internal/infra/httpclient"
	"github.com/datallboy/gofichier/internal/infra/logger"
)

// RunEnv is what a task needs for one run. It is rebuilt from the current
// settings every time a task is started.
type RunEnv struct {
	// Dir is the download directory in effect. A task with no bytes written
	// yet moves there; one with a partial file keeps its own.
	Dir              string
	Client           *http.Client
	Timeout          time.Duration
	ChunkSize        int
	ProgressInterval time.Duration
	UserAgent        string
	Log              *logger.Logger
}

var (
	errIdleTimeout = errors.New("no data received within the timeout")
	errRestart     = errors.New("server cannot continue from the offset")
)

// plan is what a response allows the task to do.
type plan struct {
	start int64 // offset of the body's first byte
	total int64
	done  bool // the file is already complete
}

func (t *Task) transfer(ctx context.Context, env RunEnv, part string) error {
	offset, known := t.offsets()

	// A .part file shorter than the recorded offset cannot be trusted
	offset, err := t.writer.Open(part, offset)
	if err != nil {
		return &domain.TransferError{TaskID: t.id, Op: "open", Err: err}
	}

	reqCtx, cancelReq := context.WithCancelCause(ctx)
	defer cancelReq(nil)

	resp, p, err := t.negotiate(reqCtx, env, offset, known)
	if errors.Is(err, errRestart) && offset > 0 {
		if env.Log != nil {
			env.Log.Warn("%s: restarting from 0 (%v)", t.desc.DisplayName, err)
		}
		offset, known = 0, domain.UnknownSize
		if _, err := t.writer.Open(part, 0); err != nil {
			return &domain.TransferError{TaskID: t.id, Op: "truncate", Err: err}
		}
		resp, p, err = t.negotiate(reqCtx, env, 0, known)
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	defer resp.Body.Close()

	if p.start != offset {
		if _, err := t.writer.Open(part, p.start); err != nil {
			return &domain.TransferError{TaskID: t.id, Op: "truncate", Err: err}
		}
	}
	t.setProgress(p.start, p.total)

	if p.done {
		return nil
	}

	return t.copyBody(ctx, reqCtx, cancelReq, env, resp.Body, part, p)
}

// negotiate sends the request and decides how the response body maps onto
// the .part file.
func (t *Task) negotiate(ctx context.Context, env RunEnv, offset, known int64) (*http.Response, plan, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.desc.DirectURL, nil)
	if err != nil {
		return nil, plan{}, &domain.TransferError{TaskID: t.id, Op: "request", Err: err}
	}
	if env.UserAgent != "" {
		req.Header.Set("User-Agent", env.UserAgent)
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := env.Client.Do(req)
	if err != nil {
		op := "request"
		if httpclient.IsTimeout(err) {
			op = "timeout"
		}
		return nil, plan{}, &domain.TransferError{TaskID: t.id, Op: op, Err: err}
	}

	p, err := planFor(resp, offset, known)
	if err != nil {
		resp.Body.Close()
		if !errors.Is(err, errRestart) {
			err = &domain.TransferError{TaskID: t.id, Op: "request", Err: err}
		}
		return nil, plan{}, err
	}

	return resp, p, nil
}

func planFor(resp *http.Response, offset, known int64) (plan, error) {
	switch resp.StatusCode {
	case http.StatusOK:
		// Range ignored: the body is the whole file
		return plan{start: 0, total: resp.ContentLength}, nil

	case http.StatusPartialContent:
		start, size, ok := parseContentRange(resp.Header.Get("Content-Range"))
		if !ok || start != offset {
			return plan{}, errRestart
		}
		if known >= 0 && size >= 0 && size != known {
			return plan{}, fmt.Errorf("%w: size changed from %d to %d", errRestart, known, size)
		}
		if size < 0 && resp.ContentLength >= 0 {
			size = offset + resp.ContentLength
		}
		return plan{start: offset, total: size}, nil

	case http.StatusRequestedRangeNotSatisfiable:
		if offset > 0 && known >= 0 && offset >= known {
			return plan{start: known, total: known, done: true}, nil
		}
		if offset > 0 {
			return plan{}, errRestart
		}
	}

	return plan{}, fmt.Errorf("unexpected response %s", resp.Status)
}

// parseContentRange reads "bytes start-end/size". size is UnknownSize for "*".
func parseContentRange(v string) (int64, int64, bool) {
	v, ok := strings.CutPrefix(strings.TrimSpace(v), "bytes ")
	if !ok {
		return 0, 0, false
	}
	span, size, ok := strings.Cut(v, "/")
	if !ok {
		return 0, 0, false
	}
	first, _, ok := strings.Cut(span, "-")
	if !ok {
		return 0, 0, false
	}

	start, err := strconv.ParseInt(strings.TrimSpace(first), 10, 64)
	if err != nil || start < 0 {
		return 0, 0, false
	}

	if size = strings.TrimSpace(size); size == "*" {
		return start, domain.UnknownSize, true
	}
	total, err := strconv.ParseInt(size, 10, 64)
	if err != nil || total < 0 {
		return 0, 0, false
	}
	return start, total, true
}

func (t *Task) copyBody(ctx, reqCtx context.Context, cancelReq context.CancelCauseFunc, env RunEnv, body io.Reader, part string, p plan) error {
	chunk := env.ChunkSize
	if chunk <= 0 {
		chunk = 64 * 1024
	}
	buf := make([]byte, chunk)

	idle := env.Timeout
	if idle <= 0 {
		idle = domain.DefaultTimeoutSeconds * time.Second
	}
	watchdog := time.AfterFunc(idle, func() { cancelReq(errIdleTimeout) })
	defer watchdog.Stop()

	every := rate.Sometimes{Interval: env.ProgressInterval}
	sampler := newRateSampler(p.start)

	pos := p.start
	for {
		n, rerr := body.Read(buf)
		if n > 0 {
			watchdog.Reset(idle)

			if err := t.writer.WriteAt(part, buf[:n], pos); err != nil {
				return &domain.TransferError{TaskID: t.id, Op: "write", Err: err}
			}
			pos += int64(n)
			t.setWritten(pos)

			every.Do(func() { t.emitSample(sampler.sample(pos)) })
		}

		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(context.Cause(reqCtx), errIdleTimeout) {
				return &domain.TransferError{TaskID: t.id, Op: "timeout", Err: errIdleTimeout}
			}
			return &domain.TransferError{TaskID: t.id, Op: "read", Err: rerr}
		}
	}

	if p.total >= 0 && pos < p.total {
		return &domain.TransferError{TaskID: t.id, Op: "read", Err: io.ErrUnexpectedEOF}
	}

	return nil
}

// rateSampler turns byte counts into a rate since the previous sample.
type rateSampler struct {
	lastBytes int64
	lastAt    time.Time
}

func newRateSampler(start int64) *rateSampler {
	return &rateSampler{lastBytes: start, lastAt: time.Now()}
}

func (s *rateSampler) sample(pos int64) float64 {
	now := time.Now()
	elapsed := now.Sub(s.lastAt).Seconds()
	delta := pos - s.lastBytes
	s.lastBytes, s.lastAt = pos, now
	if elapsed <= 0 {
		return 0
	}
	return float64(delta) / elapsed
}
