package poller

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"vidgen/internal/infra"
	"vidgen/internal/videoapi"
)

// StatusClient is the one API call the poller needs.
type StatusClient interface {
	GetJob(ctx context.Context, jobID string) (*videoapi.Job, error)
}

// Repository is the poller's view of the job cache.
type Repository interface {
	Upsert(job videoapi.Job)
	Remove(jobID string)
	Get(jobID string) (videoapi.Job, bool)
}

// ErrorSink receives per-job errors when a poll loop gives up.
type ErrorSink interface {
	JobError(jobID string, err error)
}

type nopSink struct{}

func (nopSink) JobError(string, error) {}

// Options configures a Poller.
type Options struct {
	Client StatusClient
	Repo   Repository
	Sink   ErrorSink
	Logger *infra.Logger

	// Interval is the base delay between successful polls.
	Interval time.Duration
	// MaxBackoff caps the backoff multiplier applied after transient
	// failures.
	MaxBackoff int
	// MaxConcurrent bounds how many jobs poll at once; the rest queue in
	// FIFO order.
	MaxConcurrent int

	// OnCompleted fires when a job reaches completed status. It runs on the
	// job's polling goroutine, so it must hand long work elsewhere.
	OnCompleted func(jobID string)
}

// Poller runs one status loop per tracked job until the job reaches a
// terminal state, disappears server-side, or tracking is stopped. It is the
// only component that retries, and only for transient failures.
type Poller struct {
	client      StatusClient
	repo        Repository
	sink        ErrorSink
	logger      *infra.Logger
	interval    time.Duration
	maxBackoff  int
	maxActive   int
	onCompleted func(string)

	mu     sync.Mutex
	states map[string]*pollState
	queue  []string
	active int
	closed bool

	// sleep is swapped out by tests to observe backoff without waiting.
	sleep func(ctx context.Context, d time.Duration) bool
}

type pollState struct {
	jobID    string
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	admitted bool
}

// New constructs a poller with sane defaults.
func New(opts Options) (*Poller, error) {
	if opts.Client == nil {
		return nil, errors.New("poller: status client is required")
	}
	if opts.Repo == nil {
		return nil, errors.New("poller: repository is required")
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	maxBackoff := opts.MaxBackoff
	if maxBackoff < 1 {
		maxBackoff = 8
	}
	maxActive := opts.MaxConcurrent
	if maxActive < 1 {
		maxActive = 10
	}
	sink := opts.Sink
	if sink == nil {
		sink = nopSink{}
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Poller{
		client:      opts.Client,
		repo:        opts.Repo,
		sink:        sink,
		logger:      logger,
		interval:    interval,
		maxBackoff:  maxBackoff,
		maxActive:   maxActive,
		onCompleted: opts.OnCompleted,
		states:      make(map[string]*pollState),
		sleep:       sleepCtx,
	}, nil
}

// Track starts polling a job. It is a no-op when the job is already tracked,
// already terminal in the repository, or the poller has been shut down. When
// all slots are busy the job queues and is admitted in the order tracking
// was requested.
func (p *Poller) Track(jobID string) {
	if jobID == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		p.logger.Debug().Str("job_id", jobID).Msg("poller: track after shutdown ignored")
		return
	}
	if _, exists := p.states[jobID]; exists {
		return
	}
	if job, ok := p.repo.Get(jobID); ok && job.Status.Terminal() {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	st := &pollState{
		jobID:  jobID,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	p.states[jobID] = st
	p.queue = append(p.queue, jobID)
	p.admitLocked()
	p.logger.Debug().Str("job_id", jobID).Bool("admitted", st.admitted).Msg("poller: tracking job")
}

// StopTracking cancels a job's poll loop and returns once the loop has fully
// stopped, so no status request for the job can still be in flight
// afterwards. Unknown jobs are ignored.
func (p *Poller) StopTracking(jobID string) {
	p.mu.Lock()
	st, ok := p.states[jobID]
	if !ok {
		p.mu.Unlock()
		return
	}
	if !st.admitted {
		delete(p.states, jobID)
		p.queue = removeID(p.queue, jobID)
		st.cancel()
		close(st.done)
		p.mu.Unlock()
		return
	}
	st.cancel()
	p.mu.Unlock()
	<-st.done
}

// StopAll cancels every poll loop and waits for all of them to stop. The
// poller refuses new work afterwards.
func (p *Poller) StopAll() {
	p.mu.Lock()
	p.closed = true
	waits := make([]chan struct{}, 0, len(p.states))
	for id, st := range p.states {
		if st.admitted {
			st.cancel()
			waits = append(waits, st.done)
			continue
		}
		delete(p.states, id)
		st.cancel()
		close(st.done)
	}
	p.queue = nil
	p.mu.Unlock()

	for _, done := range waits {
		<-done
	}
}

// Tracking reports whether the job has an active or queued poll loop.
func (p *Poller) Tracking(jobID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.states[jobID]
	return ok
}

// admitLocked starts loops for queued jobs while slots are free. Callers
// hold p.mu.
func (p *Poller) admitLocked() {
	for p.active < p.maxActive && len(p.queue) > 0 {
		id := p.queue[0]
		p.queue = p.queue[1:]
		st, ok := p.states[id]
		if !ok || st.admitted {
			continue
		}
		st.admitted = true
		p.active++
		go p.run(st)
	}
}

func (p *Poller) run(st *pollState) {
	defer func() {
		p.mu.Lock()
		if cur, ok := p.states[st.jobID]; ok && cur == st {
			delete(p.states, st.jobID)
		}
		p.active--
		if !p.closed {
			p.admitLocked()
		}
		p.mu.Unlock()
		close(st.done)
	}()

	backoff := 1
	for {
		if st.ctx.Err() != nil {
			return
		}
		job, err := p.client.GetJob(st.ctx, st.jobID)
		if st.ctx.Err() != nil {
			// Cancelled while the request was in flight. Drop whatever came
			// back so no state change lands after a stop.
			return
		}
		switch {
		case err == nil:
			p.repo.Upsert(*job)
			if job.Status.Terminal() {
				p.logger.Info().
					Str("job_id", st.jobID).
					Str("status", string(job.Status)).
					Msg("poller: job reached terminal state")
				if job.Status == videoapi.StatusCompleted && p.onCompleted != nil {
					p.onCompleted(st.jobID)
				}
				return
			}
			backoff = 1
		case videoapi.IsNotFound(err):
			// Deleted elsewhere. Drop it locally without surfacing an error.
			p.logger.Info().Str("job_id", st.jobID).Msg("poller: job gone server-side, removing")
			p.repo.Remove(st.jobID)
			return
		case transient(err):
			if backoff < p.maxBackoff {
				backoff *= 2
				if backoff > p.maxBackoff {
					backoff = p.maxBackoff
				}
			}
			p.logger.Debug().
				Str("job_id", st.jobID).
				Int("backoff", backoff).
				Err(err).
				Msg("poller: transient failure, backing off")
		default:
			p.logger.Error().Str("job_id", st.jobID).Err(err).Msg("poller: giving up on job")
			p.sink.JobError(st.jobID, err)
			return
		}
		if !p.sleep(st.ctx, p.interval*time.Duration(backoff)) {
			return
		}
	}
}

// transient reports whether the poll loop should retry with backoff rather
// than give up: connection-level failures, rate limiting, and server errors.
func transient(err error) bool {
	apiErr, ok := videoapi.AsError(err)
	if !ok {
		return false
	}
	if apiErr.Kind == videoapi.ErrNetwork {
		return true
	}
	if apiErr.Kind != videoapi.ErrHTTP {
		return false
	}
	return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, cur := range ids {
		if cur != id {
			out = append(out, cur)
		}
	}
	return out
}
