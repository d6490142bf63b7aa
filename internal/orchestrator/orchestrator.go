package orchestrator

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"vidgen/internal/infra"
	"vidgen/internal/jobstore"
	"vidgen/internal/poller"
	"vidgen/internal/videoapi"
	"vidgen/pkg/zip"
)

// API is the remote surface the orchestrator drives.
type API interface {
	CreateJob(ctx context.Context, req videoapi.CreateJobRequest) (*videoapi.Job, error)
	GetJob(ctx context.Context, jobID string) (*videoapi.Job, error)
	ListJobs(ctx context.Context, req videoapi.ListJobsRequest) (*videoapi.JobPage, error)
	DeleteJob(ctx context.Context, jobID string) error
}

// Downloader materializes artifacts locally and disposes of them again.
type Downloader interface {
	Fetch(ctx context.Context, jobID string) (string, error)
	RemovePath(path string) error
}

// Options configures an Orchestrator.
type Options struct {
	API        API
	Downloader Downloader
	Sink       jobstore.Sink
	Logger     *infra.Logger

	DefaultModel   string
	DefaultSeconds int
	DefaultSize    string

	PollInterval   time.Duration
	MaxBackoff     int
	MaxConcurrent  int
	ListPageSize   int
	RefreshPageCap int
}

// Orchestrator is the single entry point for job lifecycle operations. It
// owns the job cache and the poller, keeps the two consistent, and triggers
// artifact downloads when jobs complete.
type Orchestrator struct {
	api        API
	downloader Downloader
	store      *jobstore.Store
	poller     *poller.Poller
	logger     *infra.Logger

	defaultModel   string
	defaultSeconds int
	defaultSize    string
	listPageSize   int
	refreshPageCap int

	fetchMu  sync.Mutex
	inflight map[string]*fetchCall

	bg     sync.WaitGroup
	bgCtx  context.Context
	bgStop context.CancelFunc
}

// fetchCall is one in-flight artifact download shared by every caller
// asking for the same job.
type fetchCall struct {
	done chan struct{}
	path string
	err  error
}

// New builds an orchestrator and the poller it drives.
func New(opts Options) (*Orchestrator, error) {
	if opts.API == nil {
		return nil, errors.New("orchestrator: api client is required")
	}
	if opts.Downloader == nil {
		return nil, errors.New("orchestrator: downloader is required")
	}
	sink := opts.Sink
	if sink == nil {
		sink = jobstore.NopSink{}
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	listPageSize := opts.ListPageSize
	if listPageSize < 1 {
		listPageSize = 50
	}
	refreshPageCap := opts.RefreshPageCap
	if refreshPageCap < 1 {
		refreshPageCap = 20
	}

	o := &Orchestrator{
		api:            opts.API,
		downloader:     opts.Downloader,
		store:          jobstore.New(sink, logger),
		logger:         logger,
		defaultModel:   opts.DefaultModel,
		defaultSeconds: opts.DefaultSeconds,
		defaultSize:    opts.DefaultSize,
		listPageSize:   listPageSize,
		refreshPageCap: refreshPageCap,
		inflight:       make(map[string]*fetchCall),
	}
	o.bgCtx, o.bgStop = context.WithCancel(context.Background())

	p, err := poller.New(poller.Options{
		Client:        opts.API,
		Repo:          o.store,
		Sink:          sink,
		Logger:        logger,
		Interval:      opts.PollInterval,
		MaxBackoff:    opts.MaxBackoff,
		MaxConcurrent: opts.MaxConcurrent,
		OnCompleted:   o.handleCompleted,
	})
	if err != nil {
		return nil, err
	}
	o.poller = p
	return o, nil
}

// Jobs exposes the job cache for read access and change subscriptions.
func (o *Orchestrator) Jobs() *jobstore.Store {
	return o.store
}

// Submit validates the prompt locally, creates the job remotely, caches the
// returned record, and starts tracking it. Unset generation parameters fall
// back to the configured defaults.
func (o *Orchestrator) Submit(ctx context.Context, req videoapi.CreateJobRequest) (*videoapi.Job, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, &videoapi.Error{Kind: videoapi.ErrValidation, Message: "prompt must not be empty"}
	}
	if req.Model == "" {
		req.Model = o.defaultModel
	}
	if req.Seconds <= 0 {
		req.Seconds = o.defaultSeconds
	}
	if req.Size == "" {
		req.Size = o.defaultSize
	}

	job, err := o.api.CreateJob(ctx, req)
	if err != nil {
		return nil, err
	}
	o.store.Upsert(*job)
	o.poller.Track(job.ID)
	o.logger.Info().
		Str("job_id", job.ID).
		Str("model", job.Model).
		Str("status", string(job.Status)).
		Msg("orchestrator: job submitted")
	clone := job.Clone()
	return &clone, nil
}

// RefreshAll reconciles the cache with the server's listing, following
// pagination until the server reports no more pages or the page cap trips,
// then resumes tracking every job that can still change. Jobs absent from
// the listing are deliberately kept: removal happens only through an
// explicit delete or a 404 seen while polling, so a partial page fetch can
// never hide a live job.
func (o *Orchestrator) RefreshAll(ctx context.Context) error {
	after := ""
	for page := 0; page < o.refreshPageCap; page++ {
		res, err := o.api.ListJobs(ctx, videoapi.ListJobsRequest{Limit: o.listPageSize, After: after})
		if err != nil {
			return err
		}
		for _, job := range res.Jobs {
			o.store.Upsert(job)
			if !job.Status.Terminal() {
				o.poller.Track(job.ID)
			}
		}
		if !res.HasMore {
			return nil
		}
		next := res.NextCursor
		if next == "" && len(res.Jobs) > 0 {
			next = res.Jobs[len(res.Jobs)-1].ID
		}
		if next == "" || next == after {
			return nil
		}
		after = next
	}
	o.logger.Warn().Int("pages", o.refreshPageCap).Msg("orchestrator: refresh stopped at page cap")
	return nil
}

// DeleteJob stops polling the job, deletes it remotely, and drops it from
// the cache along with any downloaded artifact file. A 404 means someone
// already deleted it elsewhere and counts as success. On any other failure
// the cache is left untouched and polling resumes for jobs that can still
// change.
func (o *Orchestrator) DeleteJob(ctx context.Context, jobID string) error {
	o.poller.StopTracking(jobID)

	if err := o.api.DeleteJob(ctx, jobID); err != nil && !videoapi.IsNotFound(err) {
		if job, ok := o.store.Get(jobID); ok && !job.Status.Terminal() {
			o.poller.Track(jobID)
		}
		return err
	}

	job, existed := o.store.Get(jobID)
	o.store.Remove(jobID)
	if existed && job.LocalArtifact != "" {
		if err := o.downloader.RemovePath(job.LocalArtifact); err != nil {
			o.logger.Warn().Str("job_id", jobID).Err(err).Msg("orchestrator: artifact cleanup failed")
		}
	}
	o.logger.Info().Str("job_id", jobID).Msg("orchestrator: job deleted")
	return nil
}

// RetrieveArtifact returns the local path of a completed job's payload,
// downloading it on first use. Concurrent calls for the same job share a
// single download; the shared transfer runs under the first caller's
// context.
func (o *Orchestrator) RetrieveArtifact(ctx context.Context, jobID string) (string, error) {
	job, ok := o.store.Get(jobID)
	if !ok {
		return "", &videoapi.Error{Kind: videoapi.ErrValidation, Message: "unknown job " + jobID}
	}
	if job.Status != videoapi.StatusCompleted {
		return "", &videoapi.Error{Kind: videoapi.ErrValidation, Message: "job " + jobID + " is not completed"}
	}
	if job.LocalArtifact != "" {
		return job.LocalArtifact, nil
	}
	return o.fetchShared(ctx, jobID)
}

func (o *Orchestrator) fetchShared(ctx context.Context, jobID string) (string, error) {
	o.fetchMu.Lock()
	if call, ok := o.inflight[jobID]; ok {
		o.fetchMu.Unlock()
		select {
		case <-call.done:
			return call.path, call.err
		case <-ctx.Done():
			return "", &videoapi.Error{Kind: videoapi.ErrNetwork, Err: ctx.Err()}
		}
	}
	call := &fetchCall{done: make(chan struct{})}
	o.inflight[jobID] = call
	o.fetchMu.Unlock()

	call.path, call.err = o.downloader.Fetch(ctx, jobID)
	if call.err == nil {
		o.store.SetArtifactHandle(jobID, call.path)
	}

	o.fetchMu.Lock()
	delete(o.inflight, jobID)
	o.fetchMu.Unlock()
	close(call.done)

	return call.path, call.err
}

// handleCompleted runs on a job's polling goroutine the moment it reports
// completed. The download itself moves to a background goroutine tied to the
// orchestrator lifetime; a failure here is only logged, an explicit retrieve
// can always retry it.
func (o *Orchestrator) handleCompleted(jobID string) {
	o.bg.Add(1)
	go func() {
		defer o.bg.Done()
		if _, err := o.RetrieveArtifact(o.bgCtx, jobID); err != nil {
			o.logger.Warn().Str("job_id", jobID).Err(err).Msg("orchestrator: automatic artifact fetch failed")
		}
	}()
}

// ExportArtifacts streams every downloaded artifact into a zip archive
// written to w and returns the number of entries.
func (o *Orchestrator) ExportArtifacts(w io.Writer) (int, error) {
	var entries []zip.Entry
	for _, job := range o.store.List() {
		if job.LocalArtifact == "" {
			continue
		}
		entries = append(entries, zip.Entry{Path: job.LocalArtifact})
	}
	return zip.ArchiveFiles(w, entries)
}

// Shutdown stops every poll loop, then cancels and waits out background
// downloads. No cache or sink updates happen after it returns.
func (o *Orchestrator) Shutdown() {
	o.poller.StopAll()
	o.bgStop()
	o.bg.Wait()
	o.logger.Info().Msg("orchestrator: shut down")
}
