package jobstore

import (
	"io"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"vidgen/internal/infra"
	"vidgen/internal/videoapi"
)

// Sink receives job state changes for presentation. Implementations must be
// safe for concurrent use: updates for different jobs arrive from different
// goroutines.
type Sink interface {
	JobUpserted(job videoapi.Job)
	JobRemoved(jobID string)
	JobError(jobID string, err error)
}

// NopSink discards all notifications.
type NopSink struct{}

func (NopSink) JobUpserted(videoapi.Job) {}
func (NopSink) JobRemoved(string)        {}
func (NopSink) JobError(string, error)   {}

// Store is the in-memory map of job ID to last-known job record, the single
// source of truth for everything shown to the user. An internal mutex
// serializes writers; readers get defensive copies.
type Store struct {
	mu     sync.RWMutex
	jobs   map[string]videoapi.Job
	sink   Sink
	logger *infra.Logger
}

// New constructs an empty store. A nil sink disables notifications.
func New(sink Sink, logger *infra.Logger) *Store {
	if sink == nil {
		sink = NopSink{}
	}
	if logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Store{
		jobs:   make(map[string]videoapi.Job),
		sink:   sink,
		logger: logger,
	}
}

// Upsert replaces the record for job.ID wholesale and notifies the sink only
// when something actually changed. Server snapshots never carry the local
// artifact handle, so an existing handle survives the overwrite as long as
// the incoming snapshot still reports the job completed.
func (s *Store) Upsert(job videoapi.Job) {
	if job.ID == "" {
		s.logger.Warn().Msg("jobstore: ignoring upsert without job id")
		return
	}
	incoming := job.Clone()

	s.mu.Lock()
	current, exists := s.jobs[incoming.ID]
	if exists && incoming.LocalArtifact == "" && current.LocalArtifact != "" &&
		incoming.Status == videoapi.StatusCompleted {
		incoming.LocalArtifact = current.LocalArtifact
	}
	changed := !exists || !current.Equal(incoming)
	if changed {
		s.jobs[incoming.ID] = incoming
	}
	s.mu.Unlock()

	if changed {
		s.sink.JobUpserted(incoming.Clone())
	}
}

// Remove deletes the record outright; there are no tombstones. Removing an
// unknown id is a no-op.
func (s *Store) Remove(jobID string) {
	s.mu.Lock()
	_, exists := s.jobs[jobID]
	if exists {
		delete(s.jobs, jobID)
	}
	s.mu.Unlock()

	if exists {
		s.sink.JobRemoved(jobID)
	}
}

// Get returns a copy of the stored record.
func (s *Store) Get(jobID string) (videoapi.Job, bool) {
	s.mu.RLock()
	job, ok := s.jobs[jobID]
	s.mu.RUnlock()
	if !ok {
		return videoapi.Job{}, false
	}
	return job.Clone(), true
}

// List returns all records, most recently created first. Ties on the
// creation timestamp fall back to the job id so the order is stable.
func (s *Store) List() []videoapi.Job {
	s.mu.RLock()
	out := make([]videoapi.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt > out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// SetArtifactHandle attaches a downloaded artifact path to a completed job.
// When the job is missing or not completed it logs a warning and leaves the
// store untouched, so a download finishing after a delete cannot resurrect
// the record.
func (s *Store) SetArtifactHandle(jobID, handle string) {
	s.mu.Lock()
	job, ok := s.jobs[jobID]
	if !ok {
		s.mu.Unlock()
		s.logger.Warn().Str("job_id", jobID).Msg("jobstore: artifact handle for unknown job")
		return
	}
	if job.Status != videoapi.StatusCompleted {
		s.mu.Unlock()
		s.logger.Warn().
			Str("job_id", jobID).
			Str("status", string(job.Status)).
			Msg("jobstore: artifact handle for non-completed job")
		return
	}
	changed := job.LocalArtifact != handle
	job.LocalArtifact = handle
	s.jobs[jobID] = job
	s.mu.Unlock()

	if changed {
		s.sink.JobUpserted(job.Clone())
	}
}
