package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"vidgen/internal/infra"
	"vidgen/internal/videoapi"
)

// Event is one job state change as delivered to SSE subscribers.
type Event struct {
	Type  string        `json:"type"` // job_upserted | job_removed | job_error
	JobID string        `json:"job_id"`
	Job   *videoapi.Job `json:"job,omitempty"`
	Error string        `json:"error,omitempty"`
}

// Hub fans job store notifications out to SSE subscribers. It satisfies
// jobstore.Sink; the sink callbacks only hand events to per-subscriber
// buffered channels, so the core is never blocked on a slow consumer — a
// subscriber that cannot keep up loses events instead.
type Hub struct {
	logger *infra.Logger

	mu   sync.Mutex
	subs map[chan Event]struct{}
}

const subscriberBuffer = 64

// NewHub builds an empty hub.
func NewHub(logger *infra.Logger) *Hub {
	if logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Hub{logger: logger, subs: make(map[chan Event]struct{})}
}

// JobUpserted implements jobstore.Sink.
func (h *Hub) JobUpserted(job videoapi.Job) {
	h.publish(Event{Type: "job_upserted", JobID: job.ID, Job: &job})
}

// JobRemoved implements jobstore.Sink.
func (h *Hub) JobRemoved(jobID string) {
	h.publish(Event{Type: "job_removed", JobID: jobID})
}

// JobError implements jobstore.Sink.
func (h *Hub) JobError(jobID string, err error) {
	msg := "polling failed"
	if apiErr, ok := videoapi.AsError(err); ok {
		msg = apiErr.Error()
	} else if err != nil {
		msg = err.Error()
	}
	h.publish(Event{Type: "job_error", JobID: jobID, Error: msg})
}

// Subscribe registers a new listener. The returned cancel func must be
// called exactly once; afterwards the channel is closed.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (h *Hub) publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
			h.logger.Debug().
				Str("job_id", ev.JobID).
				Str("type", ev.Type).
				Msg("httpapi: dropping event for slow subscriber")
		}
	}
}

// Events streams job state changes as server-sent events until the client
// disconnects.
func (a *App) Events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		a.error(w, http.StatusInternalServerError, "internal", "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events, cancel := a.Hub.Subscribe()
	defer cancel()

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-events:
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}
