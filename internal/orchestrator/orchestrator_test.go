package orchestrator

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"vidgen/internal/videoapi"
)

func TestSubmitRejectsBlankPromptWithoutNetwork(t *testing.T) {
	api := newFakeAPI()
	o := mustOrchestrator(t, api, newFakeDownloader())

	_, err := o.Submit(context.Background(), videoapi.CreateJobRequest{Prompt: "  \t\n "})
	if !errors.Is(err, videoapi.ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
	if got := api.createCount(); got != 0 {
		t.Fatalf("create calls = %d, want 0", got)
	}
}

func TestSubmitAppliesDefaults(t *testing.T) {
	api := newFakeAPI()
	api.createJob = &videoapi.Job{ID: "video_1", Status: videoapi.StatusCompleted, CreatedAt: 100}
	o := mustOrchestrator(t, api, newFakeDownloader())

	if _, err := o.Submit(context.Background(), videoapi.CreateJobRequest{Prompt: "a cat"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	reqs := api.createdRequests()
	if len(reqs) != 1 {
		t.Fatalf("create calls = %d, want 1", len(reqs))
	}
	req := reqs[0]
	if req.Model != "sora-2" || req.Seconds != 4 || req.Size != "1280x720" {
		t.Fatalf("defaults not applied: %+v", req)
	}
}

func TestSubmitTracksJobThroughCompletionAndAutoFetch(t *testing.T) {
	api := newFakeAPI()
	api.createJob = &videoapi.Job{ID: "video_123", Status: videoapi.StatusQueued, CreatedAt: 1712697600}
	progress := 100
	api.pushGet("video_123", getResult{job: &videoapi.Job{
		ID:        "video_123",
		Status:    videoapi.StatusCompleted,
		Progress:  &progress,
		CreatedAt: 1712697600,
	}})
	downloader := newFakeDownloader()
	o := mustOrchestrator(t, api, downloader)

	job, err := o.Submit(context.Background(), videoapi.CreateJobRequest{Prompt: "A cat on a piano"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if job.ID != "video_123" || job.Status != videoapi.StatusQueued || job.Progress != nil {
		t.Fatalf("submitted job = %+v", job)
	}
	if jobs := o.Jobs().List(); len(jobs) != 1 || jobs[0].ID != "video_123" {
		t.Fatalf("cache after submit = %+v", jobs)
	}

	// The poll loop observes completion, updates the same record in place,
	// and the artifact download fires on its own.
	waitFor(t, func() bool {
		job, ok := o.Jobs().Get("video_123")
		return ok && job.Status == videoapi.StatusCompleted && job.LocalArtifact != ""
	})
	if jobs := o.Jobs().List(); len(jobs) != 1 {
		t.Fatalf("cache grew extra records: %+v", jobs)
	}
	if got := downloader.fetchCount(); got != 1 {
		t.Fatalf("downloads = %d, want 1", got)
	}
}

func TestRefreshAllPaginatesUpsertsAndTracks(t *testing.T) {
	api := newFakeAPI()
	api.listPages = []videoapi.JobPage{
		{
			Jobs: []videoapi.Job{
				{ID: "video_a", Status: videoapi.StatusInProgress, CreatedAt: 300},
				{ID: "video_b", Status: videoapi.StatusCompleted, CreatedAt: 200},
			},
			HasMore: true,
		},
		{
			Jobs: []videoapi.Job{{ID: "video_c", Status: videoapi.StatusQueued, CreatedAt: 100}},
		},
	}
	api.pushGet("video_a", getResult{job: &videoapi.Job{ID: "video_a", Status: videoapi.StatusFailed, CreatedAt: 300}})
	api.pushGet("video_c", getResult{job: &videoapi.Job{ID: "video_c", Status: videoapi.StatusFailed, CreatedAt: 100}})
	o := mustOrchestrator(t, api, newFakeDownloader())

	if err := o.RefreshAll(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if jobs := o.Jobs().List(); len(jobs) != 3 {
		t.Fatalf("cache = %d jobs, want 3", len(jobs))
	}

	// The page had no cursor, so the next request pages after the last id.
	reqs := api.listRequests()
	if len(reqs) != 2 {
		t.Fatalf("list calls = %d, want 2", len(reqs))
	}
	if reqs[0].After != "" || reqs[1].After != "video_b" {
		t.Fatalf("cursors = %q, %q; want \"\", video_b", reqs[0].After, reqs[1].After)
	}

	// Non-terminal jobs get polled; the completed one is left alone.
	waitFor(t, func() bool {
		return api.getCount("video_a") >= 1 && api.getCount("video_c") >= 1
	})
	if got := api.getCount("video_b"); got != 0 {
		t.Fatalf("terminal job was polled %d times", got)
	}
}

func TestRefreshAllStopsAtPageCap(t *testing.T) {
	api := newFakeAPI()
	api.listForever = &videoapi.JobPage{HasMore: true, NextCursor: "same"}
	o := mustOrchestrator(t, api, newFakeDownloader(), func(opts *Options) {
		opts.RefreshPageCap = 3
	})

	if err := o.RefreshAll(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if got := len(api.listRequests()); got != 3 {
		t.Fatalf("list calls = %d, want 3", got)
	}
}

func TestRefreshAllSurfacesListError(t *testing.T) {
	api := newFakeAPI()
	api.listErr = &videoapi.Error{Kind: videoapi.ErrHTTP, StatusCode: http.StatusInternalServerError}
	o := mustOrchestrator(t, api, newFakeDownloader())

	if err := o.RefreshAll(context.Background()); !errors.Is(err, videoapi.ErrHTTP) {
		t.Fatalf("error = %v, want ErrHTTP", err)
	}
}

func TestDeleteJobStopsPollingBeforeDeleteCall(t *testing.T) {
	api := newFakeAPI()
	api.createJob = &videoapi.Job{ID: "video_1", Status: videoapi.StatusInProgress, CreatedAt: 100}
	api.blockGets = true
	o := mustOrchestrator(t, api, newFakeDownloader())

	if _, err := o.Submit(context.Background(), videoapi.CreateJobRequest{Prompt: "x"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitFor(t, func() bool { return api.getCount("video_1") == 1 })

	if err := o.DeleteJob(context.Background(), "video_1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := o.Jobs().Get("video_1"); ok {
		t.Fatalf("job still cached after delete")
	}

	events := api.eventLog()
	getEnd, deleteAt := -1, -1
	for i, event := range events {
		switch event {
		case "get_end:video_1":
			if getEnd == -1 {
				getEnd = i
			}
		case "delete:video_1":
			deleteAt = i
		}
	}
	if getEnd == -1 || deleteAt == -1 {
		t.Fatalf("missing events: %v", events)
	}
	if deleteAt < getEnd {
		t.Fatalf("delete issued while a status request was in flight: %v", events)
	}
}

func TestDeleteJobTreats404AsSuccess(t *testing.T) {
	api := newFakeAPI()
	api.createJob = &videoapi.Job{ID: "video_1", Status: videoapi.StatusCompleted, CreatedAt: 100}
	api.deleteErr = &videoapi.Error{Kind: videoapi.ErrHTTP, StatusCode: http.StatusNotFound}
	o := mustOrchestrator(t, api, newFakeDownloader())

	if _, err := o.Submit(context.Background(), videoapi.CreateJobRequest{Prompt: "x"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := o.DeleteJob(context.Background(), "video_1"); err != nil {
		t.Fatalf("delete after remote 404 should succeed, got %v", err)
	}
	if _, ok := o.Jobs().Get("video_1"); ok {
		t.Fatalf("job still cached after delete")
	}
}

func TestDeleteJobFailureKeepsCacheAndResumesPolling(t *testing.T) {
	api := newFakeAPI()
	api.createJob = &videoapi.Job{ID: "video_1", Status: videoapi.StatusInProgress, CreatedAt: 100}
	api.blockGets = true
	api.deleteErr = &videoapi.Error{Kind: videoapi.ErrHTTP, StatusCode: http.StatusInternalServerError}
	o := mustOrchestrator(t, api, newFakeDownloader())

	if _, err := o.Submit(context.Background(), videoapi.CreateJobRequest{Prompt: "x"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitFor(t, func() bool { return api.getCount("video_1") == 1 })

	if err := o.DeleteJob(context.Background(), "video_1"); !errors.Is(err, videoapi.ErrHTTP) {
		t.Fatalf("error = %v, want ErrHTTP", err)
	}
	if _, ok := o.Jobs().Get("video_1"); !ok {
		t.Fatalf("failed delete must leave the cache untouched")
	}
	// Polling picks the job back up.
	waitFor(t, func() bool { return api.getCount("video_1") >= 2 })
}

func TestRetrieveArtifactDedupsConcurrentCallers(t *testing.T) {
	api := newFakeAPI()
	api.createJob = &videoapi.Job{ID: "video_1", Status: videoapi.StatusCompleted, CreatedAt: 100}
	downloader := newFakeDownloader()
	downloader.gate = make(chan struct{})
	o := mustOrchestrator(t, api, downloader)

	if _, err := o.Submit(context.Background(), videoapi.CreateJobRequest{Prompt: "x"}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	var wg sync.WaitGroup
	paths := make([]string, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			paths[i], errs[i] = o.RetrieveArtifact(context.Background(), "video_1")
		}(i)
	}

	waitFor(t, func() bool { return downloader.fetchCount() == 1 })
	// Give the second caller time to join the in-flight download before
	// letting it finish.
	time.Sleep(50 * time.Millisecond)
	close(downloader.gate)
	wg.Wait()

	for i := 0; i < 2; i++ {
		if errs[i] != nil {
			t.Fatalf("retrieve[%d]: %v", i, errs[i])
		}
		if paths[i] != paths[0] {
			t.Fatalf("paths diverge: %q vs %q", paths[i], paths[0])
		}
	}
	if got := downloader.fetchCount(); got != 1 {
		t.Fatalf("downloads = %d, want exactly 1", got)
	}

	// A later call returns the cached handle without a new download.
	path, err := o.RetrieveArtifact(context.Background(), "video_1")
	if err != nil || path != paths[0] {
		t.Fatalf("cached retrieve = %q, %v", path, err)
	}
	if got := downloader.fetchCount(); got != 1 {
		t.Fatalf("downloads after cached retrieve = %d, want 1", got)
	}
}

func TestRetrieveArtifactRequiresCompletedJob(t *testing.T) {
	api := newFakeAPI()
	api.createJob = &videoapi.Job{ID: "video_1", Status: videoapi.StatusQueued, CreatedAt: 100}
	api.blockGets = true
	o := mustOrchestrator(t, api, newFakeDownloader())

	if _, err := o.Submit(context.Background(), videoapi.CreateJobRequest{Prompt: "x"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := o.RetrieveArtifact(context.Background(), "video_1"); !errors.Is(err, videoapi.ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation for non-completed job", err)
	}
	if _, err := o.RetrieveArtifact(context.Background(), "never_heard_of_it"); !errors.Is(err, videoapi.ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation for unknown job", err)
	}
}

func TestDeleteJobCleansUpDownloadedArtifact(t *testing.T) {
	api := newFakeAPI()
	api.createJob = &videoapi.Job{ID: "video_1", Status: videoapi.StatusCompleted, CreatedAt: 100}
	downloader := newFakeDownloader()
	o := mustOrchestrator(t, api, downloader)

	if _, err := o.Submit(context.Background(), videoapi.CreateJobRequest{Prompt: "x"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	path, err := o.RetrieveArtifact(context.Background(), "video_1")
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if err := o.DeleteJob(context.Background(), "video_1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if removed := downloader.removedPaths(); len(removed) != 1 || removed[0] != path {
		t.Fatalf("removed = %v, want [%s]", removed, path)
	}
}

func TestExportArtifactsArchivesDownloadedFiles(t *testing.T) {
	dir := t.TempDir()
	api := newFakeAPI()
	api.createJob = &videoapi.Job{ID: "video_1", Status: videoapi.StatusCompleted, CreatedAt: 100}
	downloader := newFakeDownloader()
	downloader.pathFn = func(jobID string) string {
		path := filepath.Join(dir, jobID+".mp4")
		if err := os.WriteFile(path, []byte("payload for "+jobID), 0o644); err != nil {
			panic(err)
		}
		return path
	}
	o := mustOrchestrator(t, api, downloader)

	if _, err := o.Submit(context.Background(), videoapi.CreateJobRequest{Prompt: "x"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := o.RetrieveArtifact(context.Background(), "video_1"); err != nil {
		t.Fatalf("retrieve: %v", err)
	}

	var buf bytes.Buffer
	count, err := o.ExportArtifacts(&buf)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if count != 1 {
		t.Fatalf("entries = %d, want 1", count)
	}
	reader, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	if len(reader.File) != 1 || reader.File[0].Name != "video_1.mp4" {
		t.Fatalf("archive entries = %+v", reader.File)
	}
}

func TestShutdownStopsPollingAndBackgroundFetches(t *testing.T) {
	api := newFakeAPI()
	api.createJob = &videoapi.Job{ID: "video_1", Status: videoapi.StatusQueued, CreatedAt: 100}
	api.pushGet("video_1", getResult{job: &videoapi.Job{ID: "video_1", Status: videoapi.StatusCompleted, CreatedAt: 100}})
	downloader := newFakeDownloader()
	downloader.gate = make(chan struct{}) // never released; only ctx can end the fetch
	o := mustOrchestrator(t, api, downloader)

	if _, err := o.Submit(context.Background(), videoapi.CreateJobRequest{Prompt: "x"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitFor(t, func() bool { return downloader.fetchCount() == 1 })

	done := make(chan struct{})
	go func() {
		o.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("shutdown did not complete")
	}

	job, ok := o.Jobs().Get("video_1")
	if !ok || job.LocalArtifact != "" {
		t.Fatalf("cancelled fetch must not attach a handle: %+v (ok=%v)", job, ok)
	}
}

func mustOrchestrator(t *testing.T, api *fakeAPI, downloader *fakeDownloader, tweaks ...func(*Options)) *Orchestrator {
	t.Helper()
	opts := Options{
		API:            api,
		Downloader:     downloader,
		DefaultModel:   "sora-2",
		DefaultSeconds: 4,
		DefaultSize:    "1280x720",
		PollInterval:   time.Millisecond,
	}
	for _, tweak := range tweaks {
		tweak(&opts)
	}
	o, err := New(opts)
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	t.Cleanup(o.Shutdown)
	return o
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not reached within 2s")
}

type getResult struct {
	job *videoapi.Job
	err error
}

type fakeAPI struct {
	mu     sync.Mutex
	events []string

	createJob   *videoapi.Job
	createErr   error
	createCalls []videoapi.CreateJobRequest

	getResults map[string][]getResult
	getCalls   map[string]int
	blockGets  bool

	listPages   []videoapi.JobPage
	listForever *videoapi.JobPage
	listErr     error
	listCalls   []videoapi.ListJobsRequest

	deleteErr   error
	deleteCalls []string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		getResults: map[string][]getResult{},
		getCalls:   map[string]int{},
	}
}

func (f *fakeAPI) pushGet(jobID string, results ...getResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getResults[jobID] = append(f.getResults[jobID], results...)
}

func (f *fakeAPI) CreateJob(_ context.Context, req videoapi.CreateJobRequest) (*videoapi.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls = append(f.createCalls, req)
	f.events = append(f.events, "create")
	if f.createErr != nil {
		return nil, f.createErr
	}
	if f.createJob == nil {
		return nil, &videoapi.Error{Kind: videoapi.ErrHTTP, StatusCode: http.StatusBadRequest}
	}
	clone := f.createJob.Clone()
	return &clone, nil
}

func (f *fakeAPI) GetJob(ctx context.Context, jobID string) (*videoapi.Job, error) {
	f.mu.Lock()
	f.getCalls[jobID]++
	f.events = append(f.events, "get_start:"+jobID)
	block := f.blockGets
	var res getResult
	if !block {
		queue := f.getResults[jobID]
		if len(queue) == 0 {
			res = getResult{job: &videoapi.Job{ID: jobID, Status: videoapi.StatusCompleted}}
		} else {
			res = queue[0]
			if len(queue) > 1 {
				f.getResults[jobID] = queue[1:]
			}
		}
	}
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		f.appendEvent("get_end:" + jobID)
		return nil, &videoapi.Error{Kind: videoapi.ErrNetwork, Err: ctx.Err()}
	}
	f.appendEvent("get_end:" + jobID)
	if res.err != nil {
		return nil, res.err
	}
	clone := res.job.Clone()
	return &clone, nil
}

func (f *fakeAPI) ListJobs(_ context.Context, req videoapi.ListJobsRequest) (*videoapi.JobPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls = append(f.listCalls, req)
	if f.listErr != nil {
		return nil, f.listErr
	}
	if f.listForever != nil {
		// A fresh cursor per call keeps the caller paging until its own cap.
		page := *f.listForever
		page.NextCursor = fmt.Sprintf("%s_%d", f.listForever.NextCursor, len(f.listCalls))
		return &page, nil
	}
	if len(f.listPages) == 0 {
		return &videoapi.JobPage{}, nil
	}
	page := f.listPages[0]
	f.listPages = f.listPages[1:]
	return &page, nil
}

func (f *fakeAPI) DeleteJob(_ context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls = append(f.deleteCalls, jobID)
	f.events = append(f.events, "delete:"+jobID)
	return f.deleteErr
}

func (f *fakeAPI) appendEvent(event string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakeAPI) eventLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	copy(out, f.events)
	return out
}

func (f *fakeAPI) createCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.createCalls)
}

func (f *fakeAPI) createdRequests() []videoapi.CreateJobRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]videoapi.CreateJobRequest, len(f.createCalls))
	copy(out, f.createCalls)
	return out
}

func (f *fakeAPI) getCount(jobID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getCalls[jobID]
}

func (f *fakeAPI) listRequests() []videoapi.ListJobsRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]videoapi.ListJobsRequest, len(f.listCalls))
	copy(out, f.listCalls)
	return out
}

type fakeDownloader struct {
	mu      sync.Mutex
	calls   int
	err     error
	pathFn  func(jobID string) string
	gate    chan struct{}
	removed []string
}

func newFakeDownloader() *fakeDownloader {
	return &fakeDownloader{}
}

func (f *fakeDownloader) Fetch(ctx context.Context, jobID string) (string, error) {
	f.mu.Lock()
	f.calls++
	gate := f.gate
	err := f.err
	pathFn := f.pathFn
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", &videoapi.Error{Kind: videoapi.ErrNetwork, Err: ctx.Err()}
		}
	}
	if err != nil {
		return "", err
	}
	if pathFn != nil {
		return pathFn(jobID), nil
	}
	return fmt.Sprintf("/data/artifacts/%s.mp4", jobID), nil
}

func (f *fakeDownloader) RemovePath(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, path)
	return nil
}

func (f *fakeDownloader) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeDownloader) removedPaths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.removed))
	copy(out, f.removed)
	return out
}
