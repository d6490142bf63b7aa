package videoapi

import "strings"

// Status is the lifecycle state the server reports for a job.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further status changes can happen.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// JobError is the failure detail the server attaches to a job. It can also
// show up on queued jobs as an advisory; it only means failure when the
// status says so.
type JobError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Job is one remote generation request as last reported by the server.
// Field names mirror the wire format so a decoded job re-serializes without
// loss.
type Job struct {
	ID          string    `json:"id"`
	Object      string    `json:"object,omitempty"`
	Model       string    `json:"model,omitempty"`
	Status      Status    `json:"status"`
	Progress    *int      `json:"progress,omitempty"`
	CreatedAt   int64     `json:"created_at,omitempty"`
	CompletedAt *int64    `json:"completed_at,omitempty"`
	ExpiresAt   *int64    `json:"expires_at,omitempty"`
	Error       *JobError `json:"error,omitempty"`
	Seconds     int       `json:"seconds,omitempty"`
	Size        string    `json:"size,omitempty"`
	Quality     string    `json:"quality,omitempty"`

	// LocalArtifact is the path of a downloaded artifact. It is attached by
	// this application after a fetch and never travels to or from the server.
	LocalArtifact string `json:"local_artifact,omitempty"`
}

// Equal compares two jobs structurally, including optional fields.
func (j Job) Equal(other Job) bool {
	if j.ID != other.ID || j.Object != other.Object || j.Model != other.Model ||
		j.Status != other.Status || j.CreatedAt != other.CreatedAt ||
		j.Seconds != other.Seconds || j.Size != other.Size ||
		j.Quality != other.Quality || j.LocalArtifact != other.LocalArtifact {
		return false
	}
	if !intPtrEqual(j.Progress, other.Progress) {
		return false
	}
	if !int64PtrEqual(j.CompletedAt, other.CompletedAt) || !int64PtrEqual(j.ExpiresAt, other.ExpiresAt) {
		return false
	}
	if (j.Error == nil) != (other.Error == nil) {
		return false
	}
	if j.Error != nil && *j.Error != *other.Error {
		return false
	}
	return true
}

// Clone returns a deep copy so cached jobs and handed-out jobs never share
// pointer fields.
func (j Job) Clone() Job {
	out := j
	if j.Progress != nil {
		p := *j.Progress
		out.Progress = &p
	}
	if j.CompletedAt != nil {
		c := *j.CompletedAt
		out.CompletedAt = &c
	}
	if j.ExpiresAt != nil {
		e := *j.ExpiresAt
		out.ExpiresAt = &e
	}
	if j.Error != nil {
		e := *j.Error
		out.Error = &e
	}
	return out
}

func intPtrEqual(a, b *int) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || *a == *b
}

func int64PtrEqual(a, b *int64) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || *a == *b
}

// CreateJobRequest captures the inputs for a new generation job.
type CreateJobRequest struct {
	Prompt  string `json:"prompt"`
	Model   string `json:"model"`
	Seconds int    `json:"seconds,omitempty"`
	Size    string `json:"size,omitempty"`
}

// ListJobsRequest selects one page of jobs.
type ListJobsRequest struct {
	Limit int
	After string
}

// JobPage is one page of the server's job listing.
type JobPage struct {
	Jobs       []Job
	HasMore    bool
	NextCursor string
}

// CredentialSource supplies the bearer token for API calls. The second
// return value reports whether a credential is available at all.
type CredentialSource interface {
	APIKey() (string, bool)
}

// StaticCredentials is a CredentialSource backed by a fixed key.
type StaticCredentials string

// APIKey returns the configured key, or false when it is blank.
func (s StaticCredentials) APIKey() (string, bool) {
	key := strings.TrimSpace(string(s))
	return key, key != ""
}
