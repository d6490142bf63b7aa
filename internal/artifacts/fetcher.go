package artifacts

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"vidgen/internal/infra"
	"vidgen/internal/videoapi"
)

// Source is the download half of the API client.
type Source interface {
	DownloadArtifact(ctx context.Context, jobID string) (io.ReadCloser, string, error)
}

// Fetcher materializes completed jobs' binary payloads to local files.
type Fetcher struct {
	source Source
	store  *FileStore
	logger *infra.Logger
}

// NewFetcher wires a fetcher to its download source and file store.
func NewFetcher(source Source, store *FileStore, logger *infra.Logger) (*Fetcher, error) {
	if source == nil {
		return nil, errors.New("artifacts: source is required")
	}
	if store == nil {
		return nil, errors.New("artifacts: store is required")
	}
	if logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Fetcher{source: source, store: store, logger: logger}, nil
}

// Fetch downloads the artifact for jobID and returns the local path. The
// file name derives from the job id and the response content type, so
// retrying the same job overwrites rather than accumulates. A transfer that
// dies mid-stream leaves nothing behind and comes back as a network error,
// which makes Fetch safe to call again.
func (f *Fetcher) Fetch(ctx context.Context, jobID string) (string, error) {
	stream, contentType, err := f.source.DownloadArtifact(ctx, jobID)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	path, err := f.store.WriteStream(ctx, artifactKey(jobID, contentType), stream)
	if err != nil {
		f.logger.Warn().Str("job_id", jobID).Err(err).Msg("artifacts: transfer failed")
		if _, ok := videoapi.AsError(err); ok {
			return "", err
		}
		return "", &videoapi.Error{Kind: videoapi.ErrNetwork, Err: err}
	}
	f.logger.Info().Str("job_id", jobID).Str("path", path).Msg("artifacts: stored artifact")
	return path, nil
}

// RemovePath deletes a previously fetched artifact file.
func (f *Fetcher) RemovePath(path string) error {
	return f.store.RemovePath(path)
}

// artifactKey names the local file for a job. The extension follows the
// response content type; unknown types get a neutral one.
func artifactKey(jobID, contentType string) string {
	ext := extensionForMIME(contentType)
	if ext == "" {
		ext = ".bin"
	}
	return jobID + ext
}

func extensionForMIME(mime string) string {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	switch mime {
	case "video/mp4":
		return ".mp4"
	case "video/webm":
		return ".webm"
	case "video/quicktime":
		return ".mov"
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	default:
		return ""
	}
}
