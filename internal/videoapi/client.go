package videoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"vidgen/internal/infra"
)

// Options configures the video generation API client.
type Options struct {
	Credentials    CredentialSource
	BaseURL        string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client performs HTTP calls against the remote video generation API. Every
// failure comes back as an *Error with a classified kind; the client itself
// never retries, retry policy belongs to the caller.
type Client struct {
	creds          CredentialSource
	baseURL        string
	httpClient     *http.Client
	logger         *infra.Logger
	requestTimeout time.Duration
}

type listResponse struct {
	Object     string `json:"object"`
	Data       []Job  `json:"data"`
	HasMore    bool   `json:"has_more"`
	NextCursor string `json:"next_cursor"`
}

type errorResponse struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		// No client-level timeout: artifact downloads stream for as long as
		// they need. JSON calls get a per-request deadline instead.
		httpClient = &http.Client{}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	creds := opts.Credentials
	if creds == nil {
		creds = StaticCredentials("")
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Client{
		creds:          creds,
		baseURL:        baseURL,
		httpClient:     httpClient,
		logger:         logger,
		requestTimeout: timeout,
	}, nil
}

// CreateJob submits a generation request and returns the job the server
// created for it.
func (c *Client) CreateJob(ctx context.Context, req CreateJobRequest) (*Job, error) {
	raw, err := c.doJSON(ctx, http.MethodPost, "/videos", req)
	if err != nil {
		return nil, err
	}
	job, err := c.decodeJob(raw)
	if err != nil {
		return nil, err
	}
	c.logger.Debug().
		Str("job_id", job.ID).
		Str("model", job.Model).
		Str("status", string(job.Status)).
		Msg("videoapi: created job")
	return job, nil
}

// GetJob fetches the current server snapshot of one job.
func (c *Client) GetJob(ctx context.Context, jobID string) (*Job, error) {
	raw, err := c.doJSON(ctx, http.MethodGet, "/videos/"+url.PathEscape(jobID), nil)
	if err != nil {
		return nil, err
	}
	return c.decodeJob(raw)
}

// ListJobs fetches one page of jobs, newest first per the server's ordering.
func (c *Client) ListJobs(ctx context.Context, req ListJobsRequest) (*JobPage, error) {
	query := url.Values{}
	if req.Limit > 0 {
		query.Set("limit", strconv.Itoa(req.Limit))
	}
	if req.After != "" {
		query.Set("after", req.After)
	}
	path := "/videos"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}
	raw, err := c.doJSON(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	return c.decodePage(raw)
}

// DeleteJob removes a job server-side. The response body, deleted-job
// metadata on some deployments and empty on others, is discarded.
func (c *Client) DeleteJob(ctx context.Context, jobID string) error {
	_, err := c.doJSON(ctx, http.MethodDelete, "/videos/"+url.PathEscape(jobID), nil)
	return err
}

// DownloadArtifact opens a stream over the binary payload of a completed
// job. The caller owns the returned body and must close it. The second
// return value is the response content type, which may be empty.
func (c *Client) DownloadArtifact(ctx context.Context, jobID string) (io.ReadCloser, string, error) {
	token, ok := c.creds.APIKey()
	if !ok {
		return nil, "", &Error{Kind: ErrAuth}
	}
	// No request deadline here: large artifacts can legitimately outlast any
	// JSON call. Cancellation comes from ctx.
	endpoint := c.baseURL + "/videos/" + url.PathEscape(jobID) + "/content"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, "", &Error{Kind: ErrValidation, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", &Error{Kind: ErrNetwork, Err: fmt.Errorf("download artifact: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()
		return nil, "", c.statusError(resp.StatusCode, raw)
	}
	c.logger.Debug().
		Str("job_id", jobID).
		Str("content_type", resp.Header.Get("Content-Type")).
		Msg("videoapi: artifact stream opened")
	return resp.Body, resp.Header.Get("Content-Type"), nil
}

// doJSON performs one authenticated JSON round trip and returns the raw
// response body of a 2xx response.
func (c *Client) doJSON(ctx context.Context, method, path string, payload any) ([]byte, error) {
	token, ok := c.creds.APIKey()
	if !ok {
		return nil, &Error{Kind: ErrAuth}
	}

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, &Error{Kind: ErrValidation, Err: fmt.Errorf("encode request: %w", err)}
		}
		body = bytes.NewReader(encoded)
	}

	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, &Error{Kind: ErrValidation, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method == http.MethodPost {
		req.Header.Set("Idempotency-Key", uuid.NewString())
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Kind: ErrNetwork, Err: fmt.Errorf("http request: %w", err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: ErrNetwork, Err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.statusError(resp.StatusCode, raw)
	}
	return raw, nil
}

// statusError classifies a non-2xx response, pulling the code and message
// out of the error body when the server sent one.
func (c *Client) statusError(status int, raw []byte) *Error {
	apiErr := &Error{Kind: ErrHTTP, StatusCode: status, Body: string(raw)}
	var detail errorResponse
	if err := json.Unmarshal(raw, &detail); err == nil {
		if detail.Error != nil {
			apiErr.Code = detail.Error.Code
			apiErr.Message = detail.Error.Message
		} else {
			apiErr.Code = detail.Code
			apiErr.Message = detail.Message
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = snippet(raw)
	}
	return apiErr
}

func (c *Client) decodeJob(raw []byte) (*Job, error) {
	var job Job
	if err := json.Unmarshal(raw, &job); err != nil {
		c.logger.Error().Str("body", snippet(raw)).Msg("videoapi: undecodable job payload")
		return nil, &Error{Kind: ErrDecode, Body: string(raw), Err: err}
	}
	if job.ID == "" {
		c.logger.Error().Str("body", snippet(raw)).Msg("videoapi: job payload missing id")
		return nil, &Error{Kind: ErrDecode, Body: string(raw), Message: "job payload missing id"}
	}
	return &job, nil
}

func (c *Client) decodePage(raw []byte) (*JobPage, error) {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	// Older deployments return a bare array with no pagination envelope.
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var jobs []Job
		if err := json.Unmarshal(trimmed, &jobs); err != nil {
			c.logger.Error().Str("body", snippet(raw)).Msg("videoapi: undecodable job list")
			return nil, &Error{Kind: ErrDecode, Body: string(raw), Err: err}
		}
		return &JobPage{Jobs: jobs}, nil
	}
	var decoded listResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		c.logger.Error().Str("body", snippet(raw)).Msg("videoapi: undecodable job list")
		return nil, &Error{Kind: ErrDecode, Body: string(raw), Err: err}
	}
	return &JobPage{
		Jobs:       decoded.Data,
		HasMore:    decoded.HasMore,
		NextCursor: decoded.NextCursor,
	}, nil
}

func snippet(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > 300 {
		s = s[:300] + "..."
	}
	return s
}
