package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const (
	DefaultMaxPollAttempts = 60
	DefaultPollInterval    = 3000 * time.Millisecond

	requestTimeout = 30 * time.Second
	mimeJSON       = "application/json"
)

// ProgressObserver receives the approximate completion of a job while it is
// being polled. The value is 100*attempt/maxAttempts: a linear estimate
// derived from the attempt budget, not progress reported by the backend.
type ProgressObserver interface {
	OnProgress(percent float64)
}

// ProgressFunc adapts a function to ProgressObserver
type ProgressFunc func(percent float64)

func (f ProgressFunc) OnProgress(percent float64) { f(percent) }

// Client talks to assistant backends: discovery, job submission, polling and feedback
type Client struct {
	httpClient      *http.Client
	maxPollAttempts int
	pollInterval    time.Duration
	sleep           func(ctx context.Context, d time.Duration) error
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithHTTPClient sets the underlying HTTP client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithMaxPollAttempts overrides the poll attempt budget; values <= 0 are ignored
func WithMaxPollAttempts(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.maxPollAttempts = n
		}
	}
}

// WithPollInterval overrides the sleep between poll attempts; negative values are ignored
func WithPollInterval(d time.Duration) ClientOption {
	return func(c *Client) {
		if d >= 0 {
			c.pollInterval = d
		}
	}
}

// NewClient creates a new backend client
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient:      &http.Client{Timeout: requestTimeout},
		maxPollAttempts: DefaultMaxPollAttempts,
		pollInterval:    DefaultPollInterval,
		sleep:           sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MaxPollAttempts returns the poll attempt budget
func (c *Client) MaxPollAttempts() int { return c.maxPollAttempts }

// PollInterval returns the sleep between poll attempts
func (c *Client) PollInterval() time.Duration { return c.pollInterval }

// Discover fetches the discovery manifest of one backend
func (c *Client) Discover(ctx context.Context, desc BackendDescriptor, creds *AuthCreds) (*Backend, error) {
	backend, err := c.discover(ctx, desc, creds)
	discoveryTotal.WithLabelValues(desc.ID, resultLabel(err)).Inc()
	return backend, err
}

func (c *Client) discover(ctx context.Context, desc BackendDescriptor, creds *AuthCreds) (*Backend, error) {
	endpoint, err := url.Parse(desc.DiscoveryEndpoint)
	if err != nil || endpoint.Scheme == "" || endpoint.Host == "" {
		if err == nil {
			err = fmt.Errorf("discovery endpoint must be an absolute URL")
		}
		return nil, &DiscoveryError{BackendID: desc.ID, Endpoint: desc.DiscoveryEndpoint, Err: err}
	}

	req, err := newJSONRequest(ctx, http.MethodGet, endpoint.String(), nil, creds)
	if err != nil {
		return nil, &DiscoveryError{BackendID: desc.ID, Endpoint: desc.DiscoveryEndpoint, Err: err}
	}

	resp, err := c.clientFor(creds).Do(req)
	if err != nil {
		return nil, &DiscoveryError{BackendID: desc.ID, Endpoint: desc.DiscoveryEndpoint, Err: err}
	}
	defer drainAndClose(resp)

	if !isSuccess(resp.StatusCode) {
		return nil, &DiscoveryError{BackendID: desc.ID, Endpoint: desc.DiscoveryEndpoint, StatusCode: resp.StatusCode}
	}

	var manifest DiscoveryManifest
	if err := json.NewDecoder(resp.Body).Decode(&manifest); err != nil {
		return nil, &DiscoveryError{
			BackendID: desc.ID,
			Endpoint:  desc.DiscoveryEndpoint,
			Err:       fmt.Errorf("failed to decode discovery manifest: %w", err),
		}
	}

	return &Backend{
		ID:             desc.ID,
		Name:           desc.Name,
		Host:           &url.URL{Scheme: endpoint.Scheme, Host: endpoint.Host},
		Manifest:       manifest,
		DefaultModelID: desc.DefaultModelID,
		Creds:          creds,
	}, nil
}

// SubmitQuery posts a query to the backend's jobs endpoint. The returned
// answer carries at least the job id; when the backend answered
// synchronously it is already Complete.
func (c *Client) SubmitQuery(ctx context.Context, b *Backend, modelID, taskID, prompt string) (*Answer, error) {
	answer, err := c.submitQuery(ctx, b, modelID, taskID, prompt)
	submissionsTotal.WithLabelValues(b.ID, resultLabel(err)).Inc()
	return answer, err
}

type jobRequest struct {
	ModelID string `json:"model_id"`
	TaskID  string `json:"task_id"`
	Mode    string `json:"mode"`
	Prompt  string `json:"prompt"`
}

func (c *Client) submitQuery(ctx context.Context, b *Backend, modelID, taskID, prompt string) (*Answer, error) {
	endpoint, err := jobsEndpoint(b, "")
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(jobRequest{ModelID: modelID, TaskID: taskID, Mode: TaskMode, Prompt: prompt})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := newJSONRequest(ctx, http.MethodPost, endpoint, body, b.Creds)
	if err != nil {
		return nil, &SubmissionError{Endpoint: endpoint, Err: err}
	}

	resp, err := c.clientFor(b.Creds).Do(req)
	if err != nil {
		return nil, &SubmissionError{Endpoint: endpoint, Err: err}
	}
	defer drainAndClose(resp)

	if !isSuccess(resp.StatusCode) {
		return nil, &SubmissionError{Endpoint: endpoint, StatusCode: resp.StatusCode}
	}

	var answer Answer
	if err := json.NewDecoder(resp.Body).Decode(&answer); err != nil {
		return nil, &SubmissionError{Endpoint: endpoint, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return &answer, nil
}

// PollForAnswer polls the job until the backend returns 200 with the answer,
// a non-2xx status, or the attempt budget runs out. Every other 2xx status
// means the job is still running.
func (c *Client) PollForAnswer(ctx context.Context, b *Backend, jobID string, progress ProgressObserver) (*Answer, error) {
	start := time.Now()
	answer, err := c.pollForAnswer(ctx, b, jobID, progress)
	jobDurationSeconds.WithLabelValues(b.ID, resultLabel(err)).Observe(time.Since(start).Seconds())
	return answer, err
}

func (c *Client) pollForAnswer(ctx context.Context, b *Backend, jobID string, progress ProgressObserver) (*Answer, error) {
	endpoint, err := jobsEndpoint(b, jobID)
	if err != nil {
		return nil, err
	}
	hc := c.clientFor(b.Creds)

	for attempt := 1; attempt <= c.maxPollAttempts; attempt++ {
		req, err := newJSONRequest(ctx, http.MethodGet, endpoint, nil, b.Creds)
		if err != nil {
			return nil, &PollError{Endpoint: endpoint, JobID: jobID, Attempt: attempt, Err: err}
		}

		resp, err := hc.Do(req)
		if err != nil {
			pollAttemptsTotal.WithLabelValues(b.ID, "error").Inc()
			return nil, &PollError{Endpoint: endpoint, JobID: jobID, Attempt: attempt, Err: err}
		}

		if !isSuccess(resp.StatusCode) {
			drainAndClose(resp)
			pollAttemptsTotal.WithLabelValues(b.ID, "error").Inc()
			return nil, &PollError{Endpoint: endpoint, JobID: jobID, Attempt: attempt, StatusCode: resp.StatusCode}
		}

		if resp.StatusCode == http.StatusOK {
			pollAttemptsTotal.WithLabelValues(b.ID, "done").Inc()
			var answer Answer
			err := json.NewDecoder(resp.Body).Decode(&answer)
			drainAndClose(resp)
			if err != nil {
				return nil, &PollError{Endpoint: endpoint, JobID: jobID, Attempt: attempt, Err: fmt.Errorf("failed to decode answer: %w", err)}
			}
			if answer.JobID == "" {
				answer.JobID = jobID
			}
			return &answer, nil
		}

		drainAndClose(resp)
		pollAttemptsTotal.WithLabelValues(b.ID, "pending").Inc()
		log.Printf("[assistant] job %s still running (status %d), attempt %d/%d", jobID, resp.StatusCode, attempt, c.maxPollAttempts)

		if progress != nil {
			progress.OnProgress(100 * float64(attempt) / float64(c.maxPollAttempts))
		}
		if attempt == c.maxPollAttempts {
			break
		}
		if err := c.sleep(ctx, c.pollInterval); err != nil {
			return nil, err
		}
	}

	return nil, &PollTimeoutError{JobID: jobID, Attempts: c.maxPollAttempts}
}

type feedbackRequest struct {
	CorrectedOutput string `json:"corrected_output"`
	Feedback        string `json:"feedback"`
	Vote            string `json:"vote"`
}

// SubmitFeedback posts a thumbs-up or thumbs-down vote for a finished job
func (c *Client) SubmitFeedback(ctx context.Context, b *Backend, jobID string, good bool) error {
	vote := "-1"
	if good {
		vote = "1"
	}
	err := c.submitFeedback(ctx, b, jobID, vote)
	feedbackTotal.WithLabelValues(b.ID, vote, resultLabel(err)).Inc()
	return err
}

func (c *Client) submitFeedback(ctx context.Context, b *Backend, jobID, vote string) error {
	endpoint, err := feedbackEndpoint(b, jobID)
	if err != nil {
		return err
	}

	body, err := json.Marshal(feedbackRequest{Vote: vote})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := newJSONRequest(ctx, http.MethodPost, endpoint, body, b.Creds)
	if err != nil {
		return &FeedbackError{Endpoint: endpoint, JobID: jobID, Err: err}
	}

	resp, err := c.clientFor(b.Creds).Do(req)
	if err != nil {
		return &FeedbackError{Endpoint: endpoint, JobID: jobID, Err: err}
	}
	defer drainAndClose(resp)

	if !isSuccess(resp.StatusCode) {
		return &FeedbackError{Endpoint: endpoint, JobID: jobID, StatusCode: resp.StatusCode}
	}
	return nil
}

// clientFor returns an HTTP client that attaches the bearer token, if any
func (c *Client) clientFor(creds *AuthCreds) *http.Client {
	if creds == nil || creds.Token == "" {
		return c.httpClient
	}
	return &http.Client{
		Timeout: c.httpClient.Timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: creds.Token, TokenType: "Bearer"}),
			Base:   c.httpClient.Transport,
		},
	}
}

func newJSONRequest(ctx context.Context, method, endpoint string, body []byte, creds *AuthCreds) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", mimeJSON)
	req.Header.Set("Content-Type", mimeJSON)
	if creds != nil && creds.Email != "" {
		req.Header.Set("Email", creds.Email)
	}
	return req, nil
}

func jobsEndpoint(b *Backend, jobID string) (string, error) {
	if len(b.Manifest.Endpoints) == 0 {
		return "", ErrNoEndpoints
	}
	path := b.Manifest.Endpoints[0].Jobs.Path
	if jobID != "" {
		path = path + "/" + jobID
	}
	return endpointURL(b, path)
}

func feedbackEndpoint(b *Backend, jobID string) (string, error) {
	if len(b.Manifest.Endpoints) == 0 {
		return "", ErrNoEndpoints
	}
	path := strings.Replace(b.Manifest.Endpoints[0].Feedback.Path, jobIDPlaceholder, jobID, 1)
	return endpointURL(b, path)
}

func endpointURL(b *Backend, path string) (string, error) {
	if b.Host == nil {
		return "", fmt.Errorf("backend %s has no host", b.ID)
	}
	u := url.URL{Scheme: b.Host.Scheme, Host: b.Host.Host, Path: path}
	return u.String(), nil
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

func drainAndClose(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
