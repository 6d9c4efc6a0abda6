package assistant

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discoverTestBackend(t *testing.T, f *fakeBackend, creds *AuthCreds) *Backend {
	t.Helper()
	b, err := newTestClient().Discover(context.Background(), f.descriptor("local"), creds)
	require.NoError(t, err)
	return b
}

func TestClient_Discover(t *testing.T) {
	f := newFakeBackend(t)
	desc := f.descriptor("local")
	desc.DefaultModelID = "granite-20b"

	b, err := newTestClient().Discover(context.Background(), desc, &AuthCreds{Email: "dev@example.com", Token: "s3cret"})
	require.NoError(t, err)

	assert.Equal(t, "local", b.ID)
	assert.Equal(t, f.server.URL, b.HostURL())
	assert.Equal(t, "granite-20b", b.DefaultModelID)
	assert.Len(t, b.Manifest.Models, 2)
	assert.Equal(t, jobsPath, b.Manifest.Endpoints[0].Jobs.Path)

	headers := f.requestHeaders()
	require.Len(t, headers, 1)
	assert.Equal(t, "Bearer s3cret", headers[0].Get("Authorization"))
	assert.Equal(t, "dev@example.com", headers[0].Get("Email"))
	assert.Equal(t, "application/json", headers[0].Get("Accept"))
}

func TestClient_Discover_NoCredentials(t *testing.T) {
	f := newFakeBackend(t)
	discoverTestBackend(t, f, nil)

	headers := f.requestHeaders()
	require.Len(t, headers, 1)
	assert.Empty(t, headers[0].Get("Authorization"))
	assert.Empty(t, headers[0].Get("Email"))
}

func TestClient_Discover_Non2xx(t *testing.T) {
	f := newFakeBackend(t)
	f.set(func(f *fakeBackend) { f.discoveryStatus = http.StatusServiceUnavailable })

	_, err := newTestClient().Discover(context.Background(), f.descriptor("local"), nil)
	require.Error(t, err)

	var derr *DiscoveryError
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, http.StatusServiceUnavailable, derr.StatusCode)
	assert.Equal(t, "local", derr.BackendID)
}

func TestClient_Discover_RelativeEndpoint(t *testing.T) {
	_, err := newTestClient().Discover(context.Background(), BackendDescriptor{ID: "x", DiscoveryEndpoint: "/api/v1/discovery"}, nil)
	var derr *DiscoveryError
	require.True(t, errors.As(err, &derr))
	assert.Zero(t, derr.StatusCode)
}

type recordingObserver struct {
	mu         sync.Mutex
	discovered []string
	failed     []string
}

func (o *recordingObserver) OnBackendDiscovered(b *Backend) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.discovered = append(o.discovered, b.ID)
}

func (o *recordingObserver) OnBackendFailed(desc BackendDescriptor, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failed = append(o.failed, desc.ID)
}

func TestDiscoverAll_FailuresDoNotAffectOthers(t *testing.T) {
	good := newFakeBackend(t)
	broken := newFakeBackend(t)
	broken.set(func(f *fakeBackend) { f.discoveryStatus = http.StatusInternalServerError })
	closed := newFakeBackend(t)
	closed.server.Close()

	descs := []BackendDescriptor{
		broken.descriptor("broken"),
		good.descriptor("good"),
		closed.descriptor("unreachable"),
	}
	obs := &recordingObserver{}

	result := newTestClient().DiscoverAll(context.Background(), descs, nil, obs)

	require.Len(t, result.Backends, 1)
	assert.Equal(t, "good", result.Backends[0].ID)
	assert.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors, "broken")
	assert.Contains(t, result.Errors, "unreachable")

	assert.Equal(t, []string{"good"}, obs.discovered)
	assert.ElementsMatch(t, []string{"broken", "unreachable"}, obs.failed)
}

func TestDiscoverAll_PreservesDescriptorOrder(t *testing.T) {
	a, b, c := newFakeBackend(t), newFakeBackend(t), newFakeBackend(t)
	descs := []BackendDescriptor{a.descriptor("a"), b.descriptor("b"), c.descriptor("c")}

	result := newTestClient().DiscoverAll(context.Background(), descs, nil, nil)

	require.Len(t, result.Backends, 3)
	assert.Equal(t, "a", result.Backends[0].ID)
	assert.Equal(t, "b", result.Backends[1].ID)
	assert.Equal(t, "c", result.Backends[2].ID)
	assert.Empty(t, result.Errors)
}

func TestDiscoverAll_CredentialFailure(t *testing.T) {
	f := newFakeBackend(t)
	desc := f.descriptor("secured")
	desc.Auth = &AuthRef{SecretName: "missing"}
	resolver := CredentialResolverFunc(func(ctx context.Context, d BackendDescriptor) (*AuthCreds, error) {
		return nil, errors.New("secret not found")
	})

	result := newTestClient().DiscoverAll(context.Background(), []BackendDescriptor{desc}, resolver, nil)

	assert.Empty(t, result.Backends)
	var derr *DiscoveryError
	require.True(t, errors.As(result.Errors["secured"], &derr))
	assert.Empty(t, f.requestHeaders())
}

func TestDiscoverAll_ResolvesCredentials(t *testing.T) {
	f := newFakeBackend(t)
	desc := f.descriptor("secured")
	desc.Auth = &AuthRef{SecretName: "assistant-creds"}
	resolver := CredentialResolverFunc(func(ctx context.Context, d BackendDescriptor) (*AuthCreds, error) {
		assert.Equal(t, "assistant-creds", d.Auth.SecretName)
		return &AuthCreds{Email: "me@example.com", Token: "tok"}, nil
	})

	result := newTestClient().DiscoverAll(context.Background(), []BackendDescriptor{desc}, resolver, nil)

	require.Len(t, result.Backends, 1)
	assert.Equal(t, "tok", result.Backends[0].Creds.Token)
	assert.Equal(t, "Bearer tok", f.requestHeaders()[0].Get("Authorization"))
}

func TestClient_SubmitQuery(t *testing.T) {
	f := newFakeBackend(t)
	b := discoverTestBackend(t, f, &AuthCreds{Email: "dev@example.com", Token: "tok"})

	answer, err := newTestClient().SubmitQuery(context.Background(), b, "granite-8b", "2", "create a pod")
	require.NoError(t, err)
	assert.Equal(t, "abc123", answer.JobID)
	assert.False(t, answer.Complete())

	submitted := f.submissions()
	require.Len(t, submitted, 1)
	assert.Equal(t, jobRequest{ModelID: "granite-8b", TaskID: "2", Mode: "asynchronous", Prompt: "create a pod"}, submitted[0])
	headers := f.requestHeaders()
	last := headers[len(headers)-1]
	assert.Equal(t, "Bearer tok", last.Get("Authorization"))
	assert.Equal(t, "dev@example.com", last.Get("Email"))
}

func TestClient_SubmitQuery_Non2xx(t *testing.T) {
	f := newFakeBackend(t)
	b := discoverTestBackend(t, f, nil)
	f.set(func(f *fakeBackend) { f.submitStatus = http.StatusBadRequest })

	_, err := newTestClient().SubmitQuery(context.Background(), b, "granite-8b", "2", "q")
	var serr *SubmissionError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, http.StatusBadRequest, serr.StatusCode)
}

func TestClient_NoEndpoints(t *testing.T) {
	f := newFakeBackend(t)
	f.set(func(f *fakeBackend) { f.manifest.Endpoints = nil })
	b := discoverTestBackend(t, f, nil)
	c := newTestClient()

	_, err := c.SubmitQuery(context.Background(), b, "granite-8b", "2", "q")
	assert.ErrorIs(t, err, ErrNoEndpoints)
	_, err = c.PollForAnswer(context.Background(), b, "abc123", nil)
	assert.ErrorIs(t, err, ErrNoEndpoints)
	err = c.SubmitFeedback(context.Background(), b, "abc123", true)
	assert.ErrorIs(t, err, ErrNoEndpoints)

	assert.Empty(t, f.submissions())
	assert.Zero(t, f.polls())
}

func TestClient_PollForAnswer_PendingThenDone(t *testing.T) {
	for _, k := range []int{0, 1, 3, 9} {
		f := newFakeBackend(t)
		b := discoverTestBackend(t, f, nil)
		f.set(func(f *fakeBackend) { f.pollStatus = pendingThen(k, http.StatusOK) })

		var sleeps int
		c := newTestClient(WithMaxPollAttempts(10))
		c.sleep = func(ctx context.Context, d time.Duration) error { sleeps++; return nil }

		var progress []float64
		answer, err := c.PollForAnswer(context.Background(), b, "abc123", ProgressFunc(func(p float64) {
			progress = append(progress, p)
		}))
		require.NoError(t, err)

		assert.Equal(t, "abc123", answer.JobID)
		assert.True(t, answer.Complete())
		assert.Equal(t, k+1, f.polls())
		assert.Equal(t, k, sleeps)
		require.Len(t, progress, k)
		for i, p := range progress {
			assert.InDelta(t, 100*float64(i+1)/10, p, 0.0001)
			if i > 0 {
				assert.Greater(t, p, progress[i-1])
			}
		}
	}
}

func TestClient_PollForAnswer_Timeout(t *testing.T) {
	f := newFakeBackend(t)
	b := discoverTestBackend(t, f, nil)
	f.set(func(f *fakeBackend) { f.pollStatus = func(int) int { return http.StatusAccepted } })

	var sleeps int
	c := newTestClient(WithMaxPollAttempts(5))
	c.sleep = func(ctx context.Context, d time.Duration) error { sleeps++; return nil }

	var progress []float64
	_, err := c.PollForAnswer(context.Background(), b, "abc123", ProgressFunc(func(p float64) {
		progress = append(progress, p)
	}))

	var terr *PollTimeoutError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, "abc123", terr.JobID)
	assert.Equal(t, 5, terr.Attempts)
	assert.Nil(t, errors.Unwrap(err))
	assert.Equal(t, 5, f.polls())
	assert.Equal(t, 4, sleeps)
	require.Len(t, progress, 5)
	assert.InDelta(t, 100, progress[4], 0.0001)
}

func TestClient_PollForAnswer_ErrorStopsPolling(t *testing.T) {
	f := newFakeBackend(t)
	b := discoverTestBackend(t, f, nil)
	f.set(func(f *fakeBackend) { f.pollStatus = pendingThen(2, http.StatusInternalServerError) })

	_, err := newTestClient().PollForAnswer(context.Background(), b, "abc123", nil)

	var perr *PollError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, http.StatusInternalServerError, perr.StatusCode)
	assert.Equal(t, 3, perr.Attempt)
	assert.Equal(t, "abc123", perr.JobID)
	assert.Equal(t, 3, f.polls())
}

func TestClient_PollForAnswer_Cancelled(t *testing.T) {
	f := newFakeBackend(t)
	b := discoverTestBackend(t, f, nil)
	f.set(func(f *fakeBackend) { f.pollStatus = func(int) int { return http.StatusAccepted } })

	ctx, cancel := context.WithCancel(context.Background())
	c := newTestClient(WithPollInterval(time.Hour))
	_, err := c.PollForAnswer(ctx, b, "abc123", ProgressFunc(func(float64) { cancel() }))

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, f.polls())
}

func TestClient_SubmitFeedback(t *testing.T) {
	f := newFakeBackend(t)
	b := discoverTestBackend(t, f, nil)
	c := newTestClient()

	require.NoError(t, c.SubmitFeedback(context.Background(), b, "abc123", true))
	require.NoError(t, c.SubmitFeedback(context.Background(), b, "abc123", false))

	paths, votes := f.feedback()
	assert.Equal(t, []string{"/api/v1/feedback/abc123", "/api/v1/feedback/abc123"}, paths)
	assert.Equal(t, []string{"1", "-1"}, votes)
}

func TestClient_SubmitFeedback_Non2xx(t *testing.T) {
	f := newFakeBackend(t)
	b := discoverTestBackend(t, f, nil)
	f.set(func(f *fakeBackend) { f.feedbackStatus = http.StatusForbidden })

	err := newTestClient().SubmitFeedback(context.Background(), b, "abc123", true)
	var ferr *FeedbackError
	require.True(t, errors.As(err, &ferr))
	assert.Equal(t, http.StatusForbidden, ferr.StatusCode)
	assert.Equal(t, "abc123", ferr.JobID)
}

func TestClient_WithPollSettings(t *testing.T) {
	c := NewClient()
	assert.Equal(t, DefaultMaxPollAttempts, c.MaxPollAttempts())
	assert.Equal(t, DefaultPollInterval, c.PollInterval())

	tuned := c.WithPollSettings(HostConfig{MaxPollAttempts: 5, TimeBetweenPollAttempts: 250})
	assert.Equal(t, 5, tuned.MaxPollAttempts())
	assert.Equal(t, 250*time.Millisecond, tuned.PollInterval())
	assert.Equal(t, DefaultMaxPollAttempts, c.MaxPollAttempts())

	same := c.WithPollSettings(HostConfig{})
	assert.Equal(t, DefaultPollInterval, same.PollInterval())
}
