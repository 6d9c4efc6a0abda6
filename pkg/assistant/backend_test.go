package assistant

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

const (
	discoveryPath = "/api/v1/discovery"
	jobsPath      = "/api/v1/jobs"
	feedbackPath  = "/api/v1/feedback/<job_id>"
)

func testManifest() DiscoveryManifest {
	return DiscoveryManifest{
		Endpoints: []EndpointSet{{
			Discovery: Endpoint{Methods: []string{"GET"}, Path: discoveryPath},
			Jobs:      Endpoint{Methods: []string{"GET", "POST"}, Path: jobsPath},
			Feedback:  Endpoint{Methods: []string{"POST"}, Path: feedbackPath},
		}},
		Models: []Model{
			{
				ModelID:   "granite-8b",
				ModelPath: "ibm/granite/granite-8b",
				Tasks: []Task{
					{TaskID: 1, TaskTitle: "Explain YAML"},
					{TaskID: 2, TaskTitle: DefaultTaskTitle},
				},
			},
			{
				ModelID:   "granite-20b",
				ModelPath: "ibm/granite/granite-20b",
				Tasks:     []Task{{TaskID: 7, TaskTitle: "Explain YAML"}},
			},
		},
	}
}

// fakeBackend serves the discovery, jobs and feedback endpoints of one backend
type fakeBackend struct {
	server *httptest.Server

	mu              sync.Mutex
	manifest        DiscoveryManifest
	discoveryStatus int
	submitStatus    int
	submitResponse  *Answer
	pollStatus      func(call int) int
	answer          Answer
	feedbackStatus  int

	discoveryCalls int
	pollCalls      int
	submitted      []jobRequest
	feedbackPaths  []string
	feedbackVotes  []string
	headers        []http.Header
	// onPoll runs before a poll request is answered
	onPoll func(call int)
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	f := &fakeBackend{
		manifest:        testManifest(),
		discoveryStatus: http.StatusOK,
		submitStatus:    http.StatusOK,
		submitResponse:  &Answer{JobID: "abc123"},
		pollStatus:      func(int) int { return http.StatusOK },
		answer: Answer{
			JobID:      "abc123",
			Model:      "granite-8b",
			Status:     "completed",
			TaskOutput: "```yaml\napiVersion: v1\nkind: Pod\n```\n",
		},
		feedbackStatus: http.StatusOK,
	}

	mux := http.NewServeMux()
	mux.HandleFunc(discoveryPath, func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.discoveryCalls++
		f.headers = append(f.headers, r.Header.Clone())
		status, manifest := f.discoveryStatus, f.manifest
		f.mu.Unlock()
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		writeJSON(w, manifest)
	})
	mux.HandleFunc(jobsPath, func(w http.ResponseWriter, r *http.Request) {
		var req jobRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		f.submitted = append(f.submitted, req)
		f.headers = append(f.headers, r.Header.Clone())
		status, resp := f.submitStatus, f.submitResponse
		f.mu.Unlock()
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		writeJSON(w, resp)
	})
	mux.HandleFunc(jobsPath+"/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.pollCalls++
		call, onPoll := f.pollCalls, f.onPoll
		f.mu.Unlock()
		if onPoll != nil {
			onPoll(call)
		}
		f.mu.Lock()
		status, answer := f.pollStatus(call), f.answer
		f.mu.Unlock()
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		answer.JobID = strings.TrimPrefix(r.URL.Path, jobsPath+"/")
		writeJSON(w, answer)
	})
	mux.HandleFunc("/api/v1/feedback/", func(w http.ResponseWriter, r *http.Request) {
		var req feedbackRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		f.feedbackPaths = append(f.feedbackPaths, r.URL.Path)
		f.feedbackVotes = append(f.feedbackVotes, req.Vote)
		status := f.feedbackStatus
		f.mu.Unlock()
		w.WriteHeader(status)
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeBackend) descriptor(id string) BackendDescriptor {
	return BackendDescriptor{ID: id, Name: id, DiscoveryEndpoint: f.server.URL + discoveryPath}
}

func (f *fakeBackend) set(fn func(f *fakeBackend)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeBackend) polls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pollCalls
}

func (f *fakeBackend) requestHeaders() []http.Header {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]http.Header(nil), f.headers...)
}

func (f *fakeBackend) submissions() []jobRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]jobRequest(nil), f.submitted...)
}

func (f *fakeBackend) feedback() (paths, votes []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.feedbackPaths...), append([]string(nil), f.feedbackVotes...)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// pendingThen returns a poll status function answering 202 for the first k calls
func pendingThen(k int, final int) func(int) int {
	return func(call int) int {
		if call <= k {
			return http.StatusAccepted
		}
		return final
	}
}

func newTestClient(opts ...ClientOption) *Client {
	return NewClient(append([]ClientOption{WithPollInterval(0)}, opts...)...)
}
