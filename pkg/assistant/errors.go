package assistant

import (
	"errors"
	"fmt"
)

var (
	// ErrNoEndpoints is returned when a backend's manifest lists no endpoints
	ErrNoEndpoints = errors.New("this backend has no endpoints")

	ErrNoBackend = errors.New("no assistant backend selected")
	ErrNoModel   = errors.New("no assistant backend model selected")
	ErrNoTask    = errors.New("no assistant backend model task selected")
	ErrNoJob     = errors.New("there is no current job. Send a prompt to the assistant first")

	// ErrUnsupportedLanguage is returned for code blocks that have no target
	ErrUnsupportedLanguage = errors.New("support for this language has not been implemented yet")

	// ErrSuperseded is returned by Ask when a newer query started before this one finished
	ErrSuperseded = errors.New("query was superseded by a newer query")
)

// DiscoveryError is returned when a backend's discovery endpoint cannot be read.
// StatusCode is 0 when no HTTP response was received.
type DiscoveryError struct {
	BackendID  string
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *DiscoveryError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("failed to query the assistant discovery endpoint '%s' for backend %s. status: %d", e.Endpoint, e.BackendID, e.StatusCode)
	}
	return fmt.Sprintf("failed to query the assistant discovery endpoint '%s' for backend %s: %v", e.Endpoint, e.BackendID, e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// SubmissionError is returned when the jobs endpoint rejects a query
type SubmissionError struct {
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *SubmissionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("failed to post the query to the assistant endpoint '%s'. status: %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("failed to post the query to the assistant endpoint '%s': %v", e.Endpoint, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// PollError is returned when a poll request fails or returns a non-2xx status
type PollError struct {
	Endpoint   string
	JobID      string
	Attempt    int
	StatusCode int
	Err        error
}

func (e *PollError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("failed to get the answer from the assistant endpoint '%s' for the job id '%s'. status: %d", e.Endpoint, e.JobID, e.StatusCode)
	}
	return fmt.Sprintf("failed to get the answer from the assistant endpoint '%s' for the job id '%s': %v", e.Endpoint, e.JobID, e.Err)
}

func (e *PollError) Unwrap() error { return e.Err }

// PollTimeoutError is returned when the attempt budget runs out
type PollTimeoutError struct {
	JobID    string
	Attempts int
}

func (e *PollTimeoutError) Error() string {
	return fmt.Sprintf("failed to get a response for the job id '%s' after %d poll attempts", e.JobID, e.Attempts)
}

// FeedbackError is returned when the feedback endpoint rejects a vote
type FeedbackError struct {
	Endpoint   string
	JobID      string
	StatusCode int
	Err        error
}

func (e *FeedbackError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("failed to post the feedback to the assistant endpoint '%s' for the job with id '%s'. status: %d", e.Endpoint, e.JobID, e.StatusCode)
	}
	return fmt.Sprintf("failed to post the feedback to the assistant endpoint '%s' for the job with id '%s': %v", e.Endpoint, e.JobID, e.Err)
}

func (e *FeedbackError) Unwrap() error { return e.Err }
