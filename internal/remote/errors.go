package remote

import (
	"fmt"
	"strings"
)

const maxBodyExcerpt = 512

// NetworkError means the relay never produced a response.
type NetworkError struct {
	Method string
	Path   string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("remote: %s %s: network failure: %v", e.Method, e.Path, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// StatusError is an unexpected response status.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("remote: %s %s: status %d", e.Method, e.Path, e.Code)
	}
	return fmt.Sprintf("remote: %s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// MalformedResponseError is a response body that could not be parsed.
type MalformedResponseError struct {
	Path string
	Err  error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("remote: malformed response from %s: %v", e.Path, e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// BatchError aggregates the hard failures of a batch delete.
type BatchError struct {
	Failed int
	Total  int
	Causes []error
}

func (e *BatchError) Error() string {
	msgs := make([]string, 0, len(e.Causes))
	for _, c := range e.Causes {
		msgs = append(msgs, c.Error())
	}
	return fmt.Sprintf("remote: %d of %d deletes failed: %s", e.Failed, e.Total, strings.Join(msgs, "; "))
}

func (e *BatchError) Unwrap() []error { return e.Causes }

func excerpt(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxBodyExcerpt {
		s = s[:maxBodyExcerpt] + "...(truncated)"
	}
	return s
}
