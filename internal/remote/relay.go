package remote

import (
	"context"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Request is one call to the store. Body may be nil.
type Request struct {
	Method        string
	URL           string
	Username      string
	Password      string
	Headers       map[string]string
	Body          io.Reader
	ContentLength int64
}

// Response is the status and full body of a call.
type Response struct {
	Status int
	Body   []byte
}

// Relay performs a request against the remote store. A non-nil error means
// no response was received; any status, including failures, comes back in
// Response.
type Relay interface {
	Do(ctx context.Context, req Request) (*Response, error)
}

// HTTPRelay is a Relay over net/http, optionally capping upload bandwidth.
type HTTPRelay struct {
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTPRelay returns a relay. uploadLimit is in bytes per second; zero or
// less disables throttling.
func NewHTTPRelay(client *http.Client, uploadLimit int) *HTTPRelay {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}
	r := &HTTPRelay{client: client}
	if uploadLimit > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(uploadLimit), uploadLimit)
	}
	return r
}

func (r *HTTPRelay) Do(ctx context.Context, req Request) (*Response, error) {
	body := req.Body
	if body != nil && r.limiter != nil {
		body = &throttledReader{reader: body, limiter: r.limiter, ctx: ctx}
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, err
	}
	if body != nil && req.ContentLength > 0 {
		httpReq.ContentLength = req.ContentLength
	}
	if req.Username != "" || req.Password != "" {
		httpReq.SetBasicAuth(req.Username, req.Password)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &Response{Status: resp.StatusCode, Body: data}, nil
}

// throttledReader waits on the limiter for every chunk it hands out.
type throttledReader struct {
	reader  io.Reader
	limiter *rate.Limiter
	ctx     context.Context
}

func (tr *throttledReader) Read(p []byte) (int, error) {
	if burst := tr.limiter.Burst(); len(p) > burst {
		p = p[:burst]
	}
	n, err := tr.reader.Read(p)
	if n > 0 {
		if waitErr := tr.limiter.WaitN(tr.ctx, n); waitErr != nil {
			return 0, waitErr
		}
	}
	return n, err
}

// progressReader reports the fraction of total bytes consumed so far.
type progressReader struct {
	reader   io.Reader
	total    int64
	read     int64
	progress func(float64)
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	if n > 0 && pr.total > 0 {
		pr.read += int64(n)
		pr.progress(min(float64(pr.read)/float64(pr.total), 1))
	}
	return n, err
}
