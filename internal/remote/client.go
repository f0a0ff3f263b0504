// Package remote syncs backup archives with a WebDAV store. It defines the
// request contracts and the caching policy; the transport sits behind Relay.
package remote

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"lumen/internal/archive"
	"lumen/internal/record"
)

// Observer receives one call per completed request. Status is 0 when the
// request failed before a response arrived.
type Observer interface {
	ObserveRemote(method string, status int)
}

// Config locates the store and the backup container in it.
type Config struct {
	URL       string
	Username  string
	Password  string
	Directory string
	Prefix    string
}

// Client is safe for concurrent use.
type Client struct {
	relay    Relay
	cfg      Config
	logger   *zap.Logger
	observer Observer
	cache    *listCache
}

type Option func(*Client)

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock replaces the clock the list cache measures expiry against.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.cache = newListCache(now, ListTTL)
	}
}

func WithObserver(o Observer) Option {
	return func(c *Client) {
		c.observer = o
	}
}

func NewClient(cfg Config, relay Relay, opts ...Option) *Client {
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	cfg.Directory = strings.Trim(cfg.Directory, "/")
	if cfg.Directory == "" {
		cfg.Directory = DefaultDirectory
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	c := &Client{
		relay:  relay,
		cfg:    cfg,
		logger: zap.NewNop(),
		cache:  newListCache(time.Now, ListTTL),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) rootURL() string {
	return c.cfg.URL + "/"
}

func (c *Client) dirURL() string {
	return c.cfg.URL + "/" + escapePath(c.cfg.Directory) + "/"
}

func (c *Client) fileURL(name string) string {
	return c.dirURL() + url.PathEscape(name)
}

func escapePath(p string) string {
	segs := strings.Split(p, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}

func (c *Client) do(ctx context.Context, req Request) (*Response, error) {
	req.Username = c.cfg.Username
	req.Password = c.cfg.Password

	resp, err := c.relay.Do(ctx, req)
	if err != nil {
		if c.observer != nil {
			c.observer.ObserveRemote(req.Method, 0)
		}
		c.logger.Warn("remote request failed", zap.String("method", req.Method), zap.String("url", req.URL), zap.Error(err))
		return nil, &NetworkError{Method: req.Method, Path: req.URL, Err: err}
	}
	if c.observer != nil {
		c.observer.ObserveRemote(req.Method, resp.Status)
	}
	c.logger.Debug("remote request", zap.String("method", req.Method), zap.String("url", req.URL), zap.Int("status", resp.Status))
	return resp, nil
}

func propfind(u, depth string) Request {
	return Request{
		Method: "PROPFIND",
		URL:    u,
		Headers: map[string]string{
			"Depth":        depth,
			"Content-Type": "application/xml; charset=utf-8",
		},
		Body:          strings.NewReader(propfindBody),
		ContentLength: int64(len(propfindBody)),
	}
}

func statusError(req Request, resp *Response) *StatusError {
	return &StatusError{Method: req.Method, Path: req.URL, Code: resp.Status, Body: excerpt(resp.Body)}
}

// Check verifies the store answers a listing of its root.
func (c *Client) Check(ctx context.Context) error {
	req := propfind(c.rootURL(), "0")
	resp, err := c.do(ctx, req)
	if err != nil {
		return err
	}
	if resp.Status != http.StatusOK && resp.Status != http.StatusMultiStatus {
		return statusError(req, resp)
	}
	return nil
}

// EnsureDir creates the backup container if the store reports it missing.
func (c *Client) EnsureDir(ctx context.Context) error {
	req := propfind(c.dirURL(), "0")
	resp, err := c.do(ctx, req)
	if err != nil {
		return err
	}
	switch {
	case resp.Status == http.StatusNotFound:
		return c.mkcol(ctx)
	case resp.Status < 300 || resp.Status == http.StatusMultiStatus:
		return nil
	default:
		return statusError(req, resp)
	}
}

func (c *Client) mkcol(ctx context.Context) error {
	req := Request{Method: "MKCOL", URL: c.dirURL()}
	resp, err := c.do(ctx, req)
	if err != nil {
		return err
	}
	if resp.Status == http.StatusCreated || resp.Status == http.StatusMethodNotAllowed || (resp.Status >= 200 && resp.Status < 300) {
		c.logger.Info("backup directory ready", zap.String("directory", c.cfg.Directory), zap.Int("status", resp.Status))
		return nil
	}
	return statusError(req, resp)
}

// List returns the archives in the container, newest first. Results are
// served from cache for ListTTL unless force is set; a cached call returns
// the same slice as the call that filled it.
func (c *Client) List(ctx context.Context, force bool) ([]Backup, error) {
	cached, epoch, ok := c.cache.get()
	if ok && !force {
		return cached, nil
	}

	req := propfind(c.dirURL(), "1")
	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.Status == http.StatusNotFound {
		if err := c.mkcol(ctx); err != nil {
			return nil, err
		}
		backups := []Backup{}
		c.cache.put(epoch, backups)
		return backups, nil
	}
	if resp.Status != http.StatusMultiStatus && resp.Status != http.StatusOK {
		return nil, statusError(req, resp)
	}

	entries, err := parseMultistatus(resp.Body)
	if err != nil {
		return nil, &MalformedResponseError{Path: req.URL, Err: err}
	}

	backups := make([]Backup, 0, len(entries))
	for _, e := range entries {
		if e.Collection || !strings.HasPrefix(e.Name, c.cfg.Prefix) || !strings.HasSuffix(e.Name, Extension) {
			continue
		}
		b := Backup{Name: e.Name, Href: e.Href, Size: e.Size, LastModified: e.LastModified}
		if created, tag, ok := ParseArchiveName(c.cfg.Prefix, e.Name); ok {
			b.Created, b.Tag = created, tag
		}
		backups = append(backups, b)
	}
	sort.Slice(backups, func(i, j int) bool { return backups[i].Name > backups[j].Name })

	c.cache.put(epoch, backups)
	return backups, nil
}

// Invalidate drops the cached listing.
func (c *Client) Invalidate() {
	c.cache.invalidate()
}

// Create builds an archive from records and uploads it, reporting upload
// progress as a fraction of bytes sent. It returns the archive name.
func (c *Client) Create(ctx context.Context, records []*record.Record, opts archive.Options, progress func(float64)) (string, error) {
	if opts.Timestamp.IsZero() {
		opts.Timestamp = time.Now()
	}
	data, err := archive.Encode(records, opts)
	if err != nil {
		return "", err
	}
	if err := c.EnsureDir(ctx); err != nil {
		return "", err
	}

	name := ArchiveName(c.cfg.Prefix, opts.Timestamp, opts.Tag)
	body := bytes.NewReader(data)
	req := Request{
		Method:        http.MethodPut,
		URL:           c.fileURL(name),
		Headers:       map[string]string{"Content-Type": "application/zip"},
		Body:          body,
		ContentLength: int64(len(data)),
	}
	if progress != nil {
		req.Body = &progressReader{reader: body, total: int64(len(data)), progress: progress}
	}

	resp, err := c.do(ctx, req)
	if err != nil {
		return "", err
	}
	if resp.Status < 200 || resp.Status >= 300 {
		return "", statusError(req, resp)
	}
	c.cache.invalidate()
	if progress != nil {
		progress(1)
	}
	c.logger.Info("backup uploaded", zap.String("name", name), zap.Int("items", len(records)), zap.Int("bytes", len(data)))
	return name, nil
}

// Download fetches the raw bytes of an archive.
func (c *Client) Download(ctx context.Context, name string) ([]byte, error) {
	req := Request{Method: http.MethodGet, URL: c.fileURL(name)}
	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.Status != http.StatusOK {
		return nil, statusError(req, resp)
	}
	return resp.Body, nil
}

// Restore downloads and decodes an archive.
func (c *Client) Restore(ctx context.Context, name string) (*archive.Result, error) {
	data, err := c.Download(ctx, name)
	if err != nil {
		return nil, err
	}
	res, err := archive.Decode(data)
	if err != nil {
		return nil, err
	}
	for _, id := range res.Skipped {
		c.logger.Warn("archive item skipped, content missing", zap.String("archive", name), zap.String("id", id))
	}
	return res, nil
}

// DeleteBatch deletes names concurrently. A missing file counts as deleted.
// Any other failure is collected into a BatchError.
func (c *Client) DeleteBatch(ctx context.Context, names []string) error {
	var (
		mu        sync.Mutex
		wg        sync.WaitGroup
		causes    []error
		succeeded int
	)
	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			err := c.delete(ctx, name)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				causes = append(causes, err)
				return
			}
			succeeded++
		}(name)
	}
	wg.Wait()

	if succeeded > 0 {
		c.cache.invalidate()
	}
	if len(causes) > 0 {
		return &BatchError{Failed: len(causes), Total: len(names), Causes: causes}
	}
	return nil
}

func (c *Client) delete(ctx context.Context, name string) error {
	req := Request{Method: http.MethodDelete, URL: c.fileURL(name)}
	resp, err := c.do(ctx, req)
	if err != nil {
		return err
	}
	if resp.Status == http.StatusNotFound || (resp.Status >= 200 && resp.Status < 300) {
		return nil
	}
	return statusError(req, resp)
}

// DownloadBatch fetches names one at a time and hands each to save. The
// first failure stops the batch.
func (c *Client) DownloadBatch(ctx context.Context, names []string, save func(name string, data []byte) error) error {
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := c.Download(ctx, name)
		if err != nil {
			return err
		}
		if err := save(name, data); err != nil {
			return err
		}
	}
	return nil
}

// IsNotFound reports whether err is a 404 from the store.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}
