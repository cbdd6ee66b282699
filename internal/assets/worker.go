package assets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/dsiportal/placement-sync/internal/config"
	"github.com/dsiportal/placement-sync/internal/httpclient"
	"github.com/dsiportal/placement-sync/internal/versions"
)

// Cache name prefixes. The asset version is appended, e.g. "dsi-static-v1.1.0".
const (
	StaticCachePrefix  = "dsi-static"
	DynamicCachePrefix = "dsi-dynamic"
	ImageCachePrefix   = "dsi-images"
)

const (
	// staticCacheSize bounds the precache; it never evicts in practice
	staticCacheSize = 1024
	imageCacheSize  = 256

	// HeaderCache reports whether a response came from cache ("HIT") or
	// the network ("MISS")
	HeaderCache = "X-Cache"
)

// ErrOffline is returned when neither the network nor the cache can answer.
var ErrOffline = errors.New("offline")

// forwarded request headers
var passHeaders = []string{"Accept", "Accept-Language", "Sec-Fetch-Dest"}

// Worker is an http.Handler caching the UI served by an upstream origin.
type Worker struct {
	upstream    *url.URL
	client      httpclient.Client
	version     string
	precache    []string
	dynamicSize int
	storage     *Storage
	now         func() time.Time

	static  *Cache
	dynamic *Cache
	images  *Cache

	revalidations sync.WaitGroup
}

// Option configures a Worker.
type Option func(*Worker)

// WithClient sets the upstream HTTP client.
func WithClient(c httpclient.Client) Option {
	return func(w *Worker) {
		w.client = c
	}
}

// WithStorage shares cache storage between workers, as successive worker
// versions share the browser's cache storage.
func WithStorage(s *Storage) Option {
	return func(w *Worker) {
		w.storage = s
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(w *Worker) {
		w.now = now
	}
}

// NewWorker creates a worker for cfg. Install must run before it serves.
func NewWorker(cfg *config.AssetsConfig, opts ...Option) (*Worker, error) {
	upstream, err := url.Parse(cfg.GetUpstream())
	if err != nil {
		return nil, fmt.Errorf("invalid upstream %q: %w", cfg.GetUpstream(), err)
	}
	w := &Worker{
		upstream:    upstream,
		version:     cfg.GetVersion(),
		precache:    cfg.GetPrecache(),
		dynamicSize: cfg.GetDynamicCacheSize(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.client == nil {
		w.client = httpclient.NewDefaultClient(0)
	}
	if w.storage == nil {
		w.storage = NewStorage()
	}
	return w, nil
}

// Version returns the asset version.
func (w *Worker) Version() string {
	return w.version
}

// Storage returns the cache storage.
func (w *Worker) Storage() *Storage {
	return w.storage
}

// CacheNames returns the names of the caches owned by this version.
func (w *Worker) CacheNames() []string {
	return []string{
		versions.CacheName(StaticCachePrefix, w.version),
		versions.CacheName(DynamicCachePrefix, w.version),
		versions.CacheName(ImageCachePrefix, w.version),
	}
}

// Install opens this version's caches and precaches the configured assets.
// Precaching is all or nothing: if any asset fails, none is stored.
func (w *Worker) Install(ctx context.Context) error {
	names := w.CacheNames()
	var err error
	if w.static, err = w.storage.Open(names[0], staticCacheSize); err != nil {
		return err
	}
	if w.dynamic, err = w.storage.Open(names[1], w.dynamicSize); err != nil {
		return err
	}
	if w.images, err = w.storage.Open(names[2], imageCacheSize); err != nil {
		return err
	}

	fetched := make(map[string]Entry, len(w.precache))
	var errs []error
	for _, asset := range w.precache {
		key := w.resolve(asset)
		entry, fetchErr := w.fetch(ctx, key, nil)
		if fetchErr == nil && !entry.OK() {
			fetchErr = httpclient.NewHTTPError(entry.Status, key, http.StatusText(entry.Status))
		}
		if fetchErr != nil {
			errs = append(errs, fmt.Errorf("%s: %w", asset, fetchErr))
			continue
		}
		fetched[key] = entry
	}
	if len(errs) > 0 {
		err := fmt.Errorf("failed to precache assets: %w", errors.Join(errs...))
		slog.WarnContext(ctx, "Cache installation failed", "version", w.version, "error", err)
		return err
	}

	for key, entry := range fetched {
		w.static.Put(key, entry)
	}
	slog.InfoContext(ctx, "Static assets cached", "version", w.version, "count", len(fetched))
	return nil
}

// Activate deletes every cache not owned by this version and returns the
// deleted names.
func (w *Worker) Activate(ctx context.Context) []string {
	keep := map[string]struct{}{}
	for _, name := range w.CacheNames() {
		keep[name] = struct{}{}
	}

	var deleted []string
	for _, name := range w.storage.Names() {
		if _, ok := keep[name]; ok {
			continue
		}
		if w.storage.Delete(name) {
			slog.InfoContext(ctx, "Deleting old cache", "cache", name)
			deleted = append(deleted, name)
		}
	}
	return deleted
}

// Wait blocks until background revalidations finish.
func (w *Worker) Wait() {
	w.revalidations.Wait()
}

// ServeHTTP implements http.Handler.
func (w *Worker) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	key := w.resolve(r.URL.RequestURI())
	dest := Destination(r)

	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		rw.Header().Set("Allow", "GET, HEAD")
		http.Error(rw, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	var (
		entry Entry
		hit   bool
		err   error
	)
	switch StrategyFor(r) {
	case CacheFirst:
		entry, hit, err = w.cacheFirst(r.Context(), key, dest, r.Header)
	case StaleWhileRevalidate:
		entry, hit, err = w.staleWhileRevalidate(r.Context(), key, r.Header)
	default:
		entry, hit, err = w.networkFirst(r.Context(), key, r.Header)
	}
	if err != nil {
		slog.DebugContext(r.Context(), "Fetch failed", "url", key, "error", err)
		if dest == "document" {
			if fallback, ok := w.storage.Match(w.resolve("./index.html")); ok {
				writeEntry(rw, fallback, "HIT")
				return
			}
		}
		w.writeOffline(rw)
		return
	}

	state := "MISS"
	if hit {
		state = "HIT"
	}
	writeEntry(rw, entry, state)
}

func (w *Worker) cacheFirst(ctx context.Context, key, dest string, header http.Header) (Entry, bool, error) {
	if e, ok := w.storage.Match(key); ok {
		return e, true, nil
	}
	e, err := w.fetch(ctx, key, header)
	if err != nil {
		if dest == "document" {
			if fallback, ok := w.storage.Match(w.resolve("./index.html")); ok {
				return fallback, true, nil
			}
		}
		return Entry{}, false, err
	}
	w.store(key, dest, e)
	return e, false, nil
}

func (w *Worker) networkFirst(ctx context.Context, key string, header http.Header) (Entry, bool, error) {
	e, err := w.fetch(ctx, key, header)
	if err != nil {
		if cached, ok := w.storage.Match(key); ok {
			return cached, true, nil
		}
		return Entry{}, false, err
	}
	w.store(key, "", e)
	return e, false, nil
}

func (w *Worker) staleWhileRevalidate(ctx context.Context, key string, header http.Header) (Entry, bool, error) {
	cached, ok := w.storage.Match(key)
	if !ok {
		e, err := w.fetch(ctx, key, header)
		if err != nil {
			return Entry{}, false, err
		}
		w.store(key, "", e)
		return e, false, nil
	}

	bg := context.WithoutCancel(ctx)
	w.revalidations.Go(func() {
		e, err := w.fetch(bg, key, header)
		if err != nil {
			slog.DebugContext(bg, "Revalidation failed", "url", key, "error", err)
			return
		}
		w.store(key, "", e)
	})
	return cached, true, nil
}

// store keeps successful responses in the dynamic cache, or the image
// cache for images.
func (w *Worker) store(key, dest string, e Entry) {
	if !e.OK() || w.dynamic == nil {
		return
	}
	if dest == "image" || isImage(key) {
		w.images.Put(key, e)
		return
	}
	w.dynamic.Put(key, e)
}

func (w *Worker) fetch(ctx context.Context, key string, header http.Header) (Entry, error) {
	out := http.Header{}
	for _, h := range passHeaders {
		if v := header.Values(h); len(v) > 0 {
			out[h] = v
		}
	}
	resp, err := w.client.Fetch(ctx, http.MethodGet, key, out)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %w", ErrOffline, err)
	}
	return Entry{Status: resp.StatusCode, Header: resp.Header, Body: resp.Body, Stored: w.now()}, nil
}

// resolve maps a request URI or a relative asset path onto the upstream.
func (w *Worker) resolve(ref string) string {
	u, err := url.Parse(ref)
	if err != nil {
		return w.upstream.String()
	}
	base := *w.upstream
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	return base.ResolveReference(u).String()
}

func (w *Worker) writeOffline(rw http.ResponseWriter) {
	rw.Header().Set("Content-Type", "text/plain; charset=utf-8")
	rw.WriteHeader(http.StatusServiceUnavailable)
	_, _ = rw.Write([]byte("Offline"))
}

func isImage(key string) bool {
	u, err := url.Parse(key)
	if err != nil {
		return false
	}
	_, ok := imageExtensions[strings.ToLower(path.Ext(u.Path))]
	return ok
}

var hopHeaders = map[string]struct{}{
	"Connection": {}, "Keep-Alive": {}, "Transfer-Encoding": {}, "Content-Length": {},
}

func writeEntry(rw http.ResponseWriter, e Entry, cacheState string) {
	for k, v := range e.Header {
		if _, ok := hopHeaders[k]; ok {
			continue
		}
		rw.Header()[k] = append([]string(nil), v...)
	}
	rw.Header().Set(HeaderCache, cacheState)
	rw.WriteHeader(e.Status)
	_, _ = rw.Write(e.Body)
}
