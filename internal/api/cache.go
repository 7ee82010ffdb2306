package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/safar/go-grocery-store/internal/cache"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const cacheHeader = "X-Cache"

type capturedResponse struct {
	status int
	header http.Header
	body   bytes.Buffer
}

func newCapturedResponse() *capturedResponse {
	return &capturedResponse{header: make(http.Header)}
}

func (c *capturedResponse) Header() http.Header { return c.header }

func (c *capturedResponse) WriteHeader(status int) {
	if c.status == 0 {
		c.status = status
	}
}

func (c *capturedResponse) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	return c.body.Write(b)
}

func (c *capturedResponse) replay(w http.ResponseWriter) {
	for k, v := range c.header {
		w.Header()[k] = v
	}
	w.Header().Set(cacheHeader, "MISS")
	w.WriteHeader(c.status)
	_, _ = w.Write(c.body.Bytes())
}

// responseCache serves GET requests from store, keyed by request URI. Only
// 200 responses are stored. Concurrent misses for the same key run the
// handler once; a response rendered across a Purge is served but not stored.
type responseCache struct {
	store   cache.ResponseCache
	ttl     time.Duration
	timeout time.Duration
	log     logrus.FieldLogger
	group   singleflight.Group

	mu  sync.RWMutex
	gen uint64
}

func newResponseCache(store cache.ResponseCache, ttl, timeout time.Duration, log logrus.FieldLogger) *responseCache {
	return &responseCache{store: store, ttl: ttl, timeout: timeout, log: log}
}

func (rc *responseCache) generation() uint64 {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.gen
}

func (rc *responseCache) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			next.ServeHTTP(w, r)
			return
		}

		key := r.URL.RequestURI()

		entry, err := rc.store.Get(r.Context(), key)
		if err == nil {
			w.Header().Set("Content-Type", entry.ContentType)
			w.Header().Set(cacheHeader, "HIT")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(entry.Body)
			return
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			rc.log.WithError(err).WithField("key", key).Warn("cache get failed")
		}

		gen := rc.generation()
		flight := strconv.FormatUint(gen, 10) + " " + key

		// The shared render is detached from any one caller's cancellation.
		result := rc.group.DoChan(flight, func() (v interface{}, err error) {
			ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), rc.timeout)
			defer cancel()

			captured := newCapturedResponse()
			// DoChan re-panics off the request goroutine, out of reach of Recoverer.
			defer func() {
				if p := recover(); p != nil {
					rc.log.WithField("panic", p).WithField("key", key).Error("handler panicked")
					failed := newCapturedResponse()
					failed.header.Set("Content-Type", "application/json")
					failed.WriteHeader(http.StatusInternalServerError)
					_, _ = failed.Write(serverErrorBody)
					v, err = failed, nil
				}
			}()
			next.ServeHTTP(captured, r.WithContext(ctx))

			if captured.status == http.StatusOK {
				rc.save(ctx, gen, key, captured)
			}
			return captured, nil
		})

		select {
		case res := <-result:
			res.Val.(*capturedResponse).replay(w)
		case <-r.Context().Done():
		}
	})
}

// save stores a rendered response unless a Purge ran since gen was read.
func (rc *responseCache) save(ctx context.Context, gen uint64, key string, captured *capturedResponse) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	if rc.gen != gen {
		return
	}

	entry := &cache.Entry{
		ContentType: captured.header.Get("Content-Type"),
		Body:        captured.body.Bytes(),
	}
	if err := rc.store.Set(ctx, key, entry, rc.ttl); err != nil {
		rc.log.WithError(err).WithField("key", key).Warn("cache set failed")
	}
}

// Purge drops every cached response after a catalogue mutation.
func (rc *responseCache) Purge(ctx context.Context) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.gen++
	if err := rc.store.Purge(ctx); err != nil {
		rc.log.WithError(err).Warn("cache purge failed")
	}
}
