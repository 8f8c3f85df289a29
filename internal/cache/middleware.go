package cache

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Be1newinner/asaan-hai-coding/internal/obs"
)

// Responses caches anonymous GETs under a set of path groups and drops a
// group after any successful write beneath it.
type Responses struct {
	store   Store
	ttl     time.Duration
	base    string
	groups  map[string]bool
	maxBody int
}

// NewResponses caches paths of the form base/<group>[/...]. A nil store
// disables caching.
func NewResponses(store Store, ttl time.Duration, base string, groups ...string) *Responses {
	r := &Responses{store: store, ttl: ttl, base: strings.TrimRight(base, "/"), groups: map[string]bool{}, maxBody: 1 << 20}
	for _, g := range groups {
		r.groups[g] = true
	}
	return r
}

// Group returns the cache group of path, or "" when the path is not cached.
func (c *Responses) Group(path string) string {
	rest, ok := strings.CutPrefix(path, c.base+"/")
	if !ok {
		return ""
	}
	group, _, _ := strings.Cut(rest, "/")
	if !c.groups[group] {
		return ""
	}
	return group
}

// Middleware serves cached responses and records fresh ones.
func (c *Responses) Middleware(next http.Handler) http.Handler {
	if c == nil || c.store == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		group := c.Group(r.URL.Path)
		if group == "" {
			next.ServeHTTP(w, r)
			return
		}
		if r.Method != http.MethodGet {
			cw := &captureWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(cw, r)
			if cw.status < 400 {
				c.invalidate(r.Context(), group)
			}
			return
		}
		if r.Header.Get("Authorization") != "" {
			next.ServeHTTP(w, r)
			return
		}

		key := r.URL.Path + "?" + r.URL.RawQuery
		if b, err := c.store.Get(r.Context(), group, key); err == nil {
			if status, hdr, body, ok := decodePayload(b); ok {
				for k, vals := range hdr {
					if strings.EqualFold(k, "Content-Length") {
						continue
					}
					w.Header()[k] = vals
				}
				w.Header().Set("X-Cache", "HIT")
				w.WriteHeader(status)
				_, _ = w.Write(body)
				return
			}
		} else if !errors.Is(err, ErrMiss) {
			obs.Warn("response cache read failed", map[string]any{"group": group, "error": err})
		}

		cw := &captureWriter{ResponseWriter: w, status: http.StatusOK, limit: c.maxBody, record: true}
		w.Header().Set("X-Cache", "MISS")
		next.ServeHTTP(cw, r)
		if cw.status != http.StatusOK || cw.overflow {
			return
		}
		payload, err := encodePayload(cw.status, replayable(w.Header()), cw.buf.Bytes())
		if err != nil {
			return
		}
		// The request context may already be done once the client got its bytes.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), time.Second)
		defer cancel()
		if err := c.store.Set(ctx, group, key, payload, c.ttl); err != nil {
			obs.Warn("response cache write failed", map[string]any{"group": group, "error": err})
		}
	})
}

func (c *Responses) invalidate(ctx context.Context, group string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	if err := c.store.InvalidatePrefix(ctx, group); err != nil {
		obs.Warn("response cache invalidation failed", map[string]any{"group": group, "error": err})
	}
}

type captureWriter struct {
	http.ResponseWriter
	status   int
	record   bool
	limit    int
	overflow bool
	buf      bytes.Buffer
}

func (cw *captureWriter) WriteHeader(code int) {
	cw.status = code
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *captureWriter) Write(b []byte) (int, error) {
	if cw.record && !cw.overflow {
		if cw.buf.Len()+len(b) > cw.limit {
			cw.overflow = true
			cw.buf.Reset()
		} else {
			cw.buf.Write(b)
		}
	}
	return cw.ResponseWriter.Write(b)
}

// replayable keeps the headers that describe the body. Per-request headers
// such as X-Request-ID are not stored.
func replayable(h http.Header) http.Header {
	out := http.Header{}
	for _, k := range []string{"Content-Type", "Content-Language", "Cache-Control"} {
		if v := h.Values(k); len(v) > 0 {
			out[k] = append([]string(nil), v...)
		}
	}
	return out
}

// encodePayload packs [4 bytes status][4 bytes header length][header JSON][body].
func encodePayload(status int, header http.Header, body []byte) ([]byte, error) {
	hdr, err := json.Marshal(header)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 8+len(hdr)+len(body))
	binary.BigEndian.PutUint32(out[0:4], uint32(status))
	binary.BigEndian.PutUint32(out[4:8], uint32(len(hdr)))
	copy(out[8:], hdr)
	copy(out[8+len(hdr):], body)
	return out, nil
}

func decodePayload(b []byte) (int, http.Header, []byte, bool) {
	if len(b) < 8 {
		return 0, nil, nil, false
	}
	status := int(binary.BigEndian.Uint32(b[0:4]))
	n := int(binary.BigEndian.Uint32(b[4:8]))
	if n < 0 || 8+n > len(b) {
		return 0, nil, nil, false
	}
	hdr := http.Header{}
	if n > 0 {
		if err := json.Unmarshal(b[8:8+n], &hdr); err != nil {
			return 0, nil, nil, false
		}
	}
	return status, hdr, b[8+n:], true
}
