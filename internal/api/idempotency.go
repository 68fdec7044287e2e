package api

import (
	"bytes"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"
)

var ErrDuplicateIdempotency = errors.New("idempotency key is already in flight")

const idempotencyHeader = "Idempotency-Key"

type storedResponse struct {
	done   bool
	status int
	body   []byte
	at     time.Time
}

// idempotencyStore remembers the response to each (user, key) write so a
// retried request is answered without running twice.
type idempotencyStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]*storedResponse
	now     func() time.Time
}

func newIdempotencyStore(ttl time.Duration) *idempotencyStore {
	return &idempotencyStore{
		ttl:     ttl,
		entries: make(map[string]*storedResponse),
		now:     time.Now,
	}
}

// claim returns the stored response for key if there is one. Otherwise it
// reserves key and reports claimed=true.
func (s *idempotencyStore) claim(key string) (prior *storedResponse, claimed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for k, e := range s.entries {
		if e.done && now.Sub(e.at) > s.ttl {
			delete(s.entries, k)
		}
	}
	if e, ok := s.entries[key]; ok {
		cp := *e
		return &cp, false
	}
	s.entries[key] = &storedResponse{at: now}
	return nil, true
}

func (s *idempotencyStore) complete(key string, status int, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Server errors are not cached so the caller may retry.
	if status >= http.StatusInternalServerError {
		delete(s.entries, key)
		return
	}
	s.entries[key] = &storedResponse{done: true, status: status, body: body, at: s.now()}
}

type recordingWriter struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
}

func (w *recordingWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *recordingWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	w.buf.Write(p)
	return w.ResponseWriter.Write(p)
}

func (s *Server) idempotencyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get(idempotencyHeader))
		if key == "" || r.Method == http.MethodGet {
			next.ServeHTTP(w, r)
			return
		}
		scoped := userFromContext(r.Context()) + "\x00" + r.Method + " " + r.URL.Path + "\x00" + key
		prior, claimed := s.idem.claim(scoped)
		if !claimed {
			if !prior.done {
				writeDomainError(w, ErrDuplicateIdempotency)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Idempotent-Replay", "true")
			w.WriteHeader(prior.status)
			_, _ = w.Write(prior.body)
			return
		}
		rec := &recordingWriter{ResponseWriter: w}
		defer func() {
			status := rec.status
			if status == 0 {
				status = http.StatusInternalServerError
			}
			s.idem.complete(scoped, status, rec.buf.Bytes())
		}()
		next.ServeHTTP(rec, r)
	})
}
