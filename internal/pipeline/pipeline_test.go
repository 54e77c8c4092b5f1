package pipeline

import (
	"context"
	"encoding/base64"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/google/go-github/v66/github"

	"github.com/staticsnack/server/internal/store"
)

func init() {
	log.SetOutput(io.Discard)
}

// rewriteTransport sends requests to baseURL instead of the original
// host (for a fake GitHub API).
type rewriteTransport struct {
	baseURL string
	base    http.RoundTripper
}

func (t *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.base == nil {
		t.base = http.DefaultTransport
	}
	u, err := url.Parse(t.baseURL)
	if err != nil {
		return nil, err
	}
	req = req.Clone(req.Context())
	req.URL.Scheme = u.Scheme
	req.URL.Host = u.Host
	return t.base.RoundTrip(req)
}

// fakeResolver hands out clients pointed at a fake GitHub server.
type fakeResolver struct {
	baseURL string
	err     error

	mu    sync.Mutex
	calls int
}

func (f *fakeResolver) Resolve(_ context.Context, _ int64) (*github.Client, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	hc := &http.Client{Transport: &rewriteTransport{baseURL: f.baseURL}}
	return github.NewClient(hc), nil
}

func (f *fakeResolver) resolveCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// requestLog records every request hitting the fake GitHub server.
type requestLog struct {
	mu   sync.Mutex
	reqs []string
}

func (l *requestLog) add(r *http.Request) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reqs = append(l.reqs, r.Method+" "+r.URL.Path)
}

func (l *requestLog) count(method, pathPrefix string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, req := range l.reqs {
		if req == method+" "+pathPrefix {
			n++
		}
	}
	return n
}

func (l *requestLog) total() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.reqs)
}

// newTestService wires a Service against a memory store and a fake
// GitHub server, with a default site registered.
func newTestService(t *testing.T, handler http.HandlerFunc) (*Service, store.Store, *fakeResolver, *requestLog) {
	t.Helper()
	logged := &requestLog{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logged.add(r)
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	st := store.NewMemoryStore()
	if err := st.PutSite(context.Background(), store.Site{
		ID:             "site1",
		RepoFullName:   "acme/site",
		DefaultBranch:  "main",
		InstallationID: 77,
		CreatedBy:      "alice",
	}); err != nil {
		t.Fatal(err)
	}
	resolver := &fakeResolver{baseURL: server.URL}
	return NewService(st, resolver), st, resolver, logged
}

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func notFound(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNotFound)
	w.Write([]byte(`{"message": "Not Found"}`))
}
