package services

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheScottyB/fabric-web/internal/config"
	"github.com/TheScottyB/fabric-web/internal/models"
)

// backendStub answers each path with a fixed status and body and records hits.
type backendStub struct {
	mu     sync.Mutex
	hits   []string
	bodies map[string][]byte
	routes map[string]struct {
		status int
		body   string
	}
}

func newBackendStub() *backendStub {
	return &backendStub{
		bodies: map[string][]byte{},
		routes: map[string]struct {
			status int
			body   string
		}{},
	}
}

func (b *backendStub) on(path string, status int, body string) *backendStub {
	b.routes[path] = struct {
		status int
		body   string
	}{status, body}
	return b
}

func (b *backendStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	b.mu.Lock()
	b.hits = append(b.hits, r.URL.Path)
	b.bodies[r.URL.Path] = body
	b.mu.Unlock()

	route, ok := b.routes[r.URL.Path]
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(route.status)
	io.WriteString(w, route.body)
}

func testPayload() *models.ChatRequestPayload {
	return &models.ChatRequestPayload{
		Prompts: []models.PromptRequest{{UserInput: "hi", PatternName: "summarize"}},
	}
}

func newTestForwarder(origin string, paths ...string) *BackendForwarder {
	return NewBackendForwarder(config.BackendConfig{
		BaseOrigin:      origin,
		CandidatePaths:  paths,
		ConnectTimeout:  time.Second,
		ResponseTimeout: 5 * time.Second,
	}, nil)
}

// closedOrigin returns an origin nothing is listening on.
func closedOrigin(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	return url
}

func TestBackendForwarder_FallsBackOnNotFound(t *testing.T) {
	stub := newBackendStub().on("/api/chat", http.StatusOK, "data: {\"type\":\"content\",\"content\":\"B\"}\n\n")
	srv := httptest.NewServer(stub)
	defer srv.Close()

	f := newTestForwarder(srv.URL, "/chat", "/api/chat")
	resp, err := f.Forward(context.Background(), testPayload())
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "data: {\"type\":\"content\",\"content\":\"B\"}\n\n", string(body))
	assert.Equal(t, []string{"/chat", "/api/chat"}, stub.hits)

	var sent models.ChatRequestPayload
	require.NoError(t, json.Unmarshal(stub.bodies["/api/chat"], &sent))
	assert.Equal(t, testPayload().Prompts, sent.Prompts)
}

func TestBackendForwarder_StopsAtFirstNonNotFound(t *testing.T) {
	stub := newBackendStub().
		on("/chat", http.StatusInternalServerError, "boom").
		on("/api/chat", http.StatusOK, "never")
	srv := httptest.NewServer(stub)
	defer srv.Close()

	f := newTestForwarder(srv.URL, "/chat", "/api/chat")
	resp, err := f.Forward(context.Background(), testPayload())
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, []string{"/chat"}, stub.hits)
}

func TestBackendForwarder_AllNotFoundReturnsLast(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, "missing "+r.URL.Path)
	}))
	defer srv.Close()

	f := newTestForwarder(srv.URL, "/a", "/b", "/c")
	resp, err := f.Forward(context.Background(), testPayload())
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "missing /c", string(body))
}

func TestBackendForwarder_AllConnectionFailuresSurfaceFirst(t *testing.T) {
	f := newTestForwarder(closedOrigin(t), "/first", "/second", "/third")

	resp, err := f.Forward(context.Background(), testPayload())
	assert.Nil(t, resp)

	var unavailable *UpstreamUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, "first", unavailable.Candidate)
	assert.NotNil(t, unavailable.Err)
	assert.False(t, IsClientError(err))
}

func TestBackendForwarder_NormalizesOriginAndPaths(t *testing.T) {
	stub := newBackendStub().on("/api/chat", http.StatusOK, "ok")
	srv := httptest.NewServer(stub)
	defer srv.Close()

	f := newTestForwarder(srv.URL+"///", "api/chat/")
	assert.Equal(t, []Candidate{{Name: "api/chat", Path: "/api/chat"}}, f.Candidates())

	resp, err := f.Forward(context.Background(), testPayload())
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, []string{"/api/chat"}, stub.hits)
}

func TestBackendForwarder_CancelledContext(t *testing.T) {
	stub := newBackendStub().on("/chat", http.StatusOK, "ok")
	srv := httptest.NewServer(stub)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := newTestForwarder(srv.URL, "/chat")
	_, err := f.Forward(ctx, testPayload())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBackendForwarder_Get(t *testing.T) {
	stub := newBackendStub().on("/patterns/names", http.StatusOK, `["summarize"]`)
	srv := httptest.NewServer(stub)
	defer srv.Close()

	resp, err := newTestForwarder(srv.URL+"/", "/chat").Get(context.Background(), "/patterns/names")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, `["summarize"]`, string(body))

	_, err = newTestForwarder(closedOrigin(t), "/chat").Get(context.Background(), "/strategies")
	var unavailable *UpstreamUnavailableError
	assert.ErrorAs(t, err, &unavailable)
}
