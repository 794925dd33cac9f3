package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheScottyB/fabric-web/internal/config"
	"github.com/TheScottyB/fabric-web/internal/models"
	"github.com/TheScottyB/fabric-web/internal/services"
)

type stubResolver struct {
	result *models.TranscriptResult
	err    error
	calls  int
}

func (s *stubResolver) Resolve(ctx context.Context, rawURL, language string) (*models.TranscriptResult, error) {
	s.calls++
	return s.result, s.err
}

type stubForwarder struct {
	resp     *http.Response
	err      error
	payloads []*models.ChatRequestPayload
	paths    []string
}

func (s *stubForwarder) Forward(ctx context.Context, payload *models.ChatRequestPayload) (*http.Response, error) {
	s.payloads = append(s.payloads, payload)
	return s.resp, s.err
}

func (s *stubForwarder) Get(ctx context.Context, path string) (*http.Response, error) {
	s.paths = append(s.paths, path)
	return s.resp, s.err
}

func streamResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func postChat(h *ChatHandler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.Chat(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) models.ErrorResponse {
	t.Helper()
	var body models.ErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	return body
}

func TestChat_StreamsBackendResponse(t *testing.T) {
	stream := "data: {\"type\":\"content\",\"content\":\"hi\"}\n\n"
	fwd := &stubForwarder{resp: streamResponse(http.StatusOK, stream)}
	h := NewChatHandler(&stubResolver{}, fwd, services.NewStreamRelay(nil), nil)

	rr := postChat(h, `{"prompts":[{"userInput":"hi","patternName":"summarize"}],"temperature":0.2}`)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, stream, rr.Body.String())
	assert.Equal(t, "text/event-stream", rr.Header().Get("Content-Type"))

	require.Len(t, fwd.payloads, 1)
	assert.Equal(t, []models.PromptRequest{{UserInput: "hi", PatternName: "summarize"}}, fwd.payloads[0].Prompts)
	require.NotNil(t, fwd.payloads[0].Temperature)
	assert.InDelta(t, 0.2, *fwd.payloads[0].Temperature, 1e-9)
}

func TestChat_ValidationErrorMakesNoBackendCall(t *testing.T) {
	bodies := []string{
		`{}`,
		`{"input":"   "}`,
		`{"prompts":[{"model":"gpt-4o"}]}`,
		`{"model":"gpt-4o","variables":{"a":"b"}}`,
	}

	for _, body := range bodies {
		t.Run(body, func(t *testing.T) {
			fwd := &stubForwarder{}
			h := NewChatHandler(&stubResolver{}, fwd, services.NewStreamRelay(nil), nil)

			rr := postChat(h, body)

			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Empty(t, fwd.payloads)
			assert.Equal(t, "VALIDATION_ERROR", decodeError(t, rr).Code)
		})
	}
}

func TestChat_InvalidJSON(t *testing.T) {
	fwd := &stubForwarder{}
	h := NewChatHandler(&stubResolver{}, fwd, services.NewStreamRelay(nil), nil)

	for _, body := range []string{`not json`, `null`, `[1,2]`} {
		rr := postChat(h, body)
		assert.Equal(t, http.StatusBadRequest, rr.Code, body)
	}
	assert.Empty(t, fwd.payloads)
}

func TestChat_BackendApplicationError(t *testing.T) {
	resp := streamResponse(http.StatusInternalServerError, "boom")
	resp.Status = "500 Internal Server Error"
	h := NewChatHandler(&stubResolver{}, &stubForwarder{resp: resp}, services.NewStreamRelay(nil), nil)

	rr := postChat(h, `{"input":"hi"}`)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	body := decodeError(t, rr)
	assert.Contains(t, body.Error, "500")
	assert.Contains(t, body.Error, "boom")
	assert.Equal(t, "UPSTREAM_ERROR", body.Code)
}

func TestChat_BackendUnavailable(t *testing.T) {
	err := &services.UpstreamUnavailableError{Candidate: "chat", Err: errors.New("connection refused")}
	h := NewChatHandler(&stubResolver{}, &stubForwarder{err: err}, services.NewStreamRelay(nil), nil)

	rr := postChat(h, `{"input":"hi"}`)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	body := decodeError(t, rr)
	assert.Equal(t, "UPSTREAM_UNAVAILABLE", body.Code)
	assert.Contains(t, body.Error, "connection refused")
}

func TestChat_EmptyBackendBody(t *testing.T) {
	resp := &http.Response{StatusCode: http.StatusOK, Header: http.Header{}, Body: http.NoBody}
	h := NewChatHandler(&stubResolver{}, &stubForwarder{resp: resp}, services.NewStreamRelay(nil), nil)

	rr := postChat(h, `{"input":"hi"}`)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "EMPTY_UPSTREAM_BODY", decodeError(t, rr).Code)
}

func TestChat_URLBranchReturnsTranscript(t *testing.T) {
	resolver := &stubResolver{result: &models.TranscriptResult{Transcript: "hello there", Title: "dQw4w9WgXcQ", Language: "en"}}
	fwd := &stubForwarder{}
	h := NewChatHandler(resolver, fwd, services.NewStreamRelay(nil), nil)

	rr := postChat(h, `{"url":"https://youtu.be/dQw4w9WgXcQ","language":"en","input":"ignored"}`)

	assert.Equal(t, http.StatusOK, rr.Code)
	var result models.TranscriptResult
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&result))
	assert.Equal(t, "hello there", result.Transcript)
	assert.Equal(t, "dQw4w9WgXcQ", result.Title)
	assert.Equal(t, 1, resolver.calls)
	assert.Empty(t, fwd.payloads)
}

func TestChat_URLBranchWithRealResolver(t *testing.T) {
	svc := services.NewYouTubeService(nil, nil)
	h := NewChatHandler(svc, &stubForwarder{}, services.NewStreamRelay(nil), nil)

	rr := postChat(h, `{"url":"https://example.com/video"}`)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "INVALID_URL", decodeError(t, rr).Code)
}

func TestChat_TranscriptProviderFailure(t *testing.T) {
	resolver := &stubResolver{err: errors.New("failed to fetch transcript for dQw4w9WgXcQ: captions disabled")}
	h := NewChatHandler(resolver, &stubForwarder{}, services.NewStreamRelay(nil), nil)

	rr := postChat(h, `{"url":"https://youtu.be/dQw4w9WgXcQ"}`)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, decodeError(t, rr).Error, "captions disabled")
}

func TestTranscript_Endpoint(t *testing.T) {
	resolver := &stubResolver{result: &models.TranscriptResult{Transcript: "t", Title: "dQw4w9WgXcQ"}}
	h := NewChatHandler(resolver, &stubForwarder{}, services.NewStreamRelay(nil), nil)

	t.Run("ok", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/youtube/transcript", strings.NewReader(`{"url":"https://youtu.be/dQw4w9WgXcQ"}`))
		rr := httptest.NewRecorder()
		h.Transcript(rr, req)
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("missing url", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/youtube/transcript", strings.NewReader(`{"language":"en"}`))
		rr := httptest.NewRecorder()
		h.Transcript(rr, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestCatalog_RelaysBackendListing(t *testing.T) {
	resp := streamResponse(http.StatusOK, `["summarize","extract_wisdom"]`)
	resp.Header.Set("Content-Type", "application/json")
	fwd := &stubForwarder{resp: resp}
	h := NewChatHandler(&stubResolver{}, fwd, services.NewStreamRelay(nil), nil)

	rr := httptest.NewRecorder()
	h.PatternNames(rr, httptest.NewRequest(http.MethodGet, "/api/patterns/names", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, `["summarize","extract_wisdom"]`, rr.Body.String())
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.Equal(t, []string{"/patterns/names"}, fwd.paths)
}

// End to end through the real forwarder: the first candidate is missing on
// this backend, the second answers once.
func TestChat_CandidateFallbackEndToEnd(t *testing.T) {
	stream := "data: {\"type\":\"content\",\"content\":\"from B\"}\n\n"
	hits := map[string]int{}
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits[r.URL.Path]++
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, stream)
	}))
	defer backend.Close()

	fwd := services.NewBackendForwarder(config.BackendConfig{
		BaseOrigin:      backend.URL + "/",
		CandidatePaths:  []string{"/chat", "/api/chat"},
		ConnectTimeout:  time.Second,
		ResponseTimeout: 5 * time.Second,
	}, nil)
	h := NewChatHandler(&stubResolver{}, fwd, services.NewStreamRelay(nil), nil)

	rr := postChat(h, `{"prompts":[{"userInput":"hi","patternName":"summarize"}]}`)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, stream, rr.Body.String())
	assert.Equal(t, map[string]int{"/chat": 1, "/api/chat": 1}, hits)
}
