package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/TheScottyB/fabric-web/internal/models"
)

// APIError is a JSON error answered by the gateway.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	RequestID  string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("gateway error %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("gateway error %d: %s", e.StatusCode, e.Message)
}

// GatewayClient wraps HTTP access to the chat gateway.
type GatewayClient struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a gateway client. Streams are bounded only by ctx, so the
// http.Client carries no overall timeout; dialTimeout bounds connecting.
func New(baseURL string, dialTimeout time.Duration) (*GatewayClient, error) {
	normalized, err := normalizeBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	if dialTimeout <= 0 {
		dialTimeout = 10 * time.Second
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: dialTimeout, KeepAlive: 30 * time.Second}).DialContext
	transport.TLSHandshakeTimeout = dialTimeout
	return &GatewayClient{
		baseURL:    normalized,
		httpClient: &http.Client{Transport: transport},
	}, nil
}

// PostChat submits a batch request and returns the event stream body. The
// caller must close it.
func (c *GatewayClient) PostChat(ctx context.Context, payload *models.ChatRequestPayload) (io.ReadCloser, error) {
	resp, err := c.post(ctx, "/api/chat", payload, "text/event-stream")
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Transcript resolves a video URL through the gateway.
func (c *GatewayClient) Transcript(ctx context.Context, videoURL, language string) (*models.TranscriptResult, error) {
	resp, err := c.post(ctx, "/api/youtube/transcript", models.TranscriptRequest{URL: videoURL, Language: language}, "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result models.TranscriptResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode transcript: %w", err)
	}
	return &result, nil
}

// Get issues a GET request and returns the body of a successful response.
func (c *GatewayClient) Get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+strings.TrimLeft(path, "/"), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, decodeAPIError(resp)
	}
	return io.ReadAll(resp.Body)
}

// PatternNames lists the backend's pattern catalog.
func (c *GatewayClient) PatternNames(ctx context.Context) ([]string, error) {
	body, err := c.Get(ctx, "/api/patterns/names")
	if err != nil {
		return nil, err
	}
	var names []string
	if err := json.Unmarshal(body, &names); err != nil {
		return nil, fmt.Errorf("decode pattern names: %w", err)
	}
	return names, nil
}

func (c *GatewayClient) post(ctx context.Context, path string, body interface{}, accept string) (*http.Response, error) {
	jsonBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+strings.TrimLeft(path, "/"), bytes.NewReader(jsonBytes))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", accept)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, decodeAPIError(resp)
	}
	return resp, nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	var body models.ErrorResponse
	if err := json.Unmarshal(raw, &body); err == nil {
		apiErr.Message = body.Error
		apiErr.Code = body.Code
		apiErr.RequestID = body.RequestID
	} else {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	return apiErr
}

func normalizeBaseURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("gateway URL is empty")
	}

	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		raw = strings.TrimRight(raw, "/")
	} else if strings.HasPrefix(raw, ":") {
		raw = "http://localhost" + raw
	} else {
		raw = "http://" + raw
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("invalid gateway URL: %q", raw)
	}
	return strings.TrimRight(raw, "/"), nil
}
