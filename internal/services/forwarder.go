package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/TheScottyB/fabric-web/internal/config"
	"github.com/TheScottyB/fabric-web/internal/metrics"
	"github.com/TheScottyB/fabric-web/internal/models"
)

// Candidate is one backend path that may implement chat generation.
type Candidate struct {
	Name string
	Path string
}

// BackendForwarder delivers chat payloads to the Fabric backend, walking the
// candidate list in order until one answers with something other than 404.
type BackendForwarder struct {
	baseOrigin string
	candidates []Candidate
	client     *http.Client
	log        *slog.Logger
}

func NewBackendForwarder(cfg config.BackendConfig, log *slog.Logger) *BackendForwarder {
	if log == nil {
		log = slog.Default()
	}

	candidates := make([]Candidate, 0, len(cfg.CandidatePaths))
	for _, p := range cfg.CandidatePaths {
		p = "/" + strings.Trim(strings.TrimSpace(p), "/")
		candidates = append(candidates, Candidate{Name: strings.TrimPrefix(p, "/"), Path: p})
	}

	dialer := &net.Dialer{
		Timeout:   cfg.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}

	// No Client.Timeout: it would cut long generations mid-stream.
	client := &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           dialer.DialContext,
			TLSHandshakeTimeout:   cfg.ConnectTimeout,
			ResponseHeaderTimeout: cfg.ResponseTimeout,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			ForceAttemptHTTP2:     true,
		},
	}

	return &BackendForwarder{
		baseOrigin: strings.TrimRight(strings.TrimSpace(cfg.BaseOrigin), "/"),
		candidates: candidates,
		client:     client,
		log:        log,
	}
}

// Candidates returns the ordered candidate list.
func (f *BackendForwarder) Candidates() []Candidate {
	return append([]Candidate(nil), f.candidates...)
}

// Forward sends payload to the first candidate that exists on the backend.
//
// The first response whose status is not 404 is returned, whatever its
// status. If every candidate answered 404 the last of those responses is
// returned. If no candidate produced a response at all, the first
// connection error is returned as *UpstreamUnavailableError. The caller owns
// the returned body.
func (f *BackendForwarder) Forward(ctx context.Context, payload *models.ChatRequestPayload) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode chat payload: %w", err)
	}
	if len(f.candidates) == 0 {
		return nil, errors.New("no backend candidate endpoints configured")
	}

	var (
		firstErr          error
		firstErrCandidate string
		lastNotFound      *http.Response
	)

	for _, c := range f.candidates {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseOrigin+c.Path, bytes.NewReader(body))
		if err != nil {
			closeResponse(lastNotFound)
			return nil, fmt.Errorf("failed to build request for %s: %w", c.Name, err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "text/event-stream")

		start := time.Now()
		resp, err := f.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				closeResponse(lastNotFound)
				return nil, ctx.Err()
			}
			metrics.CandidateAttempts.WithLabelValues(c.Name, metrics.OutcomeConnError).Inc()
			f.log.WarnContext(ctx, "stage",
				"stage", "forward",
				"candidate", c.Name,
				"outcome", metrics.OutcomeConnError,
				"error", err,
			)
			if firstErr == nil {
				firstErr = err
				firstErrCandidate = c.Name
			}
			continue
		}

		if resp.StatusCode == http.StatusNotFound {
			metrics.CandidateAttempts.WithLabelValues(c.Name, metrics.OutcomeNotFound).Inc()
			f.log.InfoContext(ctx, "stage",
				"stage", "forward",
				"candidate", c.Name,
				"outcome", metrics.OutcomeNotFound,
			)
			closeResponse(lastNotFound)
			lastNotFound = resp
			continue
		}

		metrics.CandidateAttempts.WithLabelValues(c.Name, metrics.OutcomeAccepted).Inc()
		f.log.InfoContext(ctx, "stage",
			"stage", "forward",
			"candidate", c.Name,
			"outcome", metrics.OutcomeAccepted,
			"status", resp.StatusCode,
			"latency", time.Since(start),
		)
		closeResponse(lastNotFound)
		return resp, nil
	}

	if lastNotFound != nil {
		return lastNotFound, nil
	}
	return nil, &UpstreamUnavailableError{Candidate: firstErrCandidate, Err: firstErr}
}

// Get issues a single GET against the base origin. Used for catalog
// listings, which have one well-known path.
func (f *BackendForwarder) Get(ctx context.Context, path string) (*http.Response, error) {
	target := f.baseOrigin + "/" + strings.TrimLeft(path, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &UpstreamUnavailableError{Candidate: path, Err: err}
	}
	return resp, nil
}

// closeResponse drains a small amount so the connection can be reused.
func closeResponse(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.CopyN(io.Discard, resp.Body, 4<<10)
	resp.Body.Close()
}
