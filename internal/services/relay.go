package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/TheScottyB/fabric-web/internal/metrics"
)

const (
	defaultStreamContentType = "text/event-stream"
	maxErrorBodyBytes        = 1 << 20
	relayBufferSize          = 32 << 10
)

// RelayInterruptedError is a failure after the stream started. The caller
// has already received headers and possibly bytes, so it cannot be turned
// into a JSON error response.
type RelayInterruptedError struct {
	Written int64
	Err     error
}

func (e *RelayInterruptedError) Error() string {
	return fmt.Sprintf("stream interrupted after %d bytes: %v", e.Written, e.Err)
}

func (e *RelayInterruptedError) Unwrap() error { return e.Err }

// StreamRelay pipes an accepted backend response to the caller.
type StreamRelay struct {
	log *slog.Logger
}

func NewStreamRelay(log *slog.Logger) *StreamRelay {
	if log == nil {
		log = slog.Default()
	}
	return &StreamRelay{log: log}
}

// Relay writes resp to w. Non-success statuses and bodiless successes are
// detected before anything is written and returned as errors so the caller
// can answer with a single JSON error. It always closes resp.Body.
func (s *StreamRelay) Relay(ctx context.Context, w http.ResponseWriter, resp *http.Response) (int64, error) {
	if resp.Body != nil {
		defer resp.Body.Close()
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var body []byte
		if resp.Body != nil {
			body, _ = io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		}
		return 0, &UpstreamApplicationError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(body),
		}
	}

	if resp.Body == nil || resp.Body == http.NoBody {
		return 0, ErrEmptyUpstreamBody
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = defaultStreamContentType
	}
	h := w.Header()
	h.Set("Content-Type", contentType)
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(resp.StatusCode)

	// Abandon the upstream read as soon as the caller goes away.
	stop := context.AfterFunc(ctx, func() { resp.Body.Close() })
	defer stop()

	rc := http.NewResponseController(w)
	_ = rc.Flush()

	buf := make([]byte, relayBufferSize)
	var written int64
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			m, writeErr := w.Write(buf[:n])
			written += int64(m)
			metrics.RelayedBytes.Add(float64(m))
			if writeErr != nil {
				return written, &RelayInterruptedError{Written: written, Err: writeErr}
			}
			if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
				return written, &RelayInterruptedError{Written: written, Err: err}
			}
		}
		if readErr == io.EOF {
			s.log.InfoContext(ctx, "stage", "stage", "relay", "bytes", written, "content_type", contentType)
			return written, nil
		}
		if readErr != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				readErr = ctxErr
			}
			return written, &RelayInterruptedError{Written: written, Err: readErr}
		}
	}
}
