// Package client talks to a running gateway and decodes its event stream.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"

	"github.com/TheScottyB/fabric-web/internal/models"
)

const readBufferSize = 4 << 10

var (
	frameSeparator = []byte("\n\n")
	crlf           = []byte("\r\n")
	lf             = []byte("\n")
	dataPrefix     = []byte("data:")
)

// Decoder splits an event stream into frames. Bytes that do not yet form a
// complete frame are kept until the next Feed.
type Decoder struct {
	buf []byte
}

// Feed appends chunk and returns every frame it completed, in order.
func (d *Decoder) Feed(chunk []byte) []models.StreamFrame {
	d.buf = append(d.buf, chunk...)
	// A CRLF pair may straddle two chunks, so normalize the whole buffer.
	if bytes.Contains(d.buf, crlf) {
		d.buf = bytes.ReplaceAll(d.buf, crlf, lf)
	}

	var frames []models.StreamFrame
	for {
		i := bytes.Index(d.buf, frameSeparator)
		if i < 0 {
			break
		}
		block := d.buf[:i]
		d.buf = d.buf[i+len(frameSeparator):]
		if frame, ok := parseFrame(block); ok {
			frames = append(frames, frame)
		}
	}

	if len(d.buf) == 0 {
		d.buf = nil
	}
	return frames
}

// Pending is the number of buffered bytes not yet part of a complete frame.
func (d *Decoder) Pending() int {
	return len(d.buf)
}

// parseFrame decodes one blank-line delimited block. Blocks without data
// lines (comments, keep-alives) carry no event.
func parseFrame(block []byte) (models.StreamFrame, bool) {
	var data [][]byte
	for _, line := range bytes.Split(block, lf) {
		if !bytes.HasPrefix(line, dataPrefix) {
			continue
		}
		line = bytes.TrimPrefix(line[len(dataPrefix):], []byte(" "))
		data = append(data, line)
	}
	if len(data) == 0 {
		return models.StreamFrame{}, false
	}

	payload := bytes.Join(data, lf)

	var frame models.StreamFrame
	if err := json.Unmarshal(payload, &frame); err == nil && frame.Type != "" {
		return frame, true
	}
	return models.StreamFrame{
		Type:    models.FrameContent,
		Format:  models.FormatPlain,
		Content: string(payload),
	}, true
}

// ConsumeResult summarises one consumed stream.
type ConsumeResult struct {
	Frames int
	// DiscardedBytes is a trailing partial frame left when the stream
	// ended. It is never emitted.
	DiscardedBytes int
	Err            error
}

type Consumer struct {
	log *slog.Logger
}

func NewConsumer(log *slog.Logger) *Consumer {
	if log == nil {
		log = slog.Default()
	}
	return &Consumer{log: log}
}

// Consume reads r until it ends, calling onFrame for each complete frame in
// arrival order on the calling goroutine. On a read error onError is called
// once and nothing further is emitted.
func (c *Consumer) Consume(ctx context.Context, r io.Reader, onFrame func(models.StreamFrame), onError func(error)) ConsumeResult {
	var (
		dec    Decoder
		result ConsumeResult
		buf    = make([]byte, readBufferSize)
	)

	fail := func(err error) ConsumeResult {
		result.Err = err
		if onError != nil {
			onError(err)
		}
		return result
	}

	for {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}

		n, err := r.Read(buf)
		if n > 0 {
			for _, frame := range dec.Feed(buf[:n]) {
				result.Frames++
				if onFrame != nil {
					onFrame(frame)
				}
			}
		}

		if errors.Is(err, io.EOF) {
			if pending := dec.Pending(); pending > 0 {
				result.DiscardedBytes = pending
				c.log.WarnContext(ctx, "stream ended inside a frame; partial frame discarded", "bytes", pending)
			}
			return result
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = ctxErr
			}
			return fail(err)
		}
	}
}
