// Package chat tracks the message history of one chat session as turns are
// streamed from the gateway.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/TheScottyB/fabric-web/internal/client"
	"github.com/TheScottyB/fabric-web/internal/models"
)

// State is the phase of the current turn.
type State int

const (
	StateIdle State = iota
	StateSubmitted
	StateStreaming
	StateSettled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubmitted:
		return "submitted"
	case StateStreaming:
		return "streaming"
	case StateSettled:
		return "settled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrTurnInProgress rejects a submission while a turn is still open.
var ErrTurnInProgress = errors.New("a response is still streaming for this session")

const emptyResponseMessage = "The server finished without sending a response."

// Streamer opens the event stream for one turn.
type Streamer interface {
	PostChat(ctx context.Context, payload *models.ChatRequestPayload) (io.ReadCloser, error)
}

// Session is one chat history. A session runs at most one turn at a time.
type Session struct {
	mu          sync.Mutex
	name        string
	state       State
	messages    []models.Message
	placeholder int
	received    bool

	consumer *client.Consumer
	log      *slog.Logger
}

func NewSession(name string, log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}
	return &Session{
		name:        name,
		placeholder: -1,
		consumer:    client.NewConsumer(log),
		log:         log.With("session", name),
	}
}

func (s *Session) Name() string { return s.name }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Messages returns a copy of the history.
func (s *Session) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Message(nil), s.messages...)
}

// Begin opens a turn: the user message and a loading placeholder are
// appended. It fails with ErrTurnInProgress unless the previous turn has
// settled.
func (s *Session) Begin(userText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateSubmitted || s.state == StateStreaming {
		return ErrTurnInProgress
	}

	s.messages = append(s.messages,
		models.Message{ID: newID(), Role: models.RoleUser, Content: userText, Format: models.FormatPlain},
		models.Message{ID: newID(), Role: models.RoleSystem, Format: models.FormatLoading},
	)
	s.placeholder = len(s.messages) - 1
	s.received = false
	s.state = StateSubmitted
	return nil
}

// Apply folds one decoded frame into the open turn. Frames arriving after
// the turn settled are ignored.
func (s *Session) Apply(frame models.StreamFrame) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateSubmitted && s.state != StateStreaming {
		return
	}

	switch frame.Type {
	case models.FrameError:
		s.settleLocked(systemMessage(frame.Content))
	case models.FrameComplete:
		s.finishLocked()
	default:
		msg := &s.messages[s.placeholder]
		msg.Role = models.RoleAssistant
		msg.Content += frame.Content
		msg.Format = messageFormat(frame.Format)
		s.received = true
		s.state = StateStreaming
	}
}

// Fail settles the open turn with a system message describing err.
func (s *Session) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateSubmitted && s.state != StateStreaming {
		return
	}
	s.settleLocked(systemMessage(err.Error()))
}

// Finish settles the open turn with whatever content has been received.
func (s *Session) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateSubmitted && s.state != StateStreaming {
		return
	}
	s.finishLocked()
}

// Reset returns a settled session to idle.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateSettled {
		s.state = StateIdle
		s.placeholder = -1
	}
}

// Submit runs one full turn against the gateway. onFrame, if set, observes
// every decoded frame after it has been applied.
func (s *Session) Submit(ctx context.Context, streamer Streamer, payload *models.ChatRequestPayload, onFrame func(models.StreamFrame)) error {
	if err := s.Begin(turnText(payload)); err != nil {
		return err
	}
	defer s.Reset()

	body, err := streamer.PostChat(ctx, payload)
	if err != nil {
		s.log.WarnContext(ctx, "chat request failed", "error", err)
		s.Fail(err)
		return err
	}
	defer body.Close()

	result := s.consumer.Consume(ctx, body,
		func(frame models.StreamFrame) {
			s.Apply(frame)
			if onFrame != nil {
				onFrame(frame)
			}
		},
		s.Fail,
	)
	if result.Err != nil {
		return result.Err
	}

	s.Finish()
	s.log.DebugContext(ctx, "turn settled", "frames", result.Frames, "discarded_bytes", result.DiscardedBytes)
	return nil
}

func (s *Session) finishLocked() {
	if !s.received {
		s.settleLocked(systemMessage(emptyResponseMessage))
		return
	}
	s.state = StateSettled
}

// settleLocked replaces the placeholder with a terminal message.
func (s *Session) settleLocked(msg models.Message) {
	msg.ID = s.messages[s.placeholder].ID
	s.messages[s.placeholder] = msg
	s.state = StateSettled
}

func systemMessage(raw string) models.Message {
	return models.Message{Role: models.RoleSystem, Content: FriendlyError(raw), Format: models.FormatPlain}
}

// FriendlyError rewrites well-known failure text for display. Anything not
// recognised is returned unchanged.
func FriendlyError(raw string) string {
	switch {
	case strings.Contains(raw, "network") || strings.Contains(raw, "ECONNREFUSED"):
		return "Unable to reach the server. Check that the Fabric backend is running and try again."
	case strings.Contains(raw, "500") || strings.Contains(raw, "Internal Server Error"):
		return "The server ran into an internal error while generating a response. Please try again."
	case strings.Contains(raw, "timeout") || strings.Contains(raw, "ETIMEDOUT"):
		return "The request timed out. Please try again."
	default:
		return raw
	}
}

func messageFormat(frameFormat string) string {
	switch frameFormat {
	case "mermaid":
		return models.FormatDiagram
	case models.FormatPlain:
		return models.FormatPlain
	default:
		return models.FormatMarkdown
	}
}

func turnText(p *models.ChatRequestPayload) string {
	if p == nil || len(p.Prompts) == 0 {
		return ""
	}
	if p.Prompts[0].UserInput != "" {
		return p.Prompts[0].UserInput
	}
	return p.Prompts[0].PatternName
}

func newID() string {
	return ulid.Make().String()
}
