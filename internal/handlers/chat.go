package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/TheScottyB/fabric-web/internal/metrics"
	"github.com/TheScottyB/fabric-web/internal/models"
	"github.com/TheScottyB/fabric-web/internal/services"
)

const maxRequestBodyBytes = 10 << 20

type transcriptResolver interface {
	Resolve(ctx context.Context, rawURL, language string) (*models.TranscriptResult, error)
}

type backendForwarder interface {
	Forward(ctx context.Context, payload *models.ChatRequestPayload) (*http.Response, error)
	Get(ctx context.Context, path string) (*http.Response, error)
}

type streamRelay interface {
	Relay(ctx context.Context, w http.ResponseWriter, resp *http.Response) (int64, error)
}

type ChatHandler struct {
	youtube   transcriptResolver
	forwarder backendForwarder
	relay     streamRelay
	log       *slog.Logger
}

func NewChatHandler(youtube transcriptResolver, forwarder backendForwarder, relay streamRelay, log *slog.Logger) *ChatHandler {
	if log == nil {
		log = slog.Default()
	}
	return &ChatHandler{
		youtube:   youtube,
		forwarder: forwarder,
		relay:     relay,
		log:       log,
	}
}

// Chat accepts the legacy and batch request shapes. A request carrying a
// url is answered with the video transcript instead of a generation.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	raw, err := decodeObject(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	if err != nil {
		metrics.Requests.WithLabelValues("chat", "invalid_body").Inc()
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	if rawURL, ok := raw["url"].(string); ok && strings.TrimSpace(rawURL) != "" {
		language, _ := raw["language"].(string)
		h.resolveTranscript(w, r, rawURL, language)
		return
	}

	payload, err := services.NormalizeRequest(raw)
	if err != nil {
		h.log.InfoContext(ctx, "stage", "stage", "normalize", "outcome", "rejected", "error", err)
		metrics.Requests.WithLabelValues("chat", "invalid").Inc()
		handleServiceError(w, r, h.log, err)
		return
	}
	_, batch := raw["prompts"].([]any)
	h.log.InfoContext(ctx, "stage",
		"stage", "normalize",
		"batch", batch,
		"prompts", len(payload.Prompts),
		"passthrough", len(payload.Passthrough),
	)

	resp, err := h.forwarder.Forward(ctx, payload)
	if err != nil {
		metrics.Requests.WithLabelValues("chat", "upstream_unavailable").Inc()
		handleServiceError(w, r, h.log, err)
		return
	}

	h.relayResponse(w, r, "chat", resp)
}

// Transcript is the dedicated transcript endpoint.
func (h *ChatHandler) Transcript(w http.ResponseWriter, r *http.Request) {
	var req models.TranscriptRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "url is required", r))
		return
	}
	h.resolveTranscript(w, r, req.URL, req.Language)
}

// PatternNames relays the backend's pattern catalog listing.
func (h *ChatHandler) PatternNames(w http.ResponseWriter, r *http.Request) {
	h.proxyCatalog(w, r, "/patterns/names")
}

// Strategies relays the backend's strategy catalog listing.
func (h *ChatHandler) Strategies(w http.ResponseWriter, r *http.Request) {
	h.proxyCatalog(w, r, "/strategies")
}

func (h *ChatHandler) proxyCatalog(w http.ResponseWriter, r *http.Request, path string) {
	resp, err := h.forwarder.Get(r.Context(), path)
	if err != nil {
		metrics.Requests.WithLabelValues("catalog", "upstream_unavailable").Inc()
		handleServiceError(w, r, h.log, err)
		return
	}
	h.relayResponse(w, r, "catalog", resp)
}

func (h *ChatHandler) resolveTranscript(w http.ResponseWriter, r *http.Request, rawURL, language string) {
	ctx := r.Context()

	result, err := h.youtube.Resolve(ctx, rawURL, language)
	if err != nil {
		h.log.InfoContext(ctx, "stage", "stage", "resolve", "outcome", "failed", "error", err)
		if services.IsClientError(err) {
			metrics.Requests.WithLabelValues("transcript", "invalid").Inc()
		} else {
			metrics.Requests.WithLabelValues("transcript", "failed").Inc()
		}
		handleServiceError(w, r, h.log, err)
		return
	}

	h.log.InfoContext(ctx, "stage",
		"stage", "resolve",
		"outcome", "ok",
		"video_id", result.Title,
		"chars", len(result.Transcript),
	)
	metrics.Requests.WithLabelValues("transcript", "ok").Inc()
	writeJSON(w, http.StatusOK, result)
}

func (h *ChatHandler) relayResponse(w http.ResponseWriter, r *http.Request, branch string, resp *http.Response) {
	_, err := h.relay.Relay(r.Context(), w, resp)
	if err == nil {
		metrics.Requests.WithLabelValues(branch, "ok").Inc()
		return
	}

	var interrupted *services.RelayInterruptedError
	if errors.As(err, &interrupted) {
		// Headers are already out; all we can do is record it.
		metrics.Requests.WithLabelValues(branch, "interrupted").Inc()
		h.log.WarnContext(r.Context(), "stage", "stage", "relay", "outcome", "interrupted", "error", err)
		return
	}

	metrics.Requests.WithLabelValues(branch, "upstream_error").Inc()
	handleServiceError(w, r, h.log, err)
}

// decodeObject reads a JSON object keeping numbers as json.Number.
func decodeObject(body io.Reader) (map[string]any, error) {
	dec := json.NewDecoder(body)
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, errors.New("request body must be a JSON object")
	}
	return raw, nil
}
