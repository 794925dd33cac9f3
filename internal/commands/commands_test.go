package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheScottyB/fabric-web/internal/models"
)

func init() {
	color.NoColor = true
}

func TestPromptOptions_Payload(t *testing.T) {
	opts := &promptOptions{
		pattern:     "summarize",
		model:       "gpt-4o",
		variables:   map[string]string{"lang": "fr"},
		temperature: -1,
	}

	p := opts.payload("  some text \n")
	require.Len(t, p.Prompts, 1)
	assert.Equal(t, models.PromptRequest{
		UserInput:   "some text",
		PatternName: "summarize",
		Model:       "gpt-4o",
		Variables:   map[string]string{"lang": "fr"},
	}, p.Prompts[0])
	assert.Nil(t, p.Temperature)

	opts.temperature = 0
	p = opts.payload("x")
	require.NotNil(t, p.Temperature)
	assert.Zero(t, *p.Temperature)
}

// fakeGateway answers every chat turn with the given frames and records
// what it received.
func fakeGateway(t *testing.T, frames ...string) (*httptest.Server, *[]models.ChatRequestPayload) {
	t.Helper()
	var received []models.ChatRequestPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p models.ChatRequestPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		received = append(received, p)

		w.Header().Set("Content-Type", "text/event-stream")
		for _, f := range frames {
			io.WriteString(w, "data: "+f+"\n\n")
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &received
}

func TestReplLoop_SubmitsEachLine(t *testing.T) {
	srv, received := fakeGateway(t,
		`{"type":"content","format":"markdown","content":"Hello"}`,
		`{"type":"complete"}`,
	)
	cfg := &Config{Gateway: srv.URL, Timeout: time.Second}
	opts := &promptOptions{pattern: "summarize", temperature: -1}

	var out bytes.Buffer
	err := replLoop(context.Background(), cfg, opts, strings.NewReader("first\n\nsecond\nexit\nignored\n"), &out)
	require.NoError(t, err)

	require.Len(t, *received, 2)
	assert.Equal(t, "first", (*received)[0].Prompts[0].UserInput)
	assert.Equal(t, "second", (*received)[1].Prompts[0].UserInput)
	assert.Equal(t, "summarize", (*received)[1].Prompts[0].PatternName)
	assert.Equal(t, 2, strings.Count(out.String(), "Hello"))
}

func TestReplLoop_ShowsErrorFrame(t *testing.T) {
	srv, _ := fakeGateway(t, `{"type":"error","content":"pattern not found"}`)
	cfg := &Config{Gateway: srv.URL, Timeout: time.Second}

	var out bytes.Buffer
	err := replLoop(context.Background(), cfg, &promptOptions{temperature: -1}, strings.NewReader("hi\n"), &out)
	require.NoError(t, err)

	assert.Contains(t, out.String(), "Error: pattern not found")
}

func TestSendCmd_RenderedAnswer(t *testing.T) {
	srv, received := fakeGateway(t,
		`{"type":"content","format":"markdown","content":"# Title"}`,
		`{"type":"complete"}`,
	)

	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"send", "--gateway", srv.URL, "--render", "--pattern", "summarize", "--var", "a=b", "input", "text"})
	require.NoError(t, root.Execute())

	require.Len(t, *received, 1)
	p := (*received)[0].Prompts[0]
	assert.Equal(t, "input text", p.UserInput)
	assert.Equal(t, map[string]string{"a": "b"}, p.Variables)
	assert.Contains(t, out.String(), "Title")
}
