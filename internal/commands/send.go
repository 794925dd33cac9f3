package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/TheScottyB/fabric-web/internal/chat"
	"github.com/TheScottyB/fabric-web/internal/client"
	"github.com/TheScottyB/fabric-web/internal/logging"
	"github.com/TheScottyB/fabric-web/internal/models"
)

// promptOptions are the per-turn generation flags shared by send and the
// interactive loop.
type promptOptions struct {
	pattern     string
	strategy    string
	model       string
	vendor      string
	contextName string
	session     string
	language    string
	variables   map[string]string
	temperature float64
}

func (o *promptOptions) bind(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVarP(&o.pattern, "pattern", "p", "", "Pattern name")
	f.StringVar(&o.strategy, "strategy", "", "Strategy name")
	f.StringVarP(&o.model, "model", "m", "", "Model name")
	f.StringVar(&o.vendor, "vendor", "", "Model vendor")
	f.StringVar(&o.contextName, "context", "", "Backend context name")
	f.StringVar(&o.session, "session", "", "Backend session name")
	f.StringVarP(&o.language, "language", "l", "", "Answer language")
	f.StringToStringVar(&o.variables, "var", nil, "Pattern variable (key=value, repeatable)")
	f.Float64Var(&o.temperature, "temperature", -1, "Sampling temperature (unset when negative)")
}

// payload builds the batch request for one turn.
func (o *promptOptions) payload(input string) *models.ChatRequestPayload {
	p := &models.ChatRequestPayload{
		Prompts: []models.PromptRequest{{
			UserInput:    strings.TrimSpace(input),
			PatternName:  o.pattern,
			StrategyName: o.strategy,
			Model:        o.model,
			Vendor:       o.vendor,
			ContextName:  o.contextName,
			SessionName:  o.session,
			Variables:    o.variables,
		}},
		Language: o.language,
	}
	if o.temperature >= 0 {
		t := o.temperature
		p.Temperature = &t
	}
	return p
}

// NewSendCmd submits one turn and prints the answer as it streams.
func NewSendCmd(cfg *Config) *cobra.Command {
	opts := &promptOptions{}
	cmd := &cobra.Command{
		Use:   "send [input]",
		Short: "Send one prompt (use - to read input from stdin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			input := strings.Join(args, " ")
			if input == "-" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				input = string(data)
			}
			if strings.TrimSpace(input) == "" && opts.pattern == "" {
				return fmt.Errorf("nothing to send: give an input or a --pattern")
			}

			gw, err := client.New(cfg.Gateway, cfg.Timeout)
			if err != nil {
				return err
			}
			session := chat.NewSession(sessionName(opts), cliLogger(cfg))
			return runTurn(cmdContext(cmd), cfg, gw, session, opts.payload(input), cmd.OutOrStdout())
		},
	}
	opts.bind(cmd)
	return cmd
}

// runTurn submits payload and prints the turn. Streamed text is printed as
// it arrives unless rendering is requested, in which case the settled
// answer is rendered once.
func runTurn(ctx context.Context, cfg *Config, gw chat.Streamer, session *chat.Session, payload *models.ChatRequestPayload, out io.Writer) error {
	p := newPrinter(out)

	p.assistantLabel()
	err := session.Submit(ctx, gw, payload, func(frame models.StreamFrame) {
		if !cfg.Render && frame.Type == models.FrameContent {
			p.stream(frame.Content)
		}
	})
	if errors.Is(err, chat.ErrTurnInProgress) {
		return err
	}

	msgs := session.Messages()
	last := msgs[len(msgs)-1]
	switch {
	case last.Role == models.RoleSystem:
		p.system(last.Content)
	case cfg.Render:
		p.rendered(last)
	default:
		p.endStream()
	}
	return err
}

func sessionName(o *promptOptions) string {
	if o.session != "" {
		return o.session
	}
	return "default"
}

func cliLogger(cfg *Config) *slog.Logger {
	level := "warn"
	if cfg.Debug {
		level = "debug"
	}
	return logging.New(os.Stderr, level, false)
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
