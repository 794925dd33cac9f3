package commands

import (
	"bufio"
	"context"
	"io"
	"strings"

	"github.com/TheScottyB/fabric-web/internal/chat"
	"github.com/TheScottyB/fabric-web/internal/client"
)

// replLoop keeps one session open and submits each input line as a turn.
// Turn failures are shown in the transcript and do not end the loop.
func replLoop(ctx context.Context, cfg *Config, opts *promptOptions, in io.Reader, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	gw, err := client.New(cfg.Gateway, cfg.Timeout)
	if err != nil {
		return err
	}
	session := chat.NewSession(sessionName(opts), cliLogger(cfg))

	p := newPrinter(out)
	p.info("Connected to " + cfg.Gateway + ". Type 'exit' or press Ctrl+D to quit.")
	if opts.pattern != "" {
		p.info("Pattern: " + opts.pattern)
	}

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64<<10), 1<<20)
	for {
		p.userLabel()
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.EqualFold(line, "exit") {
			break
		}

		_ = runTurn(ctx, cfg, gw, session, opts.payload(line), out)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return scanner.Err()
}
