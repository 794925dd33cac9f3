package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TheScottyB/fabric-web/internal/chat"
	"github.com/TheScottyB/fabric-web/internal/client"
)

// NewTranscriptCmd fetches a video transcript. With --pattern the
// transcript is fed straight into a chat turn.
func NewTranscriptCmd(cfg *Config) *cobra.Command {
	opts := &promptOptions{}
	cmd := &cobra.Command{
		Use:   "transcript <video-url>",
		Short: "Fetch a YouTube transcript, optionally running a pattern on it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gw, err := client.New(cfg.Gateway, cfg.Timeout)
			if err != nil {
				return err
			}
			ctx := cmdContext(cmd)

			result, err := gw.Transcript(ctx, args[0], opts.language)
			if err != nil {
				return err
			}

			if opts.pattern == "" {
				fmt.Fprintln(cmd.OutOrStdout(), result.Transcript)
				return nil
			}

			newPrinter(cmd.OutOrStdout()).info(fmt.Sprintf("Transcript for %s: %d characters", result.Title, len(result.Transcript)))
			session := chat.NewSession(sessionName(opts), cliLogger(cfg))
			return runTurn(ctx, cfg, gw, session, opts.payload(result.Transcript), cmd.OutOrStdout())
		},
	}
	opts.bind(cmd)
	return cmd
}
