package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TheScottyB/fabric-web/internal/client"
)

// NewPatternsCmd lists the pattern names known to the backend.
func NewPatternsCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "patterns",
		Short: "List available patterns",
		RunE: func(cmd *cobra.Command, args []string) error {
			gw, err := client.New(cfg.Gateway, cfg.Timeout)
			if err != nil {
				return err
			}
			names, err := gw.PatternNames(cmdContext(cmd))
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

type healthResponse struct {
	Status string `json:"status"`
}

// NewHealthCmd creates the health check command.
func NewHealthCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check gateway health",
		RunE: func(cmd *cobra.Command, args []string) error {
			gw, err := client.New(cfg.Gateway, cfg.Timeout)
			if err != nil {
				return err
			}

			body, err := gw.Get(cmdContext(cmd), "/health")
			if err != nil {
				return err
			}

			var resp healthResponse
			if err := json.Unmarshal(body, &resp); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "status=%s\n", resp.Status)
			return nil
		},
	}
}
