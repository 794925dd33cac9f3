package commands

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	defaultGateway = "http://localhost:3000"
)

// Config holds CLI runtime configuration.
type Config struct {
	Gateway string        `mapstructure:"gateway"`
	Timeout time.Duration `mapstructure:"timeout"`
	Render  bool          `mapstructure:"render"`
	Debug   bool          `mapstructure:"debug"`
}

// NewRootCmd builds the root command with shared flags.
func NewRootCmd() *cobra.Command {
	cobra.OnInitialize(initConfig)

	cfg := &Config{
		Gateway: defaultGateway,
		Timeout: 10 * time.Second,
	}
	opts := &promptOptions{}

	cmd := &cobra.Command{
		Use:           "fabric-chat",
		Short:         "Chat with Fabric patterns through the gateway",
		Long:          "Terminal client for the Fabric chat gateway. Without arguments it starts an interactive session.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Reload config into struct
			return viper.Unmarshal(cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return replLoop(cmd.Context(), cfg, opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.PersistentFlags().StringP("gateway", "g", defaultGateway, "Gateway base URL")
	cmd.PersistentFlags().Duration("timeout", 10*time.Second, "Connect timeout")
	cmd.PersistentFlags().Bool("render", false, "Render settled markdown answers instead of streaming raw text")
	cmd.PersistentFlags().Bool("debug", false, "Log stream diagnostics to stderr")

	viper.BindPFlag("gateway", cmd.PersistentFlags().Lookup("gateway"))
	viper.BindPFlag("timeout", cmd.PersistentFlags().Lookup("timeout"))
	viper.BindPFlag("render", cmd.PersistentFlags().Lookup("render"))
	viper.BindPFlag("debug", cmd.PersistentFlags().Lookup("debug"))

	opts.bind(cmd)

	cmd.AddCommand(NewSendCmd(cfg))
	cmd.AddCommand(NewTranscriptCmd(cfg))
	cmd.AddCommand(NewPatternsCmd(cfg))
	cmd.AddCommand(NewHealthCmd(cfg))

	return cmd
}

func initConfig() {
	home, err := os.UserHomeDir()
	if err != nil {
		return
	}

	// Search config in ~/.fabric-chat
	viper.AddConfigPath(filepath.Join(home, ".fabric-chat"))
	viper.SetConfigType("yaml")
	viper.SetConfigName("config")

	viper.SetEnvPrefix("FABRIC_CHAT")
	viper.AutomaticEnv()

	viper.ReadInConfig()
}
