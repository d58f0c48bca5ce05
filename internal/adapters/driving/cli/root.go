package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-chat/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-chat/internal/logger"
)

// version is set at build time via SetVersion.
var version = "dev"

// Runtime holds the wired services commands run against.
type Runtime struct {
	Conversation driving.ConversationService

	// Prompts is optional. serve watches it for template changes.
	Prompts PromptWatcher

	// ServeAddr and MetricsAddr are the configured serve defaults.
	ServeAddr   string
	MetricsAddr string

	// Close releases storage connections. Can be nil.
	Close func() error
}

// PromptWatcher reloads prompt templates when their files change.
type PromptWatcher interface {
	Watch(ctx context.Context, onReload func(name string)) error
}

// RuntimeOptions are the global flags passed to the RuntimeBuilder.
type RuntimeOptions struct {
	ConfigDir string
	LogLevel  string

	// NoConfigFile skips config.toml and prompt files; only defaults and the
	// environment apply.
	NoConfigFile bool
}

// RuntimeBuilder loads configuration and wires the services.
type RuntimeBuilder func(ctx context.Context, opts RuntimeOptions) (*Runtime, error)

// ErrNoRuntime is returned when a command needs services but no builder was set.
var ErrNoRuntime = errors.New("conversation service not configured")

var (
	builder RuntimeBuilder
	active  *Runtime

	verbose   bool
	configDir string
	logLevel  string
	noConfig  bool
)

// SetRuntimeBuilder sets the function used to wire services on first use.
func SetRuntimeBuilder(b RuntimeBuilder) {
	builder = b
	active = nil
}

// SetVersion sets the version reported by the version command.
func SetVersion(v string) {
	if v != "" {
		version = v
	}
}

var rootCmd = &cobra.Command{
	Use:   "sercha-chat",
	Short: "Conversational search over your knowledge base",
	Long: `Sercha Chat answers questions about your documents in a multi-turn
conversation. Each thread remembers what was discussed, follows up on
"them" and "that", and cites the documents it answered from.`,
	SilenceUsage: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		if logLevel != "" {
			logger.SetLevel(logLevel)
		}
		logger.SetVerbose(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log each turn's pipeline to stderr")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "Config directory (default ~/.sercha-chat)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&noConfig, "no-config", false,
		"Ignore config files and use defaults plus SERCHA_CHAT_* environment variables")
}

// Execute runs the root command and releases the runtime afterwards.
func Execute() error {
	defer closeRuntime()
	return rootCmd.Execute()
}

// loadRuntime wires services once per process.
func loadRuntime(cmd *cobra.Command) (*Runtime, error) {
	if active != nil {
		return active, nil
	}
	if builder == nil {
		return nil, ErrNoRuntime
	}
	rt, err := builder(cmd.Context(), RuntimeOptions{
		ConfigDir:    configDir,
		LogLevel:     logLevel,
		NoConfigFile: noConfig,
	})
	if err != nil {
		return nil, err
	}
	if rt == nil || rt.Conversation == nil {
		return nil, ErrNoRuntime
	}
	active = rt
	return rt, nil
}

func closeRuntime() {
	if active == nil || active.Close == nil {
		active = nil
		return
	}
	if err := active.Close(); err != nil {
		logger.Warn("closing runtime: %v", err)
	}
	active = nil
}
