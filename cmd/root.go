package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/apexion-ai/turnkit/internal/config"
	"github.com/apexion-ai/turnkit/internal/provider"
	"github.com/apexion-ai/turnkit/internal/router"
)

var (
	cfgFile      string
	modelFlag    string
	providerFlag string
	logLevelFlag string

	// Package-level version info, set by Execute().
	appVersion string
	appCommit  string
	appDate    string
)

// errNoAPIKey marks a provider that has no credentials configured.
var errNoAPIKey = errors.New("API key not configured")

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "turnkit",
		Short:         "Intent routing and concurrent tool dispatch for agent turns",
		Long:          "turnkit routes a user turn to a capability and agent, then runs the agent's tool calls concurrently under an allow-list and per-call timeout.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default ~/.config/turnkit/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&modelFlag, "model", "m", "", "override model")
	rootCmd.PersistentFlags().StringVarP(&providerFlag, "provider", "p", "", "override provider")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "override log level (debug, info, warn, error)")

	rootCmd.AddCommand(newRouteCmd())
	rootCmd.AddCommand(newRoutingTableCmd())
	rootCmd.AddCommand(newDispatchCmd())
	rootCmd.AddCommand(newEvalRoutingCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newToolsCmd())
	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(newVersionCmd(appVersion, appCommit, appDate))
	return rootCmd
}

// initConfig loads configuration, applies CLI flag overrides, validates it
// and installs the configured logger as the slog default.
func initConfig(stderr io.Writer) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if providerFlag != "" {
		cfg.Provider = providerFlag
	}
	if modelFlag != "" {
		cfg.Model = modelFlag
	}
	if logLevelFlag != "" {
		cfg.Logging.Level = logLevelFlag
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger, err := cfg.NewLogger(stderr)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return cfg, nil
}

// buildProvider creates a Provider instance based on configuration.
func buildProvider(cfg *config.Config) (provider.Provider, error) {
	name := cfg.Provider
	pc := cfg.GetProviderConfig(name)

	apiKey := pc.APIKey
	if apiKey == "" {
		return nil, fmt.Errorf(
			"%w for provider %q; set providers.%s.api_key or LLM_API_KEY, or run turnkit init",
			errNoAPIKey, name, name,
		)
	}

	model := cfg.ResolveModel()

	switch name {
	case "anthropic":
		return provider.NewAnthropicProvider(apiKey, model), nil
	default:
		// All other providers use OpenAI-compatible API
		baseURL := pc.BaseURL
		if baseURL == "" {
			u, ok := config.KnownProviderBaseURLs[name]
			if !ok {
				return nil, fmt.Errorf("unknown provider %q; set providers.%s.base_url in config", name, name)
			}
			baseURL = u
		}
		return provider.NewOpenAIProvider(apiKey, baseURL, model), nil
	}
}

// buildRouter wires the configured router. Offline routers, and routers
// for a provider without an API key, have no classifier: every escalation
// falls back to the Tier-1 hint.
func buildRouter(cfg *config.Config, offline bool) (*router.Router, error) {
	var (
		completer provider.Completer = provider.NoCompleter{}
		model                        = cfg.ResolveModel()
	)
	if !offline {
		p, err := buildProvider(cfg)
		switch {
		case errors.Is(err, errNoAPIKey):
			slog.Warn("no classifier available, escalations fall back to Tier-1", "error", err)
		case err != nil:
			return nil, err
		default:
			completer = provider.NewProviderCompleter(p)
			model = p.DefaultModel()
		}
	}
	return cfg.NewRouter(completer, model, slog.Default())
}

// wantJSON reports whether output to w should be JSON: when forced, or when
// w is not an interactive terminal.
func wantJSON(w io.Writer, forced bool) bool {
	if forced {
		return true
	}
	f, ok := w.(*os.File)
	return !ok || !term.IsTerminal(int(f.Fd()))
}
