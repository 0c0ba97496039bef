package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"golang.org/x/time/rate"

	"github.com/apexion-ai/turnkit/internal/history"
	"github.com/apexion-ai/turnkit/internal/logging"
	"github.com/apexion-ai/turnkit/internal/permission"
	"github.com/apexion-ai/turnkit/internal/provider"
	"github.com/apexion-ai/turnkit/internal/router"
	"github.com/apexion-ai/turnkit/internal/tools"
)

// Validate reports every invalid setting, joined.
func (c *Config) Validate() error {
	var errs []error

	r := c.Router
	if r.Threshold <= 0 || r.Threshold > 1 {
		errs = append(errs, fmt.Errorf("router.threshold %v out of range (0,1]", r.Threshold))
	}
	if r.CacheTTL < 0 {
		errs = append(errs, fmt.Errorf("router.cache_ttl must not be negative, got %s", r.CacheTTL))
	}
	if r.CacheMaxEntries < 0 {
		errs = append(errs, fmt.Errorf("router.cache_max_entries must not be negative, got %d", r.CacheMaxEntries))
	}
	if r.ClassifierMaxTokens < 0 {
		errs = append(errs, fmt.Errorf("router.classifier_max_tokens must not be negative, got %d", r.ClassifierMaxTokens))
	}
	if r.ClassifierRate < 0 || r.ClassifierBurst < 0 {
		errs = append(errs, errors.New("router.classifier_rate and classifier_burst must not be negative"))
	}
	if _, err := c.RouterSignals(); err != nil {
		errs = append(errs, err)
	}
	if c.Dispatcher.Timeout < 0 {
		errs = append(errs, fmt.Errorf("dispatcher.timeout must not be negative, got %s", c.Dispatcher.Timeout))
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", logging.FormatText, logging.FormatJSON:
	default:
		errs = append(errs, fmt.Errorf("logging.format %q must be text or json", c.Logging.Format))
	}
	return errors.Join(errs...)
}

// RouterSignals compiles router.signals in file order.
func (c *Config) RouterSignals() ([]router.IntentSignal, error) {
	out := make([]router.IntentSignal, 0, len(c.Router.Signals))
	for i, sc := range c.Router.Signals {
		s, err := router.NewSignal(router.Capability(sc.Capability), sc.Confidence, sc.Pattern, sc.Keywords...)
		if err != nil {
			return nil, fmt.Errorf("router.signals[%d]: %w", i, err)
		}
		out = append(out, s)
	}
	return out, nil
}

// RouterOptions maps the router section onto router.Options. model is the
// chat model used when router.classifier_model is unset.
func (c *Config) RouterOptions(completer provider.Completer, model string, logger *slog.Logger) router.Options {
	r := c.Router
	if r.ClassifierModel != "" {
		model = r.ClassifierModel
	}
	opts := router.Options{
		Completer:       completer,
		Model:           model,
		MaxTokens:       r.ClassifierMaxTokens,
		Temperature:     r.Temperature,
		Threshold:       r.Threshold,
		CacheTTL:        r.CacheTTL,
		CacheMaxEntries: r.CacheMaxEntries,
		Logger:          logger,
	}
	if len(r.Agents) > 0 {
		opts.Agents = make(map[router.Capability]string, len(r.Agents))
		for capName, agent := range r.Agents {
			opts.Agents[router.Capability(capName)] = agent
		}
	}
	if r.ClassifierRate > 0 {
		burst := r.ClassifierBurst
		if burst <= 0 {
			burst = 1
		}
		opts.Limiter = rate.NewLimiter(rate.Limit(r.ClassifierRate), burst)
	}
	return opts
}

// NewRouter builds a router with the configured custom signals registered.
func (c *Config) NewRouter(completer provider.Completer, model string, logger *slog.Logger) (*router.Router, error) {
	signals, err := c.RouterSignals()
	if err != nil {
		return nil, err
	}
	rt := router.New(c.RouterOptions(completer, model, logger))
	if len(signals) > 0 {
		if err := rt.RegisterSignals(signals...); err != nil {
			return nil, err
		}
	}
	return rt, nil
}

// DispatcherOptions maps the dispatcher section onto tools.DispatcherOptions.
func (c *Config) DispatcherOptions(logger *slog.Logger) tools.DispatcherOptions {
	return tools.DispatcherOptions{Timeout: c.Dispatcher.Timeout, Logger: logger}
}

// AllowList returns the configured tool allow-list.
func (c *Config) AllowList() permission.AllowList {
	return permission.ParseAllowList(c.Dispatcher.AllowedTools)
}

// NewLogger builds the logger described by the logging section.
func (c *Config) NewLogger(w io.Writer) (*slog.Logger, error) {
	return logging.New(c.Logging.Level, c.Logging.Format, w)
}

// OpenHistory opens the decision log at history.path, or the default
// location when unset.
func (c *Config) OpenHistory() (*history.SQLiteStore, error) {
	path := c.History.Path
	if path == "" {
		p, err := history.DefaultPath()
		if err != nil {
			return nil, fmt.Errorf("history path: %w", err)
		}
		path = p
	}
	return history.Open(path)
}
