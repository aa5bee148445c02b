package config

import (
	"fmt"
	"strings"

	"github.com/grovetools/storymap/errors"
)

// Validate checks a defaulted configuration.
func (c *Config) Validate() error {
	w := c.Worker
	if strings.ContainsAny(w.Sentinel, "\r\n") {
		return errors.New(errors.ErrCodeConfigInvalid, "worker.sentinel must be a single line").
			WithDetail("sentinel", w.Sentinel)
	}
	if strings.TrimSpace(w.Sentinel) == "" {
		return errors.ConfigInvalid("worker.sentinel cannot be blank")
	}
	if strings.ContainsAny(w.OutputFlag, " \t\r\n") {
		return errors.New(errors.ErrCodeConfigInvalid, "worker.output_flag must be a single word").
			WithDetail("output_flag", w.OutputFlag)
	}
	if err := validateEnvEntry("worker.output_env", w.OutputEnv); err != nil {
		return err
	}
	for _, entry := range w.Env {
		if err := validateEnvEntry("worker.env", entry); err != nil {
			return err
		}
	}
	if w.Timeout <= 0 || w.ReadTimeout <= 0 {
		return errors.ConfigInvalid("worker timeouts must be positive")
	}
	for _, verb := range w.ReadCommands {
		if verb == "" || strings.ContainsAny(verb, " \t") {
			return errors.New(errors.ErrCodeConfigInvalid, "worker.read_commands entries must be single words").
				WithDetail("entry", verb)
		}
	}

	if c.Queue.Debounce < 0 {
		return errors.ConfigInvalid("queue.debounce cannot be negative")
	}
	if c.Queue.AutoHide < 0 {
		return errors.ConfigInvalid("queue.auto_hide cannot be negative")
	}

	switch c.Graph.MissingNodePolicy {
	case MissingNodeSkip, MissingNodeFail:
	default:
		return errors.New(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("graph.missing_node_policy must be %q or %q", MissingNodeSkip, MissingNodeFail)).
			WithDetail("missing_node_policy", c.Graph.MissingNodePolicy)
	}

	return nil
}

// RequireWorker reports an error when no worker command is configured.
func (c *Config) RequireWorker() error {
	if strings.TrimSpace(c.Worker.Command) == "" {
		return errors.ConfigInvalid("worker.command is not set")
	}
	return nil
}

func validateEnvEntry(field, entry string) error {
	if entry == "" {
		return nil
	}
	key, _, ok := strings.Cut(entry, "=")
	if !ok || key == "" {
		return errors.New(errors.ErrCodeConfigInvalid, fmt.Sprintf("%s entries must be KEY=VALUE", field)).
			WithDetail("entry", entry)
	}
	return nil
}
