// Package cfg defines the orchestrator's top-level configuration surface,
// following go-core's RegisterFlags/Validate idiom (vigil's internal/cfg
// shape, generalized from vigil's infra-alerting fields to NIGHTWATCH's
// domain services).
package cfg

import (
	"errors"
	"flag"
	"fmt"
)

// Config holds process-wide configuration for cmd/nightwatchd, parsed
// from flags first and then overridden by NIGHTWATCH_-prefixed
// environment variables (main wires cfg.FillFromEnv the same way vigil's
// cmd/server does).
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	APIToken              string

	DataDir string

	AnthropicAPIKey string
	AnthropicModel  string

	DatabaseURL string

	MountAddr    string
	EcowittHost  string
	EcowittPort  int

	STTAddr string
	TTSAddr string

	AlertWebhookURL string
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.APIToken, "api-token", "", "bearer token required on mutating orchestrator API routes")

	fs.StringVar(&c.DataDir, "data-dir", "/var/lib/nightwatch", "directory session logs and meteor-watch windows are persisted under")

	fs.StringVar(&c.AnthropicAPIKey, "anthropic-api-key", "", "API key for the Anthropic LLM provider backing the voice coordinator")
	fs.StringVar(&c.AnthropicModel, "anthropic-model", "claude-sonnet-4-20250514", "Anthropic model the voice coordinator calls for tool selection")

	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL for session/alert history (empty = in-memory store)")

	fs.StringVar(&c.MountAddr, "mount-addr", "", "host:port of the LX200-protocol mount controller (empty = mount tools disabled)")
	fs.StringVar(&c.EcowittHost, "ecowitt-host", "", "Ecowitt weather station host (empty = weather sensing disabled)")
	fs.IntVar(&c.EcowittPort, "ecowitt-port", 80, "Ecowitt weather station port")

	fs.StringVar(&c.STTAddr, "stt-addr", "", "host:port of the Wyoming STT server (empty = voice coordinator disabled)")
	fs.StringVar(&c.TTSAddr, "tts-addr", "", "host:port of the Wyoming TTS server (empty = voice coordinator disabled)")

	fs.StringVar(&c.AlertWebhookURL, "alert-webhook-url", "", "webhook URL (Slack/Discord/generic) for alert notifications")
}

// Validate checks all configuration fields for correctness. It returns an
// error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}
	if c.APIToken == "" {
		errs = append(errs, errors.New("API_TOKEN is required"))
	}

	if c.DataDir == "" {
		errs = append(errs, errors.New("DATA_DIR is required"))
	}

	if c.AnthropicAPIKey == "" {
		errs = append(errs, errors.New("ANTHROPIC_API_KEY is required"))
	}
	if c.AnthropicModel == "" {
		errs = append(errs, errors.New("ANTHROPIC_MODEL is required"))
	}

	if (c.STTAddr == "") != (c.TTSAddr == "") {
		errs = append(errs, errors.New("STT_ADDR and TTS_ADDR must both be set or both be empty"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
