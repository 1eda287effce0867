package config

import (
	"fmt"
	"net/mail"
	"slices"
	"strings"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue
	add := func(path, format string, args ...any) {
		issues = append(issues, ValidationIssue{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	// Gateway validation
	if cfg.Gateway.Port < 0 || cfg.Gateway.Port > 65535 {
		add("gateway.port", "port must be 0-65535, got %d", cfg.Gateway.Port)
	}

	validBinds := []string{"loopback", "lan", "custom"}
	if cfg.Gateway.Bind != "" && !slices.Contains(validBinds, cfg.Gateway.Bind) {
		add("gateway.bind", "must be one of %v, got %q", validBinds, cfg.Gateway.Bind)
	}
	if cfg.Gateway.Enabled && cfg.Gateway.Auth.Token == "" {
		add("gateway.auth.token", "required when the gateway is enabled")
	}
	if cfg.Gateway.TLS.Enabled && (cfg.Gateway.TLS.CertPath == "" || cfg.Gateway.TLS.KeyPath == "") {
		add("gateway.tls", "certPath and keyPath are required when TLS is enabled")
	}

	// Logging validation
	validLogLevels := []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}
	if cfg.Logging.Level != "" && !slices.Contains(validLogLevels, cfg.Logging.Level) {
		add("logging.level", "must be one of %v, got %q", validLogLevels, cfg.Logging.Level)
	}

	validConsoleStyles := []string{"pretty", "compact", "json"}
	if cfg.Logging.ConsoleStyle != "" && !slices.Contains(validConsoleStyles, cfg.Logging.ConsoleStyle) {
		add("logging.consoleStyle", "must be one of %v, got %q", validConsoleStyles, cfg.Logging.ConsoleStyle)
	}

	// IRC validation (only if configured)
	if irc := cfg.Channels.IRC; irc != nil {
		if irc.Server == "" {
			add("channels.irc.server", "server is required")
		}
		if irc.Nick == "" {
			add("channels.irc.nick", "nick is required")
		}
		if irc.Port < 0 || irc.Port > 65535 {
			add("channels.irc.port", "port must be 0-65535, got %d", irc.Port)
		}
		if irc.SASL && irc.Password == "" {
			add("channels.irc.sasl", "SASL requires a password to be set")
		}
	}

	// Model backends
	validProviders := []string{"openai", "anthropic", "gemini", "ollama"}
	for name, b := range cfg.Models.Backends {
		path := "models.backends." + name
		if !slices.Contains(validProviders, b.Provider) {
			add(path+".provider", "must be one of %v, got %q", validProviders, b.Provider)
		}
		if b.Model == "" {
			add(path+".model", "model is required")
		}
		if b.Window < 0 {
			add(path+".window", "must be >= 0, got %d", b.Window)
		}
		if b.RequestsPerMinute < 0 || b.Burst < 0 {
			add(path, "requestsPerMinute and burst must be >= 0")
		}
	}
	if cfg.Models.Default != "" {
		if _, ok := cfg.Models.Backends[cfg.Models.Default]; !ok {
			add("models.default", "backend %q is not defined", cfg.Models.Default)
		}
	}
	if cfg.Models.Retry.MaxAttempts < 1 {
		add("models.retry.maxAttempts", "must be >= 1, got %d", cfg.Models.Retry.MaxAttempts)
	}
	if cfg.Models.Retry.MaxBackoffMs < cfg.Models.Retry.InitialBackoffMs {
		add("models.retry.maxBackoffMs", "must be >= initialBackoffMs")
	}

	// Dialogue
	for _, id := range append(append([]string{cfg.Dialogue.Operator}, cfg.Dialogue.Admins...), cfg.Auth.Users...) {
		if id != "" && !strings.Contains(id, ":") {
			add("dialogue", "user id %q must have the form <channel>:<id>", id)
		}
	}
	if cfg.Dialogue.PipelineTimeoutSeconds < 0 {
		add("dialogue.pipelineTimeoutSeconds", "must be >= 0")
	}

	// History cleanup
	if cfg.ChatCtx.GraceSeconds <= 0 {
		add("chatctx.graceSeconds", "must be > 0")
	}
	if cfg.ChatCtx.CleanupIntervalSeconds <= 0 {
		add("chatctx.cleanupIntervalSeconds", "must be > 0")
	}

	// Auth and prompts
	validDirectories := []string{"static", "sqlite"}
	if !slices.Contains(validDirectories, cfg.Auth.Directory) {
		add("auth.directory", "must be one of %v, got %q", validDirectories, cfg.Auth.Directory)
	}
	for id, email := range cfg.Auth.Emails {
		if _, err := mail.ParseAddress(email); err != nil {
			add("auth.emails."+id, "invalid address %q", email)
		}
	}
	validPromptStores := []string{"files", "sqlite"}
	if !slices.Contains(validPromptStores, cfg.Prompts.Store) {
		add("prompts.store", "must be one of %v, got %q", validPromptStores, cfg.Prompts.Store)
	}

	// Mail
	switch cfg.Mail.Driver {
	case "none":
	case "smtp":
		if cfg.Mail.SMTP.Host == "" {
			add("mail.smtp.host", "required when mail.driver is smtp")
		}
		if cfg.Mail.From == "" {
			add("mail.from", "required when mail.driver is smtp")
		}
	case "gmail":
		if cfg.Mail.Gmail.CredentialsFile == "" || cfg.Mail.Gmail.TokenFile == "" {
			add("mail.gmail", "credentialsFile and tokenFile are required when mail.driver is gmail")
		}
	default:
		add("mail.driver", "must be one of [none smtp gmail], got %q", cfg.Mail.Driver)
	}

	return issues
}
