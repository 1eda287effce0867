package config

import (
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} patterns in strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} patterns with environment variable values.
// Unset variables expand to the empty string so a missing key reads as unconfigured.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}

// expandSensitiveFields processes environment variable references in
// credential fields so passwords and tokens can be stored as ${ENV_VAR}.
func expandSensitiveFields(cfg *Config) {
	cfg.Gateway.Auth.Token = expandEnvVars(cfg.Gateway.Auth.Token)
	if cfg.Channels.IRC != nil {
		cfg.Channels.IRC.Password = expandEnvVars(cfg.Channels.IRC.Password)
	}
	for name, backend := range cfg.Models.Backends {
		backend.APIKey = expandEnvVars(backend.APIKey)
		backend.BaseURL = expandEnvVars(backend.BaseURL)
		cfg.Models.Backends[name] = backend
	}
	cfg.Mail.SMTP.Password = expandEnvVars(cfg.Mail.SMTP.Password)
	cfg.Mail.SMTP.Username = expandEnvVars(cfg.Mail.SMTP.Username)
}

// Load reads the config file, applies environment overrides, and returns
// a merged Config. Missing files produce defaults only.
func Load(path string) (Config, error) {
	cfg := Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return Defaults(), err
	}

	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Defaults(), &ConfigError{Message: "failed to parse config: " + err.Error()}
		}
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	expandSensitiveFields(&cfg)
	return cfg, nil
}

// LoadRaw reads the config file into a generic map for path-based access.
func LoadRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, err
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

// SaveRaw writes a generic map back to a YAML config file.
func SaveRaw(path string, raw map[string]any) error {
	data, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// applyDefaults fills zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = 18790
	}
	if cfg.Gateway.Bind == "" {
		cfg.Gateway.Bind = "loopback"
	}
	if cfg.Channels.IRC != nil && cfg.Channels.IRC.LineMax == 0 {
		cfg.Channels.IRC.LineMax = 400
	}
	if len(cfg.Models.Backends) == 0 {
		SetDefaultBackends(cfg)
	}
	if cfg.Models.Retry.MaxAttempts == 0 {
		cfg.Models.Retry.MaxAttempts = 3
	}
	if cfg.Models.Retry.InitialBackoffMs == 0 {
		cfg.Models.Retry.InitialBackoffMs = 1000
	}
	if cfg.Models.Retry.MaxBackoffMs == 0 {
		cfg.Models.Retry.MaxBackoffMs = 10000
	}
	for name, b := range cfg.Models.Backends {
		if b.RequestsPerMinute == 0 {
			b.RequestsPerMinute = 60
		}
		if b.Burst == 0 {
			b.Burst = 5
		}
		cfg.Models.Backends[name] = b
	}
	if cfg.Dialogue.DefaultTopic == "" {
		cfg.Dialogue.DefaultTopic = "investment"
	}
	if cfg.Dialogue.PipelineTimeoutSeconds == 0 {
		cfg.Dialogue.PipelineTimeoutSeconds = 600
	}
	if cfg.Dialogue.MaxAttachmentChars == 0 {
		cfg.Dialogue.MaxAttachmentChars = 12000
	}
	if cfg.Dialogue.ReportBlockRunes == 0 {
		cfg.Dialogue.ReportBlockRunes = 3500
	}
	if cfg.Auth.Directory == "" {
		cfg.Auth.Directory = "static"
	}
	if cfg.Prompts.Store == "" {
		cfg.Prompts.Store = "files"
	}
	if cfg.Mail.Driver == "" {
		cfg.Mail.Driver = "none"
	}
	if cfg.Mail.SMTP.Port == 0 {
		cfg.Mail.SMTP.Port = 587
	}
	if cfg.ChatCtx.GraceSeconds == 0 {
		cfg.ChatCtx.GraceSeconds = 60
	}
	if cfg.ChatCtx.CleanupIntervalSeconds == 0 {
		cfg.ChatCtx.CleanupIntervalSeconds = 300
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.ConsoleStyle == "" {
		cfg.Logging.ConsoleStyle = "pretty"
	}
}

// applyEnvOverrides reads SCOUTBOT_* environment variables and overrides config values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SCOUTBOT_GATEWAY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.Port = port
		}
	}
	if v := os.Getenv("SCOUTBOT_GATEWAY_BIND"); v != "" {
		cfg.Gateway.Bind = v
	}
	if v := os.Getenv("SCOUTBOT_GATEWAY_TOKEN"); v != "" {
		cfg.Gateway.Auth.Token = v
	}
	if v := os.Getenv("SCOUTBOT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("SCOUTBOT_DEFAULT_MODEL"); v != "" {
		cfg.Models.Default = v
	}
	if v := os.Getenv("SCOUTBOT_OPERATOR"); v != "" {
		cfg.Dialogue.Operator = v
	}
	if v := os.Getenv("SCOUTBOT_ADMINS"); v != "" {
		cfg.Dialogue.Admins = splitList(v)
	}
	if v := os.Getenv("SCOUTBOT_USERS"); v != "" {
		cfg.Auth.Users = splitList(v)
	}
	if v := os.Getenv("SCOUTBOT_BLOCKED"); v != "" {
		cfg.Dialogue.Blocked = splitList(v)
	}
}

// splitList parses a comma-separated env value, dropping blanks.
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Redacted returns a copy of cfg with credentials masked, suitable for display.
func Redacted(cfg Config) Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "********"
	}
	out := cfg
	out.Gateway.Auth.Token = mask(cfg.Gateway.Auth.Token)
	out.Mail.SMTP.Password = mask(cfg.Mail.SMTP.Password)
	if cfg.Channels.IRC != nil {
		irc := *cfg.Channels.IRC
		irc.Password = mask(irc.Password)
		out.Channels.IRC = &irc
	}
	out.Models.Backends = make(map[string]BackendConfig, len(cfg.Models.Backends))
	for name, b := range cfg.Models.Backends {
		b.APIKey = mask(b.APIKey)
		out.Models.Backends[name] = b
	}
	return out
}
