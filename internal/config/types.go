package config

// Config is the root configuration for scoutbot.
type Config struct {
	Gateway  GatewayConfig  `yaml:"gateway,omitempty"`
	Channels ChannelsConfig `yaml:"channels,omitempty"`
	Models   ModelsConfig   `yaml:"models,omitempty"`
	Dialogue DialogueConfig `yaml:"dialogue,omitempty"`
	Auth     AuthConfig     `yaml:"auth,omitempty"`
	Prompts  PromptsConfig  `yaml:"prompts,omitempty"`
	Mail     MailConfig     `yaml:"mail,omitempty"`
	ChatCtx  ChatCtxConfig  `yaml:"chatctx,omitempty"`
	Logging  LoggingConfig  `yaml:"logging,omitempty"`
	Hooks    HooksConfig    `yaml:"hooks,omitempty"`
	Store    StoreConfig    `yaml:"store,omitempty"`
}

// GatewayConfig controls the web chat HTTP/WebSocket server.
type GatewayConfig struct {
	Enabled        bool        `yaml:"enabled,omitempty"`
	Port           int         `yaml:"port,omitempty"`
	Bind           string      `yaml:"bind,omitempty"` // "loopback" | "lan" | "custom"
	CustomBindHost string      `yaml:"customBindHost,omitempty"`
	Auth           GatewayAuth `yaml:"auth,omitempty"`
	TLS            GatewayTLS  `yaml:"tls,omitempty"`
	AllowedOrigins []string    `yaml:"allowedOrigins,omitempty"`
}

// GatewayAuth configures gateway authentication.
type GatewayAuth struct {
	Token string `yaml:"token,omitempty"`
}

// GatewayTLS configures TLS for the gateway.
type GatewayTLS struct {
	Enabled  bool   `yaml:"enabled,omitempty"`
	CertPath string `yaml:"certPath,omitempty"`
	KeyPath  string `yaml:"keyPath,omitempty"`
}

// ChannelsConfig defines channel-specific configurations.
type ChannelsConfig struct {
	IRC *IRCConfig `yaml:"irc,omitempty"`
}

// IRCConfig defines IRC channel settings. Users talk to the bot in private
// messages; joined channels only advertise it.
type IRCConfig struct {
	Server   string   `yaml:"server"`
	Port     int      `yaml:"port,omitempty"`
	Nick     string   `yaml:"nick"`
	Password string   `yaml:"password,omitempty"`
	Channels []string `yaml:"channels,omitempty"`
	UseTLS   bool     `yaml:"useTLS,omitempty"`
	SASL     bool     `yaml:"sasl,omitempty"`
	LineMax  int      `yaml:"lineMax,omitempty"` // bytes per PRIVMSG line
}

// ModelsConfig defines the model backends available to the pipeline.
type ModelsConfig struct {
	Default  string                   `yaml:"default,omitempty"`
	Backends map[string]BackendConfig `yaml:"backends,omitempty"`
	Retry    RetryConfig              `yaml:"retry,omitempty"`
}

// BackendConfig defines one selectable model backend.
type BackendConfig struct {
	Provider          string   `yaml:"provider"` // "openai" | "anthropic" | "gemini" | "ollama"
	Display           string   `yaml:"display,omitempty"`
	Model             string   `yaml:"model"`
	BaseURL           string   `yaml:"baseUrl,omitempty"`
	APIKey            string   `yaml:"apiKey,omitempty"`
	MaxTokens         int      `yaml:"maxTokens,omitempty"`
	Temperature       *float64 `yaml:"temperature,omitempty"`
	Window            int      `yaml:"window,omitempty"` // non-system messages per request, 0 = full history
	RequestsPerMinute int      `yaml:"requestsPerMinute,omitempty"`
	Burst             int      `yaml:"burst,omitempty"`
	Aliases           []string `yaml:"aliases,omitempty"`
}

// RetryConfig bounds retries of rate-limited model calls.
type RetryConfig struct {
	MaxAttempts      int `yaml:"maxAttempts,omitempty"`
	InitialBackoffMs int `yaml:"initialBackoffMs,omitempty"`
	MaxBackoffMs     int `yaml:"maxBackoffMs,omitempty"`
}

// DialogueConfig controls the conversation state machine.
type DialogueConfig struct {
	Operator               string   `yaml:"operator,omitempty"` // user id receiving failure details
	Admins                 []string `yaml:"admins,omitempty"`
	Blocked                []string `yaml:"blocked,omitempty"`
	DefaultTopic           string   `yaml:"defaultTopic,omitempty"`
	PipelineTimeoutSeconds int      `yaml:"pipelineTimeoutSeconds,omitempty"`
	MaxAttachmentChars     int      `yaml:"maxAttachmentChars,omitempty"`
	ReportBlockRunes       int      `yaml:"reportBlockRunes,omitempty"`
}

// AuthConfig selects the authorization directory.
type AuthConfig struct {
	Directory string            `yaml:"directory,omitempty"` // "static" | "sqlite"
	Users     []string          `yaml:"users,omitempty"`
	Emails    map[string]string `yaml:"emails,omitempty"` // user id → contact email
}

// PromptsConfig selects where prompt templates are persisted.
type PromptsConfig struct {
	Store string `yaml:"store,omitempty"` // "files" | "sqlite"
	Dir   string `yaml:"dir,omitempty"`
}

// MailConfig selects the report email driver.
type MailConfig struct {
	Driver string      `yaml:"driver,omitempty"` // "none" | "smtp" | "gmail"
	From   string      `yaml:"from,omitempty"`
	SMTP   SMTPConfig  `yaml:"smtp,omitempty"`
	Gmail  GmailConfig `yaml:"gmail,omitempty"`
}

// SMTPConfig defines an SMTP relay.
type SMTPConfig struct {
	Host     string `yaml:"host,omitempty"`
	Port     int    `yaml:"port,omitempty"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// GmailConfig points at OAuth client credentials and a cached token.
type GmailConfig struct {
	CredentialsFile string `yaml:"credentialsFile,omitempty"`
	TokenFile       string `yaml:"tokenFile,omitempty"`
}

// ChatCtxConfig controls history garbage collection.
type ChatCtxConfig struct {
	GraceSeconds           int `yaml:"graceSeconds,omitempty"`
	CleanupIntervalSeconds int `yaml:"cleanupIntervalSeconds,omitempty"`
}

// StoreConfig locates the SQLite database.
type StoreConfig struct {
	Path string `yaml:"path,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level        string `yaml:"level,omitempty"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	File         string `yaml:"file,omitempty"`
	ConsoleStyle string `yaml:"consoleStyle,omitempty"` // "pretty" | "compact" | "json"
}

// HooksConfig defines shell commands run on lifecycle events.
type HooksConfig struct {
	SessionStart    []HookEntry `yaml:"sessionStart,omitempty"`
	SessionEnd      []HookEntry `yaml:"sessionEnd,omitempty"`
	PipelineDone    []HookEntry `yaml:"pipelineDone,omitempty"`
	ReportDelivered []HookEntry `yaml:"reportDelivered,omitempty"`
}

// HookEntry defines a single hook action.
type HookEntry struct {
	Command string `yaml:"command"`
	Timeout int    `yaml:"timeout,omitempty"` // milliseconds
}
