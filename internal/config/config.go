package config

import "fmt"

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	cfg := Config{}
	applyDefaults(&cfg)
	return cfg
}

// SetDefaultBackends installs the stock backend table used when the config
// file names none. Keys disappear from the registry when their API key is unset.
func SetDefaultBackends(cfg *Config) {
	cfg.Models.Backends = map[string]BackendConfig{
		"chatgpt": {
			Provider:  "openai",
			Display:   "ChatGPT",
			Model:     "gpt-4o-2024-08-06",
			APIKey:    "${OPENAI_API_KEY}",
			MaxTokens: 3000,
			Window:    10,
		},
		"perplexity": {
			Provider:  "openai",
			Display:   "Perplexity",
			Model:     "sonar",
			BaseURL:   "https://api.perplexity.ai",
			APIKey:    "${PERPLEXITY_API_KEY}",
			MaxTokens: 3000,
			Window:    6,
		},
		"deepseek": {
			Provider:  "openai",
			Display:   "DeepSeek",
			Model:     "deepseek-chat",
			BaseURL:   "https://api.deepseek.com",
			APIKey:    "${DEEPSEEK_API_KEY}",
			MaxTokens: 3000,
			Window:    10,
		},
	}
	if cfg.Models.Default == "" {
		cfg.Models.Default = "chatgpt"
	}
}
