package config

import (
	"os"
	"path/filepath"
	"strings"
)

// HomeEnv overrides the base directory when set.
const HomeEnv = "SCOUTBOT_HOME"

const defaultBaseDir = ".scoutbot"

// Paths holds resolved filesystem paths for scoutbot data.
type Paths struct {
	Base        string // ~/.scoutbot
	Config      string // ~/.scoutbot/config.yaml
	Env         string // ~/.scoutbot/.env
	Credentials string // ~/.scoutbot/credentials
	Prompts     string // ~/.scoutbot/prompts
	Logs        string // ~/.scoutbot/logs
	Data        string // ~/.scoutbot/data
}

// ResolvePaths lays the standard files out under $SCOUTBOT_HOME, or
// ~/.scoutbot when it is unset.
func ResolvePaths() (Paths, error) {
	base := expandHome(os.Getenv(HomeEnv))
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Paths{}, err
		}
		base = filepath.Join(home, defaultBaseDir)
	}
	return PathsAt(base), nil
}

// PathsAt lays the standard files out under base.
func PathsAt(base string) Paths {
	return Paths{
		Base:        base,
		Config:      filepath.Join(base, "config.yaml"),
		Env:         filepath.Join(base, ".env"),
		Credentials: filepath.Join(base, "credentials"),
		Prompts:     filepath.Join(base, "prompts"),
		Logs:        filepath.Join(base, "logs"),
		Data:        filepath.Join(base, "data"),
	}
}

// Database returns the SQLite path, honouring an explicit store path.
func (p Paths) Database(cfg StoreConfig) string {
	if cfg.Path != "" {
		return expandHome(cfg.Path)
	}
	return filepath.Join(p.Data, "scoutbot.db")
}

// PromptDir returns the template directory, honouring an explicit prompts dir.
func (p Paths) PromptDir(cfg PromptsConfig) string {
	if cfg.Dir != "" {
		return expandHome(cfg.Dir)
	}
	return p.Prompts
}

// EnsureDirs creates the standard directories, private to the user.
func (p Paths) EnsureDirs() error {
	for _, d := range []string{p.Base, p.Credentials, p.Prompts, p.Logs, p.Data} {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return err
		}
	}
	return nil
}

// expandHome replaces a leading "~/" with the user's home directory.
func expandHome(path string) string {
	rest, ok := strings.CutPrefix(path, "~/")
	if !ok {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, rest)
}
