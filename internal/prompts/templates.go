package prompts

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/soyeahso/scoutbot/internal/logging"
)

// Template keys used by the analysis pipeline.
const (
	KeyStepMarket  = "step.market"
	KeyStepRivals  = "step.rivals"
	KeyStepSynergy = "step.synergy"
	KeyParse       = "analysis.parse"
	KeySummary     = "analysis.summary"
	KeyQA          = "analysis.qa"
)

// ErrNotFound is returned by a TemplateStore for an unknown key.
var ErrNotFound = errors.New("prompt template not found")

// TemplateStore persists prompt templates by key.
type TemplateStore interface {
	Get(key string) (string, error)
	Set(key, content string) error
	List() ([]string, error)
}

//go:embed defaults/*.txt
var defaultFS embed.FS

var keyPattern = regexp.MustCompile(`^[a-z0-9]+(\.[a-z0-9_]+)*$`)

// ValidateKey checks that a template key is safe to use as a file name.
func ValidateKey(key string) error {
	if !keyPattern.MatchString(key) {
		return fmt.Errorf("invalid template key %q", key)
	}
	return nil
}

// Defaults returns the embedded default templates keyed by template key.
func Defaults() map[string]string {
	out := make(map[string]string)
	entries, err := fs.ReadDir(defaultFS, "defaults")
	if err != nil {
		return out
	}
	for _, e := range entries {
		data, err := defaultFS.ReadFile("defaults/" + e.Name())
		if err != nil {
			continue
		}
		out[strings.TrimSuffix(e.Name(), ".txt")] = strings.TrimSpace(string(data))
	}
	return out
}

// Templates resolves template keys through a cache, the backing store and
// finally the embedded defaults.
type Templates struct {
	mu       sync.RWMutex
	store    TemplateStore
	cache    map[string]string
	defaults map[string]string
	log      *logging.Logger
}

// NewTemplates creates a template registry over store.
func NewTemplates(store TemplateStore, log *logging.Logger) *Templates {
	return &Templates{
		store:    store,
		cache:    make(map[string]string),
		defaults: Defaults(),
		log:      log.Sub("prompts"),
	}
}

// Seed writes every embedded default missing from the store. Returns the
// keys written.
func (t *Templates) Seed() ([]string, error) {
	keys := make([]string, 0, len(t.defaults))
	for k := range t.defaults {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var written []string
	for _, key := range keys {
		_, err := t.store.Get(key)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrNotFound) {
			return written, fmt.Errorf("read template %s: %w", key, err)
		}
		if err := t.store.Set(key, t.defaults[key]); err != nil {
			return written, fmt.Errorf("seed template %s: %w", key, err)
		}
		written = append(written, key)
	}
	if len(written) > 0 {
		t.log.Info().Int("count", len(written)).Msg("seeded default prompt templates")
	}
	return written, nil
}

// Get returns the template for key.
func (t *Templates) Get(key string) (string, error) {
	t.mu.RLock()
	if v, ok := t.cache[key]; ok {
		t.mu.RUnlock()
		return v, nil
	}
	t.mu.RUnlock()

	v, err := t.store.Get(key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			t.log.Warn().Str("key", key).Err(err).Msg("template store read failed, using default")
		}
		def, ok := t.defaults[key]
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return def, nil
	}

	t.mu.Lock()
	t.cache[key] = v
	t.mu.Unlock()
	return v, nil
}

// Set stores content under key and refreshes the cache.
func (t *Templates) Set(key, content string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("template %s: content is empty", key)
	}
	if err := t.store.Set(key, content); err != nil {
		return err
	}
	t.mu.Lock()
	t.cache[key] = content
	t.mu.Unlock()
	t.log.Info().Str("key", key).Int("length", len(content)).Msg("prompt template updated")
	return nil
}

// List returns every known key: stored keys plus embedded defaults, sorted.
func (t *Templates) List() ([]string, error) {
	stored, err := t.store.List()
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(stored)+len(t.defaults))
	for _, k := range stored {
		seen[k] = true
	}
	for k := range t.defaults {
		seen[k] = true
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Render returns the template for key with {name} placeholders replaced.
func (t *Templates) Render(key string, vars map[string]string) (string, error) {
	tmpl, err := t.Get(key)
	if err != nil {
		return "", err
	}
	return Fill(tmpl, vars), nil
}

// Fill replaces {name} placeholders in tmpl. Unknown placeholders are kept.
func Fill(tmpl string, vars map[string]string) string {
	if len(vars) == 0 {
		return tmpl
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}
