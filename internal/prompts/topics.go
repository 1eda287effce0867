// Package prompts holds the analysis topics and the prompt templates used by
// the pipeline. Both are mutable at runtime: admins can add topics and
// replace templates without a restart.
package prompts

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Topic is a selectable analysis topic.
type Topic struct {
	Key       string `json:"key"`
	Display   string `json:"display"`
	PromptKey string `json:"promptKey"` // template key of the topic system prompt
}

// DefaultTopics are always registered.
var DefaultTopics = []Topic{
	{Key: "investment", Display: "Investment opportunity analysis", PromptKey: TopicKey("investment")},
	{Key: "competitors", Display: "Competitor strategy analysis", PromptKey: TopicKey("competitors")},
	{Key: "market", Display: "Market and trend analysis", PromptKey: TopicKey("market")},
}

// TopicKey returns the template key of a topic's system prompt.
func TopicKey(topic string) string { return "topic." + topic }

// TopicNameKey returns the template key holding a topic's display name.
func TopicNameKey(topic string) string { return "topicname." + topic }

// TopicRegistry is the mutable set of topics.
type TopicRegistry struct {
	mu       sync.RWMutex
	topics   map[string]Topic
	defaults map[string]int // key → position in DefaultTopics
}

// NewTopicRegistry creates a registry seeded with DefaultTopics.
func NewTopicRegistry() *TopicRegistry {
	r := &TopicRegistry{
		topics:   make(map[string]Topic),
		defaults: make(map[string]int),
	}
	for i, t := range DefaultTopics {
		r.topics[t.Key] = t
		r.defaults[t.Key] = i
	}
	return r
}

// ValidateTopicKey checks a technical topic name: non-empty lowercase ASCII
// letters and digits only.
func ValidateTopicKey(key string) error {
	if key == "" {
		return fmt.Errorf("topic name is empty")
	}
	for _, c := range key {
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') {
			return fmt.Errorf("topic name %q must contain only latin letters and digits", key)
		}
	}
	return nil
}

// Add registers a new topic. The key is normalized to lower case.
func (r *TopicRegistry) Add(key, display string) (Topic, error) {
	key = strings.ToLower(strings.TrimSpace(key))
	display = strings.TrimSpace(display)
	if err := ValidateTopicKey(key); err != nil {
		return Topic{}, err
	}
	if display == "" {
		return Topic{}, fmt.Errorf("display name is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.topics[key]; exists {
		return Topic{}, fmt.Errorf("topic %q already exists", key)
	}
	t := Topic{Key: key, Display: display, PromptKey: TopicKey(key)}
	r.topics[key] = t
	return t, nil
}

// Remove deletes a non-default topic.
func (r *TopicRegistry) Remove(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, isDefault := r.defaults[key]; isDefault {
		return false
	}
	if _, ok := r.topics[key]; !ok {
		return false
	}
	delete(r.topics, key)
	return true
}

// Has reports whether key names a topic.
func (r *TopicRegistry) Has(key string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.topics[key]
	return ok
}

// Get returns the topic for key.
func (r *TopicRegistry) Get(key string) (Topic, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.topics[key]
	return t, ok
}

// List returns all topics: defaults first in their fixed order, then the
// rest sorted by key.
func (r *TopicRegistry) List() []Topic {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Topic, 0, len(r.topics))
	for _, t := range r.topics {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		di, iDef := r.defaults[out[i].Key]
		dj, jDef := r.defaults[out[j].Key]
		switch {
		case iDef && jDef:
			return di < dj
		case iDef != jDef:
			return iDef
		default:
			return out[i].Key < out[j].Key
		}
	})
	return out
}

// TemplateLister is the part of Templates RestoreTopics reads.
type TemplateLister interface {
	Get(key string) (string, error)
	List() ([]string, error)
}

// RestoreTopics registers every topic whose system prompt was saved in
// templates but is not yet known to r. The display name falls back to the
// key. It returns the number of topics added.
func RestoreTopics(r *TopicRegistry, templates TemplateLister) (int, error) {
	keys, err := templates.List()
	if err != nil {
		return 0, fmt.Errorf("listing templates: %w", err)
	}
	added := 0
	for _, k := range keys {
		key, ok := strings.CutPrefix(k, "topic.")
		if !ok || r.Has(key) || ValidateTopicKey(key) != nil {
			continue
		}
		display, err := templates.Get(TopicNameKey(key))
		if err != nil || strings.TrimSpace(display) == "" {
			display = key
		}
		if _, err := r.Add(key, display); err == nil {
			added++
		}
	}
	return added, nil
}
