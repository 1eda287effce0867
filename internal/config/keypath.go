package config

import (
	"reflect"
	"slices"
	"strings"
)

// KeyPath addresses one value in the raw config tree, e.g.
// "models.backends.chatgpt.apiKey".
type KeyPath []string

// Sections lists the top-level config keys, in declaration order.
func Sections() []string {
	t := reflect.TypeFor[Config]()
	out := make([]string, 0, t.NumField())
	for i := range t.NumField() {
		name, _, _ := strings.Cut(t.Field(i).Tag.Get("yaml"), ",")
		if name != "" && name != "-" {
			out = append(out, name)
		}
	}
	return out
}

// ParseKeyPath splits a dotted key. The first segment must name a config
// section and no segment may be empty or contain whitespace.
func ParseKeyPath(raw string) (KeyPath, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, &ConfigError{Message: "empty config key"}
	}
	parts := strings.Split(raw, ".")
	for _, p := range parts {
		if p == "" {
			return nil, &ConfigError{Message: "config key " + raw + " has an empty segment"}
		}
		if strings.ContainsFunc(p, func(r rune) bool { return r == ' ' || r == '\t' || r == '\n' }) {
			return nil, &ConfigError{Message: "config key " + raw + " contains whitespace"}
		}
	}
	if !slices.Contains(Sections(), parts[0]) {
		return nil, &ConfigError{Message: "unknown config section " + parts[0]}
	}
	return KeyPath(parts), nil
}

func (k KeyPath) String() string { return strings.Join(k, ".") }

// Lookup returns the value at k in tree.
func (k KeyPath) Lookup(tree map[string]any) (any, bool) {
	var cur any = tree
	for _, seg := range k {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[seg]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// Assign stores v at k, replacing any scalar that sits where a section
// is needed.
func (k KeyPath) Assign(tree map[string]any, v any) {
	parent := tree
	for _, seg := range k[:len(k)-1] {
		child, ok := parent[seg].(map[string]any)
		if !ok {
			child = map[string]any{}
			parent[seg] = child
		}
		parent = child
	}
	parent[k[len(k)-1]] = v
}

// Remove deletes the value at k and reports whether it existed. Sections
// left empty are pruned.
func (k KeyPath) Remove(tree map[string]any) bool {
	if len(k) == 1 {
		_, ok := tree[k[0]]
		delete(tree, k[0])
		return ok
	}
	child, ok := tree[k[0]].(map[string]any)
	if !ok || !k[1:].Remove(child) {
		return false
	}
	if len(child) == 0 {
		delete(tree, k[0])
	}
	return true
}
