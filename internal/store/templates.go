package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/soyeahso/scoutbot/internal/prompts"
)

// TemplateStore persists prompt templates in the prompt_templates table. It
// implements prompts.TemplateStore.
type TemplateStore struct {
	db *DB
}

// NewTemplateStore creates a template store over db.
func NewTemplateStore(db *DB) *TemplateStore {
	return &TemplateStore{db: db}
}

// Get returns the stored content of key or prompts.ErrNotFound.
func (s *TemplateStore) Get(key string) (string, error) {
	var content string
	err := s.db.sql.QueryRow("SELECT content FROM prompt_templates WHERE key = ?", key).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", prompts.ErrNotFound, key)
	}
	if err != nil {
		return "", fmt.Errorf("template %s: %w", key, err)
	}
	return content, nil
}

// Set inserts or replaces key.
func (s *TemplateStore) Set(key, content string) error {
	_, err := s.db.sql.Exec(`
		INSERT INTO prompt_templates (key, content, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET content = excluded.content, updated_at = excluded.updated_at`,
		key, content, time.Now().UTC().Format(time.DateTime),
	)
	if err != nil {
		return fmt.Errorf("store template %s: %w", key, err)
	}
	return nil
}

// List returns the stored keys in order.
func (s *TemplateStore) List() ([]string, error) {
	rows, err := s.db.sql.Query("SELECT key FROM prompt_templates ORDER BY key")
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan template key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
