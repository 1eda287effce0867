package prompts

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/soyeahso/scoutbot/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func silentLog() *logging.Logger {
	return logging.New(nil, "silent")
}

// --- Topics ---

func TestTopicRegistry_Defaults(t *testing.T) {
	r := NewTopicRegistry()
	list := r.List()
	require.Len(t, list, 3)
	assert.Equal(t, "investment", list[0].Key)
	assert.Equal(t, "competitors", list[1].Key)
	assert.Equal(t, "market", list[2].Key)
	assert.Equal(t, "topic.market", list[2].PromptKey)
}

func TestTopicRegistry_Add(t *testing.T) {
	r := NewTopicRegistry()
	topic, err := r.Add("  ESG2 ", "ESG risk review")
	require.NoError(t, err)
	assert.Equal(t, "esg2", topic.Key)
	assert.Equal(t, "topic.esg2", topic.PromptKey)
	assert.True(t, r.Has("esg2"))

	got, ok := r.Get("esg2")
	require.True(t, ok)
	assert.Equal(t, "ESG risk review", got.Display)

	_, err = r.Add("esg2", "again")
	assert.ErrorContains(t, err, "already exists")

	_, err = r.Add("investment", "dup default")
	assert.Error(t, err)
}

func TestRestoreTopics(t *testing.T) {
	tpl := NewTemplates(NewMemoryStore(), silentLog())
	require.NoError(t, tpl.Set(TopicKey("esg"), "You are an ESG analyst."))
	require.NoError(t, tpl.Set(TopicNameKey("esg"), "ESG screening"))
	require.NoError(t, tpl.Set(TopicKey("retail"), "You cover retail."))

	r := NewTopicRegistry()
	n, err := RestoreTopics(r, tpl)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	esg, ok := r.Get("esg")
	require.True(t, ok)
	assert.Equal(t, "ESG screening", esg.Display)
	retail, ok := r.Get("retail")
	require.True(t, ok)
	assert.Equal(t, "retail", retail.Display)

	// defaults and known topics are left alone
	n, err = RestoreTopics(r, tpl)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Len(t, r.List(), 5)
}

func TestTopicRegistry_AddValidation(t *testing.T) {
	r := NewTopicRegistry()
	tests := []struct {
		name    string
		key     string
		display string
	}{
		{"empty key", "", "x"},
		{"spaces", "my topic", "x"},
		{"non ascii", "рынок", "x"},
		{"punctuation", "a-b", "x"},
		{"empty display", "ok", "  "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Add(tt.key, tt.display)
			assert.Error(t, err)
		})
	}
}

func TestTopicRegistry_ListOrder(t *testing.T) {
	r := NewTopicRegistry()
	_, err := r.Add("zeta", "Z")
	require.NoError(t, err)
	_, err = r.Add("alpha", "A")
	require.NoError(t, err)

	var keys []string
	for _, t := range r.List() {
		keys = append(keys, t.Key)
	}
	assert.Equal(t, []string{"investment", "competitors", "market", "alpha", "zeta"}, keys)
}

func TestTopicRegistry_Remove(t *testing.T) {
	r := NewTopicRegistry()
	_, err := r.Add("temp", "Temp")
	require.NoError(t, err)
	assert.True(t, r.Remove("temp"))
	assert.False(t, r.Remove("temp"))
	assert.False(t, r.Remove("investment"), "defaults cannot be removed")
}

// --- Templates ---

func TestDefaults_CoverPipelineKeys(t *testing.T) {
	d := Defaults()
	for _, key := range []string{KeyStepMarket, KeyStepRivals, KeyStepSynergy, KeyParse, KeySummary, KeyQA} {
		assert.NotEmpty(t, d[key], key)
	}
	for _, topic := range DefaultTopics {
		assert.NotEmpty(t, d[topic.PromptKey], topic.Key)
	}
	assert.Contains(t, d[KeyQA], "{question}")
	assert.Contains(t, d[KeyStepMarket], "{subject}")
}

func TestTemplates_FallsBackToDefaults(t *testing.T) {
	tm := NewTemplates(NewMemoryStore(), silentLog())
	v, err := tm.Get(KeySummary)
	require.NoError(t, err)
	assert.Equal(t, Defaults()[KeySummary], v)

	_, err = tm.Get("no.such.key")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestTemplates_SetOverrides(t *testing.T) {
	store := NewMemoryStore()
	tm := NewTemplates(store, silentLog())
	require.NoError(t, tm.Set("topic.investment", "custom prompt"))

	v, err := tm.Get("topic.investment")
	require.NoError(t, err)
	assert.Equal(t, "custom prompt", v)

	stored, err := store.Get("topic.investment")
	require.NoError(t, err)
	assert.Equal(t, "custom prompt", stored)

	assert.Error(t, tm.Set("topic.investment", "   "))
	assert.Error(t, tm.Set("../evil", "x"))
}

func TestTemplates_Seed(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Set(KeyQA, "mine"))
	tm := NewTemplates(store, silentLog())

	written, err := tm.Seed()
	require.NoError(t, err)
	assert.NotContains(t, written, KeyQA)
	assert.Len(t, written, len(Defaults())-1)

	v, err := store.Get(KeyQA)
	require.NoError(t, err)
	assert.Equal(t, "mine", v, "seed never overwrites")

	again, err := tm.Seed()
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestTemplates_ListMergesDefaults(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Set("topic.esg", "x"))
	tm := NewTemplates(store, silentLog())

	keys, err := tm.List()
	require.NoError(t, err)
	assert.Contains(t, keys, "topic.esg")
	assert.Contains(t, keys, KeyStepRivals)
	assert.IsNonDecreasing(t, keys)
}

func TestTemplates_Render(t *testing.T) {
	tm := NewTemplates(NewMemoryStore(), silentLog())
	require.NoError(t, tm.Set("analysis.qa", "About {subject}: {question} {unknown}"))

	out, err := tm.Render(KeyQA, map[string]string{"subject": "Acme", "question": "Who owns it?"})
	require.NoError(t, err)
	assert.Equal(t, "About Acme: Who owns it? {unknown}", out)
}

func TestFill_NoVars(t *testing.T) {
	assert.Equal(t, "{subject}", Fill("{subject}", nil))
}

func TestValidateKey(t *testing.T) {
	assert.NoError(t, ValidateKey("topic.investment"))
	assert.NoError(t, ValidateKey("step.market"))
	assert.Error(t, ValidateKey(""))
	assert.Error(t, ValidateKey("a/b"))
	assert.Error(t, ValidateKey("Topic.X"))
	assert.Error(t, ValidateKey(".hidden"))
}

// --- FileStore ---

func TestFileStore_RoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "prompts")
	fs, err := NewFileStore(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, fs.Dir())

	_, err = fs.Get("topic.market")
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, fs.Set("topic.market", "market prompt"))
	require.NoError(t, fs.Set("step.rivals", "rivals prompt"))

	v, err := fs.Get("topic.market")
	require.NoError(t, err)
	assert.Equal(t, "market prompt", v)

	data, err := os.ReadFile(filepath.Join(dir, "topic.market.txt"))
	require.NoError(t, err)
	assert.Equal(t, "market prompt", string(data))

	keys, err := fs.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"step.rivals", "topic.market"}, keys)
}

func TestFileStore_RejectsBadKeys(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	assert.Error(t, fs.Set("../escape", "x"))
	_, err = fs.Get("../escape")
	assert.Error(t, err)
}

func TestFileStore_WithTemplates(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	tm := NewTemplates(fs, silentLog())
	_, err = tm.Seed()
	require.NoError(t, err)

	keys, err := fs.List()
	require.NoError(t, err)
	assert.Len(t, keys, len(Defaults()))
}
