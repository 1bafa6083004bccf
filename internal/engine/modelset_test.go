package engine

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeModelConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "models.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadModelSets_Valid(t *testing.T) {
	path := writeModelConfig(t, `
models:
  full: [ChatGPT, Claude, Perplexity, Gemini]
  fallback: [ChatGPT, Claude]
`)

	cfg, err := LoadModelSets(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"ChatGPT", "Claude", "Perplexity", "Gemini"}, cfg.Full)
	assert.Equal(t, []string{"ChatGPT", "Claude"}, cfg.Fallback)
}

func TestLoadModelSets_EmptyFallbackDefaultsToFull(t *testing.T) {
	path := writeModelConfig(t, `
models:
  full: [ChatGPT, Claude]
`)

	cfg, err := LoadModelSets(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Full, cfg.Fallback)
}

func TestLoadModelSets_FallbackMustBeSubset(t *testing.T) {
	path := writeModelConfig(t, `
models:
  full: [ChatGPT]
  fallback: [Claude]
`)

	_, err := LoadModelSets(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not in full set")
}

func TestLoadModelSets_EmptyFull(t *testing.T) {
	path := writeModelConfig(t, `models: {}`)

	_, err := LoadModelSets(path)
	assert.Error(t, err)
}

func TestModelSelector_FallbackAtThreshold(t *testing.T) {
	tr := NewTimeoutTracker(time.Minute)
	sel := NewModelSelector(DefaultModelSets(), tr, 3)

	assert.Equal(t, DefaultModelSets().Full, sel.Select(1))

	tr.RecordTimeout(1)
	tr.RecordTimeout(1)
	assert.Equal(t, DefaultModelSets().Full, sel.Select(1))

	tr.RecordTimeout(1)
	assert.Equal(t, DefaultModelSets().Fallback, sel.Select(1))

	// Other domains are unaffected.
	assert.Equal(t, DefaultModelSets().Full, sel.Select(2))
}

func TestModelSelector_RecoversAfterReset(t *testing.T) {
	tr := NewTimeoutTracker(time.Minute)
	sel := NewModelSelector(DefaultModelSets(), tr, 1)

	tr.RecordTimeout(1)
	assert.Equal(t, DefaultModelSets().Fallback, sel.Select(1))

	tr.ResetAll()
	assert.Equal(t, DefaultModelSets().Full, sel.Select(1))
}
