package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/visibility-cli/internal/model"
)

func TestCompletionCache_PrefetchAndLookup(t *testing.T) {
	st := newMockStore()
	st.seedResult(10, "ChatGPT", 75)
	st.seedResult(10, "Claude", 60)

	cache, err := NewCompletionCache(context.Background(), st, st.phrases)
	require.NoError(t, err)

	assert.NotNil(t, cache.Result(10, "ChatGPT"))
	assert.NotNil(t, cache.Result(10, "Claude"))
	assert.Nil(t, cache.Result(10, "Perplexity"))
	assert.Nil(t, cache.Result(11, "ChatGPT"))
}

func TestCompletionCache_IsComplete(t *testing.T) {
	st := newMockStore()
	st.seedResult(10, "ChatGPT", 75)
	st.seedResult(10, "Claude", 60)

	cache, err := NewCompletionCache(context.Background(), st, st.phrases)
	require.NoError(t, err)

	done, results := cache.IsComplete(10, []string{"ChatGPT", "Claude"})
	assert.True(t, done)
	require.Len(t, results, 2)
	assert.Equal(t, "ChatGPT", results[0].Model)

	done, results = cache.IsComplete(10, []string{"ChatGPT", "Claude", "Perplexity"})
	assert.False(t, done)
	assert.Nil(t, results)

	done, _ = cache.IsComplete(11, []string{"ChatGPT"})
	assert.False(t, done)
}

func TestCompletionCache_AddVisibleToLaterChecks(t *testing.T) {
	st := newMockStore()
	cache, err := NewCompletionCache(context.Background(), st, st.phrases)
	require.NoError(t, err)

	cache.Add(&model.QueryResult{PhraseID: 11, Model: "Gemini", Response: "x"})

	assert.NotNil(t, cache.Result(11, "Gemini"))
	done, _ := cache.IsComplete(11, []string{"Gemini"})
	assert.True(t, done)
}

func TestCompletionCache_PrefetchError(t *testing.T) {
	st := newMockStore()
	st.prefetchErr = assert.AnError

	_, err := NewCompletionCache(context.Background(), st, st.phrases)
	assert.Error(t, err)
}
