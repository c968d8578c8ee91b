package memory_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shortloop/shortloop/internal/blob/memory"
)

func TestPutObject(t *testing.T) {
	t.Parallel()

	store := memory.New()
	uri, err := store.PutObject(context.Background(), "abc123/screenshot.png", "image/png", bytes.NewReader([]byte("pixels")))
	require.NoError(t, err)
	assert.Equal(t, "memory://abc123/screenshot.png", uri)

	content, ok := store.Object("abc123/screenshot.png")
	require.True(t, ok)
	assert.Equal(t, []byte("pixels"), content)
	assert.Equal(t, 1, store.Len())
}

func TestPutObject_Overwrites(t *testing.T) {
	t.Parallel()

	store := memory.New()
	_, err := store.PutObject(context.Background(), "k", "", bytes.NewReader([]byte("one")))
	require.NoError(t, err)
	_, err = store.PutObject(context.Background(), "k", "", bytes.NewReader([]byte("two")))
	require.NoError(t, err)

	content, ok := store.Object("k")
	require.True(t, ok)
	assert.Equal(t, []byte("two"), content)
}
