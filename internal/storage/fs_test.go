package storage_test

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-coursework/internal/storage"
)

func TestFSStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := storage.NewFSStore(t.TempDir(), "/files/")
	require.NoError(t, err)

	key, err := s.Put(ctx, "lessons/l1/slides.pdf", strings.NewReader("%PDF-1.4"))
	require.NoError(t, err)
	assert.Equal(t, "lessons/l1/slides.pdf", key)
	assert.Equal(t, "/files/lessons/l1/slides.pdf", s.URL(key))

	rc, err := s.Get(ctx, key)
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(body))

	require.NoError(t, s.Delete(ctx, key))
	require.NoError(t, s.Delete(ctx, key))
	_, err = s.Get(ctx, key)
	assert.Error(t, err)
}

func TestFSStore_RejectsEscapingKeys(t *testing.T) {
	s, err := storage.NewFSStore(t.TempDir(), "")
	require.NoError(t, err)
	for _, key := range []string{"", "../secret", "a/../../b", "/"} {
		_, err := s.Put(context.Background(), key, strings.NewReader("x"))
		assert.ErrorIs(t, err, storage.ErrInvalidKey, key)
	}
}

func TestFSStore_CancelledUpload(t *testing.T) {
	s, err := storage.NewFSStore(t.TempDir(), "")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Put(ctx, "a.txt", strings.NewReader("data"))
	assert.ErrorIs(t, err, context.Canceled)
}
