package service

import (
	"context"
	"strings"
	"testing"

	"suma_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorageService_LocalRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := &StorageService{Store: &LocalStore{Root: t.TempDir()}}

	key, err := s.SaveSource(ctx, 3, "Notes.MD", strings.NewReader("# goroutines"), 12, util.MimeMarkdown)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "flashcards/3/"))
	assert.True(t, strings.HasSuffix(key, ".md"))

	data, err := s.ReadSource(ctx, key, 1024)
	require.NoError(t, err)
	assert.Equal(t, "# goroutines", string(data))

	_, err = s.ReadSource(ctx, key, 4)
	assert.ErrorIs(t, err, util.ErrInvalidInput)

	require.NoError(t, s.RemoveSource(ctx, key))
	require.NoError(t, s.RemoveSource(ctx, key))
	_, err = s.ReadSource(ctx, key, 1024)
	assert.Error(t, err)
}

func TestLocalStore_RejectsEscapingKeys(t *testing.T) {
	store := &LocalStore{Root: t.TempDir()}
	err := store.Put(context.Background(), "../../etc/passwd", strings.NewReader("x"), 1, util.MimeText)
	assert.ErrorIs(t, err, util.ErrInvalidInput)
}
