package util

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateMimeType_FlashcardSources(t *testing.T) {
	mime, err := ValidateMimeType(strings.NewReader("# Goroutines\n\nlightweight threads"), AllowedFlashcardSourceTypes)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(mime, MimeText))

	mime, err = ValidateMimeType(strings.NewReader("%PDF-1.7\n..."), AllowedFlashcardSourceTypes)
	require.NoError(t, err)
	assert.True(t, IsPDF(mime))

	_, err = ValidateMimeType(strings.NewReader("\x89PNG\r\n\x1a\n"), AllowedFlashcardSourceTypes)
	assert.Error(t, err)
}

func TestSourceContentType(t *testing.T) {
	assert.Equal(t, MimeMarkdown, SourceContentType("notes.MD", "text/plain; charset=utf-8"))
	assert.Equal(t, "text/plain; charset=utf-8", SourceContentType("notes.txt", "text/plain; charset=utf-8"))
	assert.Equal(t, MimePDF, SourceContentType("paper.pdf", MimePDF))
}
