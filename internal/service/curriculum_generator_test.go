package service

import (
	"testing"

	"suma_backend/internal/model"
	"suma_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func outline(pairs ...interface{}) []OutlineItem {
	items := make([]OutlineItem, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		items = append(items, OutlineItem{Title: pairs[i].(string), Order: pairs[i+1].(int)})
	}
	return items
}

func TestNormalizeOutline_KeepsPermutation(t *testing.T) {
	items, err := normalizeOutline(outline("C", 3, "A", 1, "B", 2), 3, 6, "sections")
	require.NoError(t, err)

	require.Len(t, items, 3)
	assert.Equal(t, "A", items[0].Title)
	assert.Equal(t, "B", items[1].Title)
	assert.Equal(t, "C", items[2].Title)
	assert.Equal(t, 3, items[2].Order)
}

func TestNormalizeOutline_RenumbersGapsAndDuplicates(t *testing.T) {
	items, err := normalizeOutline(outline("A", 2, "B", 2, "C", 7), 3, 6, "sections")
	require.NoError(t, err)

	for i, it := range items {
		assert.Equal(t, i+1, it.Order)
	}
	assert.Equal(t, "A", items[0].Title)
	assert.Equal(t, "C", items[2].Title)
}

func TestNormalizeOutline_DropsBlankTitlesAndRejectsTooFew(t *testing.T) {
	_, err := normalizeOutline(outline("A", 1, "  ", 2, "B", 3), 3, 6, "sections")
	assert.ErrorIs(t, err, util.ErrUpstream)
}

func TestNormalizeOutline_TruncatesAboveMax(t *testing.T) {
	items, err := normalizeOutline(outline("A", 1, "B", 2, "C", 3, "D", 4, "E", 5), 1, 3, "levels")
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "C", items[2].Title)
}

func TestNormalizeBlocks(t *testing.T) {
	raw := []GeneratedBlock{
		{Type: "content", Content: "second", Order: 5},
		{Type: "introduction", Content: "first", Order: 1, Sources: []string{"https://own.example"}},
		{Type: "question", Content: "no answer", Order: 6, QuestionType: "select"},
		{Type: "question", Content: "pick one", Order: 7, QuestionType: "select", Options: []string{"A", "B"}, CorrectAnswer: "A"},
		{Type: "content", Content: "   ", Order: 8},
		{Type: "reflection", Content: "think", Order: 9},
		{Type: "question", Content: "dangling", Order: 10, QuestionType: "text", CorrectAnswer: "x"},
	}

	blocks, dropped, err := NormalizeBlocks(7, 3, raw, []string{"https://research.example"})
	require.NoError(t, err)

	require.Len(t, blocks, 4)
	assert.Equal(t, 3, dropped)
	assert.Equal(t, "first", blocks[0].Content)
	assert.Equal(t, []string{"https://own.example"}, []string(blocks[0].Sources))
	assert.Equal(t, []string{"https://research.example"}, []string(blocks[1].Sources))
	assert.Equal(t, model.BlockQuestion, blocks[2].Type)
	assert.Equal(t, "A", blocks[2].CorrectAnswer)
	assert.Equal(t, model.BlockReflection, blocks[3].Type)
	for i, b := range blocks {
		assert.Equal(t, i+1, b.Order)
		assert.Equal(t, uint(7), b.SectionID)
		assert.Equal(t, uint(3), b.UserID)
	}
}

func TestNormalizeBlocks_NothingUsable(t *testing.T) {
	_, _, err := NormalizeBlocks(1, 1, []GeneratedBlock{
		{Type: "question", Content: "only a question", QuestionType: "text", CorrectAnswer: "x"},
		{Type: "video", Content: "unknown kind"},
	}, nil)
	assert.ErrorIs(t, err, util.ErrUpstream)
}
