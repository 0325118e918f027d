package repository

import (
	"testing"

	"suma_backend/internal/model"
	"suma_backend/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSectionTransitionStatus_OnlyFromExpectedStatus(t *testing.T) {
	db := testutil.OpenDB(t)
	user := testutil.CreateUser(t, db, "ken@example.com")
	seed := testutil.SeedSection(t, db, user.ID)
	repo := NewSectionRepository(db)
	require.NoError(t, repo.UpdateFields(seed.Section.ID, map[string]interface{}{"status": model.SectionNoContent}))

	flipped, err := repo.TransitionStatus(seed.Section.ID, model.SectionNoContent, model.SectionGenerating,
		map[string]interface{}{"error_message": ""})
	require.NoError(t, err)
	assert.True(t, flipped)

	// 读到旧状态的第二个请求翻转失败
	flipped, err = repo.TransitionStatus(seed.Section.ID, model.SectionNoContent, model.SectionGenerating, nil)
	require.NoError(t, err)
	assert.False(t, flipped)

	stored, err := repo.FindByID(seed.Section.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SectionGenerating, stored.Status)
}

func TestCompleteBlockState_OnlyOnce(t *testing.T) {
	db := testutil.OpenDB(t)
	user := testutil.CreateUser(t, db, "rob@example.com")
	seed := testutil.SeedSection(t, db, user.ID, model.Prose{Type: model.BlockContent, Body: "x"})
	block := seed.Blocks[0]
	repo := NewProgressRepository(db)

	require.NoError(t, db.Create(&model.UserBlockState{
		UserID:    user.ID,
		BlockID:   block.ID,
		SectionID: block.SectionID,
		IsVisible: true,
	}).Error)

	first, err := repo.CompleteBlockState(user.ID, block.ID, map[string]interface{}{})
	require.NoError(t, err)
	assert.True(t, first)

	second, err := repo.CompleteBlockState(user.ID, block.ID, map[string]interface{}{})
	require.NoError(t, err)
	assert.False(t, second)
}
