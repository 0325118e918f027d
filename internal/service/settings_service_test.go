package service

import (
	"testing"

	"suma_backend/internal/repository"
	"suma_backend/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettings_DefaultsAndPartialUpdate(t *testing.T) {
	db := testutil.OpenDB(t)
	svc := NewSettingsService(repository.NewSettingsRepository(db))

	settings, err := svc.Get(3)
	require.NoError(t, err)
	assert.True(t, settings.NotifyWhenCourseIsReady)
	assert.True(t, settings.NotifyWhenFlashcardSetIsReady)
	assert.True(t, settings.SendDailyProblems)

	off := false
	settings, err = svc.Update(3, SettingsUpdate{SendDailyProblems: &off})
	require.NoError(t, err)
	assert.False(t, settings.SendDailyProblems)
	assert.True(t, settings.NotifyWhenCourseIsReady)

	settings, err = svc.Update(3, SettingsUpdate{NotifyWhenCourseIsReady: &off})
	require.NoError(t, err)
	assert.False(t, settings.NotifyWhenCourseIsReady)
	assert.False(t, settings.SendDailyProblems)

	var rows int64
	require.NoError(t, db.Table("user_settings").Where("user_id = ?", 3).Count(&rows).Error)
	assert.Equal(t, int64(1), rows)
}
