package service

import (
	"context"
	"testing"
	"time"

	"suma_backend/internal/model"
	"suma_backend/internal/testutil"
	"suma_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduleReview(t *testing.T) {
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	p := &model.UserFlashcardProgress{}

	ScheduleReview(p, true, now)
	assert.Equal(t, 1, p.Repetitions)
	assert.Equal(t, 1, p.IntervalDays)
	assert.InDelta(t, 2.6, p.EaseFactor, 1e-9)
	assert.Equal(t, now.AddDate(0, 0, 1), *p.NextReviewAt)

	ScheduleReview(p, true, now)
	assert.Equal(t, 6, p.IntervalDays)
	assert.InDelta(t, 2.7, p.EaseFactor, 1e-9)

	ScheduleReview(p, true, now)
	assert.Equal(t, 16, p.IntervalDays)
	assert.InDelta(t, 2.8, p.EaseFactor, 1e-9)
	assert.Equal(t, 3, p.CorrectCount)

	ScheduleReview(p, false, now)
	assert.Equal(t, 0, p.Repetitions)
	assert.Equal(t, 1, p.IntervalDays)
	assert.InDelta(t, 2.6, p.EaseFactor, 1e-9)
	assert.Equal(t, 1, p.IncorrectCount)
	assert.Equal(t, now, *p.LastReviewedAt)
}

func TestScheduleReview_EaseFloor(t *testing.T) {
	p := &model.UserFlashcardProgress{EaseFactor: 1.4}
	ScheduleReview(p, false, time.Now())
	assert.InDelta(t, 1.3, p.EaseFactor, 1e-9)
	ScheduleReview(p, false, time.Now())
	assert.InDelta(t, 1.3, p.EaseFactor, 1e-9)
}

func seedFlashcards(t *testing.T) (*FlashcardService, *model.User, []model.Flashcard) {
	t.Helper()
	db := testutil.OpenDB(t)
	user := testutil.CreateUser(t, db, "grace@example.com")
	svc := NewFlashcardService(db, nil, 10, 0)

	set := &model.FlashcardSet{
		UserID:      user.ID,
		Title:       "Go",
		SourceType:  model.FlashcardSourceURL,
		TargetCount: 5,
		Status:      model.FlashcardSetCompleted,
	}
	require.NoError(t, svc.Repo.CreateSet(set))
	cards := []model.Flashcard{
		{SetID: set.ID, Question: "What is a goroutine?", Answer: "A lightweight thread", OrderIndex: 0},
		{SetID: set.ID, Question: "What is a channel?", Answer: "A typed conduit", OrderIndex: 1},
	}
	require.NoError(t, svc.Repo.CreateCards(cards))
	return svc, user, cards
}

func TestReviewAndStats(t *testing.T) {
	svc, user, cards := seedFlashcards(t)
	ctx := context.Background()
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	svc.Now = fixedClock(now)

	p, err := svc.Review(ctx, user.ID, cards[0].ID, false)
	require.NoError(t, err)
	assert.Equal(t, 1, p.IncorrectCount)
	assert.InDelta(t, 2.3, p.EaseFactor, 1e-9)

	_, err = svc.Review(ctx, user.ID, cards[0].ID, false)
	require.NoError(t, err)
	_, err = svc.Review(ctx, user.ID, cards[1].ID, true)
	require.NoError(t, err)

	stats, err := svc.Stats(user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalCards)
	assert.Equal(t, 2, stats.ReviewedCards)
	assert.Equal(t, 1, stats.CorrectAnswers)
	assert.Equal(t, 2, stats.IncorrectAnswers)
	assert.Equal(t, 33, stats.Accuracy)
	assert.Equal(t, 0, stats.DueCards)
	require.NotNil(t, stats.MostDifficultCard)
	assert.Equal(t, cards[0].ID, stats.MostDifficultCard.FlashcardID)
	assert.Equal(t, 2, stats.MostDifficultCard.IncorrectCount)

	svc.Now = fixedClock(now.AddDate(0, 0, 2))
	stats, err = svc.Stats(user.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.DueCards)
}

func TestReview_OtherUsersCard(t *testing.T) {
	svc, _, cards := seedFlashcards(t)

	_, err := svc.Review(context.Background(), 9999, cards[0].ID, true)
	assert.ErrorIs(t, err, util.ErrNotAuthorized)

	_, err = svc.Review(context.Background(), 9999, 424242, true)
	assert.ErrorIs(t, err, util.ErrNotFound)
}

func TestCreateFromURLs_Validation(t *testing.T) {
	db := testutil.OpenDB(t)
	svc := NewFlashcardService(db, nil, 10, 0)
	ctx := context.Background()

	_, err := svc.CreateFromURLs(ctx, 1, FlashcardSetRequest{}, []string{"ftp://example.com/file"})
	assert.ErrorIs(t, err, util.ErrInvalidInput)

	_, err = svc.CreateFromURLs(ctx, 1, FlashcardSetRequest{}, []string{" ", ""})
	assert.ErrorIs(t, err, util.ErrInvalidInput)

	many := make([]string, MaxFlashcardURLs+1)
	for i := range many {
		many[i] = "https://example.com/page"
	}
	_, err = svc.CreateFromURLs(ctx, 1, FlashcardSetRequest{}, many)
	assert.ErrorIs(t, err, util.ErrInvalidInput)

	_, err = svc.CreateFromURLs(ctx, 1, FlashcardSetRequest{TargetCount: 3}, []string{"https://example.com"})
	assert.ErrorIs(t, err, util.ErrInvalidInput)
}

func TestCreateFromURLs_EnqueuesJob(t *testing.T) {
	db := testutil.OpenDB(t)
	svc := NewFlashcardService(db, nil, 10, 0)

	set, err := svc.CreateFromURLs(context.Background(), 7, FlashcardSetRequest{}, []string{"https://go.dev/doc/effective_go"})
	require.NoError(t, err)
	assert.Equal(t, "go.dev", set.Title)
	assert.Equal(t, 20, set.TargetCount)
	assert.Equal(t, model.FlashcardSetProcessing, set.Status)

	var job model.GenerationJob
	require.NoError(t, db.Where("subject_id = ?", set.ID).First(&job).Error)
	assert.Equal(t, model.JobTypeFlashcardGeneration, job.JobType)
	assert.Equal(t, model.JobQueued, job.Status)
	assert.Equal(t, uint(7), job.OwnerID)
}
