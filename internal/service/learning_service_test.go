package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"suma_backend/internal/model"
	"suma_backend/internal/testutil"
	"suma_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var learningNow = time.Date(2025, 3, 10, 9, 30, 0, 0, time.Local)

func seedLesson(t *testing.T) (*LearningService, *testutil.Section, *model.User) {
	t.Helper()
	db := testutil.OpenDB(t)
	user := testutil.CreateUser(t, db, "ada@example.com")
	seed := testutil.SeedSection(t, db, user.ID,
		model.Prose{Type: model.BlockIntroduction, Body: "Welcome"},
		model.Question{
			Prompt:        "Pick B",
			Type:          model.QuestionSelect,
			Options:       []string{"A", "B"},
			CorrectAnswer: "B",
			Hint:          "Not A",
			Explanation:   "B is right",
		},
		model.Prose{Type: model.BlockContent, Body: "Wrap up"},
	)
	svc := NewLearningService(db, nil)
	svc.Now = fixedClock(learningNow)
	return svc, seed, user
}

func TestFetchBlocks_FirstVisitShowsOnlyFirstBlock(t *testing.T) {
	svc, seed, user := seedLesson(t)
	ctx := context.Background()

	views, err := svc.FetchBlocks(ctx, user.ID, seed.Section.ID)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, seed.Blocks[0].ID, views[0].ID)
	assert.Nil(t, views[0].Status)

	views, err = svc.FetchBlocks(ctx, user.ID, seed.Section.ID)
	require.NoError(t, err)
	require.Len(t, views, 1)
	require.NotNil(t, views[0].Status)
	assert.Equal(t, BlockStatusOpen, *views[0].Status)

	progress, err := svc.ProgressRepo.FindProgress(user.ID, seed.Course.ID)
	require.NoError(t, err)
	assert.Equal(t, learningNow.Unix(), progress.LastAccessedAt.Unix())
}

func TestFetchBlocks_OtherUserIsRejected(t *testing.T) {
	svc, seed, _ := seedLesson(t)

	_, err := svc.FetchBlocks(context.Background(), seed.Section.UserID+100, seed.Section.ID)
	assert.ErrorIs(t, err, util.ErrNotAuthorized)

	_, err = svc.FetchBlocks(context.Background(), seed.Section.UserID, 9999)
	assert.ErrorIs(t, err, util.ErrNotFound)
}

func TestCompleteBlock_LockedBlock(t *testing.T) {
	svc, seed, user := seedLesson(t)

	_, err := svc.CompleteBlock(context.Background(), user.ID, seed.Blocks[2].ID)
	assert.ErrorIs(t, err, util.ErrInvalidState)
}

func TestProgressiveUnlockWalkthrough(t *testing.T) {
	svc, seed, user := seedLesson(t)
	ctx := context.Background()
	intro, question, outro := seed.Blocks[0], seed.Blocks[1], seed.Blocks[2]

	res, err := svc.CompleteBlock(ctx, user.ID, intro.ID)
	require.NoError(t, err)
	assert.True(t, res.Credited)
	assert.Equal(t, XPContentBlock, res.XPAwarded)
	require.NotNil(t, res.NextBlockID)
	assert.Equal(t, question.ID, *res.NextBlockID)

	again, err := svc.CompleteBlock(ctx, user.ID, intro.ID)
	require.NoError(t, err)
	assert.False(t, again.Credited)
	assert.Zero(t, again.XPAwarded)

	hint, err := svc.UseHint(ctx, user.ID, question.ID)
	require.NoError(t, err)
	assert.Equal(t, "Not A", hint)

	wrong, err := svc.SubmitAnswer(ctx, user.ID, question.ID, "A")
	require.NoError(t, err)
	assert.False(t, wrong.IsCorrect)
	assert.Empty(t, wrong.CorrectAnswer)
	assert.False(t, wrong.Credited)

	state, err := svc.ProgressRepo.FindBlockState(user.ID, question.ID)
	require.NoError(t, err)
	assert.False(t, state.IsCompleted)
	assert.True(t, state.HintUsed)
	require.NotNil(t, state.UserAnswer)
	assert.Equal(t, "A", *state.UserAnswer)

	right, err := svc.SubmitAnswer(ctx, user.ID, question.ID, "B")
	require.NoError(t, err)
	assert.True(t, right.IsCorrect)
	assert.Equal(t, "B", right.CorrectAnswer)
	assert.True(t, right.Credited)
	assert.Equal(t, XPCorrectAnswer, right.XPAwarded)
	require.NotNil(t, right.NextBlockID)
	assert.Equal(t, outro.ID, *right.NextBlockID)

	last, err := svc.CompleteBlock(ctx, user.ID, outro.ID)
	require.NoError(t, err)
	assert.True(t, last.Credited)
	assert.True(t, last.SectionCompleted)
	assert.Nil(t, last.NextBlockID)

	section, err := svc.SectionRepo.FindByID(seed.Section.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SectionCompleted, section.Status)

	progress, err := svc.ProgressRepo.FindProgress(user.ID, seed.Course.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, progress.TotalBlocksCompleted)
	assert.Equal(t, 2, progress.TotalQuestionsAnswered)
	assert.Equal(t, 1, progress.TotalCorrectAnswers)
	assert.Equal(t, 2*XPContentBlock+XPCorrectAnswer, progress.XPPoints)
	assert.Equal(t, 1, progress.CurrentStreak)
	assert.Equal(t, 1, progress.LongestStreak)

	u, err := svc.UserRepo.FindByID(user.ID)
	require.NoError(t, err)
	assert.Equal(t, 2*XPContentBlock+XPCorrectAnswer, u.XP)

	views, err := svc.FetchBlocks(ctx, user.ID, seed.Section.ID)
	require.NoError(t, err)
	require.Len(t, views, 3)
	for _, v := range views {
		require.NotNil(t, v.Status)
		assert.Equal(t, BlockStatusDone, *v.Status)
	}
	assert.Equal(t, "B", views[1].CorrectAnswer)
	assert.Equal(t, "B is right", views[1].Explanation)
	assert.True(t, views[2].IsLastBlockInSection)
}

func TestFetchBlocks_HintOnlyAfterUseHint(t *testing.T) {
	svc, seed, user := seedLesson(t)
	ctx := context.Background()
	question := seed.Blocks[1]

	_, err := svc.CompleteBlock(ctx, user.ID, seed.Blocks[0].ID)
	require.NoError(t, err)

	views, err := svc.FetchBlocks(ctx, user.ID, seed.Section.ID)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Empty(t, views[1].Hint)
	raw, err := json.Marshal(views[1])
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "Not A")
	assert.NotContains(t, string(raw), `"hint"`)

	hint, err := svc.UseHint(ctx, user.ID, question.ID)
	require.NoError(t, err)
	assert.Equal(t, "Not A", hint)

	views, err = svc.FetchBlocks(ctx, user.ID, seed.Section.ID)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.True(t, views[1].HintUsed)
	assert.Equal(t, "Not A", views[1].Hint)
	assert.Empty(t, views[1].CorrectAnswer)
}

func TestCompleteBlock_ConcurrentClicksCreditOnce(t *testing.T) {
	svc, seed, user := seedLesson(t)
	intro := seed.Blocks[0]

	const clicks = 8
	results := make([]*CompletionResult, clicks)
	errs := make([]error, clicks)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < clicks; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i], errs[i] = svc.CompleteBlock(context.Background(), user.ID, intro.ID)
		}(i)
	}
	close(start)
	wg.Wait()

	credited := 0
	for i := range results {
		require.NoError(t, errs[i])
		if results[i].Credited {
			credited++
		}
	}
	assert.Equal(t, 1, credited)

	progress, err := svc.ProgressRepo.FindProgress(user.ID, seed.Course.ID)
	require.NoError(t, err)
	assert.Equal(t, XPContentBlock, progress.XPPoints)

	stored, err := svc.UserRepo.FindByID(user.ID)
	require.NoError(t, err)
	assert.Equal(t, XPContentBlock, stored.XP)
}

func TestSubmitAnswer_AfterCompletionCountsButDoesNotCredit(t *testing.T) {
	svc, seed, user := seedLesson(t)
	ctx := context.Background()

	_, err := svc.CompleteBlock(ctx, user.ID, seed.Blocks[0].ID)
	require.NoError(t, err)
	_, err = svc.SubmitAnswer(ctx, user.ID, seed.Blocks[1].ID, "B")
	require.NoError(t, err)

	res, err := svc.SubmitAnswer(ctx, user.ID, seed.Blocks[1].ID, "A")
	require.NoError(t, err)
	assert.False(t, res.IsCorrect)
	assert.False(t, res.Credited)

	progress, err := svc.ProgressRepo.FindProgress(user.ID, seed.Course.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, progress.TotalQuestionsAnswered)
	assert.Equal(t, 1, progress.TotalCorrectAnswers)

	state, err := svc.ProgressRepo.FindBlockState(user.ID, seed.Blocks[1].ID)
	require.NoError(t, err)
	assert.Equal(t, "B", *state.UserAnswer)
}

func TestSubmitAnswer_NotAQuestion(t *testing.T) {
	svc, seed, user := seedLesson(t)

	_, err := svc.SubmitAnswer(context.Background(), user.ID, seed.Blocks[0].ID, "x")
	assert.ErrorIs(t, err, util.ErrInvalidState)
}

func TestCompleteBlock_SeenAnswerOnQuestion(t *testing.T) {
	svc, seed, user := seedLesson(t)
	ctx := context.Background()

	_, err := svc.CompleteBlock(ctx, user.ID, seed.Blocks[0].ID)
	require.NoError(t, err)
	res, err := svc.CompleteBlock(ctx, user.ID, seed.Blocks[1].ID)
	require.NoError(t, err)
	assert.True(t, res.Credited)
	assert.Equal(t, XPContentBlock, res.XPAwarded)

	state, err := svc.ProgressRepo.FindBlockState(user.ID, seed.Blocks[1].ID)
	require.NoError(t, err)
	assert.True(t, state.SeenAnswer)
	assert.Nil(t, state.IsCorrect)
}

func TestMarkSectionCompleted(t *testing.T) {
	svc, seed, user := seedLesson(t)
	ctx := context.Background()

	section, err := svc.MarkSectionCompleted(ctx, user.ID, seed.Section.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SectionCompleted, section.Status)
	require.NotNil(t, section.CompletedAt)

	section, err = svc.MarkSectionCompleted(ctx, user.ID, seed.Section.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SectionCompleted, section.Status)

	require.NoError(t, svc.SectionRepo.UpdateFields(seed.Section.ID, map[string]interface{}{"status": model.SectionNoContent}))
	_, err = svc.MarkSectionCompleted(ctx, user.ID, seed.Section.ID)
	assert.ErrorIs(t, err, util.ErrInvalidState)
}

func TestJudgeAnswer(t *testing.T) {
	assert.True(t, JudgeAnswer(model.QuestionMultiselect, " b, a ,a,", "a,b"))
	assert.False(t, JudgeAnswer(model.QuestionMultiselect, "a", "a,b"))
	assert.True(t, JudgeAnswer(model.QuestionSelect, "B", "B"))
	assert.False(t, JudgeAnswer(model.QuestionSelect, "b", "B"))
	assert.False(t, JudgeAnswer(model.QuestionText, "B ", "B"))
}

func TestNormalizeMultiselect(t *testing.T) {
	assert.Equal(t, "a,b,c", NormalizeMultiselect("c, b,,a, b"))
	assert.Equal(t, "", NormalizeMultiselect(" , "))
}
