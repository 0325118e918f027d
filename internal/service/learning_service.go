package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"suma_backend/internal/model"
	"suma_backend/internal/repository"
	"suma_backend/internal/util"
	"suma_backend/pkg/logger"
	"suma_backend/pkg/monitoring"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	XPContentBlock   = 10
	XPCorrectAnswer  = 30
	BlockStatusDone  = "completed"
	BlockStatusOpen  = "current"
	multiselectDelim = ","
)

// LearningService 渐进解锁：学习者只能看到已完成的块和下一个待完成的块
type LearningService struct {
	DB           *gorm.DB
	BlockRepo    *repository.BlockRepository
	SectionRepo  *repository.SectionRepository
	CourseRepo   *repository.CourseRepository
	ProgressRepo *repository.ProgressRepository
	UserRepo     *repository.UserRepository
	Leaderboard  *LeaderboardService
	Now          func() time.Time
}

func NewLearningService(db *gorm.DB, leaderboard *LeaderboardService) *LearningService {
	return &LearningService{
		DB:           db,
		BlockRepo:    repository.NewBlockRepository(db),
		SectionRepo:  repository.NewSectionRepository(db),
		CourseRepo:   repository.NewCourseRepository(db),
		ProgressRepo: repository.NewProgressRepository(db),
		UserRepo:     repository.NewUserRepository(db),
		Leaderboard:  leaderboard,
		Now:          time.Now,
	}
}

// BlockView 返回给学习者的块，附带其个人状态
// swagger:model BlockView
type BlockView struct {
	model.Block
	Status               *string    `json:"status"`
	UserAnswer           *string    `json:"userAnswer"`
	IsCorrect            *bool      `json:"isCorrect"`
	HintUsed             bool       `json:"hintUsed"`
	SeenAnswer           bool       `json:"seenAnswer"`
	CompletedAt          *time.Time `json:"completedAt"`
	IsLastBlockInSection bool       `json:"isLastBlockInSection"`
	// 完成后才下发答案与解析，提示在 UseHint 之后才下发
	Hint          string `json:"hint,omitempty"`
	CorrectAnswer string `json:"correctAnswer,omitempty"`
	Explanation   string `json:"explanation,omitempty"`
}

// swagger:model CompletionResult
type CompletionResult struct {
	Credited         bool  `json:"credited"`
	XPAwarded        int   `json:"xpAwarded"`
	SectionCompleted bool  `json:"sectionCompleted"`
	NextBlockID      *uint `json:"nextBlockId,omitempty"`
}

// swagger:model AnswerResult
type AnswerResult struct {
	IsCorrect     bool   `json:"isCorrect"`
	Explanation   string `json:"explanation,omitempty"`
	CorrectAnswer string `json:"correctAnswer,omitempty"`
	CompletionResult
}

func strPtr(s string) *string { return &s }

func (s *LearningService) ownedSection(userID, sectionID uint) (*model.Section, error) {
	section, err := s.SectionRepo.FindByID(sectionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrSectionNotFound
	}
	if err != nil {
		return nil, err
	}
	if section.UserID != userID {
		return nil, util.ErrNotAuthorized
	}
	return section, nil
}

func (s *LearningService) ownedBlock(userID, blockID uint) (*model.Block, error) {
	block, err := s.BlockRepo.FindByID(blockID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrBlockNotFound
	}
	if err != nil {
		return nil, err
	}
	if block.UserID != userID {
		return nil, util.ErrNotAuthorized
	}
	return block, nil
}

// FetchBlocks 没有任何状态时只返回第一个块（status 为 null），并同时为它建立可见状态；
// 否则返回到第一个未完成块为止。
func (s *LearningService) FetchBlocks(ctx context.Context, userID, sectionID uint) ([]BlockView, error) {
	section, err := s.ownedSection(userID, sectionID)
	if err != nil {
		return nil, err
	}
	blocks, err := s.BlockRepo.ListBySection(section.ID)
	if err != nil {
		return nil, err
	}
	if len(blocks) == 0 {
		return []BlockView{}, nil
	}
	now := s.Now()
	s.touchCourse(userID, section.ID, now)

	states, err := s.ProgressRepo.ListBlockStates(userID, section.ID)
	if err != nil {
		return nil, err
	}
	maxOrder := blocks[len(blocks)-1].Order

	if len(states) == 0 {
		first := blocks[0]
		if err := s.ProgressRepo.EnsureBlockState(&model.UserBlockState{
			UserID:    userID,
			BlockID:   first.ID,
			SectionID: section.ID,
			IsVisible: true,
			ViewedAt:  &now,
		}); err != nil {
			return nil, err
		}
		return []BlockView{{
			Block:                first,
			IsLastBlockInSection: first.Order == maxOrder,
		}}, nil
	}

	byBlock := make(map[uint]*model.UserBlockState, len(states))
	for i := range states {
		byBlock[states[i].BlockID] = &states[i]
	}

	views := make([]BlockView, 0, len(blocks))
	for _, b := range blocks {
		st := byBlock[b.ID]
		views = append(views, blockView(b, st, maxOrder))
		if st == nil || !st.IsCompleted {
			break
		}
	}
	return views, nil
}

func blockView(b model.Block, st *model.UserBlockState, maxOrder int) BlockView {
	v := BlockView{Block: b, IsLastBlockInSection: b.Order == maxOrder}
	if st == nil {
		return v
	}
	switch {
	case st.IsCompleted:
		v.Status = strPtr(BlockStatusDone)
		if b.IsQuestion() {
			v.CorrectAnswer = b.CorrectAnswer
			v.Explanation = b.Explanation
		}
	case st.IsVisible:
		v.Status = strPtr(BlockStatusOpen)
	}
	if b.IsQuestion() && (st.HintUsed || st.IsCompleted) {
		v.Hint = b.Hint
	}
	v.UserAnswer = st.UserAnswer
	v.IsCorrect = st.IsCorrect
	v.HintUsed = st.HintUsed
	v.SeenAnswer = st.SeenAnswer
	v.CompletedAt = st.CompletedAt
	return v
}

// touchCourse 确保进度行存在并刷新最近访问时间，失败不影响读取
func (s *LearningService) touchCourse(userID, sectionID uint, now time.Time) {
	course, err := s.CourseRepo.FindBySectionID(sectionID)
	if err != nil {
		return
	}
	if err := s.ProgressRepo.CreateProgress(&model.UserProgress{
		UserID:         userID,
		CourseID:       course.ID,
		StartedAt:      now,
		LastAccessedAt: now,
	}); err != nil {
		logger.Log.Warn("Create progress failed", zap.Uint("courseId", course.ID), zap.Error(err))
		return
	}
	if err := s.ProgressRepo.TouchLastAccessed(userID, course.ID, now); err != nil {
		logger.Log.Warn("Touch progress failed", zap.Uint("courseId", course.ID), zap.Error(err))
	}
}

// reachableState 返回学习者在该块上的状态。第一个块即使还没有状态也可达；
// 其余没有可见状态的块视为未解锁。
func reachableState(tx *gorm.DB, userID uint, block *model.Block, now time.Time) (*model.UserBlockState, error) {
	progress := repository.NewProgressRepository(tx)
	state, err := progress.FindBlockState(userID, block.ID)
	if err == nil {
		if !state.IsVisible {
			return nil, fmt.Errorf("%w: block is locked", util.ErrInvalidState)
		}
		return state, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	_, err = repository.NewBlockRepository(tx).FindPrevious(block.SectionID, block.Order)
	if err == nil {
		return nil, fmt.Errorf("%w: block is locked", util.ErrInvalidState)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if err := progress.Unlock(userID, block.ID, block.SectionID, now); err != nil {
		return nil, err
	}
	return progress.FindBlockState(userID, block.ID)
}

// CompleteBlock 内容块的“继续”，或问题块的“查看答案”（seenAnswer，不计正确）
func (s *LearningService) CompleteBlock(ctx context.Context, userID, blockID uint) (*CompletionResult, error) {
	block, err := s.ownedBlock(userID, blockID)
	if err != nil {
		return nil, err
	}
	now := s.Now()
	result := &CompletionResult{}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := reachableState(tx, userID, block, now); err != nil {
			return err
		}
		updates := map[string]interface{}{"completed_at": now}
		if block.IsQuestion() {
			updates["seen_answer"] = true
		}
		credited, err := repository.NewProgressRepository(tx).CompleteBlockState(userID, block.ID, updates)
		if err != nil || !credited {
			return err
		}
		result.Credited = true
		result.XPAwarded = XPContentBlock
		if err := s.credit(tx, userID, block, XPContentBlock, false, now); err != nil {
			return err
		}
		return s.advance(tx, userID, block, now, result)
	})
	if err != nil {
		return nil, err
	}
	s.afterCredit(ctx, block, result)
	return result, nil
}

// SubmitAnswer 判题。答错只记录答案；答对走完成流程。
// 已完成的块仍然判题，但不再记录答案，也不再加分。
func (s *LearningService) SubmitAnswer(ctx context.Context, userID, blockID uint, answer string) (*AnswerResult, error) {
	block, err := s.ownedBlock(userID, blockID)
	if err != nil {
		return nil, err
	}
	if !block.IsQuestion() {
		return nil, fmt.Errorf("%w: block is not a question", util.ErrInvalidState)
	}

	correct := JudgeAnswer(block.QuestionType, answer, block.CorrectAnswer)
	result := &AnswerResult{IsCorrect: correct, Explanation: block.Explanation}
	if correct {
		result.CorrectAnswer = block.CorrectAnswer
	}
	now := s.Now()

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		state, err := reachableState(tx, userID, block, now)
		if err != nil {
			return err
		}
		courseID, err := courseOfSection(tx, block.SectionID)
		if err != nil {
			return err
		}
		progressRepo := repository.NewProgressRepository(tx)
		progress, err := progressRepo.LockProgress(userID, courseID, now)
		if err != nil {
			return err
		}
		progress.TotalQuestionsAnswered++
		progress.LastAccessedAt = now
		if state.IsCompleted {
			return progressRepo.SaveProgress(progress)
		}

		if !correct {
			touchStreak(progress, now)
			if err := progressRepo.SaveProgress(progress); err != nil {
				return err
			}
			return progressRepo.UpdateOpenBlockState(userID, block.ID, map[string]interface{}{
				"user_answer": answer,
				"is_correct":  false,
			})
		}

		credited, err := progressRepo.CompleteBlockState(userID, block.ID, map[string]interface{}{
			"user_answer":  answer,
			"is_correct":   true,
			"completed_at": now,
		})
		if err != nil {
			return err
		}
		if !credited {
			return progressRepo.SaveProgress(progress)
		}
		result.Credited = true
		result.XPAwarded = XPCorrectAnswer
		applyCredit(progress, XPCorrectAnswer, true, now)
		if err := progressRepo.SaveProgress(progress); err != nil {
			return err
		}
		if err := repository.NewUserRepository(tx).UpdateXP(userID, XPCorrectAnswer); err != nil {
			return err
		}
		return s.advance(tx, userID, block, now, &result.CompletionResult)
	})
	if err != nil {
		return nil, err
	}
	s.afterCredit(ctx, block, &result.CompletionResult)
	return result, nil
}

// UseHint 标记已使用提示并返回提示内容
func (s *LearningService) UseHint(ctx context.Context, userID, blockID uint) (string, error) {
	block, err := s.ownedBlock(userID, blockID)
	if err != nil {
		return "", err
	}
	if !block.IsQuestion() {
		return "", fmt.Errorf("%w: block is not a question", util.ErrInvalidState)
	}
	now := s.Now()
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := reachableState(tx, userID, block, now); err != nil {
			return err
		}
		return repository.NewProgressRepository(tx).UpdateOpenBlockState(userID, block.ID,
			map[string]interface{}{"hint_used": true})
	})
	if err != nil {
		return "", err
	}
	return block.Hint, nil
}

// MarkSectionCompleted 只允许从 in_progress 迁移，已完成时直接返回
func (s *LearningService) MarkSectionCompleted(ctx context.Context, userID, sectionID uint) (*model.Section, error) {
	section, err := s.ownedSection(userID, sectionID)
	if err != nil {
		return nil, err
	}
	switch section.Status {
	case model.SectionCompleted:
		return section, nil
	case model.SectionInProgress:
	default:
		return nil, fmt.Errorf("%w: section status is %s", util.ErrInvalidState, section.Status)
	}

	now := s.Now()
	if _, err := s.SectionRepo.TransitionStatus(section.ID, model.SectionInProgress, model.SectionCompleted,
		map[string]interface{}{"completed_at": now}); err != nil {
		return nil, err
	}
	section, err = s.SectionRepo.FindByID(section.ID)
	if err != nil {
		return nil, err
	}
	if section.Status != model.SectionCompleted {
		return nil, fmt.Errorf("%w: section status is %s", util.ErrInvalidState, section.Status)
	}
	return section, nil
}

func courseOfSection(tx *gorm.DB, sectionID uint) (uint, error) {
	course, err := repository.NewCourseRepository(tx).FindBySectionID(sectionID)
	if err != nil {
		return 0, err
	}
	return course.ID, nil
}

func touchStreak(p *model.UserProgress, now time.Time) {
	p.CurrentStreak, p.LongestStreak = NextStreak(p.CurrentStreak, p.LongestStreak, p.LastActivityDate, now)
	p.LastActivityDate = &now
	p.LastAccessedAt = now
}

func applyCredit(p *model.UserProgress, xp int, correct bool, now time.Time) {
	p.TotalBlocksCompleted++
	p.XPPoints += xp
	if correct {
		p.TotalCorrectAnswers++
	}
	touchStreak(p, now)
}

// credit 在事务内更新课程进度与用户总经验
func (s *LearningService) credit(tx *gorm.DB, userID uint, block *model.Block, xp int, correct bool, now time.Time) error {
	courseID, err := courseOfSection(tx, block.SectionID)
	if err != nil {
		return err
	}
	progressRepo := repository.NewProgressRepository(tx)
	progress, err := progressRepo.LockProgress(userID, courseID, now)
	if err != nil {
		return err
	}
	applyCredit(progress, xp, correct, now)
	if err := progressRepo.SaveProgress(progress); err != nil {
		return err
	}
	return repository.NewUserRepository(tx).UpdateXP(userID, xp)
}

// advance 最后一个块完成时小节置为 completed，否则解锁下一个块
func (s *LearningService) advance(tx *gorm.DB, userID uint, block *model.Block, now time.Time, result *CompletionResult) error {
	blocks := repository.NewBlockRepository(tx)
	maxOrder, err := blocks.MaxOrder(block.SectionID)
	if err != nil {
		return err
	}
	if block.Order >= maxOrder {
		ok, err := repository.NewSectionRepository(tx).TransitionStatus(block.SectionID,
			model.SectionInProgress, model.SectionCompleted,
			map[string]interface{}{"completed_at": now})
		result.SectionCompleted = ok
		return err
	}

	next, err := blocks.FindNext(block.SectionID, block.Order)
	if err != nil {
		return err
	}
	if err := repository.NewProgressRepository(tx).Unlock(userID, next.ID, block.SectionID, now); err != nil {
		return err
	}
	result.NextBlockID = &next.ID
	return nil
}

func (s *LearningService) afterCredit(ctx context.Context, block *model.Block, result *CompletionResult) {
	if !result.Credited {
		return
	}
	kind := string(model.BlockContent)
	if block.IsQuestion() {
		kind = string(model.BlockQuestion)
	}
	monitoring.BlockCompletions.WithLabelValues(kind).Inc()
	if s.Leaderboard != nil {
		s.Leaderboard.Invalidate(ctx)
	}
}

// JudgeAnswer 多选题忽略顺序、空白与重复项，其余题型严格相等
func JudgeAnswer(qt model.QuestionType, given, correct string) bool {
	if qt == model.QuestionMultiselect {
		return NormalizeMultiselect(given) == NormalizeMultiselect(correct)
	}
	return given == correct
}

func NormalizeMultiselect(answer string) string {
	seen := make(map[string]bool)
	items := make([]string, 0)
	for _, part := range strings.Split(answer, multiselectDelim) {
		part = strings.TrimSpace(part)
		if part == "" || seen[part] {
			continue
		}
		seen[part] = true
		items = append(items, part)
	}
	sort.Strings(items)
	return strings.Join(items, multiselectDelim)
}
