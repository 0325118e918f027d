package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/url"
	"path/filepath"
	"strings"
	"suma_backend/internal/jobs"
	"suma_backend/internal/model"
	"suma_backend/internal/repository"
	"suma_backend/internal/util"
	"suma_backend/pkg/logger"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	MinFlashcardTarget = 5
	MaxFlashcardTarget = 50
	MaxFlashcardURLs   = 10

	defaultEase = 2.5
	minEase     = 1.3
)

type FlashcardService struct {
	DB             *gorm.DB
	Repo           *repository.FlashcardRepository
	Storage        *StorageService
	MaxUploadBytes int64
	DefaultTarget  int
	Now            func() time.Time
}

func NewFlashcardService(db *gorm.DB, storage *StorageService, maxUploadMB int64, defaultTarget int) *FlashcardService {
	if defaultTarget <= 0 {
		defaultTarget = 20
	}
	return &FlashcardService{
		DB:             db,
		Repo:           repository.NewFlashcardRepository(db),
		Storage:        storage,
		MaxUploadBytes: maxUploadMB << 20,
		DefaultTarget:  defaultTarget,
		Now:            time.Now,
	}
}

// FlashcardJobPayload 抽认卡生成任务的输入
type FlashcardJobPayload struct {
	SetID uint `json:"setId"`
}

// swagger:model FlashcardSetRequest
type FlashcardSetRequest struct {
	Title       string `json:"title" form:"title"`
	Description string `json:"description" form:"description"`
	TargetCount int    `json:"targetCount" form:"targetCount"`
}

func (s *FlashcardService) targetCount(n int) (int, error) {
	if n == 0 {
		return s.DefaultTarget, nil
	}
	if n < MinFlashcardTarget || n > MaxFlashcardTarget {
		return 0, fmt.Errorf("%w: targetCount must be between %d and %d", util.ErrInvalidInput, MinFlashcardTarget, MaxFlashcardTarget)
	}
	return n, nil
}

// createAndEnqueue 抽认卡集与生成任务在同一事务中写入
func (s *FlashcardService) createAndEnqueue(ctx context.Context, set *model.FlashcardSet) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.Repo.WithTx(tx).CreateSet(set); err != nil {
			return err
		}
		_, err := jobs.Enqueue(tx, model.JobTypeFlashcardGeneration, set.UserID, set.ID, FlashcardJobPayload{SetID: set.ID})
		return err
	})
}

// CreateFromFile 上传 PDF / 文本文件并投递生成任务
func (s *FlashcardService) CreateFromFile(ctx context.Context, userID uint, req FlashcardSetRequest, file multipart.File, header *multipart.FileHeader) (*model.FlashcardSet, error) {
	if s.MaxUploadBytes > 0 && header.Size > s.MaxUploadBytes {
		return nil, fmt.Errorf("%w: file exceeds %d MB", util.ErrInvalidInput, s.MaxUploadBytes>>20)
	}
	if !util.HasAllowedExtension(header.Filename, util.AllowedFlashcardExtensions) {
		return nil, fmt.Errorf("%w: unsupported file extension", util.ErrInvalidInput)
	}
	target, err := s.targetCount(req.TargetCount)
	if err != nil {
		return nil, err
	}

	sniffed, err := util.ValidateMimeType(file, util.AllowedFlashcardSourceTypes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrInvalidInput, err)
	}
	mimeType := util.SourceContentType(header.Filename, sniffed)
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	key, err := s.Storage.SaveSource(ctx, userID, header.Filename, file, header.Size, mimeType)
	if err != nil {
		return nil, fmt.Errorf("upload source file: %w", err)
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(header.Filename), filepath.Ext(header.Filename))
	}
	set := &model.FlashcardSet{
		UserID:         userID,
		Title:          title,
		Description:    req.Description,
		SourceType:     model.FlashcardSourceFile,
		SourceFileKey:  key,
		SourceFileName: header.Filename,
		SourceFileType: mimeType,
		TargetCount:    target,
		Status:         model.FlashcardSetProcessing,
	}
	if err := s.createAndEnqueue(ctx, set); err != nil {
		if delErr := s.Storage.RemoveSource(ctx, key); delErr != nil {
			logger.Log.Warn("Delete orphan upload failed", zap.String("key", key), zap.Error(delErr))
		}
		return nil, err
	}

	logger.Log.Info("Flashcard generation enqueued", zap.Uint("setId", set.ID), zap.String("source", "file"))
	return set, nil
}

func normalizeURLs(raw []string) ([]string, error) {
	urls := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		u, err := url.Parse(r)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("%w: invalid url %q", util.ErrInvalidInput, r)
		}
		urls = append(urls, u.String())
	}
	if len(urls) == 0 || len(urls) > MaxFlashcardURLs {
		return nil, fmt.Errorf("%w: between 1 and %d urls are required", util.ErrInvalidInput, MaxFlashcardURLs)
	}
	return urls, nil
}

// CreateFromURLs 抓取网页内容生成抽认卡
func (s *FlashcardService) CreateFromURLs(ctx context.Context, userID uint, req FlashcardSetRequest, rawURLs []string) (*model.FlashcardSet, error) {
	urls, err := normalizeURLs(rawURLs)
	if err != nil {
		return nil, err
	}
	target, err := s.targetCount(req.TargetCount)
	if err != nil {
		return nil, err
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		u, _ := url.Parse(urls[0])
		title = u.Host
	}
	set := &model.FlashcardSet{
		UserID:      userID,
		Title:       title,
		Description: req.Description,
		SourceType:  model.FlashcardSourceURL,
		SourceURLs:  datatypes.JSONSlice[string](urls),
		TargetCount: target,
		Status:      model.FlashcardSetProcessing,
	}
	if err := s.createAndEnqueue(ctx, set); err != nil {
		return nil, err
	}

	logger.Log.Info("Flashcard generation enqueued", zap.Uint("setId", set.ID), zap.Int("urls", len(urls)))
	return set, nil
}

func (s *FlashcardService) ListSets(userID uint) ([]model.FlashcardSet, error) {
	return s.Repo.ListSetsByUser(userID)
}

func (s *FlashcardService) ownedSet(userID, setID uint, withCards bool) (*model.FlashcardSet, error) {
	var (
		set *model.FlashcardSet
		err error
	)
	if withCards {
		set, err = s.Repo.FindSetWithCards(setID)
	} else {
		set, err = s.Repo.FindSetByID(setID)
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrFlashcardSetNotFound
	}
	if err != nil {
		return nil, err
	}
	if set.UserID != userID {
		return nil, util.ErrNotAuthorized
	}
	return set, nil
}

// swagger:model FlashcardSetDetail
type FlashcardSetDetail struct {
	*model.FlashcardSet
	Progress []model.UserFlashcardProgress `json:"progress"`
}

func (s *FlashcardService) GetSet(userID, setID uint) (*FlashcardSetDetail, error) {
	set, err := s.ownedSet(userID, setID, true)
	if err != nil {
		return nil, err
	}
	progress, err := s.Repo.ListProgressBySet(userID, setID)
	if err != nil {
		return nil, err
	}
	return &FlashcardSetDetail{FlashcardSet: set, Progress: progress}, nil
}

// DeleteSet 删除卡片集、卡片和复习记录，源文件尽力删除
func (s *FlashcardService) DeleteSet(ctx context.Context, userID, setID uint) error {
	set, err := s.ownedSet(userID, setID, false)
	if err != nil {
		return err
	}
	if err := s.Repo.DeleteSet(set.ID); err != nil {
		return err
	}
	if set.SourceFileKey != "" {
		if err := s.Storage.RemoveSource(ctx, set.SourceFileKey); err != nil {
			logger.Log.Warn("Delete flashcard source failed", zap.String("key", set.SourceFileKey), zap.Error(err))
		}
	}
	return nil
}

// ScheduleReview 简化的 SM-2：答对间隔 1 → 6 → round(interval·ease)，答错重置
func ScheduleReview(p *model.UserFlashcardProgress, correct bool, now time.Time) {
	if p.EaseFactor == 0 {
		p.EaseFactor = defaultEase
	}
	if correct {
		p.Repetitions++
		p.CorrectCount++
		switch p.Repetitions {
		case 1:
			p.IntervalDays = 1
		case 2:
			p.IntervalDays = 6
		default:
			p.IntervalDays = int(math.Round(float64(p.IntervalDays) * p.EaseFactor))
		}
		p.EaseFactor += 0.1
	} else {
		p.Repetitions = 0
		p.IncorrectCount++
		p.IntervalDays = 1
		p.EaseFactor = math.Max(minEase, p.EaseFactor-0.2)
	}
	next := now.AddDate(0, 0, p.IntervalDays)
	p.LastReviewedAt = &now
	p.NextReviewAt = &next
}

// Review 记录一次复习结果
func (s *FlashcardService) Review(ctx context.Context, userID, cardID uint, correct bool) (*model.UserFlashcardProgress, error) {
	card, err := s.Repo.FindCardByID(cardID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrFlashcardNotFound
	}
	if err != nil {
		return nil, err
	}
	if _, err := s.ownedSet(userID, card.SetID, false); err != nil {
		return nil, err
	}

	now := s.Now()
	var progress *model.UserFlashcardProgress
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.Repo.WithTx(tx)
		if err := repo.EnsureProgress(userID, card.ID); err != nil {
			return err
		}
		p, err := repo.LockProgress(userID, card.ID)
		if err != nil {
			return err
		}
		ScheduleReview(p, correct, now)
		progress = p
		return repo.SaveProgress(p)
	})
	if err != nil {
		return nil, err
	}
	return progress, nil
}

// swagger:model DifficultCard
type DifficultCard struct {
	FlashcardID    uint   `json:"flashcardId"`
	Question       string `json:"question"`
	IncorrectCount int    `json:"incorrectCount"`
	CorrectCount   int    `json:"correctCount"`
}

// swagger:model FlashcardStats
type FlashcardStats struct {
	TotalCards        int64          `json:"totalCards"`
	ReviewedCards     int            `json:"reviewedCards"`
	CorrectAnswers    int            `json:"correctAnswers"`
	IncorrectAnswers  int            `json:"incorrectAnswers"`
	Accuracy          int            `json:"accuracy"`
	DueCards          int            `json:"dueCards"`
	MostDifficultCard *DifficultCard `json:"mostDifficultCard"`
}

func (s *FlashcardService) Stats(userID uint) (*FlashcardStats, error) {
	total, err := s.Repo.CountCardsByUser(userID)
	if err != nil {
		return nil, err
	}
	list, err := s.Repo.ListProgressByUser(userID)
	if err != nil {
		return nil, err
	}

	now := s.Now()
	out := &FlashcardStats{TotalCards: total, ReviewedCards: len(list)}
	var hardest *model.UserFlashcardProgress
	for i := range list {
		p := &list[i]
		out.CorrectAnswers += p.CorrectCount
		out.IncorrectAnswers += p.IncorrectCount
		if p.NextReviewAt != nil && !p.NextReviewAt.After(now) {
			out.DueCards++
		}
		if p.IncorrectCount > 0 && (hardest == nil || p.IncorrectCount > hardest.IncorrectCount) {
			hardest = p
		}
	}
	if answers := out.CorrectAnswers + out.IncorrectAnswers; answers > 0 {
		out.Accuracy = int(math.Round(float64(out.CorrectAnswers) / float64(answers) * 100))
	}

	if hardest != nil {
		card, err := s.Repo.FindCardByID(hardest.FlashcardID)
		if err == nil {
			out.MostDifficultCard = &DifficultCard{
				FlashcardID:    card.ID,
				Question:       card.Question,
				IncorrectCount: hardest.IncorrectCount,
				CorrectCount:   hardest.CorrectCount,
			}
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	return out, nil
}
