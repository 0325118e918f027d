package service

import (
	"errors"
	"suma_backend/internal/model"
	"suma_backend/internal/repository"
	"suma_backend/internal/util"

	"gorm.io/gorm"
)

// UserService 处理用户资料
type UserService struct {
	UserRepo      *repository.UserRepository
	ProgressRepo  *repository.ProgressRepository
	FlashcardRepo *repository.FlashcardRepository
}

func NewUserService(userRepo *repository.UserRepository, progressRepo *repository.ProgressRepository, flashcardRepo *repository.FlashcardRepository) *UserService {
	return &UserService{
		UserRepo:      userRepo,
		ProgressRepo:  progressRepo,
		FlashcardRepo: flashcardRepo,
	}
}

// swagger:model Profile
type Profile struct {
	User           *model.User `json:"user"`
	CoursesStarted int         `json:"coursesStarted"`
	BlocksDone     int         `json:"blocksCompleted"`
	LongestStreak  int         `json:"longestStreak"`
	FlashcardCount int64       `json:"flashcardCount"`
}

func (s *UserService) GetProfile(userID uint) (*Profile, error) {
	user, err := s.UserRepo.FindByID(userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	progress, err := s.ProgressRepo.ListProgressByUser(userID)
	if err != nil {
		return nil, err
	}
	profile := &Profile{User: user, CoursesStarted: len(progress)}
	for _, p := range progress {
		profile.BlocksDone += p.TotalBlocksCompleted
		if p.LongestStreak > profile.LongestStreak {
			profile.LongestStreak = p.LongestStreak
		}
	}

	profile.FlashcardCount, err = s.FlashcardRepo.CountCardsByUser(userID)
	if err != nil {
		return nil, err
	}
	return profile, nil
}
