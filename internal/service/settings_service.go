package service

import (
	"errors"
	"suma_backend/internal/model"
	"suma_backend/internal/repository"

	"gorm.io/gorm"
)

type SettingsService struct {
	Repo *repository.SettingsRepository
}

func NewSettingsService(repo *repository.SettingsRepository) *SettingsService {
	return &SettingsService{Repo: repo}
}

// SettingsUpdate 未提供的字段保持原值
type SettingsUpdate struct {
	NotifyWhenCourseIsReady       *bool `json:"notifyWhenCourseIsReady"`
	NotifyWhenFlashcardSetIsReady *bool `json:"notifyWhenFlashcardSetIsReady"`
	SendDailyProblems             *bool `json:"sendDailyProblems"`
}

// Get 没有记录时返回全部开启的默认值，不落库
func (s *SettingsService) Get(userID uint) (*model.UserSettings, error) {
	settings, err := s.Repo.FindByUserID(userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		defaults := model.DefaultUserSettings(userID)
		return &defaults, nil
	}
	if err != nil {
		return nil, err
	}
	return settings, nil
}

func (s *SettingsService) Update(userID uint, req SettingsUpdate) (*model.UserSettings, error) {
	current, err := s.Get(userID)
	if err != nil {
		return nil, err
	}

	if req.NotifyWhenCourseIsReady != nil {
		current.NotifyWhenCourseIsReady = *req.NotifyWhenCourseIsReady
	}
	if req.NotifyWhenFlashcardSetIsReady != nil {
		current.NotifyWhenFlashcardSetIsReady = *req.NotifyWhenFlashcardSetIsReady
	}
	if req.SendDailyProblems != nil {
		current.SendDailyProblems = *req.SendDailyProblems
	}

	// 冲突列是 user_id，主键交给数据库
	current.ID = 0
	if err := s.Repo.Upsert(current); err != nil {
		return nil, err
	}
	return s.Get(userID)
}
