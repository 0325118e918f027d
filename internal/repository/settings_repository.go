package repository

import (
	"suma_backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SettingsRepository struct {
	DB *gorm.DB
}

func NewSettingsRepository(db *gorm.DB) *SettingsRepository {
	return &SettingsRepository{DB: db}
}

func (r *SettingsRepository) FindByUserID(userID uint) (*model.UserSettings, error) {
	var s model.UserSettings
	err := r.DB.Where("user_id = ?", userID).First(&s).Error
	return &s, err
}

func (r *SettingsRepository) Upsert(s *model.UserSettings) error {
	return r.DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"notify_when_course_is_ready",
			"notify_when_flashcard_set_is_ready",
			"send_daily_problems",
			"updated_at",
		}),
	}).Create(s).Error
}
