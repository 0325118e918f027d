package repository

import (
	"suma_backend/internal/model"

	"gorm.io/gorm"
)

type LevelRepository struct {
	DB *gorm.DB
}

func NewLevelRepository(db *gorm.DB) *LevelRepository {
	return &LevelRepository{DB: db}
}

func (r *LevelRepository) WithTx(tx *gorm.DB) *LevelRepository {
	return &LevelRepository{DB: tx}
}

func (r *LevelRepository) CreateBatch(levels []model.Level) error {
	if len(levels) == 0 {
		return nil
	}
	return r.DB.Create(&levels).Error
}

func (r *LevelRepository) ListByCourse(courseID uint) ([]model.Level, error) {
	var levels []model.Level
	err := r.DB.Where("course_id = ?", courseID).Order("order_index ASC").Find(&levels).Error
	return levels, err
}

func (r *LevelRepository) FindByID(id uint) (*model.Level, error) {
	var level model.Level
	err := r.DB.First(&level, id).Error
	return &level, err
}
