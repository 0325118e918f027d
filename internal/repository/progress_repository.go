package repository

import (
	"suma_backend/internal/model"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProgressRepository struct {
	DB *gorm.DB
}

func NewProgressRepository(db *gorm.DB) *ProgressRepository {
	return &ProgressRepository{DB: db}
}

func (r *ProgressRepository) WithTx(tx *gorm.DB) *ProgressRepository {
	return &ProgressRepository{DB: tx}
}

// ---- user_block_states ----

func (r *ProgressRepository) ListBlockStates(userID, sectionID uint) ([]model.UserBlockState, error) {
	var states []model.UserBlockState
	err := r.DB.Where("user_id = ? AND section_id = ?", userID, sectionID).Find(&states).Error
	return states, err
}

func (r *ProgressRepository) FindBlockState(userID, blockID uint) (*model.UserBlockState, error) {
	var state model.UserBlockState
	err := r.DB.Where("user_id = ? AND block_id = ?", userID, blockID).First(&state).Error
	return &state, err
}

// EnsureBlockState 已存在时什么也不做（唯一索引 user_id + block_id）
func (r *ProgressRepository) EnsureBlockState(state *model.UserBlockState) error {
	return r.DB.Clauses(clause.OnConflict{DoNothing: true}).Create(state).Error
}

// Unlock 让块对学习者可见，不存在则插入
func (r *ProgressRepository) Unlock(userID, blockID, sectionID uint, now time.Time) error {
	if err := r.EnsureBlockState(&model.UserBlockState{
		UserID:    userID,
		BlockID:   blockID,
		SectionID: sectionID,
		IsVisible: true,
		ViewedAt:  &now,
	}); err != nil {
		return err
	}
	return r.DB.Model(&model.UserBlockState{}).
		Where("user_id = ? AND block_id = ? AND is_visible = ?", userID, blockID, false).
		Updates(map[string]interface{}{"is_visible": true, "viewed_at": now}).Error
}

// CompleteBlockState 只在 is_completed 仍为 false 时生效，返回是否由本次调用完成
func (r *ProgressRepository) CompleteBlockState(userID, blockID uint, updates map[string]interface{}) (bool, error) {
	updates["is_completed"] = true
	res := r.DB.Model(&model.UserBlockState{}).
		Where("user_id = ? AND block_id = ? AND is_completed = ?", userID, blockID, false).
		Updates(updates)
	return res.RowsAffected == 1, res.Error
}

// UpdateOpenBlockState 更新未完成块的答题记录，已完成的块不会被改写
func (r *ProgressRepository) UpdateOpenBlockState(userID, blockID uint, updates map[string]interface{}) error {
	return r.DB.Model(&model.UserBlockState{}).
		Where("user_id = ? AND block_id = ? AND is_completed = ?", userID, blockID, false).
		Updates(updates).Error
}

// ---- user_progress ----

func (r *ProgressRepository) FindProgress(userID, courseID uint) (*model.UserProgress, error) {
	var progress model.UserProgress
	err := r.DB.Where("user_id = ? AND course_id = ?", userID, courseID).First(&progress).Error
	return &progress, err
}

// LockProgress 在事务内获取或创建进度行并加行锁
func (r *ProgressRepository) LockProgress(userID, courseID uint, now time.Time) (*model.UserProgress, error) {
	if err := r.DB.Clauses(clause.OnConflict{DoNothing: true}).Create(&model.UserProgress{
		UserID:         userID,
		CourseID:       courseID,
		StartedAt:      now,
		LastAccessedAt: now,
	}).Error; err != nil {
		return nil, err
	}

	var progress model.UserProgress
	err := r.DB.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		First(&progress).Error
	return &progress, err
}

func (r *ProgressRepository) CreateProgress(progress *model.UserProgress) error {
	return r.DB.Clauses(clause.OnConflict{DoNothing: true}).Create(progress).Error
}

func (r *ProgressRepository) SaveProgress(progress *model.UserProgress) error {
	return r.DB.Save(progress).Error
}

func (r *ProgressRepository) TouchLastAccessed(userID, courseID uint, now time.Time) error {
	return r.DB.Model(&model.UserProgress{}).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		Update("last_accessed_at", now).Error
}

func (r *ProgressRepository) ListProgressByUser(userID uint) ([]model.UserProgress, error) {
	var list []model.UserProgress
	err := r.DB.Where("user_id = ?", userID).Order("last_accessed_at DESC").Find(&list).Error
	return list, err
}

func (r *ProgressRepository) CountLearners() (int64, error) {
	var count int64
	err := r.DB.Model(&model.UserProgress{}).Distinct("user_id").Count(&count).Error
	return count, err
}
