package repository

import (
	"suma_backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type FlashcardRepository struct {
	DB *gorm.DB
}

func NewFlashcardRepository(db *gorm.DB) *FlashcardRepository {
	return &FlashcardRepository{DB: db}
}

func (r *FlashcardRepository) WithTx(tx *gorm.DB) *FlashcardRepository {
	return &FlashcardRepository{DB: tx}
}

func (r *FlashcardRepository) CreateSet(set *model.FlashcardSet) error {
	return r.DB.Create(set).Error
}

func (r *FlashcardRepository) FindSetByID(id uint) (*model.FlashcardSet, error) {
	var set model.FlashcardSet
	err := r.DB.First(&set, id).Error
	return &set, err
}

func (r *FlashcardRepository) FindSetWithCards(id uint) (*model.FlashcardSet, error) {
	var set model.FlashcardSet
	err := r.DB.Preload("Cards", func(db *gorm.DB) *gorm.DB {
		return db.Order("order_index ASC")
	}).First(&set, id).Error
	return &set, err
}

func (r *FlashcardRepository) ListSetsByUser(userID uint) ([]model.FlashcardSet, error) {
	var sets []model.FlashcardSet
	err := r.DB.Where("user_id = ?", userID).Order("created_at DESC").Find(&sets).Error
	return sets, err
}

func (r *FlashcardRepository) DeleteSet(id uint) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("flashcard_id IN (?)",
			tx.Model(&model.Flashcard{}).Select("id").Where("set_id = ?", id),
		).Delete(&model.UserFlashcardProgress{}).Error; err != nil {
			return err
		}
		if err := tx.Where("set_id = ?", id).Delete(&model.Flashcard{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.FlashcardSet{}, id).Error
	})
}

func (r *FlashcardRepository) CreateCards(cards []model.Flashcard) error {
	if len(cards) == 0 {
		return nil
	}
	return r.DB.Create(&cards).Error
}

func (r *FlashcardRepository) CountCards(setID uint) (int64, error) {
	var count int64
	err := r.DB.Model(&model.Flashcard{}).Where("set_id = ?", setID).Count(&count).Error
	return count, err
}

func (r *FlashcardRepository) FindCardByID(id uint) (*model.Flashcard, error) {
	var card model.Flashcard
	err := r.DB.First(&card, id).Error
	return &card, err
}

func (r *FlashcardRepository) CountCardsByUser(userID uint) (int64, error) {
	var count int64
	err := r.DB.Model(&model.Flashcard{}).
		Joins("JOIN flashcard_sets ON flashcard_sets.id = flashcards.set_id AND flashcard_sets.deleted_at IS NULL").
		Where("flashcard_sets.user_id = ?", userID).
		Count(&count).Error
	return count, err
}

// ---- user_flashcard_progress ----

// EnsureProgress 首次复习时创建默认进度（ease 2.5，间隔 1 天）
func (r *FlashcardRepository) EnsureProgress(userID, flashcardID uint) error {
	return r.DB.Clauses(clause.OnConflict{DoNothing: true}).Create(&model.UserFlashcardProgress{
		UserID:       userID,
		FlashcardID:  flashcardID,
		EaseFactor:   2.5,
		IntervalDays: 1,
	}).Error
}

func (r *FlashcardRepository) LockProgress(userID, flashcardID uint) (*model.UserFlashcardProgress, error) {
	var p model.UserFlashcardProgress
	err := r.DB.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND flashcard_id = ?", userID, flashcardID).
		First(&p).Error
	return &p, err
}

func (r *FlashcardRepository) SaveProgress(p *model.UserFlashcardProgress) error {
	return r.DB.Save(p).Error
}

func (r *FlashcardRepository) ListProgressBySet(userID, setID uint) ([]model.UserFlashcardProgress, error) {
	var list []model.UserFlashcardProgress
	err := r.DB.
		Joins("JOIN flashcards ON flashcards.id = user_flashcard_progress.flashcard_id AND flashcards.deleted_at IS NULL").
		Where("user_flashcard_progress.user_id = ? AND flashcards.set_id = ?", userID, setID).
		Find(&list).Error
	return list, err
}

func (r *FlashcardRepository) ListProgressByUser(userID uint) ([]model.UserFlashcardProgress, error) {
	var list []model.UserFlashcardProgress
	err := r.DB.Where("user_id = ?", userID).Find(&list).Error
	return list, err
}

// TransitionSetStatus 条件更新，返回是否命中
func (r *FlashcardRepository) TransitionSetStatus(id uint, from, to model.FlashcardSetStatus, extra map[string]interface{}) (bool, error) {
	updates := map[string]interface{}{"status": to}
	for k, v := range extra {
		updates[k] = v
	}
	res := r.DB.Model(&model.FlashcardSet{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	return res.RowsAffected == 1, res.Error
}
