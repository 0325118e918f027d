package repository

import (
	"suma_backend/internal/model"

	"gorm.io/gorm"
)

type BlockRepository struct {
	DB *gorm.DB
}

func NewBlockRepository(db *gorm.DB) *BlockRepository {
	return &BlockRepository{DB: db}
}

func (r *BlockRepository) WithTx(tx *gorm.DB) *BlockRepository {
	return &BlockRepository{DB: tx}
}

func (r *BlockRepository) CreateBatch(blocks []*model.Block) error {
	if len(blocks) == 0 {
		return nil
	}
	return r.DB.Create(&blocks).Error
}

func (r *BlockRepository) FindByID(id uint) (*model.Block, error) {
	var block model.Block
	err := r.DB.First(&block, id).Error
	return &block, err
}

func (r *BlockRepository) ListBySection(sectionID uint) ([]model.Block, error) {
	var blocks []model.Block
	err := r.DB.Where("section_id = ?", sectionID).Order("order_index ASC").Find(&blocks).Error
	return blocks, err
}

func (r *BlockRepository) CountBySection(sectionID uint) (int64, error) {
	var count int64
	err := r.DB.Model(&model.Block{}).Where("section_id = ?", sectionID).Count(&count).Error
	return count, err
}

func (r *BlockRepository) MaxOrder(sectionID uint) (int, error) {
	var max *int
	err := r.DB.Model(&model.Block{}).
		Where("section_id = ?", sectionID).
		Select("MAX(order_index)").
		Scan(&max).Error
	if err != nil || max == nil {
		return 0, err
	}
	return *max, nil
}

// FindNext 同一小节中 order 更大的第一个块
func (r *BlockRepository) FindNext(sectionID uint, order int) (*model.Block, error) {
	var block model.Block
	err := r.DB.Where("section_id = ? AND order_index > ?", sectionID, order).
		Order("order_index ASC").
		First(&block).Error
	return &block, err
}

func (r *BlockRepository) FindPrevious(sectionID uint, order int) (*model.Block, error) {
	var block model.Block
	err := r.DB.Where("section_id = ? AND order_index < ?", sectionID, order).
		Order("order_index DESC").
		First(&block).Error
	return &block, err
}
