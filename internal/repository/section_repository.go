package repository

import (
	"suma_backend/internal/model"

	"gorm.io/gorm"
)

type SectionRepository struct {
	DB *gorm.DB
}

func NewSectionRepository(db *gorm.DB) *SectionRepository {
	return &SectionRepository{DB: db}
}

func (r *SectionRepository) WithTx(tx *gorm.DB) *SectionRepository {
	return &SectionRepository{DB: tx}
}

func (r *SectionRepository) CreateBatch(sections []model.Section) error {
	if len(sections) == 0 {
		return nil
	}
	return r.DB.Create(&sections).Error
}

func (r *SectionRepository) FindByID(id uint) (*model.Section, error) {
	var section model.Section
	err := r.DB.First(&section, id).Error
	return &section, err
}

func (r *SectionRepository) CountByLevel(levelID uint) (int64, error) {
	var count int64
	err := r.DB.Model(&model.Section{}).Where("level_id = ?", levelID).Count(&count).Error
	return count, err
}

// FirstOfCourse 第一个 level 的第一个 section
func (r *SectionRepository) FirstOfCourse(courseID uint) (*model.Section, error) {
	var section model.Section
	err := r.DB.
		Joins("JOIN levels ON levels.id = sections.level_id AND levels.deleted_at IS NULL").
		Where("levels.course_id = ?", courseID).
		Order("levels.order_index ASC").
		Order("sections.order_index ASC").
		First(&section).Error
	return &section, err
}

type SectionCounts struct {
	CourseID  uint
	Total     int64
	Completed int64
}

// CountByCourses 批量统计课程的小节总数与已完成数
func (r *SectionRepository) CountByCourses(courseIDs []uint) (map[uint]SectionCounts, error) {
	result := make(map[uint]SectionCounts, len(courseIDs))
	if len(courseIDs) == 0 {
		return result, nil
	}
	var rows []SectionCounts
	err := r.DB.Model(&model.Section{}).
		Select("levels.course_id AS course_id, COUNT(*) AS total, SUM(CASE WHEN sections.status = ? THEN 1 ELSE 0 END) AS completed", model.SectionCompleted).
		Joins("JOIN levels ON levels.id = sections.level_id AND levels.deleted_at IS NULL").
		Where("levels.course_id IN ?", courseIDs).
		Group("levels.course_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		result[row.CourseID] = row
	}
	return result, nil
}

// TransitionStatus 条件更新 status，RowsAffected 为 0 说明状态已被别人改掉
func (r *SectionRepository) TransitionStatus(id uint, from, to model.SectionStatus, extra map[string]interface{}) (bool, error) {
	updates := map[string]interface{}{"status": to}
	for k, v := range extra {
		updates[k] = v
	}
	res := r.DB.Model(&model.Section{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	return res.RowsAffected == 1, res.Error
}

func (r *SectionRepository) UpdateFields(id uint, updates map[string]interface{}) error {
	return r.DB.Model(&model.Section{}).Where("id = ?", id).Updates(updates).Error
}
