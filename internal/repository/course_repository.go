package repository

import (
	"suma_backend/internal/model"

	"gorm.io/gorm"
)

type CourseRepository struct {
	DB *gorm.DB
}

func NewCourseRepository(db *gorm.DB) *CourseRepository {
	return &CourseRepository{DB: db}
}

func (r *CourseRepository) WithTx(tx *gorm.DB) *CourseRepository {
	return &CourseRepository{DB: tx}
}

func (r *CourseRepository) Create(course *model.Course) error {
	return r.DB.Create(course).Error
}

func (r *CourseRepository) FindByID(id uint) (*model.Course, error) {
	var course model.Course
	err := r.DB.First(&course, id).Error
	return &course, err
}

// FindTreeByID 按 order 预加载 levels 和 sections
func (r *CourseRepository) FindTreeByID(id uint) (*model.Course, error) {
	var course model.Course
	err := r.DB.
		Preload("Levels", func(db *gorm.DB) *gorm.DB {
			return db.Order("order_index ASC")
		}).
		Preload("Levels.Sections", func(db *gorm.DB) *gorm.DB {
			return db.Order("order_index ASC")
		}).
		First(&course, id).Error
	return &course, err
}

func (r *CourseRepository) FindBySectionID(sectionID uint) (*model.Course, error) {
	var course model.Course
	err := r.DB.
		Joins("JOIN levels ON levels.course_id = courses.id AND levels.deleted_at IS NULL").
		Joins("JOIN sections ON sections.level_id = levels.id AND sections.deleted_at IS NULL").
		Where("sections.id = ?", sectionID).
		First(&course).Error
	return &course, err
}

func (r *CourseRepository) ListByUser(userID uint) ([]model.Course, error) {
	var courses []model.Course
	err := r.DB.Where("user_id = ?", userID).Order("created_at DESC").Find(&courses).Error
	return courses, err
}

func (r *CourseRepository) UpdateFields(id uint, updates map[string]interface{}) error {
	return r.DB.Model(&model.Course{}).Where("id = ?", id).Updates(updates).Error
}

// TransitionStatus 条件更新，返回是否真正发生了状态迁移
func (r *CourseRepository) TransitionStatus(id uint, from, to model.CourseStatus, errMsg string) (bool, error) {
	updates := map[string]interface{}{"status": to}
	if errMsg != "" {
		updates["error_message"] = errMsg
	}
	res := r.DB.Model(&model.Course{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	return res.RowsAffected == 1, res.Error
}
