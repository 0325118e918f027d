package model

import (
	"time"

	"gorm.io/datatypes"
)

type CourseStatus string

const (
	CourseGenerating CourseStatus = "generating"
	CourseReady      CourseStatus = "ready"
	CourseFailed     CourseStatus = "failed"
)

type SectionStatus string

const (
	SectionNoContent  SectionStatus = "no_content"
	SectionGenerating SectionStatus = "generating"
	SectionInProgress SectionStatus = "in_progress"
	SectionCompleted  SectionStatus = "completed"
)

// Course 由生成流水线逐步填充，状态只会从 generating 走向 ready 或 failed
// swagger:model Course
type Course struct {
	BaseModel
	UserID          uint                        `gorm:"not null;index:idx_course_user_status,priority:1" json:"userId"`
	Title           string                      `gorm:"size:255;not null" json:"title"`
	Description     string                      `gorm:"type:text" json:"description"`
	Summary         string                      `gorm:"type:text" json:"summary,omitempty"`
	LearningGoal    string                      `gorm:"type:text" json:"learningGoal"`
	ExperienceLevel string                      `gorm:"size:50" json:"experienceLevel"`
	LearningStyle   string                      `gorm:"size:50" json:"learningStyle,omitempty"`
	TimeCommitment  string                      `gorm:"size:50" json:"timeCommitment"`
	Status          CourseStatus                `gorm:"size:20;not null;default:'generating';index:idx_course_user_status,priority:2" json:"status"`
	ErrorMessage    string                      `gorm:"type:text" json:"errorMessage,omitempty"`
	Topics          datatypes.JSONSlice[string] `json:"topics,omitempty"`
	Prerequisites   datatypes.JSONSlice[string] `json:"prerequisites,omitempty"`
	NextSteps       datatypes.JSONSlice[string] `json:"nextSteps,omitempty"`
	Levels          []Level                     `gorm:"foreignKey:CourseID" json:"levels,omitempty"`
}

func (Course) TableName() string {
	return "courses"
}

// swagger:model Level
type Level struct {
	BaseModel
	CourseID    uint      `gorm:"not null;uniqueIndex:idx_level_course_order,priority:1" json:"courseId"`
	UserID      uint      `gorm:"not null;index" json:"userId"`
	Title       string    `gorm:"size:255;not null" json:"title"`
	Order       int       `gorm:"column:order_index;not null;uniqueIndex:idx_level_course_order,priority:2" json:"order"`
	Description string    `gorm:"type:text" json:"description"`
	Sections    []Section `gorm:"foreignKey:LevelID" json:"sections,omitempty"`
}

func (Level) TableName() string {
	return "levels"
}

// swagger:model Section
type Section struct {
	BaseModel
	LevelID              uint          `gorm:"not null;uniqueIndex:idx_section_level_order,priority:1" json:"levelId"`
	UserID               uint          `gorm:"not null;index" json:"userId"`
	Title                string        `gorm:"size:255;not null" json:"title"`
	Order                int           `gorm:"column:order_index;not null;uniqueIndex:idx_section_level_order,priority:2" json:"order"`
	Description          string        `gorm:"type:text" json:"description"`
	Status               SectionStatus `gorm:"size:20;not null;default:'no_content';index" json:"status"`
	CompletedAt          *time.Time    `json:"completedAt,omitempty"`
	VideoURL             string        `gorm:"size:512" json:"videoUrl,omitempty"`
	VideoDurationSeconds float64       `json:"videoDurationSeconds,omitempty"`
	ErrorMessage         string        `gorm:"type:text" json:"errorMessage,omitempty"`
}

func (Section) TableName() string {
	return "sections"
}

// CanGenerate 只有 no_content 的小节允许按需生成
func (s *Section) CanGenerate() bool {
	return s.Status == SectionNoContent
}
