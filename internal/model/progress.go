package model

import "time"

// UserBlockState 学习者在某个块上的可见/完成状态，首次可达时惰性创建
// swagger:model UserBlockState
type UserBlockState struct {
	BaseModel
	UserID      uint       `gorm:"not null;uniqueIndex:idx_block_state_user_block,priority:1;index:idx_block_state_user_section,priority:1" json:"userId"`
	BlockID     uint       `gorm:"not null;uniqueIndex:idx_block_state_user_block,priority:2" json:"blockId"`
	SectionID   uint       `gorm:"not null;index:idx_block_state_user_section,priority:2" json:"sectionId"`
	IsVisible   bool       `gorm:"not null;default:false" json:"isVisible"`
	IsCompleted bool       `gorm:"not null;default:false" json:"isCompleted"`
	UserAnswer  *string    `gorm:"type:text" json:"userAnswer,omitempty"`
	IsCorrect   *bool      `json:"isCorrect,omitempty"`
	HintUsed    bool       `gorm:"not null;default:false" json:"hintUsed"`
	SeenAnswer  bool       `gorm:"not null;default:false" json:"seenAnswer"`
	ViewedAt    *time.Time `json:"viewedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

func (UserBlockState) TableName() string {
	return "user_block_states"
}

// UserProgress 学习者在单门课程上的聚合统计，与块状态在同一事务中更新
// swagger:model UserProgress
type UserProgress struct {
	BaseModel
	UserID                 uint       `gorm:"not null;uniqueIndex:idx_progress_user_course,priority:1" json:"userId"`
	CourseID               uint       `gorm:"not null;uniqueIndex:idx_progress_user_course,priority:2;index" json:"courseId"`
	CurrentStreak          int        `gorm:"not null;default:0" json:"currentStreak"`
	LongestStreak          int        `gorm:"not null;default:0" json:"longestStreak"`
	LastActivityDate       *time.Time `json:"lastActivityDate,omitempty"`
	TotalBlocksCompleted   int        `gorm:"not null;default:0" json:"totalBlocksCompleted"`
	TotalQuestionsAnswered int        `gorm:"not null;default:0" json:"totalQuestionsAnswered"`
	TotalCorrectAnswers    int        `gorm:"not null;default:0" json:"totalCorrectAnswers"`
	XPPoints               int        `gorm:"column:xp_points;not null;default:0;index" json:"xpPoints"`
	StartedAt              time.Time  `json:"startedAt"`
	LastAccessedAt         time.Time  `gorm:"index" json:"lastAccessedAt"`
}

func (UserProgress) TableName() string {
	return "user_progress"
}
