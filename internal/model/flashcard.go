package model

import (
	"time"

	"gorm.io/datatypes"
)

type FlashcardSourceType string

const (
	FlashcardSourceFile FlashcardSourceType = "file"
	FlashcardSourceURL  FlashcardSourceType = "url"
)

type FlashcardSetStatus string

const (
	FlashcardSetProcessing FlashcardSetStatus = "processing"
	FlashcardSetCompleted  FlashcardSetStatus = "completed"
	FlashcardSetFailed     FlashcardSetStatus = "failed"
)

// swagger:model FlashcardSet
type FlashcardSet struct {
	BaseModel
	UserID         uint                        `gorm:"not null;index" json:"userId"`
	Title          string                      `gorm:"size:255;not null" json:"title"`
	Description    string                      `gorm:"type:text" json:"description,omitempty"`
	SourceType     FlashcardSourceType         `gorm:"size:10;not null" json:"sourceType"`
	SourceFileKey  string                      `gorm:"size:255" json:"-"`
	SourceFileName string                      `gorm:"size:255" json:"sourceFileName,omitempty"`
	SourceFileType string                      `gorm:"size:100" json:"sourceFileType,omitempty"`
	SourceURLs     datatypes.JSONSlice[string] `gorm:"column:source_urls" json:"sourceUrls,omitempty"`
	ContentSummary string                      `gorm:"type:text" json:"contentSummary,omitempty"`
	TargetCount    int                         `gorm:"not null;default:20" json:"targetCount"`
	CardCount      int                         `gorm:"not null;default:0" json:"cardCount"`
	Status         FlashcardSetStatus          `gorm:"size:20;not null;index" json:"status"`
	ErrorMessage   string                      `gorm:"type:text" json:"errorMessage,omitempty"`
	Cards          []Flashcard                 `gorm:"foreignKey:SetID" json:"cards,omitempty"`
}

func (FlashcardSet) TableName() string {
	return "flashcard_sets"
}

// swagger:model Flashcard
type Flashcard struct {
	BaseModel
	SetID         uint   `gorm:"not null;index:idx_flashcard_set_order,priority:1" json:"setId"`
	Question      string `gorm:"type:text;not null" json:"question"`
	Answer        string `gorm:"type:text;not null" json:"answer"`
	QuestionType  string `gorm:"size:20" json:"questionType,omitempty"`
	Difficulty    string `gorm:"size:10" json:"difficulty,omitempty"`
	Explanation   string `gorm:"type:text" json:"explanation,omitempty"`
	SourceExcerpt string `gorm:"type:text" json:"sourceExcerpt,omitempty"`
	OrderIndex    int    `gorm:"not null;index:idx_flashcard_set_order,priority:2" json:"orderIndex"`
}

func (Flashcard) TableName() string {
	return "flashcards"
}

// swagger:model UserFlashcardProgress
type UserFlashcardProgress struct {
	BaseModel
	UserID         uint       `gorm:"not null;uniqueIndex:idx_fc_progress_user_card,priority:1;index:idx_fc_progress_next,priority:1" json:"userId"`
	FlashcardID    uint       `gorm:"not null;uniqueIndex:idx_fc_progress_user_card,priority:2" json:"flashcardId"`
	LastReviewedAt *time.Time `json:"lastReviewedAt,omitempty"`
	NextReviewAt   *time.Time `gorm:"index:idx_fc_progress_next,priority:2" json:"nextReviewAt,omitempty"`
	EaseFactor     float64    `gorm:"not null;default:2.5" json:"easeFactor"`
	IntervalDays   int        `gorm:"not null;default:1" json:"intervalDays"`
	Repetitions    int        `gorm:"not null;default:0" json:"repetitions"`
	CorrectCount   int        `gorm:"not null;default:0" json:"correctCount"`
	IncorrectCount int        `gorm:"not null;default:0" json:"incorrectCount"`
}

func (UserFlashcardProgress) TableName() string {
	return "user_flashcard_progress"
}
