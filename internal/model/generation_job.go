package model

import (
	"time"

	"gorm.io/datatypes"
)

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

const (
	JobTypeCourseGeneration    = "course_generation"
	JobTypeSectionGeneration   = "section_generation"
	JobTypeFlashcardGeneration = "flashcard_generation"
)

// GenerationJob 是生成流水线的持久化记录。Stage + Checkpoint 在每一步完成后落库，
// 进程重启后 worker 从最后一个未完成的 stage 继续执行。
// swagger:model GenerationJob
type GenerationJob struct {
	BaseModel
	JobType     string         `gorm:"size:50;not null;index" json:"jobType"`
	OwnerID     uint           `gorm:"not null;index" json:"ownerId"`
	SubjectID   uint           `gorm:"not null;index" json:"subjectId"`
	Status      JobStatus      `gorm:"size:20;not null;index" json:"status"`
	Stage       string         `gorm:"size:50" json:"stage"`
	Attempts    int            `gorm:"not null;default:0" json:"attempts"`
	Payload     datatypes.JSON `json:"payload,omitempty"`
	Checkpoint  datatypes.JSON `json:"checkpoint,omitempty"`
	Error       string         `gorm:"type:text" json:"error,omitempty"`
	LockedAt    *time.Time     `json:"lockedAt,omitempty"`
	HeartbeatAt *time.Time     `json:"heartbeatAt,omitempty"`
	LastErrorAt *time.Time     `json:"lastErrorAt,omitempty"`
	FinishedAt  *time.Time     `json:"finishedAt,omitempty"`
}

func (GenerationJob) TableName() string {
	return "generation_jobs"
}
