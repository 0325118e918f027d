package jobs

import (
	"encoding/json"
	"fmt"
	"suma_backend/internal/model"
	"suma_backend/internal/repository"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Enqueue 插入一条 queued 任务。传入事务时与调用方的业务写入一起提交。
func Enqueue(tx *gorm.DB, jobType string, ownerID, subjectID uint, payload interface{}) (*model.GenerationJob, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", jobType, err)
	}
	job := &model.GenerationJob{
		JobType:   jobType,
		OwnerID:   ownerID,
		SubjectID: subjectID,
		Status:    model.JobQueued,
		Payload:   datatypes.JSON(raw),
	}
	if err := repository.NewGenerationJobRepository(tx).Create(job); err != nil {
		return nil, err
	}
	return job, nil
}
