package repository

import (
	"context"
	"errors"
	"suma_backend/internal/model"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GenerationJobRepository struct {
	DB *gorm.DB
}

func NewGenerationJobRepository(db *gorm.DB) *GenerationJobRepository {
	return &GenerationJobRepository{DB: db}
}

func (r *GenerationJobRepository) WithTx(tx *gorm.DB) *GenerationJobRepository {
	return &GenerationJobRepository{DB: tx}
}

func (r *GenerationJobRepository) Create(job *model.GenerationJob) error {
	return r.DB.Create(job).Error
}

func (r *GenerationJobRepository) FindByID(id uint) (*model.GenerationJob, error) {
	var job model.GenerationJob
	err := r.DB.First(&job, id).Error
	return &job, err
}

// ClaimNextRunnable 取最早的可执行任务：queued，或 running 但心跳过期（进程崩溃）。
// SKIP LOCKED 保证多个 worker 不会抢到同一行。
func (r *GenerationJobRepository) ClaimNextRunnable(ctx context.Context, staleAfter time.Duration) (*model.GenerationJob, error) {
	now := time.Now()
	staleCutoff := now.Add(-staleAfter)

	var claimed *model.GenerationJob
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job model.GenerationJob
		err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ? OR (status = ? AND heartbeat_at IS NOT NULL AND heartbeat_at < ?)",
				model.JobQueued, model.JobRunning, staleCutoff).
			Order("created_at ASC").
			Order("id ASC").
			First(&job).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		if err := tx.Model(&model.GenerationJob{}).
			Where("id = ?", job.ID).
			Updates(map[string]interface{}{
				"status":       model.JobRunning,
				"attempts":     gorm.Expr("attempts + 1"),
				"locked_at":    now,
				"heartbeat_at": now,
			}).Error; err != nil {
			return err
		}

		job.Status = model.JobRunning
		job.Attempts++
		job.LockedAt = &now
		job.HeartbeatAt = &now
		claimed = &job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// UpdateWhileRunning 只更新仍处于 running 的任务
func (r *GenerationJobRepository) UpdateWhileRunning(id uint, updates map[string]interface{}) error {
	return r.DB.Model(&model.GenerationJob{}).
		Where("id = ? AND status = ?", id, model.JobRunning).
		Updates(updates).Error
}
