package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"suma_backend/internal/model"
	"suma_backend/internal/repository"
	"suma_backend/pkg/logger"
	"suma_backend/pkg/monitoring"
	"suma_backend/pkg/tracing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Context 是 handler 操作任务行的唯一入口
type Context struct {
	Ctx    context.Context
	DB     *gorm.DB
	Job    *model.GenerationJob
	Log    *zap.Logger
	repo   *repository.GenerationJobRepository
	policy Policy
}

func NewContext(ctx context.Context, db *gorm.DB, job *model.GenerationJob, policy Policy) *Context {
	return &Context{
		Ctx:    ctx,
		DB:     db,
		Job:    job,
		repo:   repository.NewGenerationJobRepository(db),
		policy: policy,
		Log: logger.Log.With(
			zap.Uint("jobId", job.ID),
			zap.String("jobType", job.JobType),
			zap.Uint("subjectId", job.SubjectID),
		),
	}
}

func (c *Context) Payload(v interface{}) error {
	if len(c.Job.Payload) == 0 {
		return Permanent(fmt.Errorf("job %d has no payload", c.Job.ID))
	}
	if err := json.Unmarshal(c.Job.Payload, v); err != nil {
		return Permanent(fmt.Errorf("decode payload of job %d: %w", c.Job.ID, err))
	}
	return nil
}

// Checkpoint 读取上一次 Advance 保存的断点，没有断点时保持 v 不变
func (c *Context) Checkpoint(v interface{}) error {
	if len(c.Job.Checkpoint) == 0 {
		return nil
	}
	return json.Unmarshal(c.Job.Checkpoint, v)
}

func (c *Context) Stage() string {
	return c.Job.Stage
}

// Advance 持久化下一个 stage 与断点数据
func (c *Context) Advance(stage string, checkpoint interface{}) error {
	raw, err := json.Marshal(checkpoint)
	if err != nil {
		return err
	}
	now := time.Now()
	if err := c.repo.UpdateWhileRunning(c.Job.ID, map[string]interface{}{
		"stage":        stage,
		"checkpoint":   datatypes.JSON(raw),
		"heartbeat_at": now,
	}); err != nil {
		return err
	}
	c.Job.Stage = stage
	c.Job.Checkpoint = datatypes.JSON(raw)
	c.Job.HeartbeatAt = &now
	return nil
}

func (c *Context) Heartbeat() error {
	return c.repo.UpdateWhileRunning(c.Job.ID, map[string]interface{}{"heartbeat_at": time.Now()})
}

// RunStage 以 step 级重试执行一个阶段，期间定时心跳，避免长时间的模型调用被判定为僵死
func (c *Context) RunStage(stage string, fn func(ctx context.Context) error) error {
	ctx, span := tracing.Tracer.Start(c.Ctx, c.Job.JobType+"/"+stage)
	span.SetAttributes(
		attribute.Int64("job.id", int64(c.Job.ID)),
		attribute.Int64("job.subject_id", int64(c.Job.SubjectID)),
	)
	defer span.End()

	stop := c.startHeartbeat(ctx)
	defer stop()

	start := time.Now()
	err := Retry(ctx, c.policy.StepAttempts, c.policy.StepBackoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil && !IsPermanent(err) {
			c.Log.Warn("Stage attempt failed", zap.String("stage", stage), zap.Error(err))
		}
		return err
	})
	monitoring.GenerationStageDuration.WithLabelValues(c.Job.JobType, stage).Observe(time.Since(start).Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("stage %s: %w", stage, err)
	}
	return nil
}

func (c *Context) startHeartbeat(ctx context.Context) func() {
	interval := c.policy.StaleAfter / 3
	if interval <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := c.Heartbeat(); err != nil {
					c.Log.Warn("Heartbeat failed", zap.Error(err))
				}
			}
		}
	}()
	return func() { close(done) }
}

func (c *Context) succeed() error {
	now := time.Now()
	c.Job.Status = model.JobSucceeded
	return c.repo.UpdateWhileRunning(c.Job.ID, map[string]interface{}{
		"status":       model.JobSucceeded,
		"heartbeat_at": now,
		"finished_at":  now,
		"error":        "",
	})
}

// requeue 不改 stage、checkpoint 和 attempts，下次认领时从断点继续
func (c *Context) requeue() error {
	c.Job.Status = model.JobQueued
	return c.repo.UpdateWhileRunning(c.Job.ID, map[string]interface{}{
		"status":       model.JobQueued,
		"locked_at":    nil,
		"heartbeat_at": nil,
	})
}

func (c *Context) fail(cause error) error {
	now := time.Now()
	c.Job.Status = model.JobFailed
	return c.repo.UpdateWhileRunning(c.Job.ID, map[string]interface{}{
		"status":        model.JobFailed,
		"error":         cause.Error(),
		"last_error_at": now,
		"finished_at":   now,
	})
}
