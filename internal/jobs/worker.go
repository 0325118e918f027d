package jobs

import (
	"context"
	"fmt"
	"suma_backend/internal/config"
	"suma_backend/internal/model"
	"suma_backend/internal/repository"
	"suma_backend/pkg/logger"
	"suma_backend/pkg/monitoring"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Policy struct {
	PollInterval time.Duration
	StaleAfter   time.Duration
	StepAttempts int
	StepBackoff  time.Duration
}

func PolicyFromConfig(cfg config.GenerationConfig) Policy {
	return Policy{
		PollInterval: cfg.PollInterval,
		StaleAfter:   cfg.StaleAfter,
		StepAttempts: cfg.StepAttempts,
		StepBackoff:  cfg.StepBackoff,
	}
}

type Worker struct {
	db       *gorm.DB
	repo     *repository.GenerationJobRepository
	registry *Registry
	log      *zap.Logger

	mu     sync.RWMutex
	policy Policy
}

func NewWorker(db *gorm.DB, registry *Registry, policy Policy) *Worker {
	return &Worker{
		db:       db,
		repo:     repository.NewGenerationJobRepository(db),
		registry: registry,
		policy:   policy,
		log:      logger.Named("job_worker"),
	}
}

func (w *Worker) Policy() Policy {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.policy
}

// UpdatePolicy 配置热更新时调用，下一轮轮询生效
func (w *Worker) UpdatePolicy(p Policy) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.policy = p
}

// Start 启动 n 个轮询协程，ctx 取消后退出
func (w *Worker) Start(ctx context.Context, n int) *sync.WaitGroup {
	if n < 1 {
		n = 1
	}
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.loop(ctx)
		}()
	}
	return &wg
}

func (w *Worker) loop(ctx context.Context) {
	timer := time.NewTimer(w.Policy().PollInterval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			// 有任务时连续消费，空闲时才等待下一轮
			for {
				ran, err := w.RunOnce(ctx)
				if err != nil {
					w.log.Warn("Claim job failed", zap.Error(err))
					break
				}
				if !ran || ctx.Err() != nil {
					break
				}
			}
			timer.Reset(w.Policy().PollInterval)
		}
	}
}

// RunOnce 认领并同步执行至多一个任务，返回是否执行了任务
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	policy := w.Policy()
	job, err := w.repo.ClaimNextRunnable(ctx, policy.StaleAfter)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	w.dispatch(ctx, job, policy)
	return true, nil
}

func (w *Worker) dispatch(ctx context.Context, job *model.GenerationJob, policy Policy) {
	jc := NewContext(ctx, w.db, job, policy)

	h, ok := w.registry.Get(job.JobType)
	if !ok {
		w.finish(jc, fmt.Errorf("no handler registered for job type %q", job.JobType))
		return
	}

	if job.Attempts > 1 {
		jc.Log.Info("Resuming job", zap.String("stage", job.Stage), zap.Int("attempt", job.Attempts))
	}

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				jc.Log.Error("Job handler panic", zap.Any("panic", r))
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return h.Run(jc)
	}()
	// 进程退出打断的任务不算失败：放回队列，保留 stage 与断点
	if err != nil && ctx.Err() != nil {
		jc.Log.Info("Job interrupted, requeued", zap.String("stage", jc.Stage()), zap.Error(err))
		if rerr := jc.requeue(); rerr != nil {
			jc.Log.Error("Requeue job", zap.Error(rerr))
		}
		return
	}
	if err != nil {
		if hook, ok := h.(FailureHook); ok {
			hook.OnFailure(jc, err)
		}
	}
	w.finish(jc, err)
}

func (w *Worker) finish(jc *Context, err error) {
	if err != nil {
		jc.Log.Error("Job failed", zap.String("stage", jc.Stage()), zap.Error(err))
		monitoring.GenerationJobs.WithLabelValues(jc.Job.JobType, string(model.JobFailed)).Inc()
		if ferr := jc.fail(err); ferr != nil {
			jc.Log.Error("Mark job failed", zap.Error(ferr))
		}
		return
	}
	monitoring.GenerationJobs.WithLabelValues(jc.Job.JobType, string(model.JobSucceeded)).Inc()
	if serr := jc.succeed(); serr != nil {
		jc.Log.Error("Mark job succeeded", zap.Error(serr))
	}
}
