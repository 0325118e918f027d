package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"suma_backend/internal/model"
	"suma_backend/internal/repository"
	"suma_backend/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type stagedPayload struct {
	Name string `json:"name"`
}

// stagedHandler 依次执行 a、b 两个阶段，failAt 指定的阶段返回错误
type stagedHandler struct {
	failAt  string
	panicAt string
	// blockAt 阶段阻塞到 ctx 取消，进入阻塞时关闭 blocked
	blockAt string
	blocked chan struct{}
	ran     []string
	failed  error
}

func (h *stagedHandler) Type() string { return "staged" }

func (h *stagedHandler) Run(jc *Context) error {
	var p stagedPayload
	if err := jc.Payload(&p); err != nil {
		return err
	}
	stages := []string{"a", "b"}
	start := 0
	if jc.Stage() == "b" {
		start = 1
	}
	for i := start; i < len(stages); i++ {
		stage := stages[i]
		if err := jc.RunStage(stage, func(ctx context.Context) error {
			if stage == h.blockAt {
				close(h.blocked)
				<-ctx.Done()
				return ctx.Err()
			}
			if stage == h.panicAt {
				panic("boom")
			}
			if stage == h.failAt {
				return errors.New("stage broke")
			}
			h.ran = append(h.ran, p.Name+":"+stage)
			return nil
		}); err != nil {
			return err
		}
		next := "done"
		if i+1 < len(stages) {
			next = stages[i+1]
		}
		if err := jc.Advance(next, map[string]string{"completed": stage}); err != nil {
			return err
		}
	}
	return nil
}

func (h *stagedHandler) OnFailure(jc *Context, err error) {
	h.failed = err
}

func testPolicy() Policy {
	return Policy{StaleAfter: 10 * time.Minute, StepAttempts: 1, StepBackoff: time.Millisecond}
}

func newWorker(t *testing.T, h Handler) (*gorm.DB, *Worker) {
	t.Helper()
	db := testutil.OpenDB(t)
	registry := NewRegistry()
	registry.Register(h)
	return db, NewWorker(db, registry, testPolicy())
}

func reload(t *testing.T, db *gorm.DB, id uint) *model.GenerationJob {
	t.Helper()
	job, err := repository.NewGenerationJobRepository(db).FindByID(id)
	require.NoError(t, err)
	return job
}

func TestWorker_RunsJobToCompletion(t *testing.T) {
	h := &stagedHandler{}
	db, w := newWorker(t, h)

	job, err := Enqueue(db, "staged", 1, 10, stagedPayload{Name: "x"})
	require.NoError(t, err)

	ran, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	require.True(t, ran)

	assert.Equal(t, []string{"x:a", "x:b"}, h.ran)
	stored := reload(t, db, job.ID)
	assert.Equal(t, model.JobSucceeded, stored.Status)
	assert.Equal(t, "done", stored.Stage)
	assert.Equal(t, 1, stored.Attempts)
	assert.NotNil(t, stored.FinishedAt)
	assert.JSONEq(t, `{"completed": "b"}`, string(stored.Checkpoint))

	ran, err = w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, ran)
}

func TestWorker_FailureHookAndStage(t *testing.T) {
	h := &stagedHandler{failAt: "b"}
	db, w := newWorker(t, h)

	job, err := Enqueue(db, "staged", 1, 10, stagedPayload{Name: "x"})
	require.NoError(t, err)
	_, err = w.RunOnce(context.Background())
	require.NoError(t, err)

	require.Error(t, h.failed)
	stored := reload(t, db, job.ID)
	assert.Equal(t, model.JobFailed, stored.Status)
	assert.Equal(t, "b", stored.Stage)
	assert.Contains(t, stored.Error, "stage broke")
	assert.NotNil(t, stored.LastErrorAt)
}

func TestWorker_PanicIsCaught(t *testing.T) {
	h := &stagedHandler{panicAt: "a"}
	db, w := newWorker(t, h)

	job, err := Enqueue(db, "staged", 1, 10, stagedPayload{Name: "x"})
	require.NoError(t, err)
	_, err = w.RunOnce(context.Background())
	require.NoError(t, err)

	require.Error(t, h.failed)
	assert.Contains(t, h.failed.Error(), "boom")
	assert.Equal(t, model.JobFailed, reload(t, db, job.ID).Status)
}

func TestWorker_UnknownJobType(t *testing.T) {
	db, w := newWorker(t, &stagedHandler{})

	job, err := Enqueue(db, "mystery", 1, 10, stagedPayload{})
	require.NoError(t, err)
	_, err = w.RunOnce(context.Background())
	require.NoError(t, err)

	stored := reload(t, db, job.ID)
	assert.Equal(t, model.JobFailed, stored.Status)
	assert.Contains(t, stored.Error, "no handler")
}

func TestWorker_ReclaimsStaleRunningJob(t *testing.T) {
	h := &stagedHandler{}
	db, w := newWorker(t, h)

	job, err := Enqueue(db, "staged", 1, 10, stagedPayload{Name: "y"})
	require.NoError(t, err)
	// 模拟进程在阶段 a 完成后崩溃
	stale := time.Now().Add(-time.Hour)
	require.NoError(t, db.Model(&model.GenerationJob{}).Where("id = ?", job.ID).Updates(map[string]interface{}{
		"status":       model.JobRunning,
		"stage":        "b",
		"attempts":     1,
		"heartbeat_at": stale,
	}).Error)

	ran, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	require.True(t, ran)

	assert.Equal(t, []string{"y:b"}, h.ran)
	stored := reload(t, db, job.ID)
	assert.Equal(t, model.JobSucceeded, stored.Status)
	assert.Equal(t, 2, stored.Attempts)
}

func TestClaimNextRunnable_SkipsFreshRunningJobs(t *testing.T) {
	db := testutil.OpenDB(t)
	repo := repository.NewGenerationJobRepository(db)

	job, err := Enqueue(db, "staged", 1, 10, stagedPayload{})
	require.NoError(t, err)

	claimed, err := repo.ClaimNextRunnable(context.Background(), time.Minute)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, job.ID, claimed.ID)
	assert.Equal(t, model.JobRunning, claimed.Status)
	assert.Equal(t, 1, claimed.Attempts)

	again, err := repo.ClaimNextRunnable(context.Background(), time.Minute)
	require.NoError(t, err)
	assert.Nil(t, again)
}

func TestContext_PayloadMissing(t *testing.T) {
	db := testutil.OpenDB(t)
	jc := NewContext(context.Background(), db, &model.GenerationJob{}, testPolicy())

	var p stagedPayload
	err := jc.Payload(&p)
	assert.True(t, IsPermanent(err))
}

func TestWorker_ShutdownRequeuesJob(t *testing.T) {
	h := &stagedHandler{blockAt: "b", blocked: make(chan struct{})}
	db, w := newWorker(t, h)

	job, err := Enqueue(db, "staged", 1, 10, stagedPayload{Name: "z"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-h.blocked
		cancel()
	}()
	ran, err := w.RunOnce(ctx)
	require.NoError(t, err)
	require.True(t, ran)

	assert.NoError(t, h.failed)
	stored := reload(t, db, job.ID)
	assert.Equal(t, model.JobQueued, stored.Status)
	assert.Equal(t, "b", stored.Stage)
	assert.JSONEq(t, `{"completed": "a"}`, string(stored.Checkpoint))
	assert.Empty(t, stored.Error)
	assert.Nil(t, stored.HeartbeatAt)

	// 重启后从阶段 b 继续
	h.blockAt = ""
	ran, err = w.RunOnce(context.Background())
	require.NoError(t, err)
	require.True(t, ran)

	assert.Equal(t, []string{"z:a", "z:b"}, h.ran)
	stored = reload(t, db, job.ID)
	assert.Equal(t, model.JobSucceeded, stored.Status)
	assert.Equal(t, 2, stored.Attempts)
}
