package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"suma_backend/internal/jobs"
	"suma_backend/internal/model"
	"suma_backend/internal/testutil"
	"suma_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const (
	cannedCopy     = `{"summary": "Learn Go fast", "description": "A hands-on Go course."}`
	cannedLevels   = `{"levels": [{"title": "Basics", "order": 1}, {"title": "Types", "order": 2}, {"title": "Concurrency", "order": 3}, {"title": "Tooling", "order": 4}]}`
	cannedSections = `{"sections": [{"title": "One", "order": 1}, {"title": "Two", "order": 2}, {"title": "Three", "order": 3}]}`
	cannedBlocks   = `{"blocks": [
		{"type": "introduction", "content": "Hello", "order": 1},
		{"type": "question", "content": "Pick A", "order": 2, "questionType": "select", "options": ["A", "B"], "correctAnswer": "A"},
		{"type": "content", "content": "Bye", "order": 3}
	]}`
	cannedMetadata = `{"topics": ["syntax", "goroutines"], "prerequisites": ["none"], "nextSteps": ["build a service"]}`
)

var courseInput = CourseInput{
	Subject:         "Go",
	LearningGoal:    "Write services",
	ExperienceLevel: "beginner",
	TimeCommitment:  "2h/week",
}

func cannedCourseLLM() *fakeLLM {
	return newFakeLLM().
		on(courseDescriptionSchema, cannedCopy).
		on(levelsSchema, cannedLevels).
		on(sectionsSchema, cannedSections).
		on(blocksSchema, cannedBlocks).
		on(metadataSchema, cannedMetadata)
}

type coursePipeline struct {
	db      *gorm.DB
	courses *CourseService
	worker  *jobs.Worker
}

func newCoursePipeline(t *testing.T, llm LanguageModel) *coursePipeline {
	t.Helper()
	db := testutil.OpenDB(t)
	blocks := NewBlockGenerator(llm, nil)
	registry := jobs.NewRegistry()
	registry.Register(NewCourseGenerationHandler(NewCurriculumGenerator(llm), blocks, nil, nil))
	registry.Register(NewSectionGenerationHandler(blocks))
	return &coursePipeline{
		db:      db,
		courses: NewCourseService(db),
		worker:  jobs.NewWorker(db, registry, testPolicy()),
	}
}

func (p *coursePipeline) runOne(t *testing.T) {
	t.Helper()
	ran, err := p.worker.RunOnce(context.Background())
	require.NoError(t, err)
	require.True(t, ran)
}

func (p *coursePipeline) sections(t *testing.T, courseID uint) []model.Section {
	t.Helper()
	var sections []model.Section
	require.NoError(t, p.db.
		Joins("JOIN levels ON levels.id = sections.level_id").
		Where("levels.course_id = ?", courseID).
		Order("levels.order_index ASC, sections.order_index ASC").
		Find(&sections).Error)
	return sections
}

func (p *coursePipeline) job(t *testing.T, jobType string, subjectID uint) model.GenerationJob {
	t.Helper()
	var job model.GenerationJob
	require.NoError(t, p.db.Where("job_type = ? AND subject_id = ?", jobType, subjectID).
		Order("id DESC").First(&job).Error)
	return job
}

func TestCreateCourse_Validation(t *testing.T) {
	p := newCoursePipeline(t, newFakeLLM())

	_, err := p.courses.CreateCourse(context.Background(), 1, CourseInput{Subject: "Go"})
	assert.ErrorIs(t, err, util.ErrInvalidInput)
}

func TestCoursePipeline_EndToEnd(t *testing.T) {
	llm := cannedCourseLLM()
	p := newCoursePipeline(t, llm)
	user := testutil.CreateUser(t, p.db, "linus@example.com")

	course, err := p.courses.CreateCourse(context.Background(), user.ID, courseInput)
	require.NoError(t, err)
	assert.Equal(t, model.CourseGenerating, course.Status)

	p.runOne(t)

	tree, err := p.courses.GetCourseTree(user.ID, course.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CourseReady, tree.Status)
	assert.Equal(t, "A hands-on Go course.", tree.Description)
	assert.Equal(t, []string{"syntax", "goroutines"}, []string(tree.Topics))
	require.Len(t, tree.Levels, 4)
	assert.Equal(t, "Tooling", tree.Levels[3].Title)

	sections := p.sections(t, course.ID)
	require.Len(t, sections, 12)
	assert.Equal(t, model.SectionInProgress, sections[0].Status)
	for _, s := range sections[1:] {
		assert.Equal(t, model.SectionNoContent, s.Status)
	}

	var blocks []model.Block
	require.NoError(t, p.db.Where("section_id = ?", sections[0].ID).Order("order_index").Find(&blocks).Error)
	require.Len(t, blocks, 3)
	assert.Equal(t, model.BlockQuestion, blocks[1].Type)

	job := p.job(t, model.JobTypeCourseGeneration, course.ID)
	assert.Equal(t, model.JobSucceeded, job.Status)
	assert.Equal(t, stageDone, job.Stage)
	assert.Equal(t, 4, llm.count(sectionsSchema))
}

func TestCoursePipeline_FailureMarksCourseFailed(t *testing.T) {
	llm := cannedCourseLLM().fail(metadataSchema, fmt.Errorf("%w: model overloaded", util.ErrUpstream))
	p := newCoursePipeline(t, llm)

	course, err := p.courses.CreateCourse(context.Background(), 1, courseInput)
	require.NoError(t, err)
	p.runOne(t)

	stored, err := p.courses.CourseRepo.FindByID(course.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CourseFailed, stored.Status)
	assert.Contains(t, stored.ErrorMessage, "model overloaded")

	job := p.job(t, model.JobTypeCourseGeneration, course.ID)
	assert.Equal(t, model.JobFailed, job.Status)
	assert.Equal(t, stageMetadata, job.Stage)

	// 失败前已提交的阶段保留
	assert.Len(t, p.sections(t, course.ID), 12)
}

func TestCoursePipeline_ResumesFromStage(t *testing.T) {
	llm := cannedCourseLLM()
	p := newCoursePipeline(t, llm)

	course, err := p.courses.CreateCourse(context.Background(), 1, courseInput)
	require.NoError(t, err)
	for i, title := range []string{"A", "B", "C", "D"} {
		require.NoError(t, p.db.Create(&model.Level{CourseID: course.ID, UserID: 1, Title: title, Order: i + 1}).Error)
	}
	require.NoError(t, p.db.Model(&model.GenerationJob{}).
		Where("subject_id = ?", course.ID).
		Update("stage", stageSections).Error)

	p.runOne(t)

	assert.Zero(t, llm.count(courseDescriptionSchema))
	assert.Zero(t, llm.count(levelsSchema))
	assert.Equal(t, 4, llm.count(sectionsSchema))

	stored, err := p.courses.CourseRepo.FindByID(course.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CourseReady, stored.Status)
}

func TestCoursePipeline_ShutdownKeepsCourseResumable(t *testing.T) {
	llm := cannedCourseLLM()
	blocked := llm.hang(levelsSchema)
	p := newCoursePipeline(t, llm)

	course, err := p.courses.CreateCourse(context.Background(), 1, courseInput)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-blocked
		cancel()
	}()
	ran, err := p.worker.RunOnce(ctx)
	require.NoError(t, err)
	require.True(t, ran)

	stored, err := p.courses.CourseRepo.FindByID(course.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CourseGenerating, stored.Status)
	assert.Empty(t, stored.ErrorMessage)

	job := p.job(t, model.JobTypeCourseGeneration, course.ID)
	assert.Equal(t, model.JobQueued, job.Status)
	assert.Equal(t, stageLevels, job.Stage)

	p.runOne(t)

	assert.Equal(t, 1, llm.count(courseDescriptionSchema))
	stored, err = p.courses.CourseRepo.FindByID(course.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CourseReady, stored.Status)
	assert.Equal(t, model.JobSucceeded, p.job(t, model.JobTypeCourseGeneration, course.ID).Status)
}

func readyCourse(t *testing.T, p *coursePipeline, userID uint) []model.Section {
	t.Helper()
	course, err := p.courses.CreateCourse(context.Background(), userID, courseInput)
	require.NoError(t, err)
	p.runOne(t)
	return p.sections(t, course.ID)
}

func TestRequestSectionGeneration(t *testing.T) {
	p := newCoursePipeline(t, cannedCourseLLM())
	ctx := context.Background()
	sections := readyCourse(t, p, 1)
	target := sections[1]

	job, err := p.courses.RequestSectionGeneration(ctx, 1, target.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobTypeSectionGeneration, job.JobType)

	_, err = p.courses.RequestSectionGeneration(ctx, 1, target.ID)
	assert.ErrorIs(t, err, util.ErrRaceLost)

	p.runOne(t)

	stored, err := p.courses.SectionRepo.FindByID(target.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SectionInProgress, stored.Status)
	n, err := p.courses.BlockRepo.CountBySection(target.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	_, err = p.courses.RequestSectionGeneration(ctx, 1, target.ID)
	assert.ErrorIs(t, err, util.ErrRaceLost)
}

func TestRequestSectionGeneration_ConcurrentRequestsEnqueueOnce(t *testing.T) {
	p := newCoursePipeline(t, cannedCourseLLM())
	target := readyCourse(t, p, 1)[2]

	const clicks = 8
	errs := make([]error, clicks)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < clicks; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = p.courses.RequestSectionGeneration(context.Background(), 1, target.ID)
		}(i)
	}
	close(start)
	wg.Wait()

	won := 0
	for _, err := range errs {
		if err == nil {
			won++
			continue
		}
		assert.ErrorIs(t, err, util.ErrRaceLost)
	}
	assert.Equal(t, 1, won)

	var queued int64
	require.NoError(t, p.db.Model(&model.GenerationJob{}).
		Where("job_type = ? AND subject_id = ?", model.JobTypeSectionGeneration, target.ID).
		Count(&queued).Error)
	assert.Equal(t, int64(1), queued)

	stored, err := p.courses.SectionRepo.FindByID(target.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SectionGenerating, stored.Status)
}

func TestRequestSectionGeneration_Guards(t *testing.T) {
	p := newCoursePipeline(t, cannedCourseLLM())
	ctx := context.Background()
	sections := readyCourse(t, p, 1)

	_, err := p.courses.RequestSectionGeneration(ctx, 2, sections[2].ID)
	assert.ErrorIs(t, err, util.ErrNotAuthorized)

	_, err = p.courses.RequestSectionGeneration(ctx, 1, 9999)
	assert.ErrorIs(t, err, util.ErrNotFound)

	require.NoError(t, p.courses.SectionRepo.UpdateFields(sections[2].ID,
		map[string]interface{}{"status": model.SectionCompleted}))
	_, err = p.courses.RequestSectionGeneration(ctx, 1, sections[2].ID)
	assert.ErrorIs(t, err, util.ErrInvalidState)

	generating, err := p.courses.CreateCourse(ctx, 1, courseInput)
	require.NoError(t, err)
	level := &model.Level{CourseID: generating.ID, UserID: 1, Title: "L", Order: 1}
	require.NoError(t, p.db.Create(level).Error)
	pending := &model.Section{LevelID: level.ID, UserID: 1, Title: "S", Order: 1, Status: model.SectionNoContent}
	require.NoError(t, p.db.Create(pending).Error)
	_, err = p.courses.RequestSectionGeneration(ctx, 1, pending.ID)
	assert.ErrorIs(t, err, util.ErrInvalidState)
}

func TestSectionGeneration_FailureResetsSection(t *testing.T) {
	llm := cannedCourseLLM()
	p := newCoursePipeline(t, llm)
	ctx := context.Background()
	sections := readyCourse(t, p, 1)

	llm.fail(blocksSchema, errors.New("model unavailable"))
	_, err := p.courses.RequestSectionGeneration(ctx, 1, sections[4].ID)
	require.NoError(t, err)
	p.runOne(t)

	stored, err := p.courses.SectionRepo.FindByID(sections[4].ID)
	require.NoError(t, err)
	assert.Equal(t, model.SectionNoContent, stored.Status)
	assert.Contains(t, stored.ErrorMessage, "model unavailable")

	job := p.job(t, model.JobTypeSectionGeneration, sections[4].ID)
	assert.Equal(t, model.JobFailed, job.Status)
}
