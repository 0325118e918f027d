package service

import (
	"context"
	"errors"
	"fmt"
	"suma_backend/internal/jobs"
	"suma_backend/internal/model"
	"suma_backend/internal/repository"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	stageDescribe     = "describe"
	stageLevels       = "levels"
	stageSections     = "sections"
	stageFirstSection = "first_section"
	stageVideo        = "video"
	stageMetadata     = "metadata"
	stageReady        = "ready"
	stageDone         = "done"
)

var courseStages = []string{
	stageDescribe,
	stageLevels,
	stageSections,
	stageFirstSection,
	stageVideo,
	stageMetadata,
	stageReady,
}

// stageCheckpoint 记录最后完成的阶段，实际数据以表中已提交的行为准
type stageCheckpoint struct {
	Completed string `json:"completed"`
}

// CourseGenerationHandler 按阶段生成整门课程。每个阶段提交后推进 stage，
// 重启后从未完成的阶段继续；阶段内部对已写入的行是幂等的。
type CourseGenerationHandler struct {
	Curriculum *CurriculumGenerator
	Blocks     *BlockGenerator
	Video      VideoRenderer
	Notifier   *NotificationService
}

func NewCourseGenerationHandler(curriculum *CurriculumGenerator, blocks *BlockGenerator, video VideoRenderer, notifier *NotificationService) *CourseGenerationHandler {
	return &CourseGenerationHandler{
		Curriculum: curriculum,
		Blocks:     blocks,
		Video:      video,
		Notifier:   notifier,
	}
}

func (h *CourseGenerationHandler) Type() string {
	return model.JobTypeCourseGeneration
}

type courseRun struct {
	jc       *jobs.Context
	payload  CourseJobPayload
	courses  *repository.CourseRepository
	levels   *repository.LevelRepository
	sections *repository.SectionRepository
	blocks   *repository.BlockRepository
}

func (h *CourseGenerationHandler) Run(jc *jobs.Context) error {
	var p CourseJobPayload
	if err := jc.Payload(&p); err != nil {
		return err
	}
	run := &courseRun{
		jc:       jc,
		payload:  p,
		courses:  repository.NewCourseRepository(jc.DB),
		levels:   repository.NewLevelRepository(jc.DB),
		sections: repository.NewSectionRepository(jc.DB),
		blocks:   repository.NewBlockRepository(jc.DB),
	}

	course, err := run.courses.FindByID(p.CourseID)
	if err != nil {
		return jobs.Permanent(fmt.Errorf("load course %d: %w", p.CourseID, err))
	}
	if course.Status != model.CourseGenerating {
		jc.Log.Info("Course no longer generating, nothing to do", zap.String("status", string(course.Status)))
		return nil
	}

	for i := stageIndex(jc.Stage()); i < len(courseStages); i++ {
		stage := courseStages[i]
		if err := h.runStage(run, stage); err != nil {
			return err
		}
		next := stageDone
		if i+1 < len(courseStages) {
			next = courseStages[i+1]
		}
		if err := jc.Advance(next, stageCheckpoint{Completed: stage}); err != nil {
			return err
		}
	}
	return nil
}

// OnFailure 补偿写：课程置为 failed 并记录错误，只写一次
func (h *CourseGenerationHandler) OnFailure(jc *jobs.Context, cause error) {
	var p CourseJobPayload
	if err := jc.Payload(&p); err != nil {
		return
	}
	_, err := repository.NewCourseRepository(jc.DB).
		TransitionStatus(p.CourseID, model.CourseGenerating, model.CourseFailed, cause.Error())
	if err != nil {
		jc.Log.Error("Mark course failed", zap.Error(err))
	}
}

func stageIndex(stage string) int {
	if stage == stageDone {
		return len(courseStages)
	}
	for i, s := range courseStages {
		if s == stage {
			return i
		}
	}
	return 0
}

func (h *CourseGenerationHandler) runStage(run *courseRun, stage string) error {
	switch stage {
	case stageDescribe:
		return run.jc.RunStage(stage, run.describe(h))
	case stageLevels:
		return run.jc.RunStage(stage, run.createLevels(h))
	case stageSections:
		return run.jc.RunStage(stage, run.createSections(h))
	case stageFirstSection:
		return run.jc.RunStage(stage, run.fillFirstSection(h))
	case stageVideo:
		// 视频是锦上添花，失败只记录日志
		if h.Video == nil {
			return nil
		}
		if err := run.jc.RunStage(stage, func(ctx context.Context) error {
			return jobs.Permanent(run.renderVideo(ctx, h))
		}); err != nil {
			run.jc.Log.Warn("Video generation skipped", zap.Error(err))
		}
		return nil
	case stageMetadata:
		return run.jc.RunStage(stage, run.metadata(h))
	case stageReady:
		return run.markReady(h)
	}
	return jobs.Permanent(fmt.Errorf("unknown stage %q", stage))
}

func (r *courseRun) describe(h *CourseGenerationHandler) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		desc, err := h.Curriculum.Describe(ctx, r.payload.Input)
		if err != nil {
			return err
		}
		return r.courses.UpdateFields(r.payload.CourseID, map[string]interface{}{
			"description": desc.Description,
			"summary":     desc.Summary,
		})
	}
}

func (r *courseRun) createLevels(h *CourseGenerationHandler) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		existing, err := r.levels.ListByCourse(r.payload.CourseID)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return nil
		}

		items, err := h.Curriculum.Levels(ctx, r.payload.Input)
		if err != nil {
			return err
		}
		rows := make([]model.Level, len(items))
		for i, it := range items {
			rows[i] = model.Level{
				CourseID:    r.payload.CourseID,
				UserID:      r.jc.Job.OwnerID,
				Title:       it.Title,
				Order:       it.Order,
				Description: it.Description,
			}
		}
		return r.jc.DB.Transaction(func(tx *gorm.DB) error {
			return r.levels.WithTx(tx).CreateBatch(rows)
		})
	}
}

// createSections 各关卡并发请求，按关卡顺序逐个落库；已有小节的关卡跳过
func (r *courseRun) createSections(h *CourseGenerationHandler) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		levels, err := r.levels.ListByCourse(r.payload.CourseID)
		if err != nil {
			return err
		}
		if len(levels) == 0 {
			return jobs.Permanent(errors.New("course has no levels"))
		}

		pending := make([]model.Level, 0, len(levels))
		for _, l := range levels {
			n, err := r.sections.CountByLevel(l.ID)
			if err != nil {
				return err
			}
			if n == 0 {
				pending = append(pending, l)
			}
		}

		results := make([][]OutlineItem, len(pending))
		g, gctx := errgroup.WithContext(ctx)
		for i, l := range pending {
			i, l := i, l
			g.Go(func() error {
				items, err := h.Curriculum.Sections(gctx, r.payload.Input, OutlineItem{
					Title:       l.Title,
					Order:       l.Order,
					Description: l.Description,
				})
				if err != nil {
					return fmt.Errorf("level %d: %w", l.Order, err)
				}
				results[i] = items
				return nil
			})
		}
		genErr := g.Wait()

		// 成功的关卡先落库，重试时只需补齐失败的部分
		for i, l := range pending {
			if results[i] == nil {
				continue
			}
			rows := make([]model.Section, len(results[i]))
			for j, it := range results[i] {
				rows[j] = model.Section{
					LevelID:     l.ID,
					UserID:      r.jc.Job.OwnerID,
					Title:       it.Title,
					Order:       it.Order,
					Description: it.Description,
					Status:      model.SectionNoContent,
				}
			}
			if err := r.jc.DB.Transaction(func(tx *gorm.DB) error {
				return r.sections.WithTx(tx).CreateBatch(rows)
			}); err != nil {
				return err
			}
		}
		return genErr
	}
}

func (r *courseRun) fillFirstSection(h *CourseGenerationHandler) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		section, err := r.sections.FirstOfCourse(r.payload.CourseID)
		if err != nil {
			return fmt.Errorf("find first section: %w", err)
		}
		n, err := r.blocks.CountBySection(section.ID)
		if err != nil {
			return err
		}
		if n > 0 {
			return nil
		}

		blocks, err := h.Blocks.Generate(ctx, section.ID, section.UserID, SectionBrief{
			Title:           section.Title,
			Description:     section.Description,
			Subject:         r.payload.Input.Subject,
			ExperienceLevel: r.payload.Input.ExperienceLevel,
		})
		if err != nil {
			return err
		}
		return persistSectionBlocks(r.jc.DB, section.ID, blocks)
	}
}

// persistSectionBlocks 块与 status=in_progress 在同一事务提交
func persistSectionBlocks(db *gorm.DB, sectionID uint, blocks []*model.Block) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := repository.NewBlockRepository(tx).CreateBatch(blocks); err != nil {
			return err
		}
		return repository.NewSectionRepository(tx).UpdateFields(sectionID, map[string]interface{}{
			"status":        model.SectionInProgress,
			"error_message": "",
		})
	})
}

func (r *courseRun) renderVideo(ctx context.Context, h *CourseGenerationHandler) error {
	section, err := r.sections.FirstOfCourse(r.payload.CourseID)
	if err != nil {
		return err
	}
	if section.VideoURL != "" {
		return nil
	}
	blocks, err := r.blocks.ListBySection(section.ID)
	if err != nil {
		return err
	}

	summaries := make([]string, 0, len(blocks))
	for _, b := range blocks {
		s, err := h.Curriculum.Summarize(ctx, b.Content)
		if err != nil {
			return err
		}
		summaries = append(summaries, s)
	}

	video, err := h.Video.Render(ctx, VideoRequest{
		Title:   section.Title,
		Subject: r.payload.Input.Subject,
		Blocks:  summaries,
	})
	if err != nil {
		return err
	}
	return r.sections.UpdateFields(section.ID, map[string]interface{}{
		"video_url":              video.URL,
		"video_duration_seconds": video.DurationSeconds,
	})
}

func (r *courseRun) metadata(h *CourseGenerationHandler) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		levels, err := r.levels.ListByCourse(r.payload.CourseID)
		if err != nil {
			return err
		}
		outline := make([]OutlineItem, len(levels))
		for i, l := range levels {
			outline[i] = OutlineItem{Title: l.Title, Order: l.Order, Description: l.Description}
		}

		meta, err := h.Curriculum.Metadata(ctx, r.payload.Input, outline)
		if err != nil {
			return err
		}
		return r.courses.UpdateFields(r.payload.CourseID, map[string]interface{}{
			"topics":        datatypes.JSONSlice[string](meta.Topics),
			"prerequisites": datatypes.JSONSlice[string](meta.Prerequisites),
			"next_steps":    datatypes.JSONSlice[string](meta.NextSteps),
		})
	}
}

func (r *courseRun) markReady(h *CourseGenerationHandler) error {
	if _, err := r.courses.TransitionStatus(r.payload.CourseID, model.CourseGenerating, model.CourseReady, ""); err != nil {
		return err
	}
	if h.Notifier == nil {
		return nil
	}
	course, err := r.courses.FindByID(r.payload.CourseID)
	if err != nil {
		return err
	}
	if err := h.Notifier.CourseReady(r.jc.Ctx, course); err != nil {
		r.jc.Log.Warn("Course ready email failed", zap.Error(err))
	}
	return nil
}

// SectionGenerationHandler 处理用户按需触发的小节生成
type SectionGenerationHandler struct {
	Blocks *BlockGenerator
}

func NewSectionGenerationHandler(blocks *BlockGenerator) *SectionGenerationHandler {
	return &SectionGenerationHandler{Blocks: blocks}
}

func (h *SectionGenerationHandler) Type() string {
	return model.JobTypeSectionGeneration
}

func (h *SectionGenerationHandler) Run(jc *jobs.Context) error {
	var p SectionJobPayload
	if err := jc.Payload(&p); err != nil {
		return err
	}
	sections := repository.NewSectionRepository(jc.DB)
	blockRepo := repository.NewBlockRepository(jc.DB)

	section, err := sections.FindByID(p.SectionID)
	if err != nil {
		return jobs.Permanent(fmt.Errorf("load section %d: %w", p.SectionID, err))
	}
	n, err := blockRepo.CountBySection(section.ID)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	course, err := repository.NewCourseRepository(jc.DB).FindByID(p.CourseID)
	if err != nil {
		return jobs.Permanent(fmt.Errorf("load course %d: %w", p.CourseID, err))
	}

	return jc.RunStage("blocks", func(ctx context.Context) error {
		blocks, err := h.Blocks.Generate(ctx, section.ID, section.UserID, SectionBrief{
			Title:           section.Title,
			Description:     section.Description,
			Subject:         course.Title,
			ExperienceLevel: course.ExperienceLevel,
		})
		if err != nil {
			return err
		}
		return persistSectionBlocks(jc.DB, section.ID, blocks)
	})
}

// OnFailure 小节回到 no_content 并记录错误，用户可以再次触发
func (h *SectionGenerationHandler) OnFailure(jc *jobs.Context, cause error) {
	var p SectionJobPayload
	if err := jc.Payload(&p); err != nil {
		return
	}
	_, err := repository.NewSectionRepository(jc.DB).TransitionStatus(p.SectionID,
		model.SectionGenerating, model.SectionNoContent,
		map[string]interface{}{"error_message": cause.Error()})
	if err != nil {
		jc.Log.Error("Reset section after failed generation", zap.Error(err))
	}
}
