package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"suma_backend/internal/jobs"
	"suma_backend/internal/model"
	"suma_backend/internal/repository"
	"suma_backend/internal/util"
	"suma_backend/pkg/logger"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type CourseService struct {
	DB           *gorm.DB
	CourseRepo   *repository.CourseRepository
	SectionRepo  *repository.SectionRepository
	BlockRepo    *repository.BlockRepository
	ProgressRepo *repository.ProgressRepository
}

func NewCourseService(db *gorm.DB) *CourseService {
	return &CourseService{
		DB:           db,
		CourseRepo:   repository.NewCourseRepository(db),
		SectionRepo:  repository.NewSectionRepository(db),
		BlockRepo:    repository.NewBlockRepository(db),
		ProgressRepo: repository.NewProgressRepository(db),
	}
}

// CourseJobPayload 课程生成任务的输入
type CourseJobPayload struct {
	CourseID uint        `json:"courseId"`
	Input    CourseInput `json:"input"`
}

// SectionJobPayload 小节按需生成任务的输入
type SectionJobPayload struct {
	SectionID uint `json:"sectionId"`
	CourseID  uint `json:"courseId"`
}

func (in CourseInput) validate() error {
	var missing []string
	if strings.TrimSpace(in.Subject) == "" {
		missing = append(missing, "subject")
	}
	if strings.TrimSpace(in.LearningGoal) == "" {
		missing = append(missing, "learningGoal")
	}
	if strings.TrimSpace(in.ExperienceLevel) == "" {
		missing = append(missing, "experienceLevel")
	}
	if strings.TrimSpace(in.TimeCommitment) == "" {
		missing = append(missing, "timeCommitment")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", util.ErrInvalidInput, strings.Join(missing, ", "))
	}
	return nil
}

// CreateCourse 写入 generating 状态的课程并在同一事务中投递生成任务
func (s *CourseService) CreateCourse(ctx context.Context, userID uint, in CourseInput) (*model.Course, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	course := &model.Course{
		UserID:          userID,
		Title:           strings.TrimSpace(in.Subject),
		LearningGoal:    in.LearningGoal,
		ExperienceLevel: in.ExperienceLevel,
		LearningStyle:   in.LearningStyle,
		TimeCommitment:  in.TimeCommitment,
		Status:          model.CourseGenerating,
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.CourseRepo.WithTx(tx).Create(course); err != nil {
			return err
		}
		_, err := jobs.Enqueue(tx, model.JobTypeCourseGeneration, userID, course.ID, CourseJobPayload{
			CourseID: course.ID,
			Input:    in,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.Log.Info("Course generation enqueued", zap.Uint("courseId", course.ID), zap.Uint("userId", userID))
	return course, nil
}

// swagger:model CourseSummary
type CourseSummary struct {
	model.Course
	TotalSections     int64      `json:"totalSections"`
	CompletedSections int64      `json:"completedSections"`
	ProgressPercent   int        `json:"progressPercent"`
	LastAccessedAt    *time.Time `json:"lastAccessedAt,omitempty"`
}

// ListCourses 最近学习的课程排在前面，没学过的按创建时间倒序
func (s *CourseService) ListCourses(userID uint) ([]CourseSummary, error) {
	courses, err := s.CourseRepo.ListByUser(userID)
	if err != nil {
		return nil, err
	}

	ids := make([]uint, len(courses))
	for i, c := range courses {
		ids[i] = c.ID
	}
	counts, err := s.SectionRepo.CountByCourses(ids)
	if err != nil {
		return nil, err
	}

	progress, err := s.ProgressRepo.ListProgressByUser(userID)
	if err != nil {
		return nil, err
	}
	lastAccessed := make(map[uint]time.Time, len(progress))
	for _, p := range progress {
		lastAccessed[p.CourseID] = p.LastAccessedAt
	}

	summaries := make([]CourseSummary, len(courses))
	for i, c := range courses {
		cnt := counts[c.ID]
		summaries[i] = CourseSummary{
			Course:            c,
			TotalSections:     cnt.Total,
			CompletedSections: cnt.Completed,
			ProgressPercent:   percent(cnt.Completed, cnt.Total),
		}
		if t, ok := lastAccessed[c.ID]; ok {
			t := t
			summaries[i].LastAccessedAt = &t
		}
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		a, b := summaries[i].LastAccessedAt, summaries[j].LastAccessedAt
		switch {
		case a != nil && b != nil:
			return a.After(*b)
		case a != nil:
			return true
		default:
			return false
		}
	})
	return summaries, nil
}

func percent(done, total int64) int {
	if total == 0 {
		return 0
	}
	return int(float64(done) / float64(total) * 100)
}

// ownedCourse 统一处理不存在与越权
func (s *CourseService) ownedCourse(userID, courseID uint, tree bool) (*model.Course, error) {
	var (
		course *model.Course
		err    error
	)
	if tree {
		course, err = s.CourseRepo.FindTreeByID(courseID)
	} else {
		course, err = s.CourseRepo.FindByID(courseID)
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrCourseNotFound
	}
	if err != nil {
		return nil, err
	}
	if course.UserID != userID {
		return nil, util.ErrNotAuthorized
	}
	return course, nil
}

// GetCourseTree 课程 + 关卡 + 小节，均按 order 排序
func (s *CourseService) GetCourseTree(userID, courseID uint) (*model.Course, error) {
	return s.ownedCourse(userID, courseID, true)
}

// swagger:model CourseProgress
type CourseProgress struct {
	CourseID          uint                `json:"courseId"`
	Status            model.CourseStatus  `json:"status"`
	TotalSections     int64               `json:"totalSections"`
	CompletedSections int64               `json:"completedSections"`
	ProgressPercent   int                 `json:"progressPercent"`
	Progress          *model.UserProgress `json:"progress,omitempty"`
}

func (s *CourseService) GetCourseProgress(userID, courseID uint) (*CourseProgress, error) {
	course, err := s.ownedCourse(userID, courseID, false)
	if err != nil {
		return nil, err
	}

	counts, err := s.SectionRepo.CountByCourses([]uint{courseID})
	if err != nil {
		return nil, err
	}
	cnt := counts[courseID]
	out := &CourseProgress{
		CourseID:          courseID,
		Status:            course.Status,
		TotalSections:     cnt.Total,
		CompletedSections: cnt.Completed,
		ProgressPercent:   percent(cnt.Completed, cnt.Total),
	}

	progress, err := s.ProgressRepo.FindProgress(userID, courseID)
	if err == nil {
		out.Progress = progress
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	return out, nil
}

// sectionWithCourse 加载小节和所属课程并校验归属
func (s *CourseService) sectionWithCourse(userID, sectionID uint) (*model.Section, *model.Course, error) {
	section, err := s.SectionRepo.FindByID(sectionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, util.ErrSectionNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	if section.UserID != userID {
		return nil, nil, util.ErrNotAuthorized
	}
	course, err := s.CourseRepo.FindBySectionID(sectionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, util.ErrCourseNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	return section, course, nil
}

// RequestSectionGeneration 按需生成小节内容。检查顺序决定了返回哪种错误：
// 已有内容或正在生成属于并发竞争（409），其他非 no_content 状态属于非法状态（422）。
func (s *CourseService) RequestSectionGeneration(ctx context.Context, userID, sectionID uint) (*model.GenerationJob, error) {
	section, course, err := s.sectionWithCourse(userID, sectionID)
	if err != nil {
		return nil, err
	}
	if course.Status == model.CourseGenerating {
		return nil, fmt.Errorf("%w: course is still generating", util.ErrInvalidState)
	}

	count, err := s.BlockRepo.CountBySection(sectionID)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, fmt.Errorf("%w: section already has content", util.ErrRaceLost)
	}
	if section.Status == model.SectionGenerating {
		return nil, fmt.Errorf("%w: section is already generating", util.ErrRaceLost)
	}
	if !section.CanGenerate() {
		return nil, fmt.Errorf("%w: section status is %s", util.ErrInvalidState, section.Status)
	}

	var job *model.GenerationJob
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		flipped, err := s.SectionRepo.WithTx(tx).TransitionStatus(sectionID,
			model.SectionNoContent, model.SectionGenerating,
			map[string]interface{}{"error_message": ""})
		if err != nil {
			return err
		}
		if !flipped {
			return fmt.Errorf("%w: section generation already started", util.ErrRaceLost)
		}
		job, err = jobs.Enqueue(tx, model.JobTypeSectionGeneration, userID, sectionID, SectionJobPayload{
			SectionID: sectionID,
			CourseID:  course.ID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}
