package controller

import (
	"suma_backend/internal/service"
	"suma_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type CourseController struct {
	CourseService *service.CourseService
}

func NewCourseController(courseService *service.CourseService) *CourseController {
	return &CourseController{CourseService: courseService}
}

// paramID 解析路径中的 id，非法时直接写 400
func paramID(ctx *gin.Context, name string) (uint, bool) {
	id := util.MustParseUint(ctx.Param(name))
	if id == 0 {
		util.BadRequest(ctx, "invalid "+name)
		return 0, false
	}
	return id, true
}

// swagger:model CreateCourseRequest
type CreateCourseRequest struct {
	Subject         string `json:"subject" binding:"required"`
	LearningGoal    string `json:"learningGoal" binding:"required"`
	ExperienceLevel string `json:"experienceLevel" binding:"required"`
	LearningStyle   string `json:"learningStyle"`
	TimeCommitment  string `json:"timeCommitment" binding:"required"`
}

// CreateCourse godoc
// @Summary 创建课程
// @Description 写入课程并异步生成关卡、小节和第一个小节的内容
// @Tags 课程
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param body body CreateCourseRequest true "课程需求"
// @Success 202 {object} util.Response{data=object} "已开始生成"
// @Failure 400 {object} util.Response "请求参数错误"
// @Router /api/courses [post]
func (c *CourseController) CreateCourse(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	var req CreateCourseRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	course, err := c.CourseService.CreateCourse(ctx.Request.Context(), claims.UserID, service.CourseInput{
		Subject:         req.Subject,
		LearningGoal:    req.LearningGoal,
		ExperienceLevel: req.ExperienceLevel,
		LearningStyle:   req.LearningStyle,
		TimeCommitment:  req.TimeCommitment,
	})
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Accepted(ctx, gin.H{"id": course.ID, "status": course.Status})
}

// ListCourses godoc
// @Summary 我的课程
// @Description 包含小节完成数，最近学习的排在前面
// @Tags 课程
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=[]service.CourseSummary}
// @Router /api/courses [get]
func (c *CourseController) ListCourses(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	list, err := c.CourseService.ListCourses(claims.UserID)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, list)
}

// GetCourse godoc
// @Summary 课程详情
// @Description 课程、关卡、小节，均按顺序排列
// @Tags 课程
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "课程ID"
// @Success 200 {object} util.Response{data=model.Course}
// @Failure 403 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/courses/{id} [get]
func (c *CourseController) GetCourse(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}
	id, ok := paramID(ctx, "id")
	if !ok {
		return
	}

	course, err := c.CourseService.GetCourseTree(claims.UserID, id)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, course)
}

// GetCourseProgress godoc
// @Summary 课程进度
// @Tags 课程
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "课程ID"
// @Success 200 {object} util.Response{data=service.CourseProgress}
// @Router /api/courses/{id}/progress [get]
func (c *CourseController) GetCourseProgress(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}
	id, ok := paramID(ctx, "id")
	if !ok {
		return
	}

	progress, err := c.CourseService.GetCourseProgress(claims.UserID, id)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, progress)
}

// GenerateSection godoc
// @Summary 生成小节内容
// @Description 只有 no_content 状态的小节可以触发；重复触发返回 409
// @Tags 课程
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "小节ID"
// @Success 202 {object} util.Response{data=object}
// @Failure 409 {object} util.Response "已有内容或正在生成"
// @Failure 422 {object} util.Response "状态不允许"
// @Router /api/sections/{id}/generate [post]
func (c *CourseController) GenerateSection(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}
	id, ok := paramID(ctx, "id")
	if !ok {
		return
	}

	job, err := c.CourseService.RequestSectionGeneration(ctx.Request.Context(), claims.UserID, id)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Accepted(ctx, gin.H{"sectionId": id, "jobId": job.ID})
}
