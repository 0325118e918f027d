package controller

import (
	"suma_backend/internal/service"
	"suma_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type LearningController struct {
	LearningService *service.LearningService
	AnswerService   *service.AnswerService
}

func NewLearningController(learningService *service.LearningService, answerService *service.AnswerService) *LearningController {
	return &LearningController{LearningService: learningService, AnswerService: answerService}
}

// GetSectionBlocks godoc
// @Summary 获取小节内容块
// @Description 只返回已完成的块和当前块，后面的块不下发
// @Tags 学习模块
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "小节ID"
// @Success 200 {object} util.Response{data=[]service.BlockView}
// @Router /api/sections/{id}/blocks [get]
func (c *LearningController) GetSectionBlocks(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}
	id, ok := paramID(ctx, "id")
	if !ok {
		return
	}

	blocks, err := c.LearningService.FetchBlocks(ctx.Request.Context(), claims.UserID, id)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, blocks)
}

// CompleteSection godoc
// @Summary 完成小节
// @Tags 学习模块
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "小节ID"
// @Success 200 {object} util.Response{data=model.Section}
// @Failure 422 {object} util.Response
// @Router /api/sections/{id}/complete [post]
func (c *LearningController) CompleteSection(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}
	id, ok := paramID(ctx, "id")
	if !ok {
		return
	}

	section, err := c.LearningService.MarkSectionCompleted(ctx.Request.Context(), claims.UserID, id)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, section)
}

// CompleteBlock godoc
// @Summary 完成内容块
// @Description 内容块点击继续；问题块上表示查看答案
// @Tags 学习模块
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "块ID"
// @Success 200 {object} util.Response{data=service.CompletionResult}
// @Failure 422 {object} util.Response "块尚未解锁"
// @Router /api/blocks/{id}/complete [post]
func (c *LearningController) CompleteBlock(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}
	id, ok := paramID(ctx, "id")
	if !ok {
		return
	}

	result, err := c.LearningService.CompleteBlock(ctx.Request.Context(), claims.UserID, id)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// swagger:model SubmitAnswerRequest
type SubmitAnswerRequest struct {
	Answer string `json:"answer" binding:"required"`
}

// SubmitAnswer godoc
// @Summary 提交答案
// @Description 多选题答案用逗号分隔，顺序无关
// @Tags 学习模块
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "块ID"
// @Param body body SubmitAnswerRequest true "答案"
// @Success 200 {object} util.Response{data=service.AnswerResult}
// @Router /api/blocks/{id}/answer [post]
func (c *LearningController) SubmitAnswer(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}
	id, ok := paramID(ctx, "id")
	if !ok {
		return
	}
	var req SubmitAnswerRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	result, err := c.LearningService.SubmitAnswer(ctx.Request.Context(), claims.UserID, id, req.Answer)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// UseHint godoc
// @Summary 使用提示
// @Tags 学习模块
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "块ID"
// @Success 200 {object} util.Response{data=object}
// @Router /api/blocks/{id}/hint [post]
func (c *LearningController) UseHint(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}
	id, ok := paramID(ctx, "id")
	if !ok {
		return
	}

	hint, err := c.LearningService.UseHint(ctx.Request.Context(), claims.UserID, id)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"hint": hint})
}

// swagger:model VerifyAnswerRequest
type VerifyAnswerRequest struct {
	Question      string `json:"question" binding:"required"`
	CorrectAnswer string `json:"correctAnswer" binding:"required"`
	UserAnswer    string `json:"userAnswer" binding:"required"`
}

// VerifyAnswer godoc
// @Summary 自由文本答案判定
// @Description 完全一致时直接判对，否则交给模型判断语义是否一致
// @Tags 学习模块
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param body body VerifyAnswerRequest true "题目与答案"
// @Success 200 {object} util.Response{data=service.AnswerVerification}
// @Failure 502 {object} util.Response
// @Router /api/answers/verify [post]
func (c *LearningController) VerifyAnswer(ctx *gin.Context) {
	var req VerifyAnswerRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	result, err := c.AnswerService.VerifyAnswer(ctx.Request.Context(), req.Question, req.CorrectAnswer, req.UserAnswer)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, result)
}
