package controller

import (
	"suma_backend/internal/service"
	"suma_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type FlashcardController struct {
	FlashcardService *service.FlashcardService
}

func NewFlashcardController(flashcardService *service.FlashcardService) *FlashcardController {
	return &FlashcardController{FlashcardService: flashcardService}
}

// UploadSet godoc
// @Summary 上传文件生成抽认卡
// @Description 支持 PDF、txt、markdown
// @Tags 抽认卡
// @Accept multipart/form-data
// @Produce json
// @Security ApiKeyAuth
// @Param file formData file true "源文件"
// @Param title formData string false "标题"
// @Param description formData string false "描述"
// @Param targetCount formData int false "卡片数量 5-50"
// @Success 202 {object} util.Response{data=model.FlashcardSet}
// @Failure 400 {object} util.Response
// @Router /api/flashcard-sets/upload [post]
func (c *FlashcardController) UploadSet(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	var req service.FlashcardSetRequest
	if err := ctx.ShouldBind(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	header, err := ctx.FormFile("file")
	if err != nil {
		util.BadRequest(ctx, "file is required")
		return
	}
	file, err := header.Open()
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	defer file.Close()

	set, err := c.FlashcardService.CreateFromFile(ctx.Request.Context(), claims.UserID, req, file, header)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Accepted(ctx, set)
}

// swagger:model FlashcardURLsRequest
type FlashcardURLsRequest struct {
	service.FlashcardSetRequest
	URLs []string `json:"urls" binding:"required"`
}

// CreateFromURLs godoc
// @Summary 从网页生成抽认卡
// @Description 1 到 10 个 http(s) 链接，抓取失败的链接会被跳过
// @Tags 抽认卡
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param body body FlashcardURLsRequest true "链接"
// @Success 202 {object} util.Response{data=model.FlashcardSet}
// @Router /api/flashcard-sets/urls [post]
func (c *FlashcardController) CreateFromURLs(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}
	var req FlashcardURLsRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	set, err := c.FlashcardService.CreateFromURLs(ctx.Request.Context(), claims.UserID, req.FlashcardSetRequest, req.URLs)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Accepted(ctx, set)
}

// ListSets godoc
// @Summary 我的抽认卡集
// @Tags 抽认卡
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=[]model.FlashcardSet}
// @Router /api/flashcard-sets [get]
func (c *FlashcardController) ListSets(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}
	sets, err := c.FlashcardService.ListSets(claims.UserID)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, sets)
}

// GetSet godoc
// @Summary 抽认卡集详情
// @Tags 抽认卡
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "卡片集ID"
// @Success 200 {object} util.Response{data=service.FlashcardSetDetail}
// @Router /api/flashcard-sets/{id} [get]
func (c *FlashcardController) GetSet(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}
	id, ok := paramID(ctx, "id")
	if !ok {
		return
	}
	detail, err := c.FlashcardService.GetSet(claims.UserID, id)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, detail)
}

// DeleteSet godoc
// @Summary 删除抽认卡集
// @Tags 抽认卡
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "卡片集ID"
// @Success 200 {object} util.Response
// @Router /api/flashcard-sets/{id} [delete]
func (c *FlashcardController) DeleteSet(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}
	id, ok := paramID(ctx, "id")
	if !ok {
		return
	}
	if err := c.FlashcardService.DeleteSet(ctx.Request.Context(), claims.UserID, id); err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"id": id})
}

// swagger:model ReviewRequest
type ReviewRequest struct {
	Correct *bool `json:"correct" binding:"required"`
}

// Review godoc
// @Summary 记录复习结果
// @Tags 抽认卡
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "卡片ID"
// @Param body body ReviewRequest true "是否答对"
// @Success 200 {object} util.Response{data=model.UserFlashcardProgress}
// @Router /api/flashcards/{id}/review [post]
func (c *FlashcardController) Review(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}
	id, ok := paramID(ctx, "id")
	if !ok {
		return
	}
	var req ReviewRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	progress, err := c.FlashcardService.Review(ctx.Request.Context(), claims.UserID, id, *req.Correct)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, progress)
}

// Stats godoc
// @Summary 复习统计
// @Tags 抽认卡
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=service.FlashcardStats}
// @Router /api/flashcard-sets/stats [get]
func (c *FlashcardController) Stats(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}
	stats, err := c.FlashcardService.Stats(claims.UserID)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, stats)
}
