package controller

import (
	"suma_backend/internal/service"
	"suma_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type SettingsController struct {
	SettingsService *service.SettingsService
}

func NewSettingsController(settingsService *service.SettingsService) *SettingsController {
	return &SettingsController{SettingsService: settingsService}
}

// GetSettings godoc
// @Summary 获取通知设置
// @Description 没有保存过时返回默认值（全部开启）
// @Tags 设置
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=model.UserSettings}
// @Router /api/settings [get]
func (c *SettingsController) GetSettings(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}
	settings, err := c.SettingsService.Get(claims.UserID)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, settings)
}

// UpdateSettings godoc
// @Summary 更新通知设置
// @Tags 设置
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param body body service.SettingsUpdate true "只更新提供的字段"
// @Success 200 {object} util.Response{data=model.UserSettings}
// @Router /api/settings [put]
func (c *SettingsController) UpdateSettings(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}
	var req service.SettingsUpdate
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	settings, err := c.SettingsService.Update(claims.UserID, req)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, settings)
}
