package controller

import (
	"net/http"
	"suma_backend/internal/util"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type HealthController struct {
	DB *gorm.DB
	// 开启视频时长探测时才检查 ffmpeg
	CheckFFmpeg bool
}

func NewHealthController(db *gorm.DB, checkFFmpeg bool) *HealthController {
	return &HealthController{DB: db, CheckFFmpeg: checkFFmpeg}
}

// @Summary 健康检查
// @Description 检查数据库连接与 ffmpeg 可用性
// @Tags 系统
// @Produce json
// @Success 200 {object} util.Response
// @Failure 503 {object} util.Response
// @Router /api/health [get]
func (c *HealthController) HealthCheck(ctx *gin.Context) {
	sqlDB, err := c.DB.DB()
	if err != nil {
		util.InternalServerError(ctx)
		return
	}

	if err := sqlDB.PingContext(ctx.Request.Context()); err != nil {
		util.Error(ctx, http.StatusServiceUnavailable, "Database unavailable")
		return
	}

	components := gin.H{"database": "up"}
	if c.CheckFFmpeg {
		if version, err := util.GetFFmpegVersion(); err != nil {
			components["ffmpeg"] = "unavailable"
		} else {
			components["ffmpeg"] = version
		}
	}

	util.Success(ctx, gin.H{
		"status":     "ok",
		"components": components,
	})
}
