package controller

import (
	"suma_backend/internal/service"
	"suma_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type LeaderboardController struct {
	LeaderboardService *service.LeaderboardService
}

func NewLeaderboardController(leaderboardService *service.LeaderboardService) *LeaderboardController {
	return &LeaderboardController{LeaderboardService: leaderboardService}
}

// GetLeaderboard godoc
// @Summary 经验排行榜
// @Tags 排行榜
// @Produce json
// @Security ApiKeyAuth
// @Param limit query int false "数量，默认10，最大100"
// @Success 200 {object} util.Response{data=[]service.LeaderboardEntry}
// @Router /api/leaderboard [get]
func (c *LeaderboardController) GetLeaderboard(ctx *gin.Context) {
	limit := util.ParseLimit(ctx.Query("limit"), 10, 100)
	list, err := c.LeaderboardService.GetLeaderboard(ctx.Request.Context(), limit)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, list)
}

// GetMyRank godoc
// @Summary 我的排名
// @Description 经验为 0 时 rank 为 0
// @Tags 排行榜
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=service.UserRank}
// @Router /api/leaderboard/me [get]
func (c *LeaderboardController) GetMyRank(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	rank, err := c.LeaderboardService.GetUserRank(claims.UserID)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, rank)
}

// GetStreak godoc
// @Summary 连续学习天数
// @Tags 排行榜
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=service.StreakSummary}
// @Router /api/streak [get]
func (c *LeaderboardController) GetStreak(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	summary, err := c.LeaderboardService.GetStreakSummary(claims.UserID)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, summary)
}
