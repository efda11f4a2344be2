package controller

import (
	"novaexam_backend/internal/service"
	"novaexam_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type LeaderboardController struct {
	Service *service.LeaderboardService
}

func NewLeaderboardController(s *service.LeaderboardService) *LeaderboardController {
	return &LeaderboardController{Service: s}
}

// Global godoc
// @Summary 总排行榜
// @Description 按所有已提交作答的总分排名，前 50 名
// @Tags 排行榜
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=[]service.GlobalEntry}
// @Router /api/leaderboard [get]
func (c *LeaderboardController) Global(ctx *gin.Context) {
	entries, err := c.Service.Global(ctx.Request.Context())
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, entries)
}

// Exam godoc
// @Summary 单场考试排行榜
// @Tags 排行榜
// @Produce json
// @Security BearerAuth
// @Param id path int true "考试ID"
// @Success 200 {object} util.Response{data=service.ExamLeaderboard}
// @Failure 404 {object} util.Response
// @Router /api/exams/{id}/leaderboard [get]
func (c *LeaderboardController) Exam(ctx *gin.Context) {
	examID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	board, err := c.Service.Exam(ctx.Request.Context(), examID)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, board)
}
