package controller

import (
	"errors"
	"net/http"
	"novaexam_backend/internal/service"
	"novaexam_backend/internal/util"
	"strconv"

	"github.com/gin-gonic/gin"
)

// ExamController 学生端：考试列表、详情、开始考试与答题页
type ExamController struct {
	AttemptService   *service.AttemptService
	DashboardService *service.DashboardService
}

func NewExamController(attemptService *service.AttemptService, dashboardService *service.DashboardService) *ExamController {
	return &ExamController{
		AttemptService:   attemptService,
		DashboardService: dashboardService,
	}
}

// Dashboard godoc
// @Summary 学生首页
// @Description 已发布的考试及每场考试的状态（Available / Not Available / In Progress / Completed）
// @Tags 考试
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=[]service.DashboardItem}
// @Router /api/dashboard [get]
func (c *ExamController) Dashboard(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	items, err := c.DashboardService.StudentDashboard(ctx.Request.Context(), user.UserID)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, items)
}

// Detail godoc
// @Summary 考试详情
// @Description next 字段指示下一步：start、take、result 或 unavailable
// @Tags 考试
// @Produce json
// @Security BearerAuth
// @Param id path int true "考试ID"
// @Success 200 {object} util.Response{data=service.ExamOverview}
// @Failure 404 {object} util.Response
// @Router /api/exams/{id} [get]
func (c *ExamController) Detail(ctx *gin.Context) {
	examID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	user := util.GetUserFromContext(ctx)

	overview, err := c.DashboardService.ExamOverview(ctx.Request.Context(), user.UserID, examID)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, overview)
}

// Start godoc
// @Summary 开始考试
// @Description 幂等：已有作答时返回 200 和已有作答，新建时返回 201
// @Tags 考试
// @Produce json
// @Security BearerAuth
// @Param id path int true "考试ID"
// @Success 200 {object} util.Response{data=service.AttemptView}
// @Success 201 {object} util.Response{data=service.AttemptView}
// @Failure 404 {object} util.Response
// @Failure 409 {object} util.Response "考试不在开放时间"
// @Router /api/exams/{id}/start [post]
func (c *ExamController) Start(ctx *gin.Context) {
	examID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	user := util.GetUserFromContext(ctx)

	attempt, created, err := c.AttemptService.Start(ctx.Request.Context(), user.UserID, examID)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}

	view := c.AttemptService.View(attempt)
	if created {
		util.Created(ctx, view)
		return
	}
	util.Success(ctx, view)
}

// Take godoc
// @Summary 答题页
// @Description 返回第 q 题（从 1 开始），不包含正确答案；作答已提交时返回 409 和作答 ID
// @Tags 考试
// @Produce json
// @Security BearerAuth
// @Param id path int true "考试ID"
// @Param q query int false "题号" default(1)
// @Success 200 {object} util.Response{data=service.TakeView}
// @Failure 404 {object} util.Response "尚未开始考试"
// @Failure 409 {object} util.Response "作答已提交"
// @Router /api/exams/{id}/take [get]
func (c *ExamController) Take(ctx *gin.Context) {
	examID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	user := util.GetUserFromContext(ctx)
	index, _ := strconv.Atoi(ctx.DefaultQuery("q", "1"))

	view, err := c.AttemptService.TakeExam(ctx.Request.Context(), user.UserID, examID, index)
	if err != nil {
		var closed *service.ClosedAttemptError
		if errors.As(err, &closed) {
			util.ErrorWithData(ctx, http.StatusConflict, closed.Error(), gin.H{"attemptId": closed.AttemptID})
			return
		}
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, view)
}
