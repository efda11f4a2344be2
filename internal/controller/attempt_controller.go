package controller

import (
	"novaexam_backend/internal/service"
	"novaexam_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type AttemptController struct {
	AttemptService *service.AttemptService
}

func NewAttemptController(attemptService *service.AttemptService) *AttemptController {
	return &AttemptController{AttemptService: attemptService}
}

// SaveAnswerRequest choiceId 为 null 时清空该题作答
// swagger:model SaveAnswerRequest
type SaveAnswerRequest struct {
	ChoiceID *uint `json:"choiceId"`
}

// SaveAnswer godoc
// @Summary 保存作答
// @Description 同一题重复保存会原地覆盖；作答已提交或已超时返回 409
// @Tags 作答
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "作答ID"
// @Param questionId path int true "题目ID"
// @Param body body SaveAnswerRequest true "所选选项"
// @Success 200 {object} util.Response{data=model.Answer}
// @Failure 400 {object} util.Response "选项不属于该题"
// @Failure 404 {object} util.Response
// @Failure 409 {object} util.Response
// @Router /api/attempts/{id}/answers/{questionId} [put]
func (c *AttemptController) SaveAnswer(ctx *gin.Context) {
	attemptID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	questionID, ok := pathID(ctx, "questionId")
	if !ok {
		return
	}

	var req SaveAnswerRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	user := util.GetUserFromContext(ctx)
	answer, err := c.AttemptService.SaveAnswer(ctx.Request.Context(), user.UserID, attemptID, questionID, req.ChoiceID)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, answer)
}

// Submit godoc
// @Summary 交卷
// @Description 幂等：已提交的作答直接返回
// @Tags 作答
// @Produce json
// @Security BearerAuth
// @Param id path int true "作答ID"
// @Success 200 {object} util.Response{data=service.AttemptView}
// @Failure 404 {object} util.Response
// @Router /api/attempts/{id}/submit [post]
func (c *AttemptController) Submit(ctx *gin.Context) {
	attemptID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	user := util.GetUserFromContext(ctx)

	attempt, err := c.AttemptService.Submit(ctx.Request.Context(), user.UserID, attemptID)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, c.AttemptService.View(attempt))
}

// Result godoc
// @Summary 成绩详情
// @Description 得分、正确题数、百分比、是否及格以及逐题解析
// @Tags 作答
// @Produce json
// @Security BearerAuth
// @Param id path int true "作答ID"
// @Success 200 {object} util.Response{data=service.ResultView}
// @Failure 404 {object} util.Response
// @Failure 409 {object} util.Response "尚未交卷"
// @Router /api/attempts/{id}/result [get]
func (c *AttemptController) Result(ctx *gin.Context) {
	attemptID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	user := util.GetUserFromContext(ctx)

	result, err := c.AttemptService.Result(ctx.Request.Context(), user.UserID, attemptID)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// MyResults godoc
// @Summary 我的成绩
// @Tags 作答
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=[]service.ResultSummary}
// @Router /api/results [get]
func (c *AttemptController) MyResults(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	results, err := c.AttemptService.ListMyResults(ctx.Request.Context(), user.UserID)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, results)
}
