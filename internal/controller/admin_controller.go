package controller

import (
	"fmt"
	"novaexam_backend/internal/service"
	"novaexam_backend/internal/util"
	"strconv"

	"github.com/gin-gonic/gin"
)

type AdminController struct {
	ExamService      *service.ExamService
	ImportService    *service.ImportService
	DashboardService *service.DashboardService
}

func NewAdminController(
	examService *service.ExamService,
	importService *service.ImportService,
	dashboardService *service.DashboardService,
) *AdminController {
	return &AdminController{
		ExamService:      examService,
		ImportService:    importService,
		DashboardService: dashboardService,
	}
}

// Dashboard godoc
// @Summary 管理端统计
// @Description 学生数、考试数、作答数与最近 10 次作答
// @Tags 管理端
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=service.AdminStats}
// @Router /api/admin/dashboard [get]
func (c *AdminController) Dashboard(ctx *gin.Context) {
	stats, err := c.DashboardService.AdminStats(ctx.Request.Context())
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, stats)
}

// ListExams godoc
// @Summary 考试列表（含未发布）
// @Tags 管理端
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=[]repository.ExamListRow}
// @Router /api/admin/exams [get]
func (c *AdminController) ListExams(ctx *gin.Context) {
	exams, err := c.ExamService.ListExams(ctx.Request.Context())
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, exams)
}

// CreateExam godoc
// @Summary 创建考试
// @Tags 管理端
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body service.ExamReq true "考试信息"
// @Success 201 {object} util.Response{data=model.Exam}
// @Failure 400 {object} util.Response
// @Router /api/admin/exams [post]
func (c *AdminController) CreateExam(ctx *gin.Context) {
	var req service.ExamReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	exam, err := c.ExamService.CreateExam(ctx.Request.Context(), req)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Created(ctx, exam)
}

// GetExam godoc
// @Summary 考试详情（含题目与正确答案）
// @Tags 管理端
// @Produce json
// @Security BearerAuth
// @Param id path int true "考试ID"
// @Success 200 {object} util.Response{data=model.Exam}
// @Failure 404 {object} util.Response
// @Router /api/admin/exams/{id} [get]
func (c *AdminController) GetExam(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	exam, err := c.ExamService.GetExam(ctx.Request.Context(), id)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, exam)
}

// UpdateExam godoc
// @Summary 更新考试
// @Tags 管理端
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "考试ID"
// @Param body body service.ExamReq true "考试信息"
// @Success 200 {object} util.Response{data=model.Exam}
// @Failure 400 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/admin/exams/{id} [put]
func (c *AdminController) UpdateExam(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var req service.ExamReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	exam, err := c.ExamService.UpdateExam(ctx.Request.Context(), id, req)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, exam)
}

// DeleteExam godoc
// @Summary 删除考试
// @Description 同时删除题目、选项和所有作答
// @Tags 管理端
// @Produce json
// @Security BearerAuth
// @Param id path int true "考试ID"
// @Success 200 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/admin/exams/{id} [delete]
func (c *AdminController) DeleteExam(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	if err := c.ExamService.DeleteExam(ctx.Request.Context(), id); err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"id": id})
}

// TogglePublish godoc
// @Summary 切换发布状态
// @Description 变为已发布时通知所有学生
// @Tags 管理端
// @Produce json
// @Security BearerAuth
// @Param id path int true "考试ID"
// @Success 200 {object} util.Response{data=model.Exam}
// @Failure 404 {object} util.Response
// @Router /api/admin/exams/{id}/publish [post]
func (c *AdminController) TogglePublish(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	exam, err := c.ExamService.TogglePublish(ctx.Request.Context(), id)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, exam)
}

// ListQuestions godoc
// @Summary 题目列表
// @Tags 管理端
// @Produce json
// @Security BearerAuth
// @Param id path int true "考试ID"
// @Success 200 {object} util.Response{data=[]model.Question}
// @Router /api/admin/exams/{id}/questions [get]
func (c *AdminController) ListQuestions(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	questions, err := c.ExamService.ListQuestions(ctx.Request.Context(), id)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, questions)
}

// CreateQuestion godoc
// @Summary 添加题目
// @Description 至少两个选项，且恰好一个正确
// @Tags 管理端
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "考试ID"
// @Param body body service.QuestionReq true "题目"
// @Success 201 {object} util.Response{data=model.Question}
// @Failure 400 {object} util.Response
// @Router /api/admin/exams/{id}/questions [post]
func (c *AdminController) CreateQuestion(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var req service.QuestionReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	q, err := c.ExamService.CreateQuestion(ctx.Request.Context(), id, req)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Created(ctx, q)
}

// UpdateQuestion godoc
// @Summary 修改题目
// @Description 选项整体替换
// @Tags 管理端
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "题目ID"
// @Param body body service.QuestionReq true "题目"
// @Success 200 {object} util.Response{data=model.Question}
// @Failure 400 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/admin/questions/{id} [put]
func (c *AdminController) UpdateQuestion(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var req service.QuestionReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	q, err := c.ExamService.UpdateQuestion(ctx.Request.Context(), id, req)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, q)
}

// DeleteQuestion godoc
// @Summary 删除题目
// @Tags 管理端
// @Produce json
// @Security BearerAuth
// @Param id path int true "题目ID"
// @Success 200 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/admin/questions/{id} [delete]
func (c *AdminController) DeleteQuestion(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	if err := c.ExamService.DeleteQuestion(ctx.Request.Context(), id); err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"id": id})
}

// UploadQuestionImage godoc
// @Summary 上传题目配图
// @Tags 管理端
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param id path int true "题目ID"
// @Param file formData file true "图片"
// @Success 200 {object} util.Response{data=model.Question}
// @Failure 400 {object} util.Response
// @Router /api/admin/questions/{id}/image [post]
func (c *AdminController) UploadQuestionImage(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	fileHeader, err := ctx.FormFile("file")
	if err != nil {
		util.BadRequest(ctx, "File is required")
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	defer file.Close()

	q, err := c.ExamService.UploadQuestionImage(ctx.Request.Context(), id, fileHeader.Filename, file, fileHeader.Size)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, q)
}

// ImportQuestions godoc
// @Summary 批量导入题目
// @Description CSV 或 XLSX，必需列 question, option1..option4, correct；可选 marks, explanation, time_limit_seconds
// @Tags 管理端
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param id path int true "考试ID"
// @Param file formData file true "CSV / XLSX 文件"
// @Param clear_existing formData bool false "导入前清空已有题目"
// @Success 200 {object} util.Response{data=service.ImportResult}
// @Failure 400 {object} util.Response "缺少必需列或文件格式不支持"
// @Router /api/admin/exams/{id}/import [post]
func (c *AdminController) ImportQuestions(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	fileHeader, err := ctx.FormFile("file")
	if err != nil {
		util.BadRequest(ctx, "File is required")
		return
	}
	if fileHeader.Size > util.MaxImportSize {
		util.BadRequest(ctx, fmt.Sprintf("file exceeds %d bytes", util.MaxImportSize))
		return
	}
	if !util.HasAllowedExtension(fileHeader.Filename, util.AllowedImportExtensions) {
		util.BadRequest(ctx, util.ErrUnsupportedImport.Error())
		return
	}
	clearExisting, _ := strconv.ParseBool(ctx.DefaultPostForm("clear_existing", "false"))

	file, err := fileHeader.Open()
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	defer file.Close()

	result, err := c.ImportService.Import(ctx.Request.Context(), id, fileHeader.Filename, file, clearExisting)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// ListAttempts godoc
// @Summary 考试作答列表
// @Tags 管理端
// @Produce json
// @Security BearerAuth
// @Param id path int true "考试ID"
// @Success 200 {object} util.Response{data=[]service.AttemptRow}
// @Failure 404 {object} util.Response
// @Router /api/admin/exams/{id}/attempts [get]
func (c *AdminController) ListAttempts(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	rows, err := c.ExamService.ListAttempts(ctx.Request.Context(), id)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, rows)
}
