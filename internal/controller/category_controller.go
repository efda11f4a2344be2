package controller

import (
	"novaexam_backend/internal/service"
	"novaexam_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type CategoryController struct {
	ExamService *service.ExamService
}

func NewCategoryController(examService *service.ExamService) *CategoryController {
	return &CategoryController{ExamService: examService}
}

// List godoc
// @Summary 考试分类列表
// @Tags 分类
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=[]model.Category}
// @Router /api/categories [get]
func (c *CategoryController) List(ctx *gin.Context) {
	categories, err := c.ExamService.ListCategories(ctx.Request.Context())
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, categories)
}

// Create godoc
// @Summary 创建分类
// @Tags 管理端
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body service.CategoryReq true "分类"
// @Success 201 {object} util.Response{data=model.Category}
// @Failure 409 {object} util.Response "分类已存在"
// @Router /api/admin/categories [post]
func (c *CategoryController) Create(ctx *gin.Context) {
	var req service.CategoryReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	category, err := c.ExamService.CreateCategory(ctx.Request.Context(), req)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Created(ctx, category)
}
