package controller

import (
	"novaexam_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// pathID 解析路径中的正整数 ID，失败时直接写 400
func pathID(ctx *gin.Context, name string) (uint, bool) {
	id := util.MustParseUint(ctx.Param(name))
	if id == 0 {
		util.BadRequest(ctx, "invalid "+name)
		return 0, false
	}
	return id, true
}
