package middleware

import (
	"github.com/gin-gonic/gin"

	"clientmanager/backend/internal/storage"
)

// TeamScope 将路径参数 param 作为当前团队写入请求上下文，
// 之后的存储访问只能看到该团队的数据
func TeamScope(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if teamID := c.Param(param); teamID != "" {
			c.Request = c.Request.WithContext(storage.WithTeam(c.Request.Context(), teamID))
		}
		c.Next()
	}
}
