package httptransport

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response 统一响应结构
type Response struct {
	Code int         `json:"code"`           // 业务状态码
	Msg  string      `json:"msg"`            // 中文提示信息
	Data interface{} `json:"data,omitempty"` // 数据载荷
}

// 业务状态码定义
const (
	// 成功状态码 2xx
	CodeSuccess = 200 // 成功

	// 客户端错误 4xx
	CodeBadRequest = 400 // 请求参数错误
	CodeForbidden  = 403 // 无权限
	CodeNotFound   = 404 // 资源不存在

	// 服务器错误 5xx
	CodeInternalError = 500 // 服务器内部错误
)

// Success 成功响应（200）
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code: CodeSuccess,
		Msg:  "成功",
		Data: data,
	})
}

// NoContent 无内容响应（204），用于删除成功
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// fail 写入错误响应，业务码与 HTTP 状态码一致
func fail(c *gin.Context, code int, msg string) {
	c.JSON(code, Response{Code: code, Msg: msg})
}

// BadRequest 请求参数错误（400）
func BadRequest(c *gin.Context, msg string) { fail(c, CodeBadRequest, msg) }

// Forbidden 跨团队访问（403）
func Forbidden(c *gin.Context, msg string) { fail(c, CodeForbidden, msg) }

// NotFound 资源不存在或不属于当前团队（404）
func NotFound(c *gin.Context, msg string) { fail(c, CodeNotFound, msg) }

// InternalError 服务器内部错误（500）
func InternalError(c *gin.Context, msg string) { fail(c, CodeInternalError, msg) }
