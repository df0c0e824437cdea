package httptransport

import (
	"errors"

	"clientmanager/backend/internal/storage"
)

// 错误消息映射表（业务错误 -> 中文消息）
var errorMessages = map[error]string{
	storage.ErrNotFound:      MsgInquiryNotFound,
	storage.ErrForeignTenant: MsgForeignTeam,
	storage.ErrOwnerRequired: MsgTeamRequired,
}

// GetErrorMessage 获取错误的中文消息
func GetErrorMessage(err error) string {
	for target, msg := range errorMessages {
		if errors.Is(err, target) {
			return msg
		}
	}
	return err.Error()
}

// 通用错误消息
const (
	// 请求相关
	MsgInvalidRequest = "请求参数格式错误"
	MsgTeamRequired   = "缺少团队标识"

	// 咨询相关
	MsgInquiryNotFound     = "咨询不存在"
	MsgInquiryListFailed   = "获取咨询列表失败"
	MsgInquiryGetFailed    = "获取咨询详情失败"
	MsgInquiryDeleteFailed = "删除咨询失败"
	MsgForeignTeam         = "无权访问其他团队的数据"

	// 服务器错误
	MsgInternalError = "服务器内部错误，请稍后重试"
)
