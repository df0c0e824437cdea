package httptransport

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"clientmanager/backend/internal/domain"
	"clientmanager/backend/internal/storage"
)

// InquiryHandler 团队咨询接口，当前团队由 middleware.TeamScope 写入请求上下文
type InquiryHandler struct {
	store storage.Store
	log   *zap.Logger
}

type personResponse struct {
	ID       string `json:"id"`
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

type inquiryResponse struct {
	ID            string          `json:"id"`
	TeamID        string          `json:"teamId"`
	Subject       string          `json:"subject"`
	Description   string          `json:"description"`
	Client        *personResponse `json:"client,omitempty"`
	SourceID      string          `json:"sourceId"`
	ReferenceDate *time.Time      `json:"referenceDate,omitempty"`
	Archived      bool            `json:"archived"`
	CreatedAt     time.Time       `json:"createdAt"`
}

type inquiryListResponse struct {
	Items []inquiryResponse `json:"items"`
	Count int               `json:"count"`
}

// list 返回当前团队的咨询，?open=true 时只返回未归档的
func (h *InquiryHandler) list(c *gin.Context) {
	openOnly := false
	if raw := c.Query("open"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			BadRequest(c, MsgInvalidRequest)
			return
		}
		openOnly = v
	}

	inquiries, err := h.store.Repos().Inquiries.Query(c.Request.Context(), storage.PreloadClient)
	if err != nil {
		h.log.Error("failed to list inquiries", zap.String("team_id", c.Param("teamID")), zap.Error(err))
		InternalError(c, MsgInquiryListFailed)
		return
	}

	items := make([]inquiryResponse, 0, len(inquiries))
	for _, inquiry := range inquiries {
		if openOnly && !inquiry.IsOpen() {
			continue
		}
		items = append(items, toInquiryResponse(inquiry))
	}
	Success(c, inquiryListResponse{Items: items, Count: len(items)})
}

// get 返回单个咨询，其他团队的咨询视为不存在
func (h *InquiryHandler) get(c *gin.Context) {
	inquiry, err := h.store.Repos().Inquiries.Get(c.Request.Context(), c.Param("id"), storage.PreloadClient)
	if errors.Is(err, storage.ErrNotFound) {
		NotFound(c, MsgInquiryNotFound)
		return
	}
	if err != nil {
		h.log.Error("failed to get inquiry", zap.String("inquiry_id", c.Param("id")), zap.Error(err))
		InternalError(c, MsgInquiryGetFailed)
		return
	}
	Success(c, toInquiryResponse(inquiry))
}

// delete 删除咨询：不存在返回 404，属于其他团队返回 403
func (h *InquiryHandler) delete(c *gin.Context) {
	ctx := c.Request.Context()
	repos := h.store.Repos()

	// 先在服务上下文中查找，以区分"不存在"和"属于其他团队"
	inquiry, err := repos.Inquiries.Get(storage.WithTeam(ctx, ""), c.Param("id"))
	if errors.Is(err, storage.ErrNotFound) {
		NotFound(c, MsgInquiryNotFound)
		return
	}
	if err != nil {
		h.log.Error("failed to load inquiry", zap.String("inquiry_id", c.Param("id")), zap.Error(err))
		InternalError(c, MsgInquiryDeleteFailed)
		return
	}

	err = repos.Inquiries.Delete(ctx, inquiry)
	switch {
	case errors.Is(err, storage.ErrForeignTenant):
		h.log.Warn("foreign inquiry delete denied",
			zap.String("inquiry_id", inquiry.ID),
			zap.String("team_id", c.Param("teamID")),
			zap.String("owner_id", inquiry.OwnerID))
		Forbidden(c, GetErrorMessage(err))
	case errors.Is(err, storage.ErrNotFound):
		NotFound(c, MsgInquiryNotFound)
	case err != nil:
		h.log.Error("failed to delete inquiry", zap.String("inquiry_id", inquiry.ID), zap.Error(err))
		InternalError(c, MsgInquiryDeleteFailed)
	default:
		NoContent(c)
	}
}

func toInquiryResponse(inquiry *domain.Inquiry) inquiryResponse {
	resp := inquiryResponse{
		ID:            inquiry.ID,
		TeamID:        inquiry.OwnerID,
		Subject:       inquiry.Subject,
		Description:   inquiry.Description,
		SourceID:      inquiry.SourceID,
		ReferenceDate: inquiry.ReferenceDate,
		Archived:      inquiry.IsArchived,
		CreatedAt:     inquiry.CreatedAt,
	}
	if inquiry.Client != nil {
		resp.Client = &personResponse{
			ID:       inquiry.Client.ID,
			FullName: inquiry.Client.FullName(),
			Email:    inquiry.Client.Email,
			Role:     string(inquiry.Client.Role),
		}
	}
	return resp
}
