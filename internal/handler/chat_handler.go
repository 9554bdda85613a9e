package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/seelix/docqa/internal/pkg/errcode"
	"github.com/seelix/docqa/internal/pkg/response"
	"github.com/seelix/docqa/internal/service"
)

type ChatHandler struct {
	chat *service.ChatService
}

func NewChatHandler(chat *service.ChatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

type chatRequest struct {
	Query      string `json:"query"`
	FolderID   int64  `json:"folder_id"`
	RenderHTML bool   `json:"render_html"`
}

func (h *ChatHandler) Ask(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	if req.Query == "" {
		response.Error(c, errcode.ErrInvalid, "query required")
		return
	}
	if req.FolderID <= 0 {
		response.Error(c, errcode.ErrInvalid, "folder_id required")
		return
	}
	answer, err := h.chat.Ask(c.Request.Context(), getUserID(c), req.FolderID, req.Query, req.RenderHTML)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, answer)
}
