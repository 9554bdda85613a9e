package handler

import (
	"fmt"
	"io"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/seelix/docqa/internal/pkg/errcode"
	"github.com/seelix/docqa/internal/pkg/response"
	"github.com/seelix/docqa/internal/service"
)

type DocumentHandler struct {
	documents *service.DocumentService
}

func NewDocumentHandler(documents *service.DocumentService) *DocumentHandler {
	return &DocumentHandler{documents: documents}
}

type registerDocumentRequest struct {
	FolderID    int64  `json:"folder_id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
}

// Register records document metadata ahead of the out-of-band blob upload
// and returns the storage path the uploader must write to.
func (h *DocumentHandler) Register(c *gin.Context) {
	var req registerDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	if req.FolderID <= 0 || req.Filename == "" {
		response.Error(c, errcode.ErrInvalid, "folder_id and filename required")
		return
	}
	contentType := req.ContentType
	if contentType == "" {
		contentType = "application/pdf"
	}
	doc, err := h.documents.Register(c.Request.Context(), getUserID(c), req.FolderID, req.Filename, contentType)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, doc)
}

func (h *DocumentHandler) ListFolders(c *gin.Context) {
	folders, err := h.documents.ListFolders(c.Request.Context(), getUserID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, folders)
}

func (h *DocumentHandler) List(c *gin.Context) {
	folderID, err := strconv.ParseInt(c.Query("folder_id"), 10, 64)
	if err != nil || folderID <= 0 {
		response.Error(c, errcode.ErrInvalid, "folder_id required")
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))
	docs, err := h.documents.List(c.Request.Context(), getUserID(c), folderID, limit, offset)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, docs)
}

func (h *DocumentHandler) Get(c *gin.Context) {
	docID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || docID <= 0 {
		response.Error(c, errcode.ErrInvalid, "invalid document id")
		return
	}
	doc, err := h.documents.Get(c.Request.Context(), getUserID(c), docID)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, doc)
}

func (h *DocumentHandler) Download(c *gin.Context) {
	docID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || docID <= 0 {
		response.Error(c, errcode.ErrInvalid, "invalid document id")
		return
	}
	doc, rc, err := h.documents.OpenFile(c.Request.Context(), getUserID(c), docID)
	if err != nil {
		handleError(c, err)
		return
	}
	defer rc.Close()
	c.Header("Content-Type", doc.ContentType)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.OriginalFilename))
	c.Status(200)
	_, _ = io.Copy(c.Writer, rc)
}
