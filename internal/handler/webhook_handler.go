package handler

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"

	"github.com/seelix/docqa/internal/model"
	"github.com/seelix/docqa/internal/pkg/errcode"
	"github.com/seelix/docqa/internal/pkg/response"
	"github.com/seelix/docqa/internal/service"
)

type WebhookHandler struct {
	ingest *service.IngestService
	token  string
}

func NewWebhookHandler(ingest *service.IngestService, token string) *WebhookHandler {
	return &WebhookHandler{ingest: ingest, token: token}
}

// storageEventRequest accepts both the flat form and the event-bus envelope
// that nests the content type under data.
type storageEventRequest struct {
	Subject     string `json:"subject"`
	ContentType string `json:"contentType"`
	Data        struct {
		ContentType string `json:"contentType"`
	} `json:"data"`
}

func (r *storageEventRequest) contentType() string {
	if r.ContentType != "" {
		return r.ContentType
	}
	return r.Data.ContentType
}

// Storage receives blob-created notifications. It replies success for every
// handled event, including discarded ones, so the sender does not redeliver;
// only a store outage surfaces as an error and triggers redelivery.
func (h *WebhookHandler) Storage(c *gin.Context) {
	token := c.GetHeader("X-Webhook-Token")
	if subtle.ConstantTimeCompare([]byte(token), []byte(h.token)) != 1 {
		response.Error(c, errcode.ErrUnauthorized, "unauthorized")
		return
	}
	var req storageEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	evt := model.StorageEvent{
		Subject:     req.Subject,
		ContentType: req.contentType(),
	}
	if err := h.ingest.HandleNotification(c.Request.Context(), evt); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"handled": true})
}
