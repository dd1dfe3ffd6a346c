package chat

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"echowaves-backend/internal/domain"
	"echowaves-backend/internal/service/chat"
	"echowaves-backend/internal/service/conversation"
	"echowaves-backend/internal/service/moderation"
	apperrors "echowaves-backend/pkg/errors"
	"echowaves-backend/pkg/response"
)

// Handler handles message HTTP requests
type Handler struct {
	chatService         *chat.Service
	moderationService   *moderation.Service
	conversationService *conversation.Service
}

// NewHandler creates a new chat handler
func NewHandler(chatService *chat.Service, moderationService *moderation.Service, conversationService *conversation.Service) *Handler {
	return &Handler{
		chatService:         chatService,
		moderationService:   moderationService,
		conversationService: conversationService,
	}
}

// AttachmentRequest is the metadata of an already uploaded file
type AttachmentRequest struct {
	ContentType string `json:"content_type" binding:"required"`
	FileName    string `json:"file_name" binding:"required"`
	FileSize    int64  `json:"file_size"`
	Width       *int   `json:"width,omitempty"`
	Height      *int   `json:"height,omitempty"`
}

// PostMessageRequest represents a message submission. System messages come from
// internal callers only, so there is no system_message field.
type PostMessageRequest struct {
	Message    string             `json:"message"`
	Something  string             `json:"something"`
	Attachment *AttachmentRequest `json:"attachment,omitempty"`
}

// PostMessage admits a message
// POST /v1/conversations/:id/messages
func (h *Handler) PostMessage(c *gin.Context) {
	conv, ok := h.resolve(c)
	if !ok {
		return
	}

	var req PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	input := &chat.AdmitInput{
		ConversationID: conv.ID,
		UserID:         c.GetInt64("user_id"),
		Body:           req.Message,
		Honeypot:       req.Something,
	}
	if req.Attachment != nil {
		input.Attachment = &domain.Attachment{
			ContentType: req.Attachment.ContentType,
			FileName:    req.Attachment.FileName,
			FileSize:    req.Attachment.FileSize,
			Width:       req.Attachment.Width,
			Height:      req.Attachment.Height,
		}
	}

	msg, err := h.chatService.Admit(c.Request.Context(), input)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, msg)
}

// ListMessages returns one page of messages
// GET /v1/conversations/:id/messages?page=1&scope=published&include_hidden=false
func (h *Handler) ListMessages(c *gin.Context) {
	conv, ok := h.resolve(c)
	if !ok {
		return
	}

	includeHidden, _ := strconv.ParseBool(c.DefaultQuery("include_hidden", "false"))
	page, err := h.chatService.List(c.Request.Context(), &chat.ListInput{
		ConversationID: conv.ID,
		Viewer:         viewer(c),
		Page:           c.Query("page"),
		Scope:          c.Query("scope"),
		IncludeHidden:  includeHidden,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, page)
}

// GetMessage returns one message, as XML when format=xml
// GET /v1/messages/:id?format=xml&except=user_id,created_at&unsafe=true
func (h *Handler) GetMessage(c *gin.Context) {
	messageID, ok := idParam(c, "id")
	if !ok {
		return
	}

	v := viewer(c)
	msg, err := h.chatService.Get(c.Request.Context(), messageID, v)
	if err != nil {
		response.FromError(c, err)
		return
	}

	if c.Query("format") != "xml" {
		response.Success(c, http.StatusOK, msg)
		return
	}

	opts := domain.ExportOptions{}
	if except := c.Query("except"); except != "" {
		opts.Except = strings.Split(except, ",")
	}
	if unsafe, _ := strconv.ParseBool(c.Query("unsafe")); unsafe {
		if !v.IsAdmin() {
			response.FromError(c, apperrors.ForbiddenError("Only admins can export unsafe fields"))
			return
		}
		opts.Unsafe = true
	}

	body, err := msg.ToXML(opts)
	if err != nil {
		response.FromError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/xml; charset=utf-8", body)
}

// ReportAbuse flags a message
// POST /v1/messages/:id/abuse_reports
func (h *Handler) ReportAbuse(c *gin.Context) {
	messageID, ok := idParam(c, "id")
	if !ok {
		return
	}

	if err := h.chatService.CheckAccess(c.Request.Context(), messageID, viewer(c)); err != nil {
		response.FromError(c, err)
		return
	}

	outcome, err := h.moderationService.ReportAbuse(c.Request.Context(), messageID, c.GetInt64("user_id"))
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, outcome)
}

func viewer(c *gin.Context) domain.Viewer {
	return domain.Viewer{UserID: c.GetInt64("user_id"), Role: c.GetString("role")}
}

// resolve looks up the :id conversation, given as a numeric id or its uuid
func (h *Handler) resolve(c *gin.Context) (*domain.Conversation, bool) {
	key := c.Param("id")
	if key == "" {
		response.ValidationError(c, "Invalid id")
		return nil, false
	}
	conv, err := h.conversationService.Resolve(c.Request.Context(), key, viewer(c))
	if err != nil {
		response.FromError(c, err)
		return nil, false
	}
	return conv, true
}

func idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		response.ValidationError(c, "Invalid "+name)
		return 0, false
	}
	return id, true
}
