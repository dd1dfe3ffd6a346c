package conversation

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"echowaves-backend/internal/domain"
	"echowaves-backend/internal/service/conversation"
	"echowaves-backend/internal/service/subscription"
	"echowaves-backend/pkg/response"
)

// Handler handles conversation HTTP requests
type Handler struct {
	conversationService *conversation.Service
	subscriptionService *subscription.Service
}

// NewHandler creates a new conversation handler
func NewHandler(conversationService *conversation.Service, subscriptionService *subscription.Service) *Handler {
	return &Handler{
		conversationService: conversationService,
		subscriptionService: subscriptionService,
	}
}

// CreateConversation creates a conversation owned by the caller
// POST /v1/conversations
func (h *Handler) CreateConversation(c *gin.Context) {
	var req domain.ConversationCreate
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	conv, err := h.conversationService.Create(c.Request.Context(), c.GetInt64("user_id"), &req)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, conv)
}

// GetConversation returns conversation details
// GET /v1/conversations/:id
func (h *Handler) GetConversation(c *gin.Context) {
	conv, ok := h.resolve(c)
	if !ok {
		return
	}

	response.Success(c, http.StatusOK, conv)
}

// MarkRead marks the conversation read for the caller
// POST /v1/conversations/:id/read
func (h *Handler) MarkRead(c *gin.Context) {
	conv, ok := h.resolve(c)
	if !ok {
		return
	}

	marked, err := h.subscriptionService.MarkRead(c.Request.Context(), c.GetInt64("user_id"), conv.ID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"subscribed": marked})
}

// ListSubscriptions returns the caller's conversations, most unread first
// GET /v1/subscriptions
func (h *Handler) ListSubscriptions(c *gin.Context) {
	summaries, err := h.subscriptionService.ListForUser(c.Request.Context(), c.GetInt64("user_id"))
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, summaries)
}

// resolve accepts a numeric id or the conversation uuid. Private conversations
// looked up by id are hidden from non-members.
func (h *Handler) resolve(c *gin.Context) (*domain.Conversation, bool) {
	key := c.Param("id")
	if key == "" {
		response.ValidationError(c, "Invalid conversation ID")
		return nil, false
	}
	viewer := domain.Viewer{UserID: c.GetInt64("user_id"), Role: c.GetString("role")}
	conv, err := h.conversationService.Resolve(c.Request.Context(), key, viewer)
	if err != nil {
		response.FromError(c, err)
		return nil, false
	}
	return conv, true
}
