package user

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"echowaves-backend/internal/service/subscription"
	"echowaves-backend/internal/service/user"
	"echowaves-backend/pkg/response"
)

// Handler handles user HTTP requests
type Handler struct {
	userService         *user.Service
	subscriptionService *subscription.Service
}

// NewHandler creates a new user handler
func NewHandler(userService *user.Service, subscriptionService *subscription.Service) *Handler {
	return &Handler{
		userService:         userService,
		subscriptionService: subscriptionService,
	}
}

// SetPersonalConversationRequest selects the conversation shown on a profile
type SetPersonalConversationRequest struct {
	ConversationID int64 `json:"conversation_id" binding:"required,gt=0"`
}

// GetProfile returns a user with follow counts
// GET /v1/users/:id
func (h *Handler) GetProfile(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || userID <= 0 {
		response.ValidationError(c, "Invalid user ID")
		return
	}

	profile, err := h.subscriptionService.Profile(c.Request.Context(), userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, profile)
}

// GetMe returns the caller's own profile
// GET /v1/users/me
func (h *Handler) GetMe(c *gin.Context) {
	profile, err := h.subscriptionService.Profile(c.Request.Context(), c.GetInt64("user_id"))
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, profile)
}

// SetPersonalConversation sets the caller's personal conversation
// PUT /v1/users/me/personal_conversation
func (h *Handler) SetPersonalConversation(c *gin.Context) {
	var req SetPersonalConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	userID := c.GetInt64("user_id")
	if err := h.userService.SetPersonalConversation(c.Request.Context(), userID, req.ConversationID); err != nil {
		response.FromError(c, err)
		return
	}

	profile, err := h.subscriptionService.Profile(c.Request.Context(), userID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, profile)
}
