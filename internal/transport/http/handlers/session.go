package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Maryam-Bagia/StudyNest/internal/infra/logger"
	"github.com/Maryam-Bagia/StudyNest/internal/usecase"
)

// SessionHandler drives the session state machine on behalf of the screen layer.
type SessionHandler struct {
	controller *usecase.SessionController
}

// NewSessionHandler constructs a session handler.
func NewSessionHandler(controller *usecase.SessionController) *SessionHandler {
	return &SessionHandler{controller: controller}
}

// RegisterRoutes binds session routes to the provided router group.
func (h *SessionHandler) RegisterRoutes(r *gin.RouterGroup) {
	if r == nil {
		return
	}

	r.GET("", h.GetSession)
	r.POST("/login", h.Login)
	r.POST("/signup", h.Signup)
	r.POST("/signout", h.Signout)
}

// GetSession returns the current session state.
func (h *SessionHandler) GetSession(c *gin.Context) {
	c.JSON(http.StatusOK, NewSessionStateResponse(h.controller.State()))
}

// Login starts a login attempt. The outcome arrives on the event stream or a later GET.
func (h *SessionHandler) Login(c *gin.Context) {
	h.start(c, h.controller.Login)
}

// Signup starts an account creation attempt.
func (h *SessionHandler) Signup(c *gin.Context) {
	h.start(c, h.controller.Signup)
}

func (h *SessionHandler) start(c *gin.Context, op func(identifier, credential string) error) {
	var req SessionCredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid request body"))
		return
	}

	identifier := strings.TrimSpace(req.Identifier)
	if identifier == "" || req.Credential == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "identifier and credential are required"))
		return
	}

	if err := op(identifier, req.Credential); err != nil {
		RespondWithMappedError(c, err, sessionErrorCases, http.StatusInternalServerError, "failed to start session operation")
		return
	}

	c.JSON(http.StatusAccepted, NewSessionStateResponse(h.controller.State()))
}

// Signout ends the session locally. A failure to clear the remote session is
// logged and does not change the response.
func (h *SessionHandler) Signout(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.controller.Signout(ctx); err != nil {
		logger.WithContext(ctx).Warn("sign-out could not clear the remote session", zap.Error(err))
	}
	c.JSON(http.StatusOK, NewSessionStateResponse(h.controller.State()))
}
