package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Maryam-Bagia/StudyNest/internal/core/domain"
	"github.com/Maryam-Bagia/StudyNest/internal/usecase"
)

// NavigationHandler exposes the back-stack to the screen layer.
type NavigationHandler struct {
	coordinator *usecase.RouteCoordinator
}

// NewNavigationHandler constructs a navigation handler.
func NewNavigationHandler(coordinator *usecase.RouteCoordinator) *NavigationHandler {
	return &NavigationHandler{coordinator: coordinator}
}

// RegisterRoutes binds navigation routes to the provided router group.
func (h *NavigationHandler) RegisterRoutes(r *gin.RouterGroup) {
	if r == nil {
		return
	}

	r.GET("", h.GetNavigation)
	r.POST("/navigate", h.Navigate)
	r.POST("/back", h.Back)
}

// GetNavigation returns the back-stack.
func (h *NavigationHandler) GetNavigation(c *gin.Context) {
	c.JSON(http.StatusOK, NewNavigationResponse(h.coordinator.BackStack()))
}

// Navigate pushes a route given as a link or as name and parameters.
func (h *NavigationHandler) Navigate(c *gin.Context) {
	var req NavigateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid request body"))
		return
	}

	var opts []usecase.NavOption
	if req.PopUpTo != "" {
		opts = append(opts, usecase.PopUpTo(domain.RouteName(req.PopUpTo), req.Inclusive))
	}
	if req.SingleTop {
		opts = append(opts, usecase.SingleTop())
	}

	var err error
	switch {
	case req.Route != "":
		_, err = h.coordinator.NavigateTo(req.Route, opts...)
	case req.Name != "":
		_, err = h.coordinator.Navigate(domain.RouteName(req.Name), req.Params, req.Query, opts...)
	default:
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "route or name is required"))
		return
	}
	if err != nil {
		RespondWithMappedError(c, err, navigationErrorCases, http.StatusInternalServerError, "failed to navigate")
		return
	}

	c.JSON(http.StatusOK, NewNavigationResponse(h.coordinator.BackStack()))
}

// Back pops the visible route. Popping the last entry is reported, not rejected.
func (h *NavigationHandler) Back(c *gin.Context) {
	popped := h.coordinator.PopBackStack()
	c.JSON(http.StatusOK, BackResponse{
		Popped:     popped,
		Navigation: NewNavigationResponse(h.coordinator.BackStack()),
	})
}
