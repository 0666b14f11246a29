package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h HandlerSet) AdminListUsers(c *gin.Context) {
	users, err := h.admin.ListUsers(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}

	items := make([]userResponse, 0, len(users))
	for _, user := range users {
		items = append(items, newUserResponse(user))
	}
	c.JSON(http.StatusOK, gin.H{
		"items": items,
	})
}

type updateRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

func (h HandlerSet) AdminUpdateRole(c *gin.Context) {
	actor, ok := h.currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req updateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_input", "detail": err.Error()})
		return
	}

	user, err := h.admin.UpdateRole(c.Request.Context(), actor, id, req.Role)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user": newUserResponse(user),
	})
}

// AdminListImages returns every record system-wide, newest first.
func (h HandlerSet) AdminListImages(c *gin.Context) {
	actor, ok := h.currentUser(c)
	if !ok {
		return
	}

	images, err := h.images.List(c.Request.Context(), actor)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.sendImages(c, images)
}
