package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"groupchat-client/internal/store"
)

// OpsHandler serves read-only state endpoints on the ops surface.
type OpsHandler struct {
	registry *store.Registry
}

func NewOpsHandler(registry *store.Registry) *OpsHandler {
	return &OpsHandler{registry: registry}
}

func (h *OpsHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GroupState returns a snapshot of one group's in-memory state.
func (h *OpsHandler) GroupState(c *gin.Context) {
	groupID := c.Param("group_id")
	status := h.registry.GetConnectionStatus(groupID)

	c.JSON(http.StatusOK, gin.H{
		"group_id":       groupID,
		"message_count":  len(h.registry.GetMessages(groupID)),
		"typing_users":   h.registry.GetTypingUsers(groupID),
		"online_members": h.registry.GetOnlineMembers(groupID),
		"connection": gin.H{
			"is_connected":  status.IsConnected,
			"is_connecting": status.IsConnecting,
			"last_error":    status.LastError,
		},
	})
}

// GroupMessages returns the buffered history for one group.
func (h *OpsHandler) GroupMessages(c *gin.Context) {
	groupID := c.Param("group_id")
	c.JSON(http.StatusOK, gin.H{"messages": h.registry.GetMessages(groupID)})
}
