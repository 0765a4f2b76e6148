package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"landiq/internal/model"
	"landiq/internal/service"
)

// AgentHandler handles conversational agent HTTP requests
type AgentHandler struct {
	agent *service.AgentService
}

// NewAgentHandler creates a new agent handler
func NewAgentHandler(agent *service.AgentService) *AgentHandler {
	return &AgentHandler{
		agent: agent,
	}
}

// Message handles POST /api/agent
func (h *AgentHandler) Message(c *gin.Context) {
	var req model.AgentMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request: " + err.Error()})
		return
	}

	resp, err := h.agent.HandleMessage(c.Request.Context(), &req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}
