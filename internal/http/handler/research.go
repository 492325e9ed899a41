package handler

import (
	"net/http"

	"deepresearch.app/agent/internal/service"
	"github.com/gin-gonic/gin"
)

type ResearchHandler struct {
	research *service.ResearchService
}

func NewResearchHandler(research *service.ResearchService) *ResearchHandler {
	return &ResearchHandler{research: research}
}

type queryRequest struct {
	Question       string `json:"question" binding:"required"`
	TokenBudget    int    `json:"tokenBudget"`
	MaxBadAttempts int    `json:"maxBadAttempts"`
}

// Start accepts a research question and returns the task ID immediately.
// Progress streams on GET /v1/stream/:task_id.
func (h *ResearchHandler) Start(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.TokenBudget <= 0 {
		req.TokenBudget = 1_000_000
	}

	task := h.research.Start(c.Request.Context(), service.StartParams{
		Question:       req.Question,
		TokenBudget:    req.TokenBudget,
		MaxBadAttempts: req.MaxBadAttempts,
	})

	c.JSON(http.StatusAccepted, task)
}

// Get returns the task record, including the final answer once completed.
func (h *ResearchHandler) Get(c *gin.Context) {
	task, ok := h.research.Get(c.Param("task_id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	c.JSON(http.StatusOK, task)
}
