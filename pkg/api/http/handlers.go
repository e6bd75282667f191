package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mrioja/flowd/internal/domain"
	"github.com/mrioja/flowd/internal/orchestrator"
)

// TaskSubmitRequest represents a natural-language task submission
type TaskSubmitRequest struct {
	Task        string `json:"task" binding:"required"`
	MaxParallel int    `json:"max_parallel"`
	StepTimeout int    `json:"step_timeout_seconds"`
	StopOnError bool   `json:"stop_on_error"`
}

// PlanSubmitRequest represents a pre-built plan submission
type PlanSubmitRequest struct {
	Plan        *domain.Plan `json:"plan" binding:"required"`
	MaxParallel int          `json:"max_parallel"`
	StepTimeout int          `json:"step_timeout_seconds"`
	StopOnError bool         `json:"stop_on_error"`
}

// SubmitResponse represents a submission response
type SubmitResponse struct {
	TaskID      string `json:"task_id"`
	Status      string `json:"status"`
	SubmittedAt string `json:"submitted_at"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail represents error details
type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	checks := gin.H{
		"orchestrator": "ok",
	}
	if s.dispatcher != nil {
		status := s.dispatcher.Status()
		checks["dispatcher"] = gin.H{
			"slots_total": status.Total,
			"slots_busy":  status.Busy,
			"slots_idle":  status.Idle,
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleSubmitTask handles natural-language task submission
func (s *Server) handleSubmitTask(c *gin.Context) {
	var req TaskSubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.logger.Error("invalid request", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: ErrorDetail{
				Code:    "INVALID_REQUEST",
				Message: err.Error(),
			},
		})
		return
	}

	taskID, err := s.orchestrator.SubmitTask(c.Request.Context(), req.Task, executionOptions(req.MaxParallel, req.StepTimeout, req.StopOnError))
	if err != nil {
		s.logger.Error("failed to submit task", zap.Error(err))
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error: ErrorDetail{
				Code:    "SUBMISSION_FAILED",
				Message: err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusCreated, SubmitResponse{
		TaskID:      taskID,
		Status:      string(domain.TaskStatusSubmitted),
		SubmittedAt: time.Now().UTC().Format(time.RFC3339),
	})
}

// handleSubmitPlan handles submission of a caller-built plan. Validation
// failures are reported with every accumulated issue.
func (s *Server) handleSubmitPlan(c *gin.Context) {
	var req PlanSubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.logger.Error("invalid request", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: ErrorDetail{
				Code:    "INVALID_REQUEST",
				Message: err.Error(),
			},
		})
		return
	}

	taskID, err := s.orchestrator.SubmitPlan(c.Request.Context(), req.Plan, executionOptions(req.MaxParallel, req.StepTimeout, req.StopOnError))
	if err != nil {
		var verr *orchestrator.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
				Error: ErrorDetail{
					Code:    "INVALID_PLAN",
					Message: "plan validation failed",
					Details: verr.Errors,
				},
			})
			return
		}
		s.logger.Error("failed to submit plan", zap.Error(err))
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error: ErrorDetail{
				Code:    "SUBMISSION_FAILED",
				Message: err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusCreated, SubmitResponse{
		TaskID:      taskID,
		Status:      string(domain.TaskStatusSubmitted),
		SubmittedAt: time.Now().UTC().Format(time.RFC3339),
	})
}

// handleListTasks handles listing tasks
func (s *Server) handleListTasks(c *gin.Context) {
	states, err := s.orchestrator.ListTasks(c.Request.Context())
	if err != nil {
		s.logger.Error("failed to list tasks", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: ErrorDetail{
				Code:    "STORAGE_ERROR",
				Message: "Failed to retrieve tasks",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tasks": states,
		"total": len(states),
	})
}

// handleGetTask handles getting full task details
func (s *Server) handleGetTask(c *gin.Context) {
	taskID := c.Param("id")

	state, err := s.orchestrator.GetStatus(c.Request.Context(), taskID)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: ErrorDetail{
				Code:    "NOT_FOUND",
				Message: "Task not found",
			},
		})
		return
	}

	c.JSON(http.StatusOK, state)
}

// handleGetStatus handles getting task status
func (s *Server) handleGetStatus(c *gin.Context) {
	taskID := c.Param("id")

	state, err := s.orchestrator.GetStatus(c.Request.Context(), taskID)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: ErrorDetail{
				Code:    "NOT_FOUND",
				Message: "Task not found",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"task_id":       state.TaskID,
		"status":        state.Status,
		"plan_source":   state.PlanSource,
		"step_statuses": state.StepStatuses,
		"submitted_at":  state.SubmittedAt,
		"started_at":    state.StartedAt,
		"completed_at":  state.CompletedAt,
	})
}

// handleGetResult handles getting the aggregated task result
func (s *Server) handleGetResult(c *gin.Context) {
	taskID := c.Param("id")

	state, err := s.orchestrator.GetStatus(c.Request.Context(), taskID)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: ErrorDetail{
				Code:    "NOT_FOUND",
				Message: "Task not found",
			},
		})
		return
	}

	if !state.Status.IsTerminal() {
		c.JSON(http.StatusConflict, ErrorResponse{
			Error: ErrorDetail{
				Code:    "NOT_COMPLETED",
				Message: "Task execution not yet completed",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"task_id":      state.TaskID,
		"status":       state.Status,
		"result":       state.Result,
		"aggregate":    state.Aggregate,
		"error":        state.Error,
		"completed_at": state.CompletedAt,
	})
}

// handleCancelTask handles task cancellation
func (s *Server) handleCancelTask(c *gin.Context) {
	taskID := c.Param("id")

	if err := s.orchestrator.CancelTask(c.Request.Context(), taskID); err != nil {
		c.JSON(http.StatusConflict, ErrorResponse{
			Error: ErrorDetail{
				Code:    "CANCELLATION_FAILED",
				Message: err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"task_id":      taskID,
		"status":       string(domain.TaskStatusCancelled),
		"cancelled_at": time.Now().UTC().Format(time.RFC3339),
	})
}

func executionOptions(maxParallel, stepTimeoutSeconds int, stopOnError bool) orchestrator.Options {
	opts := orchestrator.Options{
		MaxParallel: maxParallel,
		StopOnError: stopOnError,
	}
	if stepTimeoutSeconds > 0 {
		opts.StepTimeout = time.Duration(stepTimeoutSeconds) * time.Second
	}
	return opts
}
