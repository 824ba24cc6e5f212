package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	glog "github.com/gin-contrib/slog"
	"github.com/gin-gonic/gin"

	"github.com/kode4food/foreman/internal/core"
	"github.com/kode4food/foreman/pkg/api"
	"github.com/kode4food/foreman/pkg/util"
)

// Server implements the HTTP API of the orchestration core
type Server struct {
	core    *core.Core
	sockets util.Set[*Client]
	mu      sync.Mutex
}

var (
	ErrInvalidJSON  = errors.New("invalid JSON")
	ErrInvalidQuery = errors.New("invalid query parameter")
)

// NewServer creates a new HTTP API server over an assembled core
func NewServer(c *core.Core) *Server {
	return &Server{
		core:    c,
		sockets: util.Set[*Client]{},
	}
}

// SetupRoutes configures and returns the HTTP router with all API endpoints
func (s *Server) SetupRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(glog.SetLogger(
		glog.WithLogger(func(*gin.Context, *slog.Logger) *slog.Logger {
			return slog.Default()
		}),
	))

	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set(
			"Access-Control-Allow-Methods",
			"GET, POST, PATCH, DELETE, OPTIONS",
		)
		c.Writer.Header().Set(
			"Access-Control-Allow-Headers",
			"Content-Type, Authorization",
		)

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	})

	// Monitor
	router.GET("/health", s.handleHealth)
	router.GET("/dashboard", s.handleDashboard)
	router.GET("/metrics", s.queryMetrics)
	router.GET("/alerts", s.listAlerts)
	router.POST("/alerts/:alertID/resolve", s.resolveAlert)

	// Tasks
	router.GET("/tasks", s.listTasks)
	router.POST("/tasks", s.createTask)
	router.GET("/tasks/:taskID", s.getTask)
	router.PATCH("/tasks/:taskID", s.updateTask)
	router.DELETE("/tasks/:taskID", s.cancelTask)
	router.POST("/tasks/:taskID/run", s.runTask)

	// Decisions
	router.GET("/decisions", s.listDecisions)
	router.POST("/decisions", s.makeDecision)
	router.GET("/decisions/:decisionID", s.getDecision)
	router.POST("/decisions/:decisionID/outcome", s.recordOutcome)

	// Workflows
	router.GET("/workflows", s.listWorkflows)
	router.POST("/workflows", s.registerWorkflow)
	router.GET("/workflows/:workflowID", s.getWorkflow)
	router.DELETE("/workflows/:workflowID", s.unregisterWorkflow)
	router.POST("/workflows/:workflowID/execute", s.executeWorkflow)
	router.GET("/templates", s.listTemplates)
	router.POST("/templates", s.registerTemplate)
	router.POST("/templates/:templateID/instantiate", s.instantiateTemplate)
	router.GET("/executions", s.listExecutions)
	router.GET("/executions/:executionID", s.getExecution)
	router.POST("/executions/:executionID/cancel", s.cancelExecution)

	// Event stream
	router.GET("/events", s.handleEvents)

	return router
}

// CloseWebSockets closes all active WebSocket connections
func (s *Server) CloseWebSockets() {
	s.mu.Lock()
	conns := make([]*Client, 0, len(s.sockets))
	for c := range s.sockets {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}

func (s *Server) registerWebSocket(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sockets.Add(c)
}

func (s *Server) unregisterWebSocket(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sockets.Remove(c)
}

func bindJSON(c *gin.Context, target any) bool {
	if err := c.ShouldBindJSON(target); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{
			Error:  fmt.Sprintf("%s: %v", ErrInvalidJSON, err),
			Status: http.StatusBadRequest,
		})
		return false
	}
	return true
}

// fail responds with the status that matches the error's category
func fail(c *gin.Context, err error) {
	status := statusFor(err)
	c.JSON(status, api.ErrorResponse{
		Error:  err.Error(),
		Status: status,
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, api.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, api.ErrValidation), errors.Is(err, ErrInvalidQuery):
		return http.StatusBadRequest
	case errors.Is(err, api.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, api.ErrCapacity):
		return http.StatusTooManyRequests
	case errors.Is(err, api.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func queryInt(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidQuery, name, raw)
	}
	return n, nil
}

func queryBool(c *gin.Context, name string) (*bool, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s=%q", ErrInvalidQuery, name, raw)
	}
	return &b, nil
}

func queryTime(c *gin.Context, name string) (time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s=%q", ErrInvalidQuery, name, raw)
	}
	return t, nil
}
