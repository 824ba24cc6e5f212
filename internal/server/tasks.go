package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kode4food/foreman/pkg/api"
)

func (s *Server) listTasks(c *gin.Context) {
	f := &api.TaskFilter{
		Status:   api.Status(c.Query("status")),
		Type:     c.Query("type"),
		Executor: c.Query("executor"),
	}
	if raw := c.Query("priority"); raw != "" {
		p, ok := api.ParsePriority(raw)
		if !ok {
			fail(c, fmt.Errorf("%w: priority=%q", ErrInvalidQuery, raw))
			return
		}
		f.Priority = p
	}

	tasks := s.core.Tasks.ListTasks(f)
	c.JSON(http.StatusOK, api.TasksListResponse{
		Tasks: tasks,
		Count: len(tasks),
	})
}

func (s *Server) createTask(c *gin.Context) {
	var req api.TaskRequest
	if !bindJSON(c, &req) {
		return
	}
	t, err := s.core.Tasks.CreateTask(&req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (s *Server) getTask(c *gin.Context) {
	t, err := s.core.Tasks.GetTask(api.TaskID(c.Param("taskID")))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) updateTask(c *gin.Context) {
	var upd api.TaskUpdate
	if !bindJSON(c, &upd) {
		return
	}
	t, err := s.core.Tasks.UpdateTask(api.TaskID(c.Param("taskID")), &upd)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) cancelTask(c *gin.Context) {
	id := api.TaskID(c.Param("taskID"))
	if err := s.core.Tasks.CancelTask(id); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, api.MessageResponse{
		Message: fmt.Sprintf("task %s cancelled", id),
	})
}

func (s *Server) runTask(c *gin.Context) {
	res, err := s.core.Tasks.RunTask(
		c.Request.Context(), api.TaskID(c.Param("taskID")),
	)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
