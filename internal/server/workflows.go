package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kode4food/foreman/pkg/api"
)

func (s *Server) listWorkflows(c *gin.Context) {
	defs := s.core.Workflows.ListDefinitions()
	c.JSON(http.StatusOK, api.WorkflowsListResponse{
		Workflows: defs,
		Count:     len(defs),
	})
}

func (s *Server) registerWorkflow(c *gin.Context) {
	var def api.WorkflowDefinition
	if !bindJSON(c, &def) {
		return
	}
	if err := s.core.Workflows.Register(&def); err != nil {
		fail(c, err)
		return
	}
	res, err := s.core.Workflows.GetDefinition(def.ID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (s *Server) getWorkflow(c *gin.Context) {
	def, err := s.core.Workflows.GetDefinition(
		api.WorkflowID(c.Param("workflowID")),
	)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, def)
}

func (s *Server) unregisterWorkflow(c *gin.Context) {
	id := api.WorkflowID(c.Param("workflowID"))
	if err := s.core.Workflows.Unregister(id); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, api.MessageResponse{
		Message: fmt.Sprintf("workflow %s unregistered", id),
	})
}

func (s *Server) executeWorkflow(c *gin.Context) {
	var req api.ExecuteRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}
	exec, err := s.core.Workflows.Execute(c.Request.Context(),
		api.WorkflowID(c.Param("workflowID")), req.Variables,
	)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, exec)
}

func (s *Server) listTemplates(c *gin.Context) {
	tpls := s.core.Workflows.GetTemplates()
	c.JSON(http.StatusOK, api.TemplatesListResponse{
		Templates: tpls,
		Count:     len(tpls),
	})
}

func (s *Server) registerTemplate(c *gin.Context) {
	var tpl api.WorkflowTemplate
	if !bindJSON(c, &tpl) {
		return
	}
	if err := s.core.Workflows.RegisterTemplate(&tpl); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, &tpl)
}

func (s *Server) instantiateTemplate(c *gin.Context) {
	var req api.InstantiateRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}
	def, err := s.core.Workflows.CreateWorkflowFromTemplate(
		api.TemplateID(c.Param("templateID")), req.Values,
	)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, def)
}

func (s *Server) listExecutions(c *gin.Context) {
	f := &api.ExecutionFilter{
		WorkflowID: api.WorkflowID(c.Query("workflow_id")),
		Status:     api.Status(c.Query("status")),
	}
	var err error
	if f.Limit, err = queryInt(c, "limit"); err != nil {
		fail(c, err)
		return
	}

	execs := s.core.Workflows.ListExecutions(f)
	c.JSON(http.StatusOK, api.ExecutionsListResponse{
		Executions: execs,
		Count:      len(execs),
	})
}

func (s *Server) getExecution(c *gin.Context) {
	exec, err := s.core.Workflows.GetExecution(
		api.ExecutionID(c.Param("executionID")),
	)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, exec)
}

func (s *Server) cancelExecution(c *gin.Context) {
	id := api.ExecutionID(c.Param("executionID"))
	if err := s.core.Workflows.Cancel(id); err != nil {
		fail(c, err)
		return
	}
	exec, err := s.core.Workflows.GetExecution(id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, exec)
}
