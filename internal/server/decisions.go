package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kode4food/foreman/pkg/api"
)

func (s *Server) listDecisions(c *gin.Context) {
	f := &api.DecisionFilter{Type: api.DecisionType(c.Query("type"))}
	var err error
	if f.Since, err = queryTime(c, "since"); err != nil {
		fail(c, err)
		return
	}
	if f.HasOutcome, err = queryBool(c, "has_outcome"); err != nil {
		fail(c, err)
		return
	}
	if f.Limit, err = queryInt(c, "limit"); err != nil {
		fail(c, err)
		return
	}

	res := s.core.Decisions.GetDecisionHistory(f)
	c.JSON(http.StatusOK, api.DecisionsListResponse{
		Decisions: res,
		Count:     len(res),
	})
}

func (s *Server) makeDecision(c *gin.Context) {
	var req api.DecisionRequest
	if !bindJSON(c, &req) {
		return
	}
	d, err := s.core.Decisions.MakeDecision(
		c.Request.Context(), req.Context, req.Options,
	)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

func (s *Server) getDecision(c *gin.Context) {
	d, err := s.core.Decisions.GetDecision(
		api.DecisionID(c.Param("decisionID")),
	)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (s *Server) recordOutcome(c *gin.Context) {
	var out api.DecisionOutcome
	if !bindJSON(c, &out) {
		return
	}
	id := api.DecisionID(c.Param("decisionID"))
	if err := s.core.Decisions.RecordOutcome(id, out); err != nil {
		fail(c, err)
		return
	}
	d, err := s.core.Decisions.GetDecision(id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}
