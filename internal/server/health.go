package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kode4food/foreman/pkg/api"
)

func (s *Server) handleHealth(c *gin.Context) {
	h := s.core.Monitor.GetHealth()
	status := http.StatusOK
	if h.Status.IsFailing() {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, h)
}

func (s *Server) handleDashboard(c *gin.Context) {
	d, err := s.core.Monitor.GetDashboard(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (s *Server) queryMetrics(c *gin.Context) {
	q := &api.MetricQuery{Name: c.Query("name")}
	var err error
	if q.Since, err = queryTime(c, "since"); err != nil {
		fail(c, err)
		return
	}
	if q.Until, err = queryTime(c, "until"); err != nil {
		fail(c, err)
		return
	}
	if q.Limit, err = queryInt(c, "limit"); err != nil {
		fail(c, err)
		return
	}

	samples, err := s.core.Monitor.GetMetrics(c.Request.Context(), q)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, api.MetricsListResponse{
		Samples: samples,
		Count:   len(samples),
	})
}

func (s *Server) listAlerts(c *gin.Context) {
	f := &api.AlertFilter{
		Severity: api.Severity(c.Query("severity")),
		Type:     c.Query("type"),
		Source:   c.Query("source"),
	}
	var err error
	if f.Resolved, err = queryBool(c, "resolved"); err != nil {
		fail(c, err)
		return
	}
	if f.Limit, err = queryInt(c, "limit"); err != nil {
		fail(c, err)
		return
	}

	alerts := s.core.Monitor.GetAlerts(f)
	c.JSON(http.StatusOK, api.AlertsListResponse{
		Alerts: alerts,
		Count:  len(alerts),
	})
}

func (s *Server) resolveAlert(c *gin.Context) {
	a, err := s.core.Monitor.ResolveAlert(api.AlertID(c.Param("alertID")))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}
