package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/crimson-sun/winnow/internal/model"
)

// Nudger is the slice of the scheduler the HTTP layer needs.
type Nudger interface {
	Nudge(service string)
}

// Server binds the distribution protocol's routes to the store. The nudger
// and metrics may be nil; handlers then skip those calls.
type Server struct {
	store   *Store
	sched   Nudger
	metrics *Metrics
}

// NewServer creates the handler set for one store.
func NewServer(store *Store, sched Nudger, metrics *Metrics) *Server {
	return &Server{store: store, sched: sched, metrics: metrics}
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", s.handleHealth)
	r.GET("/policies/:service", s.handlePolicy)
	r.POST("/patterns/stats", s.handleStats)
	r.GET("/services", s.handleServices)
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}
	return r
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handlePolicy serves the current policy for a service. Services that have
// never reported get 404; known services with no analysis yet get the
// default policy at version 0.
func (s *Server) handlePolicy(c *gin.Context) {
	service := c.Param("service")
	pol, known := s.store.Policy(service)
	if !known {
		s.metrics.RecordPolicyServed(service, "unknown")
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown service"})
		return
	}
	s.metrics.RecordPolicyServed(service, "ok")
	c.JSON(http.StatusOK, pol)
}

// handleStats ingests a sampler's pattern report and nudges the scheduler.
func (s *Server) handleStats(c *gin.Context) {
	var report model.StatsReport
	if err := c.ShouldBindJSON(&report); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid report: " + err.Error()})
		return
	}
	if report.ServiceName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "service_name required"})
		return
	}

	accepted, tracked := s.store.Ingest(report)
	s.metrics.RecordStatsReport(report.ServiceName, tracked)
	if s.sched != nil {
		s.sched.Nudge(report.ServiceName)
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "patterns": accepted})
}

func (s *Server) handleServices(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"services": s.store.Services()})
}
