// Package web exposes the newswatch HTTP JSON API.
package web

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mfriesen/newswatch/logger"
	"github.com/mfriesen/newswatch/monitor"
	"github.com/mfriesen/newswatch/store"
)

// Server wires the HTTP API to the store, monitor, and scheduler.
type Server struct {
	store   *store.Store
	monitor *monitor.Monitor
	sched   *monitor.Scheduler
	log     logger.Logger
	engine  *gin.Engine
}

// NewServer creates the API server and registers all routes.
func NewServer(st *store.Store, mon *monitor.Monitor, sched *monitor.Scheduler, log logger.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		store:   st,
		monitor: mon,
		sched:   sched,
		log:     log,
		engine:  engine,
	}
	s.registerRoutes()
	return s
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", s.health)

	api := s.engine.Group("/api")
	{
		api.GET("/status", s.getStatus)
		api.GET("/articles", s.listArticles)

		api.POST("/scan", s.triggerScan)
		api.POST("/monitor/start", s.startMonitor)
		api.POST("/monitor/stop", s.stopMonitor)

		api.GET("/feeds", s.listFeeds)
		api.POST("/feeds", s.createFeed)
		api.PATCH("/feeds/:id", s.updateFeed)
		api.DELETE("/feeds/:id", s.deleteFeed)

		api.GET("/keywords", s.listKeywords)
		api.POST("/keywords", s.createKeyword)
		api.PATCH("/keywords/:id", s.updateKeyword)
		api.DELETE("/keywords/:id", s.deleteKeyword)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
