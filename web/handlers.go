package web

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mfriesen/newswatch/logger"
	"github.com/mfriesen/newswatch/model"
	"github.com/mfriesen/newswatch/monitor"
	"github.com/mfriesen/newswatch/store"
)

const defaultArticleLimit = 50

// statusResponse is the JSON shape of the status snapshot. The duration is
// rendered as a string ("1.2s") rather than nanoseconds.
type statusResponse struct {
	Running         bool       `json:"running"`
	Monitoring      bool       `json:"monitoring"`
	LastRunAt       *time.Time `json:"last_run_at,omitempty"`
	LastRunDuration string     `json:"last_run_duration"`
	ArticlesLastRun int        `json:"articles_found_last_run"`
	ActiveFeeds     int        `json:"total_feeds_active"`
	ActiveKeywords  int        `json:"total_keywords_active"`
	TotalArticles   int64      `json:"total_articles_all_time"`
}

func (s *Server) getStatus(c *gin.Context) {
	st := s.monitor.Status()
	c.JSON(http.StatusOK, statusResponse{
		Running:         st.Running,
		Monitoring:      s.sched.Running(),
		LastRunAt:       st.LastRunAt,
		LastRunDuration: st.LastRunDuration.String(),
		ArticlesLastRun: st.ArticlesLastRun,
		ActiveFeeds:     st.ActiveFeeds,
		ActiveKeywords:  st.ActiveKeywords,
		TotalArticles:   st.TotalArticles,
	})
}

// articleResponse flattens a found article for API and view rendering.
type articleResponse struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Link        string     `json:"link"`
	Source      string     `json:"source"`
	Keywords    string     `json:"keywords"`
	Published   *time.Time `json:"published,omitempty"`
	FoundAt     time.Time  `json:"found_at"`
}

func (s *Server) listArticles(c *gin.Context) {
	limit := intQuery(c, "limit", defaultArticleLimit)
	offset := intQuery(c, "offset", 0)

	opts, err := store.BuildQueryOptions(limit, offset, c.Query("keyword"), c.Query("source"), c.Query("since"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	articles, err := s.store.GetArticles(opts)
	if err != nil {
		s.log.Error("failed to list articles", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list articles"})
		return
	}

	out := make([]articleResponse, 0, len(articles))
	for _, a := range articles {
		out = append(out, articleResponse{
			ID:          a.ID,
			Title:       a.Title,
			Description: a.Description,
			Link:        a.Link,
			Source:      a.Source,
			Keywords:    a.KeywordList(),
			Published:   a.Published,
			FoundAt:     a.FoundAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"articles": out,
		"count":    len(out),
	})
}

func (s *Server) triggerScan(c *gin.Context) {
	// The scan outlives this request; the request context is cancelled as
	// soon as the 202 is written, which would kill every fetch mid-scan
	err := s.sched.TriggerNow(context.Background())
	if errors.Is(err, monitor.ErrScanInFlight) {
		c.JSON(http.StatusConflict, gin.H{"status": "already_running"})
		return
	}
	if err != nil {
		s.log.Error("failed to trigger scan", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to trigger scan"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

func (s *Server) startMonitor(c *gin.Context) {
	if err := s.sched.Start(); err != nil {
		s.log.Error("failed to start monitoring", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start monitoring"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"monitoring": true})
}

func (s *Server) stopMonitor(c *gin.Context) {
	s.sched.Stop()
	c.JSON(http.StatusOK, gin.H{"monitoring": false})
}

func (s *Server) listFeeds(c *gin.Context) {
	feeds, err := s.store.ListFeeds()
	if err != nil {
		s.log.Error("failed to list feeds", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list feeds"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"feeds": feeds, "count": len(feeds)})
}

func (s *Server) createFeed(c *gin.Context) {
	var feed model.FeedSource
	if err := c.ShouldBindJSON(&feed); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	feed.ID = 0
	feed.Active = true

	if err := feed.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.store.SaveFeed(&feed); err != nil {
		s.log.Error("failed to create feed", logger.String("url", feed.URL), logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create feed"})
		return
	}

	s.log.Info("feed added", logger.String("name", feed.Name), logger.String("url", feed.URL))
	c.JSON(http.StatusCreated, feed)
}

// activePatch is the body for toggling a feed or keyword.
type activePatch struct {
	Active *bool `json:"active" binding:"required"`
}

func (s *Server) updateFeed(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	var patch activePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := s.store.SetFeedActive(id, *patch.Active); err != nil {
		s.respondStoreError(c, "failed to update feed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "active": *patch.Active})
}

func (s *Server) deleteFeed(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := s.store.DeleteFeed(id); err != nil {
		s.respondStoreError(c, "failed to delete feed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

func (s *Server) listKeywords(c *gin.Context) {
	keywords, err := s.store.ListKeywords()
	if err != nil {
		s.log.Error("failed to list keywords", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list keywords"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"keywords": keywords, "count": len(keywords)})
}

func (s *Server) createKeyword(c *gin.Context) {
	var kw model.Keyword
	if err := c.ShouldBindJSON(&kw); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	kw.ID = 0
	kw.Active = true

	if err := kw.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.store.SaveKeyword(&kw); err != nil {
		s.log.Error("failed to create keyword", logger.String("word", kw.Word), logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create keyword"})
		return
	}

	s.log.Info("keyword added", logger.String("word", kw.Word))
	c.JSON(http.StatusCreated, kw)
}

func (s *Server) updateKeyword(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	var patch activePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := s.store.SetKeywordActive(id, *patch.Active); err != nil {
		s.respondStoreError(c, "failed to update keyword", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "active": *patch.Active})
}

func (s *Server) deleteKeyword(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := s.store.DeleteKeyword(id); err != nil {
		s.respondStoreError(c, "failed to delete keyword", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

func (s *Server) respondStoreError(c *gin.Context, msg string, err error) {
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	s.log.Error(msg, logger.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}

// idParam parses the :id path parameter, responding with 400 on failure.
func idParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

// intQuery parses an integer query parameter with a default.
func intQuery(c *gin.Context, name string, def int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}
