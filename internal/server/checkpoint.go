package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	etldomain "github.com/smallbiznis/purchasesync/internal/etl/domain"
	"go.uber.org/zap"
)

type checkpointResponse struct {
	Feed    string     `json:"feed"`
	LastRun *time.Time `json:"last_run"`
}

// feedParam returns the path feed if it is configured.
func (s *Server) feedParam(c *gin.Context) (string, bool) {
	feed := strings.TrimSpace(c.Param("feed"))
	if feed == "" {
		AbortWithError(c, etldomain.ErrInvalidFeed)
		return "", false
	}
	if !s.holder.Get().HasFeed(feed) {
		AbortWithError(c, etldomain.ErrUnknownFeed)
		return "", false
	}
	return feed, true
}

func (s *Server) GetCheckpoint(c *gin.Context) {
	feed, ok := s.feedParam(c)
	if !ok {
		return
	}

	at, err := s.checkpoints.Get(c.Request.Context(), feed)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, checkpointResponse{Feed: feed, LastRun: at})
}

// ResetCheckpoint clears the checkpoint so the next run reloads the feed.
func (s *Server) ResetCheckpoint(c *gin.Context) {
	feed, ok := s.feedParam(c)
	if !ok {
		return
	}

	if err := s.checkpoints.Reset(c.Request.Context(), feed); err != nil {
		AbortWithError(c, err)
		return
	}
	s.log.Info("checkpoint.reset", zap.String("feed", feed))
	c.Status(http.StatusNoContent)
}
