package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	etldomain "github.com/smallbiznis/purchasesync/internal/etl/domain"
	"github.com/smallbiznis/purchasesync/internal/etl/service"
	"github.com/smallbiznis/purchasesync/pkg/db/pagination"
	"go.uber.org/zap"
)

type listRunsResponse struct {
	Data     []*etldomain.Run    `json:"data"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

func (s *Server) ListRuns(c *gin.Context) {
	if s.runs == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	var req etldomain.ListRunsRequest
	if err := c.ShouldBindQuery(&req.Pagination); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	req.Feed = strings.TrimSpace(c.Query("feed"))

	runs, info, err := s.runs.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if runs == nil {
		runs = []*etldomain.Run{}
	}
	c.JSON(http.StatusOK, listRunsResponse{Data: runs, PageInfo: info})
}

func (s *Server) GetRun(c *gin.Context) {
	if s.runs == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	id, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil || id == 0 {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	run, err := s.runs.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

// TriggerRun starts a run in the background and answers immediately. The
// run outlives the request and is visible through /runs.
func (s *Server) TriggerRun(c *gin.Context) {
	if s.runner == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}
	feed, ok := s.feedParam(c)
	if !ok {
		return
	}

	ctx := context.WithoutCancel(c.Request.Context())
	go func() {
		if _, err := s.runner.Run(ctx, feed); err != nil && !errors.Is(err, service.ErrRunInProgress) {
			s.log.Warn("manual run failed", zap.String("feed", feed), zap.Error(err))
		}
	}()
	c.JSON(http.StatusAccepted, gin.H{"feed": feed, "status": "accepted"})
}
