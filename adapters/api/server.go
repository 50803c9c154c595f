// Package api serves stored limit results over HTTP.
package api

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"xelimit/domain/core"
	apperrors "xelimit/internal/errors"
	"xelimit/internal/report"
	"xelimit/internal/toys"
	"xelimit/ports"
)

const maxPageSize = 500

// Server is the read-only results service.
type Server struct {
	router *gin.Engine
	repo   ports.ResultRepository
}

// NewServer wires the routes over repo.
func NewServer(repo ports.ResultRepository, ginMode string) *Server {
	if ginMode != "" {
		gin.SetMode(ginMode)
	}
	s := &Server{
		router: gin.New(),
		repo:   repo,
	}
	s.router.Use(gin.Logger(), gin.Recovery())
	s.setupRoutes()
	return s
}

// Handler exposes the router for http.Server and tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	results := s.router.Group("/results")
	results.GET("", s.handleListResults)
	results.GET("/:id", s.handleGetResult)
	results.GET("/:id/report", s.handleResultReport)

	s.router.GET("/toys/:batch", s.handleToyBatch)
	s.router.GET("/toys/:batch/report", s.handleToyReport)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleListResults(c *gin.Context) {
	filters := ports.ResultFilters{ModelName: c.Query("model")}
	var err error
	if filters.Limit, err = queryInt(c, "limit", 0); err != nil || filters.Limit > maxPageSize {
		s.fail(c, apperrors.InvalidInput("limit must be an integer up to 500"))
		return
	}
	if filters.Offset, err = queryInt(c, "offset", 0); err != nil || filters.Offset < 0 {
		s.fail(c, apperrors.InvalidInput("offset must be a non-negative integer"))
		return
	}

	results, err := s.repo.ListResults(c.Request.Context(), filters)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results, "count": len(results)})
}

func (s *Server) handleGetResult(c *gin.Context) {
	id, err := core.ParseRunID(c.Param("id"))
	if err != nil {
		s.fail(c, apperrors.InvalidInput(err.Error()))
		return
	}
	res, err := s.repo.GetResult(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleResultReport(c *gin.Context) {
	id, err := core.ParseRunID(c.Param("id"))
	if err != nil {
		s.fail(c, apperrors.InvalidInput(err.Error()))
		return
	}
	res, err := s.repo.GetResult(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	page := report.HTML(res.ModelName, report.Markdown(res))
	c.Data(http.StatusOK, "text/html; charset=utf-8", page)
}

func (s *Server) handleToyBatch(c *gin.Context) {
	batch := core.BatchID(c.Param("batch"))
	ctx := c.Request.Context()

	fits, err := s.repo.ListToyFits(ctx, batch)
	if err != nil {
		s.fail(c, err)
		return
	}
	lims, err := s.repo.ListToyLimits(ctx, batch)
	if err != nil {
		s.fail(c, err)
		return
	}
	if len(fits) == 0 && len(lims) == 0 {
		s.fail(c, apperrors.NotFound("toy batch "+batch.String(), core.ErrNotFound))
		return
	}

	resp := gin.H{"batch_id": batch, "fits": len(fits), "limits": lims}
	if len(fits) > 0 {
		summaries, err := toys.Summarize(fits)
		if err != nil {
			s.fail(c, err)
			return
		}
		resp["summary"] = summaries
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleToyReport(c *gin.Context) {
	batch := core.BatchID(c.Param("batch"))
	fits, err := s.repo.ListToyFits(c.Request.Context(), batch)
	if err != nil {
		s.fail(c, err)
		return
	}
	if len(fits) == 0 {
		s.fail(c, apperrors.NotFound("toy batch "+batch.String(), core.ErrNotFound))
		return
	}
	summaries, err := toys.Summarize(fits)
	if err != nil {
		s.fail(c, err)
		return
	}
	md := report.ToyMarkdown(batch.String(), summaries)
	c.Data(http.StatusOK, "text/html; charset=utf-8", report.HTML("toy batch "+batch.String(), md))
}

// fail maps the error code to a status. Internal details of storage and
// unclassified failures stay in the log.
func (s *Server) fail(c *gin.Context, err error) {
	code := apperrors.GetCode(apperrors.Classify(err, c.Request.URL.Path))
	switch code {
	case apperrors.CodeNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "code": code})
	case apperrors.CodeInvalidInput, apperrors.CodeValidationError:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": code})
	default:
		log.Printf("[ResultsAPI] %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "code": code})
	}
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
