package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/eduardocaminha/reporter-sub000/internal/history"
	"github.com/eduardocaminha/reporter-sub000/internal/observe"
)

func (s *Server) requireStore(c *gin.Context) bool {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, errorBody(msgStorage))
		return false
	}
	return true
}

func (s *Server) listReports(c *gin.Context) {
	if !s.requireStore(c) {
		return
	}
	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorBody(msgBadBody))
			return
		}
		limit = n
	}

	ctx := c.Request.Context()
	recs, err := s.store.ListRecent(ctx, history.ClampLimit(limit))
	if err != nil {
		observe.Logger(ctx).Error("api: list reports", "err", err)
		c.JSON(http.StatusInternalServerError, errorBody(msgStorage))
		return
	}
	if recs == nil {
		recs = []history.Record{}
	}
	c.JSON(http.StatusOK, gin.H{"laudos": recs})
}

func (s *Server) createReport(c *gin.Context) {
	if !s.requireStore(c) {
		return
	}
	var rec history.Record
	if err := c.ShouldBindJSON(&rec); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(msgBadBody))
		return
	}
	if strings.TrimSpace(rec.Text) == "" {
		c.JSON(http.StatusBadRequest, errorBody(msgEmptyText))
		return
	}
	// The store assigns identity and timestamp.
	rec.ID = ""
	rec.CreatedAt = time.Time{}

	ctx := c.Request.Context()
	created, err := s.store.Create(ctx, rec)
	if err != nil {
		observe.Logger(ctx).Error("api: create report", "err", err)
		c.JSON(http.StatusInternalServerError, errorBody(msgStorage))
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (s *Server) patchReport(c *gin.Context) {
	if !s.requireStore(c) {
		return
	}
	var p history.Patch
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(msgBadBody))
		return
	}
	if p.Empty() {
		c.JSON(http.StatusBadRequest, errorBody(msgEmptyPatch))
		return
	}

	ctx := c.Request.Context()
	rec, err := s.store.Patch(ctx, c.Param("id"), p)
	switch {
	case errors.Is(err, history.ErrNotFound):
		c.JSON(http.StatusNotFound, errorBody(msgNotFound))
	case err != nil:
		observe.Logger(ctx).Error("api: patch report", "id", c.Param("id"), "err", err)
		c.JSON(http.StatusInternalServerError, errorBody(msgStorage))
	default:
		c.JSON(http.StatusOK, rec)
	}
}

func (s *Server) deleteReports(c *gin.Context) {
	if !s.requireStore(c) {
		return
	}
	ctx := c.Request.Context()
	n, err := s.store.DeleteAll(ctx)
	if err != nil {
		observe.Logger(ctx).Error("api: delete reports", "err", err)
		c.JSON(http.StatusInternalServerError, errorBody(msgStorage))
		return
	}
	c.JSON(http.StatusOK, gin.H{"removidos": n})
}

func (s *Server) reloadTemplates(c *gin.Context) {
	ctx := c.Request.Context()
	cat, err := s.templates.Reload(ctx)
	if err != nil {
		observe.Logger(ctx).Error("api: reload templates", "err", err)
		c.JSON(http.StatusInternalServerError, errorBody(msgReloadFails))
		return
	}
	observe.Logger(ctx).Info("api: templates reloaded", "masks", len(cat.Masks), "findings", len(cat.Findings))
	c.JSON(http.StatusOK, gin.H{"mascaras": len(cat.Masks), "achados": len(cat.Findings)})
}
