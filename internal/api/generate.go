package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/eduardocaminha/reporter-sub000/internal/history"
	"github.com/eduardocaminha/reporter-sub000/internal/observe"
	"github.com/eduardocaminha/reporter-sub000/internal/report"
)

// saveTimeout bounds storing a finished report once the stream has ended.
const saveTimeout = 5 * time.Second

// generate streams one report as newline-delimited JSON events, flushing
// after every line. A finished report is stored in the history.
func (s *Server) generate(c *gin.Context) {
	var req report.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(msgBadBody))
		return
	}

	ctx := c.Request.Context()
	seq, err := s.gen.Generate(ctx, req)
	switch {
	case errors.Is(err, report.ErrEmptyText):
		c.JSON(http.StatusBadRequest, errorBody(msgEmptyText))
		return
	case errors.Is(err, report.ErrNoCredentials):
		c.JSON(http.StatusServiceUnavailable, errorBody(msgNoProvider))
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, errorBody(report.MessageGeneric))
		return
	}

	c.Header("Content-Type", "application/x-ndjson; charset=utf-8")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	log := observe.Logger(ctx)
	for ev := range seq {
		line, err := json.Marshal(ev)
		if err != nil {
			log.Error("api: encode event", "type", ev.Type, "err", err)
			return
		}
		if _, err := c.Writer.Write(append(line, '\n')); err != nil {
			log.Info("api: client went away", "err", err)
			return
		}
		c.Writer.Flush()

		if ev.Type == report.EventDone && ev.Result != nil {
			s.save(ctx, req, *ev.Result)
		}
	}
}

// save stores a finished report. Failures are logged; the client already has
// its report.
func (s *Server) save(ctx context.Context, req report.Request, res report.Result) {
	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()
	rec, err := s.store.Create(ctx, history.NewRecord(req, res))
	if err != nil {
		observe.Logger(ctx).Warn("api: could not store report", "err", err)
		return
	}
	observe.Logger(ctx).Debug("api: report stored", "id", rec.ID)
}
