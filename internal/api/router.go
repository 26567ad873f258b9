package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"

	"bvlwatch/internal/journal"
	"bvlwatch/internal/query"
)

func RegisterRoutes(h *server.Hertz, svc *query.Service, j *journal.Journal) {
	h.GET("/health", func(_ context.Context, c *app.RequestContext) {
		loaded, reason := svc.Status()
		resp := map[string]any{
			"status":      "running",
			"data_loaded": loaded,
		}
		if !loaded && reason != "" {
			resp["reason"] = reason
		}
		c.JSON(http.StatusOK, resp)
	})

	h.GET("/tickers", func(_ context.Context, c *app.RequestContext) {
		tickers, err := svc.ListTickers()
		if err != nil {
			if errors.Is(err, query.ErrServiceUnavailable) {
				c.JSON(http.StatusServiceUnavailable, map[string]any{
					"error": err.Error(),
				})
				return
			}
			log.Printf("list tickers error: %v", err)
			c.JSON(http.StatusInternalServerError, map[string]any{
				"error": err.Error(),
			})
			return
		}
		c.JSON(http.StatusOK, tickers)
	})

	h.GET("/ticker/:id", func(_ context.Context, c *app.RequestContext) {
		id := c.Param("id")
		if id == "" {
			c.JSON(http.StatusBadRequest, map[string]any{
				"error": "ticker id is required",
			})
			return
		}
		view, err := svc.TickerView(id, time.Now())
		if err != nil {
			switch {
			case errors.Is(err, query.ErrServiceUnavailable):
				c.JSON(http.StatusServiceUnavailable, map[string]any{
					"error": err.Error(),
				})
			case errors.Is(err, query.ErrNotFound):
				c.JSON(http.StatusNotFound, map[string]any{
					"error": err.Error(),
				})
			default:
				log.Printf("ticker view error: %v", err)
				c.JSON(http.StatusInternalServerError, map[string]any{
					"error": err.Error(),
				})
			}
			return
		}
		c.JSON(http.StatusOK, view)
	})

	h.POST("/reload", func(_ context.Context, c *app.RequestContext) {
		if err := svc.Reload(); err != nil {
			log.Printf("reload error: %v", err)
			c.JSON(http.StatusInternalServerError, map[string]any{
				"ok":    false,
				"error": err.Error(),
			})
			return
		}
		loaded, reason := svc.Status()
		resp := map[string]any{
			"ok":          true,
			"data_loaded": loaded,
		}
		if !loaded && reason != "" {
			resp["reason"] = reason
		}
		c.JSON(http.StatusOK, resp)
	})

	h.GET("/runs", func(_ context.Context, c *app.RequestContext) {
		if j == nil {
			c.JSON(http.StatusInternalServerError, map[string]any{
				"ok":    false,
				"error": "journal not configured",
			})
			return
		}
		limit, err := parseLimit(c.Query("limit"))
		if err != nil {
			c.JSON(http.StatusBadRequest, map[string]any{
				"ok":    false,
				"error": err.Error(),
			})
			return
		}
		offset, err := parseOffset(c.Query("offset"))
		if err != nil {
			c.JSON(http.StatusBadRequest, map[string]any{
				"ok":    false,
				"error": err.Error(),
			})
			return
		}
		items, err := j.Recent(limit, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, map[string]any{
				"ok":    false,
				"error": err.Error(),
			})
			return
		}
		if items == nil {
			items = []journal.Entry{}
		}
		c.JSON(http.StatusOK, map[string]any{
			"ok":    true,
			"items": items,
		})
	})
}

func parseLimit(s string) (int, error) {
	if s == "" {
		return 200, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, errors.New("invalid limit")
	}
	return n, nil
}

func parseOffset(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, errors.New("invalid offset")
	}
	return n, nil
}
