package http

import (
	"bytes"
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/escrow-engine/internal/application/port"
	"github.com/garyjia/escrow-engine/internal/domain/entity"
)

const (
	HeaderUserID         = "X-User-ID"
	HeaderUserRole       = "X-User-Role"
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderReplayed       = "Idempotent-Replayed"

	callerKey = "escrow.caller"
)

// callerMiddleware reads the caller identity set by the upstream gateway
func callerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(HeaderUserID)
		id, err := strconv.ParseInt(raw, 10, 64)
		if raw == "" || err != nil || id <= 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, Response{
				Success: false,
				Error:   "missing or invalid " + HeaderUserID + " header",
				Code:    CodeUnauthenticated,
			})
			return
		}

		c.Set(callerKey, entity.Caller{ID: id, Role: entity.ParseRole(c.GetHeader(HeaderUserRole))})
		c.Next()
	}
}

func callerFrom(c *gin.Context) entity.Caller {
	if v, ok := c.Get(callerKey); ok {
		if caller, ok := v.(entity.Caller); ok {
			return caller
		}
	}
	return entity.Caller{}
}

// bodyRecorder tees the response body so it can be stored for replay
type bodyRecorder struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyRecorder) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// idempotencyMiddleware replays the first response of a mutating request for a
// repeated Idempotency-Key. Keys are scoped to the caller and route. Without a
// store, or when redis fails, requests pass through untouched.
func idempotencyMiddleware(store port.IdempotencyStore, logger Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if store == nil || key == "" {
			c.Next()
			return
		}

		caller := callerFrom(c)
		scoped := strconv.FormatInt(caller.ID, 10) + ":" + c.Request.Method + ":" + c.Request.URL.Path + ":" + key
		ctx := c.Request.Context()

		reserved, err := store.Reserve(ctx, scoped)
		if err != nil {
			logger.Error("Idempotency store unavailable, processing without key", "key", key, "error", err)
			c.Next()
			return
		}

		if !reserved {
			stored, err := store.Get(ctx, scoped)
			if err != nil {
				logger.Error("Failed to read idempotent response", "key", key, "error", err)
			}
			if stored != nil {
				c.Header(HeaderReplayed, "true")
				c.Data(stored.StatusCode, "application/json; charset=utf-8", stored.Body)
				c.Abort()
				return
			}
			c.AbortWithStatusJSON(http.StatusConflict, Response{
				Success: false,
				Error:   "a request with this idempotency key is still in progress",
				Code:    CodeIdempotencyInProgress,
			})
			return
		}

		// Detach from the request so a client disconnect does not leave the key pending
		detached := func() (context.Context, context.CancelFunc) {
			return context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		}
		release := func() {
			releaseCtx, cancel := detached()
			defer cancel()
			if err := store.Release(releaseCtx, scoped); err != nil {
				logger.Error("Failed to release idempotency key", "key", key, "error", err)
			}
		}

		recorder := &bodyRecorder{ResponseWriter: c.Writer}
		c.Writer = recorder

		// A panicking handler unwinds through here to gin.Recovery; free the key on the way
		finished := false
		defer func() {
			if !finished {
				release()
			}
		}()

		c.Next()
		finished = true

		status := recorder.Status()
		if status >= http.StatusInternalServerError {
			release()
			return
		}

		saveCtx, cancel := detached()
		defer cancel()

		if err := store.Save(saveCtx, scoped, &port.StoredResponse{
			StatusCode: status,
			Body:       recorder.body.Bytes(),
		}); err != nil {
			logger.Error("Failed to save idempotent response", "key", key, "error", err)
		}
	}
}

// metricsMiddleware records request counts and latency per route template
func metricsMiddleware(m RequestMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.ObserveHTTPRequest(route, c.Request.Method, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

// corsMiddleware adds CORS headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers",
			"Content-Type, "+HeaderUserID+", "+HeaderUserRole+", "+HeaderIdempotencyKey)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
