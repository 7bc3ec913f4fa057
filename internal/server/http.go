package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/unrolled/secure"

	"github.com/golovatskygroup/mcp-toolkit/internal/metrics"
	"github.com/golovatskygroup/mcp-toolkit/pkg/mcp"
)

const maxRequestBytes = 4 << 20

// Router returns the HTTP API: POST /mcp takes one JSON-RPC message per
// request, GET /healthz reports liveness and GET /metrics serves m.
func (s *Server) Router(m *metrics.Metrics) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"*"}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Mcp-Session-Id"}
	r.Use(cors.New(corsConfig))
	r.Use(secureHeaders())

	r.POST("/mcp", s.handleHTTPMessage)
	r.GET("/healthz", s.handleHealth)
	r.GET("/metrics", gin.WrapH(m.Handler()))
	return r
}

// ListenAndServe serves the HTTP API on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string, m *metrics.Metrics) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(m),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("http transport listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) handleHTTPMessage(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxRequestBytes))
	if err != nil {
		c.JSON(http.StatusRequestEntityTooLarge, mcp.NewErrorResponse(nil, mcp.InvalidRequest, err.Error()))
		return
	}

	var req mcp.Request
	if err := json.Unmarshal(body, &req); err != nil {
		c.JSON(http.StatusBadRequest, mcp.NewErrorResponse(nil, mcp.ParseError, "Parse error: "+err.Error()))
		return
	}
	if req.Method == "" {
		c.JSON(http.StatusBadRequest, mcp.NewErrorResponse(req.ID, mcp.InvalidRequest, "Invalid request: missing method"))
		return
	}

	resp := s.Handle(c.Request.Context(), &req)
	if resp == nil {
		c.Status(http.StatusAccepted)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleHealth(c *gin.Context) {
	cache := s.disp.Cache()
	snap := cache.Get()
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"fresh":        cache.Fresh(),
		"custom_tools": len(snap.Entries),
		"broken_tools": len(snap.Broken()),
	})
}

func secureHeaders() gin.HandlerFunc {
	mw := secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
		ReferrerPolicy:     "no-referrer",
	})
	return func(c *gin.Context) {
		if err := mw.Process(c.Writer, c.Request); err != nil {
			// Process has already written the response.
			c.Abort()
			return
		}
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("http request")
	}
}
