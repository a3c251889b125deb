package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"cryptodash/internal/chart"
	"cryptodash/internal/coordinator"
	"cryptodash/internal/market"
)

// Markets is the read side of the coordinator
type Markets interface {
	State() coordinator.State
	Ticker(n int) []market.Asset
}

// Charts is the read side of the chart loader
type Charts interface {
	Request(ctx context.Context, id string)
	View(id string) chart.View
}

// Server exposes the in-memory dashboard state as JSON for the browser
type Server struct {
	engine      *gin.Engine
	markets     Markets
	charts      Charts
	selection   *chart.Selection
	tickerLimit int
	// loads outlive the HTTP request that triggered them
	bg context.Context
}

// New builds the gin engine and registers routes
func New(bg context.Context, markets Markets, charts Charts, selection *chart.Selection, tickerLimit int) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		engine:      gin.New(),
		markets:     markets,
		charts:      charts,
		selection:   selection,
		tickerLimit: tickerLimit,
		bg:          bg,
	}

	s.engine.Use(gin.Recovery(), requestLogger())
	s.routes()

	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() {
	s.engine.GET("/healthz", s.getHealth)

	api := s.engine.Group("/api")
	api.GET("/markets", s.getMarkets)
	api.GET("/ticker", s.getTicker)
	api.GET("/selection", s.getSelection)
	api.GET("/charts/:id", s.getChart)
	api.POST("/charts/:id/toggle", s.toggleChart)
}

// ListenAndServe serves until ctx is done, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("presentation bridge listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) getHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type marketsResponse struct {
	Sequence  uint64         `json:"sequence"`
	FetchedAt *time.Time     `json:"fetched_at,omitempty"`
	Assets    []market.Asset `json:"assets"`
	Error     string         `json:"error,omitempty"`
}

// getMarkets answers 503 only while nothing has ever loaded
func (s *Server) getMarkets(c *gin.Context) {
	state := s.markets.State()

	resp := marketsResponse{
		Sequence: state.Snapshot.Sequence,
		Assets:   state.Snapshot.Assets,
	}
	if resp.Assets == nil {
		resp.Assets = []market.Asset{}
	}
	if !state.Snapshot.FetchedAt.IsZero() {
		resp.FetchedAt = &state.Snapshot.FetchedAt
	}
	if state.Err != nil {
		resp.Error = state.Err.Error()
	}

	status := http.StatusOK
	if !state.Loaded && state.Err != nil {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}

func (s *Server) getTicker(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"assets": s.markets.Ticker(s.tickerLimit)})
}

func (s *Server) getSelection(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"open": s.selection.Open()})
}

func (s *Server) getChart(c *gin.Context) {
	id := c.Param("id")

	view := s.charts.View(id)
	if view.State == chart.StateIdle {
		s.charts.Request(s.bg, id)
		view = s.charts.View(id)
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) toggleChart(c *gin.Context) {
	open := s.selection.Toggle(c.Param("id"))

	resp := gin.H{"open": open}
	if open != "" {
		resp["chart"] = s.charts.View(open)
	}
	c.JSON(http.StatusOK, resp)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
