// Package server exposes the fused board over HTTP.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/betbot/opsboard/internal/domain"
	"github.com/betbot/opsboard/internal/fills"
	"github.com/betbot/opsboard/internal/fusion"
	"github.com/betbot/opsboard/internal/poll"
	"github.com/betbot/opsboard/pkg/opsapi"
	"github.com/betbot/opsboard/pkg/ratelimit"
)

var log = logrus.WithField("module", "server")

// BoardSource is the running engine.
type BoardSource interface {
	Board() *fusion.Board
	Statuses() []poll.Status
	Refresh() <-chan struct{}
}

// FillSubmitter is the write path.
type FillSubmitter interface {
	Submit(ctx context.Context, entries []opsapi.FillEntry) (*fills.Result, error)
}

type Config struct {
	Listen string
	// RefreshWait bounds how long POST /api/refresh waits for channels to settle.
	RefreshWait time.Duration
	// RefreshGap is the minimum spacing of accepted manual refreshes; negative disables.
	RefreshGap time.Duration
}

type Server struct {
	cfg     Config
	board   BoardSource
	fills   FillSubmitter
	metrics http.Handler
	refresh *ratelimit.Gate

	srv *http.Server
}

// New builds a server. metrics may be nil.
func New(cfg Config, board BoardSource, submitter FillSubmitter, metrics http.Handler) *Server {
	if cfg.RefreshWait <= 0 {
		cfg.RefreshWait = 10 * time.Second
	}
	if cfg.RefreshGap == 0 {
		cfg.RefreshGap = 2 * time.Second
	}
	return &Server{cfg: cfg, board: board, fills: submitter, metrics: metrics, refresh: ratelimit.NewGate(cfg.RefreshGap)}
}

func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLog())

	r.GET("/healthz", s.handleHealthz)
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics))
		r.GET("/debug/pprof/*any", gin.WrapH(s.metrics))
	}

	api := r.Group("/api")
	api.GET("/board", s.handleBoard)
	api.GET("/strategies", s.handleStrategies)
	api.GET("/strategies/:id", s.handleStrategy)
	api.GET("/books", s.handleBooks)
	api.GET("/books/:id", s.handleBook)
	api.GET("/feed", s.handleFeed)
	api.GET("/alerts", s.handleAlerts)
	api.GET("/channels", s.handleChannels)
	api.POST("/refresh", s.handleRefresh)
	api.POST("/fills", s.handleFills)
	return r
}

// Start listens and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return err
	}
	s.srv = &http.Server{Handler: s.Router(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("serve: %v", err)
		}
	}()
	log.Infof("listening on %s", ln.Addr())
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		entry := log.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"route":    c.FullPath(),
			"status":   status,
			"duration": time.Since(start).Round(time.Microsecond),
		})
		switch {
		case status >= 500:
			entry.Warn("request failed")
		default:
			entry.Debug("request")
		}
	}
}

func writeError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

func (s *Server) handleHealthz(c *gin.Context) {
	b := s.board.Board()
	c.JSON(http.StatusOK, gin.H{
		"status":       b.System.Status,
		"generated_at": b.GeneratedAt,
		"counts":       b.Counts,
	})
}

func (s *Server) handleBoard(c *gin.Context) {
	c.JSON(http.StatusOK, s.board.Board())
}

func (s *Server) handleStrategies(c *gin.Context) {
	b := s.board.Board()
	book := domain.BookID(c.Query("book"))
	hq := c.Query("health")
	out := make([]fusion.EntityView, 0, len(b.Entities))
	for _, e := range b.Entities {
		if book != "" && e.Book != book {
			continue
		}
		if hq != "" && e.Health != domain.ParseHealth(hq) {
			continue
		}
		out = append(out, e)
	}
	c.JSON(http.StatusOK, gin.H{"strategies": out})
}

func (s *Server) handleStrategy(c *gin.Context) {
	b := s.board.Board()
	id := c.Param("id")
	e, ok := b.Entity(id)
	if !ok {
		writeError(c, http.StatusNotFound, "unknown strategy "+id)
		return
	}
	alerts := b.AlertsFor(id)
	if alerts == nil {
		alerts = []domain.Alert{}
	}
	c.JSON(http.StatusOK, gin.H{"strategy": e, "alerts": alerts})
}

func (s *Server) handleBooks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"books": s.board.Board().Books})
}

func (s *Server) handleBook(c *gin.Context) {
	bk, ok := s.board.Board().Book(domain.BookID(c.Param("id")))
	if !ok {
		writeError(c, http.StatusNotFound, "unknown book "+c.Param("id"))
		return
	}
	c.JSON(http.StatusOK, bk)
}

func (s *Server) handleFeed(c *gin.Context) {
	events := s.board.Board().Feed
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(c, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		if n < len(events) {
			events = events[:n]
		}
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (s *Server) handleAlerts(c *gin.Context) {
	alerts := s.board.Board().Alerts
	if sev := c.Query("severity"); sev != "" {
		filtered := make([]domain.Alert, 0, len(alerts))
		for _, a := range alerts {
			if string(a.Severity) == sev {
				filtered = append(filtered, a)
			}
		}
		alerts = filtered
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts})
}

func (s *Server) handleChannels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"channels": s.board.Statuses()})
}

func (s *Server) handleRefresh(c *gin.Context) {
	if ok, wait := s.refresh.Try(time.Now()); !ok {
		secs := int(wait.Seconds())
		if wait%time.Second != 0 {
			secs++
		}
		c.Header("Retry-After", strconv.Itoa(secs))
		writeError(c, http.StatusTooManyRequests, "refresh requested too recently")
		return
	}
	timer := time.NewTimer(s.cfg.RefreshWait)
	defer timer.Stop()
	select {
	case <-s.board.Refresh():
		c.JSON(http.StatusOK, gin.H{"refreshed": true, "channels": s.board.Statuses()})
	case <-timer.C:
		c.JSON(http.StatusAccepted, gin.H{"refreshed": false, "channels": s.board.Statuses()})
	case <-c.Request.Context().Done():
	}
}

type fillsRequest struct {
	Fills []opsapi.FillEntry `json:"fills"`
}

func (s *Server) handleFills(c *gin.Context) {
	if s.fills == nil {
		writeError(c, http.StatusNotImplemented, "fill logging is not configured")
		return
	}
	var req fillsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	res, err := s.fills.Submit(c.Request.Context(), req.Fills)
	var verr *fills.ValidationError
	var serr *fills.SubmitError
	switch {
	case err == nil:
		c.JSON(http.StatusOK, res)
	case errors.As(err, &verr):
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": verr.Error(), "fields": verr.Fields})
	case errors.As(err, &serr):
		status := http.StatusBadGateway
		if !serr.Retryable {
			status = http.StatusUnprocessableEntity
		}
		c.AbortWithStatusJSON(status, gin.H{"error": serr.Message, "retryable": serr.Retryable, "request_id": serr.RequestID})
	default:
		writeError(c, http.StatusInternalServerError, err.Error())
	}
}
