package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tinytelemetry/bundlelens/internal/logparse"
	"github.com/tinytelemetry/bundlelens/internal/model"
	"github.com/tinytelemetry/bundlelens/internal/report"
)

// ReportSource returns the document to serve. It is called per request so
// a report rewritten on disk is picked up without a restart.
type ReportSource func() (*report.Document, error)

// RowCounter reports how many rows are staged. Optional.
type RowCounter interface {
	RowCount(ctx context.Context) (int64, error)
}

// Server exposes a finished analysis report over HTTP.
type Server struct {
	addr      string
	source    ReportSource
	rows      RowCounter
	server    *http.Server
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
}

// NewServer creates a new HTTP API server. rows may be nil.
func NewServer(addr string, source ReportSource, rows RowCounter) *Server {
	if addr == "" {
		addr = "127.0.0.1:3000"
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:   addr,
		source: source,
		rows:   rows,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/api/health", s.handleHealth)
	r.GET("/api/report", s.handleReport)
	r.GET("/api/histogram", s.handleHistogram)
	return r
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)

	s.server = &http.Server{
		Handler:           s.routes(),
		BaseContext:       func(_ net.Listener) context.Context { return s.ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	s.startTime = time.Now()

	go s.server.Serve(listener)
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	s.cancel()
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	body := gin.H{
		"status": "ok",
		"uptime": time.Since(s.startTime).String(),
	}
	if s.rows != nil {
		n, err := s.rows.RowCount(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read health metrics"})
			return
		}
		body["staged_rows"] = n
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) loadDocument(c *gin.Context) (*report.Document, bool) {
	doc, err := s.source()
	if err != nil {
		if errors.Is(err, report.ErrNoReport) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no report available"})
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load report"})
		return nil, false
	}
	return doc, true
}

func (s *Server) handleReport(c *gin.Context) {
	doc, ok := s.loadDocument(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, doc)
}

type bucket struct {
	Time  string `json:"time"`
	Count uint64 `json:"count"`
}

// handleHistogram returns one pattern's per-minute counts, optionally
// clipped to [from, to] (RFC 3339).
func (s *Server) handleHistogram(c *gin.Context) {
	node := c.Query("node")
	pattern := c.Query("pattern")
	types := logparse.ParseProcessTypes(c.Query("type"))
	if node == "" || pattern == "" || len(types) != 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "node, type and pattern are required"})
		return
	}
	pt := types[0]

	var from, to time.Time
	for _, p := range []struct {
		name string
		dst  *time.Time
	}{{"from", &from}, {"to", &to}} {
		raw := c.Query(p.name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + p.name + " time, want RFC 3339"})
			return
		}
		*p.dst = t
	}

	doc, ok := s.loadDocument(c)
	if !ok {
		return
	}
	st := doc.Lookup(node, pt, pattern)
	if st == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "pattern not found for node and type"})
		return
	}

	buckets := make([]bucket, 0, len(st.Histogram))
	var total uint64
	for key, n := range st.Histogram {
		ts, err := time.Parse(model.BucketLayout, key)
		if err != nil {
			continue
		}
		if (!from.IsZero() && ts.Before(from)) || (!to.IsZero() && ts.After(to)) {
			continue
		}
		buckets = append(buckets, bucket{Time: key, Count: n})
		total += n
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Time < buckets[j].Time })

	c.JSON(http.StatusOK, gin.H{
		"node":      node,
		"logType":   pt,
		"pattern":   pattern,
		"count":     total,
		"histogram": buckets,
	})
}
