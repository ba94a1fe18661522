// Package status serves the process's health, pipeline counters, recent
// metrics and warnings, host usage and the Prometheus registry over HTTP.
package status

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"cryptonorm/internal/metrics"
	"cryptonorm/logger"
	"cryptonorm/models"
)

// Options configures a Server.
type Options struct {
	Addr           string
	Route          models.Route
	DataDir        string
	History        int
	SampleInterval time.Duration
	// Stats reports the dispatcher counters; nil until the pipeline runs.
	Stats func() metrics.PipelineStats
}

type Server struct {
	opts      Options
	log       *logger.Log
	started   time.Time
	metrics   *metricStore
	logs      *logStore
	resources *resourceSampler
	handlerID metrics.MetricHandlerID
	http      *http.Server
}

func NewServer(opts Options, log *logger.Log) *Server {
	opts.Addr = normalizeAddress(opts.Addr)
	s := &Server{
		opts:      opts,
		log:       log,
		started:   time.Now(),
		metrics:   newMetricStore(opts.History),
		logs:      newLogStore(opts.History),
		resources: newResourceSampler(opts.History, opts.SampleInterval, opts.DataDir, log),
	}
	s.handlerID = metrics.RegisterMetricHandler(s.metrics.handle)
	log.AddHook(s.logs)
	return s
}

func (s *Server) Addr() string { return s.opts.Addr }

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	defer s.cleanup()

	s.resources.start(ctx)
	s.http = &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	s.log.WithComponent("status").WithFields(logger.Fields{"addr": s.opts.Addr}).Info("status server listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) cleanup() {
	metrics.UnregisterMetricHandler(s.handlerID)
	s.logs.close()
	s.resources.stop()
}

func (s *Server) router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":         "ok",
			"route":          s.opts.Route.String(),
			"uptime_seconds": int64(time.Since(s.started).Seconds()),
		})
	})

	router.GET("/api/stats", func(c *gin.Context) {
		if s.opts.Stats == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "pipeline not running"})
			return
		}
		st := s.opts.Stats()
		c.JSON(http.StatusOK, gin.H{
			"route":           s.opts.Route,
			"frames":          st.Frames,
			"records":         st.Records,
			"parse_errors":    st.ParseErrors,
			"sink_errors":     st.SinkErrors,
			"dropped":         st.Dropped,
			"raw_channel_len": st.RawLen,
			"raw_channel_cap": st.RawCap,
		})
	})

	router.GET("/api/metrics", func(c *gin.Context) {
		items := s.metrics.snapshot()
		payload := make([]gin.H, 0, len(items))
		for _, m := range items {
			payload = append(payload, gin.H{
				"timestamp": m.Timestamp.Format(time.RFC3339Nano),
				"component": m.Component,
				"name":      m.Name,
				"value":     m.Value,
				"type":      m.Type,
				"fields":    m.Fields,
			})
		}
		c.JSON(http.StatusOK, gin.H{"metrics": payload})
	})

	router.GET("/api/logs", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"logs": s.logs.snapshot()})
	})

	router.GET("/api/resources", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"resources": s.resources.snapshot()})
	})

	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	return router
}

// normalizeAddress accepts ":9100", "host", "host:port" and defaults the
// port to 9100.
func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "0.0.0.0:9100"
	}
	if host, port, err := net.SplitHostPort(addr); err == nil {
		if host == "" || host == "*" {
			host = "0.0.0.0"
		}
		if port == "" {
			port = "9100"
		}
		return net.JoinHostPort(host, port)
	}
	return net.JoinHostPort(strings.Trim(addr, "[]"), "9100")
}
