// 本文件用于运行状态 HTTP 接口 供巡检与 Prometheus 抓取

package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"

	"bluegreen-watch/internal/alert"
	"bluegreen-watch/internal/history"
	"bluegreen-watch/internal/logger"
	"bluegreen-watch/internal/metrics"
)

const defaultHistoryLimit = 50

// DashboardSource 提供告警面板数据
type DashboardSource interface {
	Dashboard() alert.Dashboard
}

// HistoryReader 提供告警历史查询
type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]history.Entry, error)
}

// NotifyQueue 提供告警发送队列状态
type NotifyQueue interface {
	Pending() int
	Channel() string
}

type notifyStatus struct {
	Channel string `json:"channel"`
	Pending int    `json:"pending"`
}

type dashboardResponse struct {
	alert.Dashboard
	Notify *notifyStatus `json:"notify,omitempty"`
}

// Server 运行状态接口服务
type Server struct {
	addr      string
	dashboard DashboardSource
	history   HistoryReader
	queue     NotifyQueue
	metrics   *metrics.Collector
	server    *http.Server
	startTime time.Time
}

// NewServer 创建接口服务
func NewServer(addr string, dashboard DashboardSource, collector *metrics.Collector) *Server {
	return &Server{
		addr:      addr,
		dashboard: dashboard,
		metrics:   collector,
		startTime: time.Now(),
	}
}

// SetHistory 启用告警历史查询
func (s *Server) SetHistory(reader HistoryReader) {
	s.history = reader
}

// SetNotifyQueue 在面板中展示告警发送队列
func (s *Server) SetNotifyQueue(queue NotifyQueue) {
	s.queue = queue
}

// Handler 构建路由
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), cors())

	r.GET("/api/health", s.handleHealth)
	r.GET("/api/dashboard", s.handleDashboard)
	r.GET("/api/history", s.handleHistory)
	r.GET("/metrics", s.handleMetrics)
	return r
}

// Start 监听端口并异步提供服务
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
	s.startTime = time.Now()
	go func() {
		logger.Info("API 服务监听 %s", listener.Addr())
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("API 服务异常退出: %v", err)
		}
	}()
	return nil
}

// Run 启动服务 ctx 取消后优雅关闭
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return fmt.Errorf("启动 API 服务失败: %w", err)
	}
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Shutdown 优雅关闭接口服务
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	body := gin.H{
		"status": "ok",
		"uptime": time.Since(s.startTime).Round(time.Second).String(),
	}
	if s.dashboard != nil {
		pipeline := s.dashboard.Dashboard().Pipeline
		body["pool"] = pipeline.Pool
		body["windowFill"] = pipeline.WindowFill
		body["windowSize"] = pipeline.WindowSize
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) handleDashboard(c *gin.Context) {
	if s.dashboard == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "检测流水线未就绪"})
		return
	}
	resp := dashboardResponse{Dashboard: s.dashboard.Dashboard()}
	if s.queue != nil {
		resp.Notify = &notifyStatus{Channel: s.queue.Channel(), Pending: s.queue.Pending()}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleHistory(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "告警历史未启用"})
		return
	}
	limit := defaultHistoryLimit
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		parsed, err := cast.ToIntE(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit 必须为正整数"})
			return
		}
		limit = parsed
	}
	entries, err := s.history.Recent(c.Request.Context(), limit)
	if err != nil {
		logger.Error("查询告警历史失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询告警历史失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"items": entries,
		"count": len(entries),
	})
}

func (s *Server) handleMetrics(c *gin.Context) {
	c.Data(http.StatusOK, "text/plain; version=0.0.4; charset=utf-8", []byte(s.metrics.RenderPrometheus()))
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		c.Header("Access-Control-Allow-Methods", "GET,OPTIONS")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
