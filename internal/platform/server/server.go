package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	HeaderRequestID = "X-Request-ID"
	HeaderUserID    = "X-User-ID"

	// CtxUserID 网关解析出的调用方身份
	CtxUserID    = "x-user-id"
	CtxRequestID = "x-request-id"
)

// RouteRegistrar 业务模块注册自己的路由
type RouteRegistrar interface {
	RegisterRoutes(r *gin.RouterGroup)
}

// Server 封装 HTTP 服务
type Server struct {
	engine *gin.Engine
	logger *zap.Logger
	port   string
	server *http.Server
}

// NewServer 初始化 HTTP Server (包含网关逻辑)
func NewServer(logger *zap.Logger, cfgPort string, cfgMode string, modules ...RouteRegistrar) *Server {
	if cfgMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := NewEngine(logger, modules...)
	return &Server{
		engine: r,
		logger: logger,
		port:   cfgPort,
		server: &http.Server{
			Addr:              ":" + cfgPort,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// NewEngine 中间件 + 路由，测试里直接用
func NewEngine(logger *zap.Logger, modules ...RouteRegistrar) *gin.Engine {
	r := gin.New()

	// 1. Recovery (防崩)
	r.Use(gin.Recovery())

	// 2. Request ID
	r.Use(func(c *gin.Context) {
		rid := c.GetHeader(HeaderRequestID)
		if rid == "" {
			rid = uuid.New().String()
		}
		c.Set(CtxRequestID, rid)
		c.Writer.Header().Set(HeaderRequestID, rid)
		c.Next()
	})

	// 3. Custom Logger (接入 Zap)
	r.Use(func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		logger.Info("HTTP Request",
			zap.Int("status", c.Writer.Status()),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.String("ip", c.ClientIP()),
			zap.String("request_id", c.GetString(CtxRequestID)),
			zap.Duration("cost", time.Since(start)),
		)
	})

	// 4. CORS
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID, X-User-ID")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	// 5. 身份：鉴权由上游网关完成，这里只透传用户 ID
	r.Use(func(c *gin.Context) {
		if uid := c.GetHeader(HeaderUserID); uid != "" {
			c.Set(CtxUserID, uid)
		}
		c.Next()
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	{
		for _, m := range modules {
			m.RegisterRoutes(v1)
		}

		v1.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "UP"})
		})
	}
	return r
}

// Run 启动服务，阻塞直到 Shutdown
func (s *Server) Run() error {
	s.logger.Info("sfrt ledger server started", zap.String("port", s.port))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown 优雅停机 (Graceful Shutdown)
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
