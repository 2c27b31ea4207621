// Package admin 提供缓存的管理 HTTP 接口：统计、条目元数据、各类失效、
// 手动淘汰与维护，以及经缓存读取文档。
package admin

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"marketcache/pkg/cache"
	"marketcache/pkg/docstore"
	baseerr "marketcache/pkg/error"
)

// ErrorResponse 错误响应
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// RemovedResponse 失效类操作的响应
type RemovedResponse struct {
	Removed int `json:"removed"`
}

// HealthCheck 依赖健康检查，返回 nil 表示正常
type HealthCheck func(ctx context.Context) error

// Server 管理接口
type Server struct {
	cache  *cache.Cache
	reader *docstore.CachedReader
	checks map[string]HealthCheck
	logger *logrus.Entry
}

// Option 构造选项
type Option func(*Server)

// WithReader 启用 /api/v1/documents 读穿透接口
func WithReader(r *docstore.CachedReader) Option {
	return func(s *Server) {
		s.reader = r
	}
}

// WithHealthCheck 注册一个依赖健康检查
func WithHealthCheck(name string, check HealthCheck) Option {
	return func(s *Server) {
		s.checks[name] = check
	}
}

// NewServer 创建管理接口
func NewServer(c *cache.Cache, log *logrus.Entry, opts ...Option) *Server {
	s := &Server{
		cache:  c,
		checks: make(map[string]HealthCheck),
		logger: log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router 构建 gin 路由
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(s.loggingMiddleware())

	router.GET("/health", s.healthCheck)

	v1 := router.Group("/api/v1")
	{
		c := v1.Group("/cache")
		c.GET("/stats", s.getStats)
		c.GET("/entries/:key", s.getEntry)
		c.DELETE("/entries/:key", s.deleteEntry)
		c.POST("/invalidate", s.invalidatePattern)
		c.POST("/invalidate/tag/:tag", s.invalidateTag)
		c.POST("/invalidate/filters", s.invalidateFilters)
		c.POST("/trim", s.trim)
		c.POST("/maintenance", s.runMaintenance)

		if s.reader != nil {
			v1.GET("/documents/:key", s.getDocument)
		}
	}

	return router
}

func (s *Server) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := "ok"
	services := map[string]string{}
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			services[name] = "error: " + err.Error()
			status = "degraded"
			continue
		}
		services[name] = "ok"
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":    status,
		"timestamp": time.Now(),
		"cache_id":  s.cache.ID(),
		"services":  services,
	})
}

func (s *Server) getStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.cache.Stats())
}

func (s *Server) getEntry(c *gin.Context) {
	info, ok := s.cache.Info(c.Param("key"))
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "Entry not found"})
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) deleteEntry(c *gin.Context) {
	n := 0
	if s.cache.Invalidate(c.Param("key")) {
		n = 1
	}
	c.JSON(http.StatusOK, RemovedResponse{Removed: n})
}

func (s *Server) invalidatePattern(c *gin.Context) {
	pattern := c.Query("pattern")
	if pattern == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: "pattern is required"})
		return
	}
	n, err := s.cache.InvalidatePattern(pattern)
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.logger.WithFields(logrus.Fields{"pattern": pattern, "removed": n}).Info("按模式失效")
	c.JSON(http.StatusOK, RemovedResponse{Removed: n})
}

func (s *Server) invalidateTag(c *gin.Context) {
	tag := c.Param("tag")
	n := s.cache.InvalidateTag(tag)
	s.logger.WithFields(logrus.Fields{"tag": tag, "removed": n}).Info("按标签失效")
	c.JSON(http.StatusOK, RemovedResponse{Removed: n})
}

func (s *Server) invalidateFilters(c *gin.Context) {
	n := s.cache.InvalidateAllFilterCaches()
	s.logger.WithField("removed", n).Info("筛选缓存已失效")
	c.JSON(http.StatusOK, RemovedResponse{Removed: n})
}

func (s *Server) trim(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"evicted": s.cache.Trim()})
}

func (s *Server) runMaintenance(c *gin.Context) {
	c.JSON(http.StatusOK, s.cache.RunMaintenance(c.Request.Context()))
}

func (s *Server) getDocument(c *gin.Context) {
	policy, err := cache.ParsePolicy(c.Query("policy"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	opts := cache.LoadOptions{Policy: policy, Tags: c.QueryArray("tag")}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	v, err := s.reader.Get(ctx, c.Param("key"), opts)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": c.Param("key"), "value": v})
}

// writeError 按错误代码映射 HTTP 状态
func (s *Server) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case baseerr.HasCode(err, docstore.ErrNotFound):
		status = http.StatusNotFound
	case baseerr.HasCode(err, docstore.ErrStoreUnavailable),
		baseerr.HasCode(err, cache.ErrResourceClosed):
		status = http.StatusServiceUnavailable
	case baseerr.HasCode(err, cache.ErrInvalidPattern),
		baseerr.HasCode(err, cache.ErrInvalidKey),
		baseerr.HasCode(err, cache.ErrInvalidPolicy):
		status = http.StatusBadRequest
	}

	code := strings.ToLower(string(baseerr.CodeOf(err)))
	if status == http.StatusNotFound {
		code = "not_found"
	}
	if code == "" {
		code = "internal_error"
	}
	if status >= http.StatusInternalServerError {
		s.logger.WithError(err).WithField("path", c.FullPath()).Error("请求处理失败")
	}
	c.JSON(status, ErrorResponse{Error: code, Message: err.Error()})
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start),
		}).Debug("admin request")
	}
}
