package dashboard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"letterpulse/internal/analysis"
	"letterpulse/internal/config"
	"letterpulse/internal/export"
	"letterpulse/internal/logger"
	"letterpulse/internal/store/sessionstore"
	"letterpulse/internal/visual"

	"github.com/gin-gonic/gin"
)

// HTTPServer 提供 Gin 接口：上传导出包、查询报告、输出图表页与 PNG 快照。
type HTTPServer struct {
	addr     string
	svc      *Service
	router   *gin.Engine
	maxBytes int64
	snapshot config.SnapshotConfig
}

type HTTPConfig struct {
	Addr        string
	Svc         *Service
	MaxUploadMB int
	Snapshot    config.SnapshotConfig
}

func NewHTTPServer(cfg HTTPConfig) (*HTTPServer, error) {
	if cfg.Svc == nil {
		return nil, errors.New("service 不能为空")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9991"
	}
	if cfg.MaxUploadMB <= 0 {
		cfg.MaxUploadMB = 64
	}
	indexHTML, err := indexPage()
	if err != nil {
		return nil, fmt.Errorf("加载前端首页失败: %w", err)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	s := &HTTPServer{
		addr:     cfg.Addr,
		svc:      cfg.Svc,
		router:   router,
		maxBytes: int64(cfg.MaxUploadMB) << 20,
		snapshot: cfg.Snapshot,
	}
	router.GET("/", func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", indexHTML)
	})
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.registerRoutes()
	return s, nil
}

func (s *HTTPServer) registerRoutes() {
	api := s.router.Group("/api/dashboard")
	api.POST("/uploads", s.handleUpload)
	api.GET("/uploads", s.handleList)
	api.GET("/uploads/:id", s.handleReport)
	api.GET("/uploads/:id/series", s.handleSeries)
	api.GET("/uploads/:id/charts", s.handleCharts)
	api.GET("/uploads/:id/snapshot.png", s.handleSnapshot)
}

func (s *HTTPServer) handleUpload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxBytes)
	file, header, err := c.Request.FormFile("export")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("上传超过大小限制（%d MB）", s.maxBytes>>20)})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少 export 文件字段"})
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("上传超过大小限制（%d MB）", s.maxBytes>>20)})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("读取上传内容失败: %v", err)})
		return
	}

	rep, err := s.svc.IngestExport(c.Request.Context(), header.Filename, c.PostForm("profile"), data)
	if err != nil {
		if isExportError(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"report": rep})
}

func (s *HTTPServer) handleList(c *gin.Context) {
	uploads, err := s.svc.Reports(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"uploads": uploads})
}

func (s *HTTPServer) handleReport(c *gin.Context) {
	rep, ok := s.reportByID(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": rep})
}

func (s *HTTPServer) handleSeries(c *gin.Context) {
	rep, ok := s.reportByID(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": rep.ID, "series": rep.Series})
}

func (s *HTTPServer) handleCharts(c *gin.Context) {
	rep, ok := s.reportByID(c)
	if !ok {
		return
	}
	html, err := visual.RenderHTML(rep, s.snapshot.WidthPx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", html)
}

func (s *HTTPServer) handleSnapshot(c *gin.Context) {
	if !s.snapshot.Enabled {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "快照功能未开启"})
		return
	}
	rep, ok := s.reportByID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if err := visual.EnsureHeadlessAvailable(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": fmt.Sprintf("无头 Chrome 不可用: %v", err)})
		return
	}
	html, err := visual.RenderHTML(rep, s.snapshot.WidthPx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	png, err := visual.RenderPNG(ctx, html, s.snapshot.WidthPx, visual.PageHeightPx(),
		time.Duration(s.snapshot.TimeoutSeconds)*time.Second)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("快照渲染失败: %v", err)})
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

func (s *HTTPServer) reportByID(c *gin.Context) (*analysis.Report, bool) {
	id := c.Param("id")
	r, err := s.svc.Report(c.Request.Context(), id)
	if errors.Is(err, sessionstore.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "upload not found"})
		return nil, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}
	return r, true
}

func isExportError(err error) bool {
	return errors.Is(err, export.ErrBadArchive) ||
		errors.Is(err, export.ErrMissingSubscribers) ||
		errors.Is(err, export.ErrMissingPosts) ||
		errors.Is(err, export.ErrMissingColumn)
}

// requestLogger 记录接口调用，便于追踪上传与查询。
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery
		client := c.ClientIP()
		c.Next()
		dur := time.Since(start)
		status := c.Writer.Status()
		fullPath := path
		if query != "" {
			fullPath = path + "?" + query
		}
		logger.Debugf("HTTP %s %s status=%d ip=%s dur=%s", method, fullPath, status, client, dur)
	}
}

// Addr 返回监听地址。
func (s *HTTPServer) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

// Router 暴露底层 gin 引擎（测试用）。
func (s *HTTPServer) Router() http.Handler {
	if s == nil {
		return nil
	}
	return s.router
}

// Start 启动 HTTP 服务，直到 ctx 取消或出现错误。
func (s *HTTPServer) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
