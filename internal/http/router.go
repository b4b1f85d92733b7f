package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appconfig "github.com/memorylink/vision-server/internal/config"
	"github.com/memorylink/vision-server/internal/storage"
	"github.com/memorylink/vision-server/internal/ws"
)

// NewRouter wires the HTTP surface: health, the websocket frame channel, and
// the analysis history endpoints.
func NewRouter(cfg appconfig.Config, wsHandler *ws.Handler, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.RedirectTrailingSlash = false
	router.RedirectFixedPath = false
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"sessions": wsHandler.ActiveSessions(),
		})
	})

	router.GET("/ws", func(c *gin.Context) {
		wsHandler.Handle(c.Writer, c.Request)
	})

	router.GET("/history", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"sessions": storage.List(cfg.HistoryDir)})
	})

	router.GET("/history/:session", func(c *gin.Context) {
		records, err := storage.Get(cfg.HistoryDir, c.Param("session"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"records": records})
	})

	router.DELETE("/history/:session", func(c *gin.Context) {
		deleted := storage.Delete(cfg.HistoryDir, c.Param("session"))
		c.JSON(http.StatusOK, gin.H{"deleted": deleted})
	})

	return router
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if logger == nil {
			return
		}
		logger.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("client_ip", c.ClientIP()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
