// Package ops exposes a read-only HTTP endpoint for deployments to
// probe the bot without talking to Telegram.
package ops

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"TGModule/logger"
	"TGModule/service/storage"
)

// Start serves /healthz and /stats on addr until ctx is cancelled.
func Start(ctx context.Context, addr string, store *storage.SessionStore) {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		if err := store.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/stats", func(c *gin.Context) {
		anon, auth := store.IndexSizes(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{
			"anon_chats": anon,
			"auth_chats": auth,
		})
	})

	srv := &http.Server{Addr: addr, Handler: r}
	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()

	logger.Info("ops endpoint listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("ops endpoint stopped", zap.Error(err))
	}
}
