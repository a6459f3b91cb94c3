package router

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/weibaohui/minutesagent/backend/config"
	"github.com/weibaohui/minutesagent/backend/internal/handler"
	"github.com/weibaohui/minutesagent/backend/internal/middleware"
)

func Setup(
	cfg *config.Config,
	minutesHandler *handler.MinutesHandler,
	runHandler *handler.RunHandler,
	gatherer prometheus.Gatherer,
) *gin.Engine {
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	r.MaxMultipartMemory = cfg.Server.MaxUploadMB << 20

	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.AllowOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Content-Length", "Accept", "Accept-Encoding", "Authorization", "X-Requested-With", handler.RunIDHeader},
		ExposeHeaders:    []string{"Content-Length", handler.RunIDHeader},
		AllowCredentials: true,
	}))
	// promhttp 自行压缩
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	r.GET("/healthz", handler.Healthz)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	// 上传接口：限流 + 请求体大小限制
	upload := r.Group("/", middleware.RateLimit(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst), middleware.MaxBodySize(cfg.Server.MaxUploadMB<<20))
	{
		upload.POST("/generate_minutes", minutesHandler.GenerateMinutes)
		upload.POST("/generate_minutes/", minutesHandler.GenerateMinutes)
		upload.POST("/process_critique", minutesHandler.ProcessCritique)
		upload.POST("/process_critique/", minutesHandler.ProcessCritique)
	}

	runs := r.Group("/runs")
	{
		runs.GET("", runHandler.List)
		runs.GET("/:id", runHandler.Get)
	}

	return r
}
