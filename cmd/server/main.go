package main

import (
	"flag"
	"log"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"k8s.io/klog/v2"

	"github.com/weibaohui/minutesagent/backend/config"
	"github.com/weibaohui/minutesagent/backend/internal/handler"
	"github.com/weibaohui/minutesagent/backend/internal/pkg/database"
	"github.com/weibaohui/minutesagent/backend/internal/pkg/extractor"
	"github.com/weibaohui/minutesagent/backend/internal/pkg/llm"
	"github.com/weibaohui/minutesagent/backend/internal/pkg/metrics"
	"github.com/weibaohui/minutesagent/backend/internal/repository"
	"github.com/weibaohui/minutesagent/backend/internal/router"
	"github.com/weibaohui/minutesagent/backend/internal/service/critic"
	"github.com/weibaohui/minutesagent/backend/internal/service/drafter"
	"github.com/weibaohui/minutesagent/backend/internal/service/orchestrator"
)

func main() {
	// 初始化 klog
	klog.InitFlags(nil)
	flag.Parse()
	defer klog.Flush()

	klog.V(6).Info("服务启动中...")

	cfg := config.GetConfig()
	if cfg.LLM.APIKey == "" {
		klog.Warning("未配置生成服务 API Key（COHERE_API_KEY / OPENAI_API_KEY），调用将失败")
	}

	// 指标
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.RegisterCollectors(reg)

	// 生成服务客户端
	client, err := llm.NewClient(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize LLM client: %v", err)
	}

	// 初始化运行记录（可选）
	opts := []orchestrator.Option{}
	var runRepo repository.RunRepository
	db, err := database.InitDB(cfg.Database.Type, cfg.Database.DSN)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	if db != nil {
		runRepo = repository.NewRunRepository(db)
		opts = append(opts, orchestrator.WithJournal(runRepo))
		klog.V(6).Infof("运行记录已启用: type=%s", cfg.Database.Type)
	}

	// 初始化 Service
	pipeline := orchestrator.New(cfg,
		extractor.New(),
		critic.New(cfg, client),
		drafter.New(cfg, client),
		opts...,
	)

	// 初始化 Handler
	minutesHandler := handler.NewMinutesHandler(pipeline)
	runHandler := handler.NewRunHandler(runRepo)

	// 设置路由
	r := router.Setup(cfg, minutesHandler, runHandler, reg)

	log.Printf("Server starting on port %s...", cfg.Server.Port)
	if err := r.Run(":" + cfg.Server.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
