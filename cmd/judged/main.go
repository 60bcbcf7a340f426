package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dheerajgaurgithub/earnbycode-judge/internal/common/cache"
	commonmw "github.com/dheerajgaurgithub/earnbycode-judge/internal/common/http/middleware"
	"github.com/dheerajgaurgithub/earnbycode-judge/internal/judge/controller"
	"github.com/dheerajgaurgithub/earnbycode-judge/internal/judge/language"
	"github.com/dheerajgaurgithub/earnbycode-judge/internal/judge/repository"
	"github.com/dheerajgaurgithub/earnbycode-judge/internal/judge/sandbox"
	"github.com/dheerajgaurgithub/earnbycode-judge/internal/judge/sandbox/breaker"
	"github.com/dheerajgaurgithub/earnbycode-judge/internal/judge/sandbox/jsvm"
	"github.com/dheerajgaurgithub/earnbycode-judge/internal/judge/sandbox/piston"
	"github.com/dheerajgaurgithub/earnbycode-judge/internal/judge/sandbox/subprocess"
	"github.com/dheerajgaurgithub/earnbycode-judge/internal/judge/service"
	"github.com/dheerajgaurgithub/earnbycode-judge/pkg/utils/logger"
)

const defaultConfigPath = "configs/judged.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		return
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		return
	}
	defer func() {
		_ = logger.Sync()
	}()

	redisCache, err := cache.NewRedisCacheWithConfig(&appCfg.Redis)
	if err != nil {
		logger.Error(context.Background(), "init redis failed", zap.Error(err))
		return
	}
	defer func() {
		_ = redisCache.Close()
	}()

	recordStore := repository.NewRecordStore(redisCache, appCfg.Record.TTL)

	inProc := jsvm.NewEvaluator(jsvm.Config{
		OutputMaxBytes: appCfg.Judge.OutputMaxBytes,
	})
	local := subprocess.NewDriver(subprocess.Config{
		WorkRoot:       appCfg.Judge.WorkRoot,
		OutputMaxBytes: appCfg.Judge.OutputMaxBytes,
	})

	var remote sandbox.Executor
	var brk *breaker.Breaker
	if appCfg.Remote.Enabled {
		remote = piston.NewClient(piston.Config{
			BaseURL:  appCfg.Remote.BaseURL,
			Timeout:  appCfg.Remote.Timeout,
			Versions: appCfg.Remote.Versions,
		})
		brk = breaker.New(breaker.Config{
			FailureThreshold: appCfg.Breaker.FailureThreshold,
			Cooldown:         appCfg.Breaker.Cooldown,
		})
	}

	dispatcher := sandbox.NewDispatcher(sandbox.Config{
		ForceRemote: appCfg.Judge.ForceRemote,
	}, inProc, local, remote, brk)

	probeToolchains(context.Background(), appCfg.Remote.Enabled)

	judgeSvc, err := service.NewService(service.Config{
		Executor:           dispatcher,
		Store:              recordStore,
		DefaultTimeLimitMs: appCfg.Judge.DefaultTimeLimitMs,
		MaxTimeLimitMs:     appCfg.Judge.MaxTimeLimitMs,
		ComparisonMode:     appCfg.Judge.ComparisonMode,
		IncludeDiff:        appCfg.Judge.IncludeDiff,
		MaxSourceBytes:     appCfg.Judge.MaxSourceBytes,
		MaxTestCases:       appCfg.Judge.MaxTestCases,
		ErrorMaxLen:        appCfg.Judge.ErrorMaxLen,
		WorkerPoolSize:     appCfg.Judge.WorkerPoolSize,
		StoreTimeout:       appCfg.Record.Timeout,
	})
	if err != nil {
		logger.Error(context.Background(), "init judge service failed", zap.Error(err))
		return
	}

	httpServer := buildHTTPServer(appCfg.Server, judgeSvc)
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		logger.Error(context.Background(), "init http listener failed", zap.Error(err))
		return
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(context.Background(), "judge http server started", zap.String("addr", appCfg.Server.Addr))
		errCh <- httpServer.Serve(listener)
	}()

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), "http server stopped", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		logger.Info(context.Background(), "shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error(context.Background(), "http server shutdown failed", zap.Error(err))
	}
}

// probeToolchains logs which languages can run locally. Missing toolchains
// are not fatal: those languages fall back to the remote service when it is
// enabled and fail as toolchain errors otherwise.
func probeToolchains(ctx context.Context, remoteEnabled bool) {
	for _, lang := range language.All() {
		tc, ok := language.Lookup(lang)
		if !ok || tc.InProcess {
			continue
		}
		missing := ""
		for _, tool := range tc.Tools() {
			if _, err := tool.Resolve(); err != nil {
				missing = err.Error()
				break
			}
		}
		if missing == "" {
			logger.Info(ctx, "local toolchain available", zap.String("language", string(lang)))
			continue
		}
		if remoteEnabled {
			logger.Warn(ctx, "local toolchain missing, will use remote execution",
				zap.String("language", string(lang)),
				zap.String("reason", missing))
		} else {
			logger.Warn(ctx, "local toolchain missing",
				zap.String("language", string(lang)),
				zap.String("reason", missing))
		}
	}
}

func buildHTTPServer(cfg ServerConfig, judgeSvc *service.Service) *http.Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.TraceContextMiddleware())
	router.Use(requestLogger())

	judgeController := controller.NewJudgeController(judgeSvc)
	api := router.Group("/api/v1/judge")
	api.POST("/run", judgeController.Run)
	api.POST("/submissions", judgeController.Submit)
	api.GET("/submissions/:id", judgeController.GetSubmission)
	api.DELETE("/submissions/:id", judgeController.Cancel)
	api.GET("/submissions/:id/watch", judgeController.Watch)

	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		logger.Info(
			c.Request.Context(),
			"request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
