package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "go.uber.org/automaxprocs"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"quiz-leaderboard/internal/core/cache"
	"quiz-leaderboard/internal/core/config"
	"quiz-leaderboard/internal/core/database"
	"quiz-leaderboard/internal/core/logger"
	"quiz-leaderboard/internal/core/server"
	"quiz-leaderboard/internal/feature/user"
	"quiz-leaderboard/internal/repo"
	"quiz-leaderboard/internal/service"
	"quiz-leaderboard/internal/transport/http/handler"
	"quiz-leaderboard/internal/transport/http/router"
)

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log, cleanup := logger.FromConfig(cfg.Log.Level, cfg.Log.JSON, logger.FileRotate(cfg.Log.File))
	defer cleanup()
	undo := logger.RedirectStdLog(log, zapcore.InfoLevel)
	defer undo()

	// 存储：后台初始化，请求在 Await 处等待就绪
	sel := database.NewSelector(database.Opts{
		Driver:             cfg.DB.Driver,
		DSN:                cfg.DB.DSN,
		Username:           cfg.DB.Username,
		Password:           cfg.DB.Password,
		MaxOpenConns:       cfg.DB.MaxOpenConns,
		MaxIdleConns:       cfg.DB.MaxIdleConns,
		ConnMaxLifetimeMin: cfg.DB.ConnMaxLifetimeMin,
		LogLevel:           cfg.DB.LogLevel,
		LogWriter:          logger.GormWriter(log),
	}, log, &user.UserModel{})
	sel.Start()
	defer sel.Close()

	// 排行榜缓存（可选）
	var lbCache *cache.Cache
	if cfg.Redis.Addr != "" {
		lbCache = cache.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		defer func() { _ = lbCache.Close() }()
		pctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := lbCache.Ping(pctx); err != nil {
			log.Warn("redis unreachable, leaderboard reads go to storage", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		cancel()
	}

	// 依赖
	users := repo.NewUserRepo(sel)
	boards := service.NewLeaderboardService(users, lbCache, cfg.Redis.TTL(), log)
	reconcileSvc := service.NewReconcileService(users, boards, log)
	scoreSvc := service.NewScoreService(users, boards)

	hc := cfg.App.HTTP
	r := router.NewAPIEngine(log, router.Options{
		RequestTimeout: hc.RequestTimeout(),
		RateLimitRPS:   hc.RateLimitRPS,
		RateLimitBurst: hc.RateLimitBurst,
		MaxConcurrency: hc.MaxConcurrency,
		MaxBodyBytes:   hc.MaxBodyBytes,
		StaticDir:      hc.StaticDir,
	},
		handler.NewHealthHandler(users, log),
		handler.NewUserHandler(reconcileSvc, scoreSvc, users, log),
		handler.NewLeaderboardHandler(boards),
	)

	// HTTP Server
	addr := server.Addr(hc.Host, hc.Port)
	srv := server.BuildServer(addr, r, hc.ReadTimeout(), hc.WriteTimeout(), hc.IdleTimeout())

	// 启动日志
	host4human := hc.Host
	if host4human == "" || host4human == "0.0.0.0" {
		host4human = "127.0.0.1"
	}
	baseURL := "http://" + host4human + ":" + fmt.Sprint(hc.Port)
	log.Info("quiz api starting",
		zap.String("addr", addr),
		zap.String("env", cfg.App.Env),
		zap.String("health", baseURL+"/api/health"),
		zap.String("metrics", baseURL+"/metrics"),
	)

	// 异步启动
	errc := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errc:
		log.Error("quiz api start FAILED", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	log.Info("quiz api stopped gracefully")
}
