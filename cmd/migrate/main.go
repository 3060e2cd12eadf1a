package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"quiz-leaderboard/internal/core/config"
	"quiz-leaderboard/internal/core/database"
	"quiz-leaderboard/internal/core/logger"
	"quiz-leaderboard/internal/feature/user"
)

// 只做建表/补列，成功退出 0，失败退出 1
func main() {
	_ = godotenv.Load()
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log, cleanup := logger.New(cfg.Log.Level, cfg.Log.JSON)

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

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	_, err = sel.Await(ctx)
	cancel()
	sel.Close()
	if err != nil {
		log.Error("migrate FAILED", zap.Error(err))
		cleanup()
		os.Exit(1)
	}
	log.Info("migrate done", zap.String("state", sel.State().String()))
	cleanup()
}
