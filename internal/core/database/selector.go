package database

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"quiz-leaderboard/internal/domain"
)

type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

var ErrBackendFailed = errors.New("storage backend failed to initialize")

// Selector 进程内只绑定一个存储引擎；首次使用前异步打开连接并迁移表结构。
// 所有存储操作都要先 Await，直到 Ready；Failed 之后立即报错，不会重试。
type Selector struct {
	open    func() (*gorm.DB, error)
	migrate func(*gorm.DB) error
	log     *zap.Logger

	mu    sync.Mutex
	state State
	db    *gorm.DB
	err   error
	done  chan struct{}
}

// NewSelector 按配置选择引擎；models 在 Ready 前 AutoMigrate
func NewSelector(o Opts, l *zap.Logger, models ...any) *Selector {
	if l == nil {
		l = zap.NewNop()
	}
	return newSelector(
		func() (*gorm.DB, error) { return NewGorm(o) },
		func(db *gorm.DB) error { return db.AutoMigrate(models...) },
		l.With(zap.String("driver", ResolveDriver(o.Driver, o.DSN))),
	)
}

func newSelector(open func() (*gorm.DB, error), migrate func(*gorm.DB) error, l *zap.Logger) *Selector {
	if l == nil {
		l = zap.NewNop()
	}
	return &Selector{
		open:    open,
		migrate: migrate,
		log:     l,
		done:    make(chan struct{}),
	}
}

func (s *Selector) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start 幂等；只有第一次调用会触发初始化
func (s *Selector) Start() {
	s.mu.Lock()
	if s.state != StateUninitialized {
		s.mu.Unlock()
		return
	}
	s.state = StateInitializing
	s.mu.Unlock()

	s.log.Info("storage initializing")
	go s.init()
}

func (s *Selector) init() {
	db, err := s.open()
	if err == nil && s.migrate != nil {
		if err = s.migrate(db); err != nil {
			err = fmt.Errorf("migrate: %w", err)
			closeDB(db)
		}
	}

	s.mu.Lock()
	if err != nil {
		s.state = StateFailed
		s.err = err
	} else {
		s.state = StateReady
		s.db = db
	}
	s.mu.Unlock()
	close(s.done)

	if err != nil {
		s.log.Error("storage init failed", zap.Error(err))
		return
	}
	s.log.Info("storage ready")
}

// Await 阻塞到 Ready 或 Failed；ctx 结束则提前返回
func (s *Selector) Await(ctx context.Context) (*gorm.DB, error) {
	s.Start()
	select {
	case <-s.done:
	case <-ctx.Done():
		return nil, domain.NewStorageError("await storage", ctx.Err())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateFailed {
		return nil, domain.NewStorageError("await storage", fmt.Errorf("%w: %v", ErrBackendFailed, s.err))
	}
	return s.db, nil
}

// Close 释放连接池；未就绪时什么也不做
func (s *Selector) Close() error {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func closeDB(db *gorm.DB) {
	if db == nil {
		return
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
