package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"quiz-leaderboard/internal/core/cache"
	"quiz-leaderboard/internal/domain"
)

const (
	MaxLeaderboardLimit     = 100
	DefaultLeaderboardLimit = 10

	keyTopUsers     = "leaderboard:top"
	keyUniversities = "leaderboard:universities"
)

type RankedUser struct {
	domain.LeaderboardEntry
	Rank int `json:"rank"`
}

type RankedUniversity struct {
	domain.UniversityStats
	Rank int `json:"rank"`
}

// LeaderboardService 在聚合结果上加名次；cache 为 nil 时每次直接查库
type LeaderboardService struct {
	reader domain.LeaderboardReader
	cache  *cache.Cache
	ttl    time.Duration
	log    *zap.Logger
}

func NewLeaderboardService(reader domain.LeaderboardReader, c *cache.Cache, ttl time.Duration, l *zap.Logger) *LeaderboardService {
	if l == nil {
		l = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &LeaderboardService{reader: reader, cache: c, ttl: ttl, log: l}
}

// Top limit 由调用方负责收敛到合理范围
func (s *LeaderboardService) Top(ctx context.Context, limit int) ([]RankedUser, error) {
	var (
		rows []domain.LeaderboardEntry
		err  error
	)
	if s.cache == nil || limit > MaxLeaderboardLimit {
		rows, err = s.reader.TopUsers(ctx, limit)
	} else {
		// 缓存只存前 100 名，按 limit 截取
		var hit bool
		rows, hit, err = cache.GetOrLoadJSON(s.cache, ctx, keyTopUsers, s.ttl, func(ctx context.Context) ([]domain.LeaderboardEntry, error) {
			return s.reader.TopUsers(ctx, MaxLeaderboardLimit)
		})
		s.observe("top", hit)
		if len(rows) > limit {
			rows = rows[:limit]
		}
	}
	if err != nil {
		return nil, err
	}
	out := make([]RankedUser, 0, len(rows))
	for i, r := range rows {
		out = append(out, RankedUser{LeaderboardEntry: r, Rank: i + 1})
	}
	return out, nil
}

func (s *LeaderboardService) Universities(ctx context.Context) ([]RankedUniversity, error) {
	var (
		rows []domain.UniversityStats
		err  error
	)
	if s.cache == nil {
		rows, err = s.reader.UniversityLeaderboard(ctx)
	} else {
		var hit bool
		rows, hit, err = cache.GetOrLoadJSON(s.cache, ctx, keyUniversities, s.ttl, s.reader.UniversityLeaderboard)
		s.observe("universities", hit)
	}
	if err != nil {
		return nil, err
	}
	out := make([]RankedUniversity, 0, len(rows))
	for i, r := range rows {
		out = append(out, RankedUniversity{UniversityStats: r, Rank: i + 1})
	}
	return out, nil
}

func (s *LeaderboardService) InvalidateLeaderboards(ctx context.Context) {
	if s == nil || s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, keyTopUsers, keyUniversities); err != nil {
		s.log.Warn("leaderboard cache invalidate failed", zap.Error(err))
	}
}

func (s *LeaderboardService) observe(view string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	leaderboardCache.WithLabelValues(view, result).Inc()
}
