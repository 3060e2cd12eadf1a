package service

import (
	"context"
	"strings"

	"quiz-leaderboard/internal/domain"
)

type ScoreService struct {
	users domain.UserRepository
	inv   Invalidator
}

func NewScoreService(repo domain.UserRepository, inv Invalidator) *ScoreService {
	return &ScoreService{users: repo, inv: inv}
}

func (s *ScoreService) IncrementByID(ctx context.Context, id string, delta int64) (*domain.User, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.Validation("id is required")
	}
	u, err := s.users.IncrementScore(ctx, id, delta)
	if err != nil {
		return nil, err
	}
	scoreDeltas.Inc()
	if s.inv != nil {
		s.inv.InvalidateLeaderboards(ctx)
	}
	return u, nil
}

func (s *ScoreService) IncrementByEmail(ctx context.Context, email string, delta int64) (*domain.User, error) {
	if email == "" {
		return nil, domain.Validation("email is required")
	}
	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, domain.ErrNotFound
	}
	return s.IncrementByID(ctx, u.ID, delta)
}
