package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"quiz-leaderboard/internal/domain"
	"quiz-leaderboard/pkg/utils"
)

// Candidate 客户端提交的用户记录；指针字段 nil 表示未提供
type Candidate struct {
	ID         *string `json:"id"`
	Name       string  `json:"name"`
	Email      string  `json:"email"`
	Password   *string `json:"password"`
	University *string `json:"university"`
	AvatarURL  *string `json:"avatarUrl"`
	BannerURL  *string `json:"bannerUrl"`
	Role       *string `json:"role"`
	Score      *int64  `json:"score"`
}

func (c Candidate) id() string {
	if c.ID == nil {
		return ""
	}
	return strings.TrimSpace(*c.ID)
}

func (c Candidate) Validate() error {
	if strings.TrimSpace(c.Name) == "" || strings.TrimSpace(c.Email) == "" {
		return domain.Validation("name and email are required")
	}
	if len(c.id()) > domain.MaxIDLen {
		return domain.Validation(fmt.Sprintf("id must be at most %d characters", domain.MaxIDLen))
	}
	return nil
}

func (c Candidate) newUser() *domain.User {
	u := &domain.User{
		ID:         c.id(),
		Name:       c.Name,
		Email:      c.Email,
		Password:   c.Password,
		University: c.University,
		AvatarURL:  c.AvatarURL,
		BannerURL:  c.BannerURL,
		Role:       domain.RoleUser,
	}
	if u.ID == "" {
		u.ID = utils.NewID()
	}
	if c.Role != nil {
		u.Role = domain.ParseRole(*c.Role)
	}
	if c.Score != nil {
		u.Score = *c.Score
	}
	return u
}

func (c Candidate) patch() domain.UserPatch {
	name := c.Name
	p := domain.UserPatch{
		Name:       &name,
		University: c.University,
		AvatarURL:  c.AvatarURL,
		BannerURL:  c.BannerURL,
	}
	if c.Role != nil {
		r := domain.ParseRole(*c.Role)
		p.Role = &r
	}
	return p
}

// Invalidator 写路径提交后通知读侧缓存失效
type Invalidator interface {
	InvalidateLeaderboards(ctx context.Context)
}

type ReconcileService struct {
	store domain.IdentityStore
	inv   Invalidator
	log   *zap.Logger
}

func NewReconcileService(store domain.IdentityStore, inv Invalidator, l *zap.Logger) *ReconcileService {
	if l == nil {
		l = zap.NewNop()
	}
	return &ReconcileService{store: store, inv: inv, log: l}
}

// Reconcile 先按 email、再按 id 找目标；找到则合并，否则新建。created 表示是否新建
func (s *ReconcileService) Reconcile(ctx context.Context, c Candidate) (*domain.User, bool, error) {
	u, created, err := s.reconcileOne(ctx, c)
	if err != nil {
		return nil, false, err
	}
	s.invalidate(ctx)
	return u, created, nil
}

// BulkReconcile 按输入顺序逐条处理；校验不过的跳过，存储错误中止剩余部分。
// 已提交的记录不回滚，随 *domain.PartialBatchError 一并返回。
func (s *ReconcileService) BulkReconcile(ctx context.Context, cs []Candidate) ([]*domain.User, error) {
	out := make([]*domain.User, 0, len(cs))
	defer func() {
		if len(out) > 0 {
			s.invalidate(ctx)
		}
	}()
	for i, c := range cs {
		u, _, err := s.reconcileOne(ctx, c)
		switch {
		case err == nil:
			out = append(out, u)
		case errors.Is(err, domain.ErrValidation):
			continue
		default:
			s.log.Warn("bulk reconcile aborted",
				zap.Int("index", i),
				zap.Int("committed", len(out)),
				zap.Int("remaining", len(cs)-i),
				zap.Error(err),
			)
			return out, &domain.PartialBatchError{Committed: len(out), Err: err}
		}
	}
	return out, nil
}

func (s *ReconcileService) reconcileOne(ctx context.Context, c Candidate) (*domain.User, bool, error) {
	if err := c.Validate(); err != nil {
		reconcileTotal.WithLabelValues(outcomeSkipped).Inc()
		return nil, false, err
	}
	u, created, err := s.resolveAndApply(ctx, c)
	switch {
	case err != nil:
		reconcileTotal.WithLabelValues(outcomeFailed).Inc()
	case created:
		reconcileTotal.WithLabelValues(outcomeCreated).Inc()
	default:
		reconcileTotal.WithLabelValues(outcomeMerged).Inc()
	}
	return u, created, err
}

func (s *ReconcileService) resolveAndApply(ctx context.Context, c Candidate) (*domain.User, bool, error) {
	target, err := s.lookup(ctx, c)
	if err != nil {
		return nil, false, err
	}
	if target == nil {
		u, err := s.store.Create(ctx, c.newUser())
		if err == nil {
			return u, true, nil
		}
		if !errors.Is(err, domain.ErrConflict) {
			return nil, false, err
		}
		// 并发下别人先建了同 email 的行，改为合并
		if target, err = s.lookup(ctx, c); err != nil {
			return nil, false, err
		}
		if target == nil {
			return nil, false, domain.NewStorageError("reconcile user", domain.ErrConflict)
		}
	}
	u, err := s.store.UpdateMutableFields(ctx, target.ID, c.patch())
	if err != nil {
		return nil, false, err
	}
	return u, false, nil
}

func (s *ReconcileService) lookup(ctx context.Context, c Candidate) (*domain.User, error) {
	u, err := s.store.FindByEmail(ctx, c.Email)
	if err != nil || u != nil {
		return u, err
	}
	if id := c.id(); id != "" {
		return s.store.FindByID(ctx, id)
	}
	return nil, nil
}

func (s *ReconcileService) invalidate(ctx context.Context) {
	if s.inv != nil {
		s.inv.InvalidateLeaderboards(ctx)
	}
}
