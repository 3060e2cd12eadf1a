package domain

import (
	"context"
	"time"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ParseRole 只认 "admin"，其余一律降级为 user
func ParseRole(s string) Role {
	if Role(s) == RoleAdmin {
		return RoleAdmin
	}
	return RoleUser
}

const MaxIDLen = 64

type User struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Password   *string   `json:"-"`
	University *string   `json:"university"`
	AvatarURL  *string   `json:"avatarUrl"`
	BannerURL  *string   `json:"bannerUrl"`
	Role       Role      `json:"role"`
	Score      int64     `json:"score"`
	CreatedAt  time.Time `json:"created_at"`
}

// UserPatch 可合并字段；nil 表示保持原值
type UserPatch struct {
	Name       *string
	University *string
	AvatarURL  *string
	BannerURL  *string
	Role       *Role
}

func (p UserPatch) Empty() bool {
	return p.Name == nil && p.University == nil && p.AvatarURL == nil && p.BannerURL == nil && p.Role == nil
}

type LeaderboardEntry struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Score     int64   `json:"score"`
	AvatarURL *string `json:"avatarUrl"`
}

type UniversityStats struct {
	University   string `json:"university"`
	TotalScore   int64  `json:"totalScore"`
	UserCount    int64  `json:"userCount"`
	AverageScore int64  `json:"averageScore"`
}

// IdentityStore 查找类方法找不到时返回 (nil, nil)
type IdentityStore interface {
	Ping(ctx context.Context) error
	Create(ctx context.Context, u *User) (*User, error)
	CreateOrUpsert(ctx context.Context, u *User) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	UpdateMutableFields(ctx context.Context, id string, patch UserPatch) (*User, error)
}

type ScoreLedger interface {
	IncrementScore(ctx context.Context, id string, delta int64) (*User, error)
}

type LeaderboardReader interface {
	TopUsers(ctx context.Context, limit int) ([]LeaderboardEntry, error)
	UniversityLeaderboard(ctx context.Context) ([]UniversityStats, error)
}

type UserRepository interface {
	IdentityStore
	ScoreLedger
	LeaderboardReader
}
