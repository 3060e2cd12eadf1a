package user

import (
	"time"

	"quiz-leaderboard/internal/domain"
)

// UserModel users 表的持久化形态；与 domain.User 互转
type UserModel struct {
	ID         string  `gorm:"primaryKey;size:64"`
	Name       string  `gorm:"size:255;not null"`
	Email      string  `gorm:"uniqueIndex;size:255;not null"`
	Password   *string `gorm:"size:255"`
	University *string `gorm:"size:255"`
	AvatarURL  *string `gorm:"column:avatar_url;type:text"`
	BannerURL  *string `gorm:"column:banner_url;type:text"`
	Role       string  `gorm:"size:16;not null;default:user"`
	Score      int64   `gorm:"not null;default:0"`

	// 只在插入时由 gorm 赋值，之后不再更新
	CreatedAt time.Time `gorm:"autoCreateTime;not null"`
}

func (UserModel) TableName() string { return "users" }

func FromDomain(u *domain.User) *UserModel {
	role := u.Role
	if role == "" {
		role = domain.RoleUser
	}
	return &UserModel{
		ID:         u.ID,
		Name:       u.Name,
		Email:      u.Email,
		Password:   u.Password,
		University: u.University,
		AvatarURL:  u.AvatarURL,
		BannerURL:  u.BannerURL,
		Role:       string(role),
		Score:      u.Score,
		CreatedAt:  u.CreatedAt,
	}
}

func (m *UserModel) ToDomain() *domain.User {
	return &domain.User{
		ID:         m.ID,
		Name:       m.Name,
		Email:      m.Email,
		Password:   m.Password,
		University: m.University,
		AvatarURL:  m.AvatarURL,
		BannerURL:  m.BannerURL,
		Role:       domain.ParseRole(m.Role),
		Score:      m.Score,
		CreatedAt:  m.CreatedAt,
	}
}
