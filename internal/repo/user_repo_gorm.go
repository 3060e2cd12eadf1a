package repo

import (
	"context"
	"errors"
	"math"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"quiz-leaderboard/internal/domain"
	"quiz-leaderboard/internal/feature/user"
)

// Backend 由 database.Selector 实现；仓储层不关心绑定的是哪种引擎
type Backend interface {
	Await(ctx context.Context) (*gorm.DB, error)
}

// 合并更新只允许动这几列；score / created_at / email / password 不在其中
var mutableColumns = []string{"name", "university", "avatar_url", "banner_url", "role"}

type UserRepo struct{ b Backend }

var _ domain.UserRepository = (*UserRepo)(nil)

func NewUserRepo(b Backend) *UserRepo { return &UserRepo{b: b} }

func (r *UserRepo) conn(ctx context.Context) (*gorm.DB, error) {
	db, err := r.b.Await(ctx)
	if err != nil {
		return nil, err
	}
	return db.WithContext(ctx), nil
}

func (r *UserRepo) Ping(ctx context.Context) error {
	db, err := r.conn(ctx)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return domain.NewStorageError("ping", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return domain.NewStorageError("ping", err)
	}
	return nil
}

// Create 纯插入；id 或 email 任一唯一键冲突都返回 domain.ErrConflict，不改动已有行
func (r *UserRepo) Create(ctx context.Context, u *domain.User) (*domain.User, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	m := user.FromDomain(u)
	if err := db.Create(m).Error; err != nil {
		if isDupKey(err) {
			return nil, domain.ErrConflict
		}
		return nil, domain.NewStorageError("create user", err)
	}
	got, err := r.FindByID(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	if got == nil {
		return nil, domain.NewStorageError("create user", domain.ErrNotFound)
	}
	return got, nil
}

// CreateOrUpsert 主键冲突时只覆盖可合并字段；email 唯一冲突返回 domain.ErrConflict
func (r *UserRepo) CreateOrUpsert(ctx context.Context, u *domain.User) (*domain.User, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	m := user.FromDomain(u)
	err = db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns(mutableColumns),
	}).Create(m).Error
	if err != nil {
		if isDupKey(err) {
			return nil, domain.ErrConflict
		}
		return nil, domain.NewStorageError("upsert user", err)
	}

	got, err := r.FindByID(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	if got == nil {
		// mysql 的 ON DUPLICATE KEY 会落到 email 冲突的那一行，按 id 读不到
		return nil, domain.ErrConflict
	}
	return got, nil
}

func (r *UserRepo) FindByID(ctx context.Context, id string) (*domain.User, error) {
	return r.findOne(ctx, "find user by id", "id = ?", id)
}

func (r *UserRepo) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, "find user by email", "email = ?", email)
}

func (r *UserRepo) findOne(ctx context.Context, op, cond string, arg any) (*domain.User, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	var m user.UserModel
	err = db.Where(cond, arg).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.NewStorageError(op, err)
	}
	return m.ToDomain(), nil
}

// UpdateMutableFields 只写 patch 中给出的字段，缺省字段保持原值
func (r *UserRepo) UpdateMutableFields(ctx context.Context, id string, p domain.UserPatch) (*domain.User, error) {
	cur, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur == nil {
		return nil, domain.ErrNotFound
	}
	if p.Empty() {
		return cur, nil
	}

	set := map[string]any{}
	if p.Name != nil {
		set["name"] = *p.Name
	}
	if p.University != nil {
		set["university"] = *p.University
	}
	if p.AvatarURL != nil {
		set["avatar_url"] = *p.AvatarURL
	}
	if p.BannerURL != nil {
		set["banner_url"] = *p.BannerURL
	}
	if p.Role != nil {
		set["role"] = string(*p.Role)
	}

	db, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	if err := db.Model(&user.UserModel{}).Where("id = ?", id).UpdateColumns(set).Error; err != nil {
		return nil, domain.NewStorageError("update user", err)
	}
	got, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if got == nil {
		return nil, domain.ErrNotFound
	}
	return got, nil
}

// IncrementScore 单条 UPDATE score = score + ?，由数据库保证原子性
func (r *UserRepo) IncrementScore(ctx context.Context, id string, delta int64) (*domain.User, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	q := db.Model(&user.UserModel{}).Where("id = ?", id)
	// 溢出保护放在同一条语句里：sqlite 溢出会把列变成 REAL
	switch {
	case delta > 0:
		q = q.Where("score <= ?", int64(math.MaxInt64)-delta)
	case delta < 0:
		q = q.Where("score >= ?", int64(math.MinInt64)-delta)
	}
	res := q.UpdateColumn("score", gorm.Expr("score + ?", delta))
	if res.Error != nil {
		return nil, domain.NewStorageError("increment score", res.Error)
	}
	// mysql 对 delta=0 报 0 行受影响，这里统一再读一次确认是否存在
	got, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if got == nil {
		return nil, domain.ErrNotFound
	}
	if delta != 0 && res.RowsAffected == 0 {
		return nil, domain.Validation("score out of range")
	}
	return got, nil
}

func (r *UserRepo) TopUsers(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	var rows []user.UserModel
	err = db.Model(&user.UserModel{}).
		Select("id", "name", "score", "avatar_url").
		Where("score > ?", 0).
		Order("score DESC").
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, domain.NewStorageError("top users", err)
	}
	out := make([]domain.LeaderboardEntry, 0, len(rows))
	for _, m := range rows {
		out = append(out, domain.LeaderboardEntry{ID: m.ID, Name: m.Name, Score: m.Score, AvatarURL: m.AvatarURL})
	}
	return out, nil
}

type universityAgg struct {
	University string
	TotalScore int64
	UserCount  int64
}

func (r *UserRepo) UniversityLeaderboard(ctx context.Context) ([]domain.UniversityStats, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	var rows []universityAgg
	err = db.Model(&user.UserModel{}).
		Select("university, SUM(score) AS total_score, COUNT(*) AS user_count").
		Where("university IS NOT NULL AND score > ?", 0).
		Group("university").
		Order("total_score DESC").
		Order("university ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, domain.NewStorageError("university leaderboard", err)
	}
	out := make([]domain.UniversityStats, 0, len(rows))
	for _, a := range rows {
		out = append(out, domain.UniversityStats{
			University:   a.University,
			TotalScore:   a.TotalScore,
			UserCount:    a.UserCount,
			AverageScore: roundDiv(a.TotalScore, a.UserCount),
		})
	}
	return out, nil
}

// roundDiv 四舍五入（0.5 向上）
func roundDiv(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	q, rem := total/count, total%count
	if rem < 0 {
		q, rem = q-1, rem+count
	}
	if 2*rem >= count {
		q++
	}
	return q
}

func isDupKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == 1062 {
		return true
	}
	// sqlite 驱动没有稳定的错误类型，退回按文案判断
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "unique violation")
}
