package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"quiz-leaderboard/internal/domain"
	"quiz-leaderboard/internal/service"
	httpez "quiz-leaderboard/internal/transport/http/ez"
)

type UserHandler struct {
	reconcile *service.ReconcileService
	scores    *service.ScoreService
	users     domain.IdentityStore
	log       *zap.Logger
}

func NewUserHandler(rs *service.ReconcileService, ss *service.ScoreService, users domain.IdentityStore, l *zap.Logger) *UserHandler {
	if l == nil {
		l = zap.NewNop()
	}
	return &UserHandler{reconcile: rs, scores: ss, users: users, log: l}
}

func (h *UserHandler) Priority() int { return 10 }

// upserted 序列化时展开为用户行本身
type upserted struct {
	*domain.User
	created bool
}

type bulkOut struct {
	Count int            `json:"count"`
	Users []*domain.User `json:"users"`
}

func (h *UserHandler) MountAPI(api *gin.RouterGroup) {
	ez := httpez.New(api)

	httpez.RegisterAction(ez, httpez.Action[service.Candidate, upserted]{
		Method: http.MethodPost,
		Path:   "/users/upsert",
		Binder: httpez.BindJSON,
		Handler: func(c *gin.Context, in *service.Candidate) (upserted, error) {
			u, created, err := h.reconcile.Reconcile(c.Request.Context(), *in)
			if err != nil {
				return upserted{}, err
			}
			return upserted{User: u, created: created}, nil
		},
		Status: func(out upserted) int {
			if out.created {
				return http.StatusCreated
			}
			return http.StatusOK
		},
	})

	httpez.RegisterAction(ez, httpez.Action[struct{}, bulkOut]{
		Method: http.MethodPost,
		Path:   "/users/bulk-upsert",
		Binder: httpez.BindNone,
		Handler: func(c *gin.Context, _ *struct{}) (bulkOut, error) {
			body, err := c.GetRawData()
			if err != nil {
				return bulkOut{}, httpez.BindError(err)
			}
			cs, err := decodeCandidates(body, h.log)
			if err != nil {
				return bulkOut{}, err
			}
			users, err := h.reconcile.BulkReconcile(c.Request.Context(), cs)
			if err != nil {
				return bulkOut{}, err
			}
			return bulkOut{Count: len(users), Users: users}, nil
		},
	})

	httpez.RegisterAction(ez, httpez.Action[struct{}, *domain.User]{
		Method: http.MethodPost,
		Path:   "/users/:id/score",
		Binder: httpez.BindNone,
		Handler: func(c *gin.Context, _ *struct{}) (*domain.User, error) {
			id := c.Param("id")
			delta, err := readDelta(c)
			if err != nil || strings.TrimSpace(id) == "" {
				return nil, badOr(err, "invalid id or delta")
			}
			u, err := h.scores.IncrementByID(c.Request.Context(), id, delta)
			return u, notFoundAs(err, "user not found")
		},
	})

	httpez.RegisterAction(ez, httpez.Action[struct{}, *domain.User]{
		Method: http.MethodPost,
		Path:   "/users/by-email/:email/score",
		Binder: httpez.BindNone,
		Handler: func(c *gin.Context, _ *struct{}) (*domain.User, error) {
			email := strings.TrimSpace(c.Param("email"))
			delta, err := readDelta(c)
			if err != nil || email == "" {
				return nil, badOr(err, "invalid email or delta")
			}
			u, err := h.scores.IncrementByEmail(c.Request.Context(), email, delta)
			return u, notFoundAs(err, "user not found")
		},
	})

	httpez.RegisterAction(ez, httpez.Action[struct{}, *domain.User]{
		Method: http.MethodGet,
		Path:   "/users/:id",
		Binder: httpez.BindNone,
		Handler: func(c *gin.Context, _ *struct{}) (*domain.User, error) {
			u, err := h.users.FindByID(c.Request.Context(), c.Param("id"))
			if err != nil {
				return nil, err
			}
			if u == nil {
				return nil, httpez.NotFound("not found")
			}
			return u, nil
		},
	})
}

// decodeCandidates 逐条解析；类型不符的字段按宽松规则转换，仍无法解析的记为空记录，后续校验时跳过
func decodeCandidates(body []byte, l *zap.Logger) ([]service.Candidate, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, httpez.BadRequest("array body required")
	}
	var raws []json.RawMessage
	if err := json.Unmarshal(trimmed, &raws); err != nil {
		return nil, httpez.BadRequest("array body required")
	}
	out := make([]service.Candidate, len(raws))
	for i, raw := range raws {
		if err := json.Unmarshal(raw, &out[i]); err == nil {
			continue
		}
		c, err := looseCandidate(raw)
		if err != nil {
			l.Warn("bulk upsert element skipped", zap.Int("index", i), zap.Error(err))
			out[i] = service.Candidate{}
			continue
		}
		out[i] = c
	}
	return out, nil
}

// looseCandidate 数字 id / 名称转成字符串，score 接受数字字符串和小数（四舍五入）
func looseCandidate(raw json.RawMessage) (service.Candidate, error) {
	var c service.Candidate
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil || m == nil {
		return c, errors.New("element is not an object")
	}
	str := func(key string) (*string, error) {
		switch v := m[key].(type) {
		case nil:
			return nil, nil
		case string:
			return &v, nil
		case json.Number:
			s := v.String()
			return &s, nil
		case bool:
			s := strconv.FormatBool(v)
			return &s, nil
		}
		return nil, fmt.Errorf("field %q has unsupported type", key)
	}
	fields := []struct {
		key string
		dst **string
	}{
		{"id", &c.ID}, {"password", &c.Password}, {"university", &c.University},
		{"avatarUrl", &c.AvatarURL}, {"bannerUrl", &c.BannerURL}, {"role", &c.Role},
	}
	for _, f := range fields {
		v, err := str(f.key)
		if err != nil {
			return service.Candidate{}, err
		}
		*f.dst = v
	}
	for key, dst := range map[string]*string{"name": &c.Name, "email": &c.Email} {
		v, err := str(key)
		if err != nil {
			return service.Candidate{}, err
		}
		if v != nil {
			*dst = *v
		}
	}
	if v, ok := m["score"]; ok && v != nil {
		n, err := looseScore(v)
		if err != nil {
			return service.Candidate{}, err
		}
		c.Score = &n
	}
	return c, nil
}

func looseScore(v any) (int64, error) {
	var s string
	switch t := v.(type) {
	case json.Number:
		s = t.String()
	case string:
		s = strings.TrimSpace(t)
		if s == "" {
			return 0, nil
		}
	default:
		return 0, errors.New(`field "score" has unsupported type`)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > maxDelta {
		return 0, errors.New(`field "score" is not a usable number`)
	}
	return int64(math.Round(f)), nil
}

var errInvalidDelta = errors.New("invalid delta")

// maxDelta 单次增量上限，超出部分在客户端已无法精确表示
const maxDelta = 1 << 53

func readDelta(c *gin.Context) (int64, error) {
	body, err := c.GetRawData()
	if err != nil {
		return 0, httpez.BindError(err)
	}
	return parseDelta(body)
}

// parseDelta 空 body 或缺省 delta 记为 0；接受整数或数字字符串
func parseDelta(body []byte) (int64, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return 0, nil
	}
	var in struct {
		Delta json.RawMessage `json:"delta"`
	}
	if err := json.Unmarshal(body, &in); err != nil {
		return 0, errInvalidDelta
	}
	raw := bytes.TrimSpace(in.Delta)
	if len(raw) == 0 || string(raw) == "null" {
		return 0, nil
	}
	s := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, errInvalidDelta
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return 0, nil
		}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n > maxDelta || n < -maxDelta {
			return 0, errInvalidDelta
		}
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || math.Abs(f) > maxDelta {
		return 0, errInvalidDelta
	}
	return int64(f), nil
}

func badOr(err error, msg string) error {
	var ae *httpez.AErr
	if errors.As(err, &ae) {
		return err
	}
	return httpez.BadRequest(msg)
}

func notFoundAs(err error, msg string) error {
	if errors.Is(err, domain.ErrNotFound) {
		return httpez.NotFound(msg)
	}
	return err
}
