package handler

import (
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"quiz-leaderboard/internal/service"
	httpez "quiz-leaderboard/internal/transport/http/ez"
)

type LeaderboardHandler struct {
	boards *service.LeaderboardService
}

func NewLeaderboardHandler(s *service.LeaderboardService) *LeaderboardHandler {
	return &LeaderboardHandler{boards: s}
}

func (h *LeaderboardHandler) Priority() int { return 20 }

type topOut struct {
	Users []service.RankedUser `json:"users"`
}

type universitiesOut struct {
	Universities []service.RankedUniversity `json:"universities"`
}

func (h *LeaderboardHandler) MountAPI(api *gin.RouterGroup) {
	ez := httpez.New(api)

	httpez.RegisterAction(ez, httpez.Action[struct{}, topOut]{
		Method: http.MethodGet,
		Path:   "/leaderboard",
		Binder: httpez.BindNone,
		Handler: func(c *gin.Context, _ *struct{}) (topOut, error) {
			users, err := h.boards.Top(c.Request.Context(), parseLimit(c.Query("limit")))
			if err != nil {
				return topOut{}, err
			}
			return topOut{Users: users}, nil
		},
	})

	httpez.RegisterAction(ez, httpez.Action[struct{}, universitiesOut]{
		Method: http.MethodGet,
		Path:   "/leaderboard/universities",
		Binder: httpez.BindNone,
		Handler: func(c *gin.Context, _ *struct{}) (universitiesOut, error) {
			rows, err := h.boards.Universities(c.Request.Context())
			if err != nil {
				return universitiesOut{}, err
			}
			return universitiesOut{Universities: rows}, nil
		},
	})
}

// parseLimit 缺省或非数字取默认值，小数向下取整，再收敛到 [1, 100]
func parseLimit(q string) int {
	q = strings.TrimSpace(q)
	if q == "" {
		return service.DefaultLeaderboardLimit
	}
	f, err := strconv.ParseFloat(q, 64)
	if err != nil || math.IsNaN(f) {
		return service.DefaultLeaderboardLimit
	}
	f = math.Floor(f)
	switch {
	case f < 1:
		return 1
	case f > service.MaxLeaderboardLimit:
		return service.MaxLeaderboardLimit
	}
	return int(f)
}
