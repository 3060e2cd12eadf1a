package router

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"quiz-leaderboard/internal/core/server"
	mdw "quiz-leaderboard/internal/transport/http/middleware"
	resp "quiz-leaderboard/internal/transport/http/response"
)

type Options struct {
	RequestTimeout time.Duration
	RateLimitRPS   float64
	RateLimitBurst int
	MaxConcurrency int64
	MaxBodyBytes   int64
	StaticDir      string // 前端构建产物目录；为空则不托管
}

func (o Options) withDefaults() Options {
	if o.MaxConcurrency <= 0 {
		o.MaxConcurrency = 300
	}
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = 16 << 20
	}
	return o
}

func NewAPIEngine(l *zap.Logger, o Options, mods ...APIModule) *gin.Engine {
	if l == nil {
		l = zap.NewNop()
	}
	o = o.withDefaults()
	r := server.NewRouter(l)

	// 中间件
	r.Use(
		mdw.RequestID(),
		mdw.RateLimit(rate.Limit(o.RateLimitRPS), o.RateLimitBurst),
		mdw.ConcurrencyLimit(o.MaxConcurrency),
		mdw.MaxBodyBytes(o.MaxBodyBytes),
		mdw.Timeout(o.RequestTimeout),
		mdw.Metrics(),
		mdw.AccessLog(l),
	)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 前缀
	api := r.Group("/api")
	Mount(api, mods...)

	r.NoRoute(spaFallback(o.StaticDir))
	return r
}

// spaFallback /api/ 下未知路径返回 404 JSON；其余路径先找静态文件，找不到回落 index.html
func spaFallback(dir string) gin.HandlerFunc {
	notFound := func(c *gin.Context) {
		c.JSON(http.StatusNotFound, resp.Error(http.StatusNotFound, "not found"))
	}
	if dir == "" {
		return notFound
	}
	root, err := filepath.Abs(dir)
	if err != nil {
		return notFound
	}
	index := filepath.Join(root, "index.html")
	return func(c *gin.Context) {
		p := c.Request.URL.Path
		if strings.HasPrefix(p, "/api/") || (c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead) {
			notFound(c)
			return
		}
		// Clean 以 "/" 开头，拼接后不会越出 root
		f := filepath.Join(root, filepath.FromSlash(filepath.Clean("/"+p)))
		if st, err := os.Stat(f); err == nil && !st.IsDir() {
			c.File(f)
			return
		}
		if _, err := os.Stat(index); err != nil {
			notFound(c)
			return
		}
		c.File(index)
	}
}
