package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quiz-leaderboard/internal/core/database"
	"quiz-leaderboard/internal/feature/user"
	"quiz-leaderboard/internal/repo"
	"quiz-leaderboard/internal/service"
	"quiz-leaderboard/internal/transport/http/router"
)

func newTestEngine(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	sel := database.NewSelector(database.Opts{
		Driver:   database.DriverSQLite,
		DSN:      filepath.Join(t.TempDir(), "api.db"),
		LogLevel: "silent",
	}, nil, &user.UserModel{})
	t.Cleanup(func() { _ = sel.Close() })

	users := repo.NewUserRepo(sel)
	boards := service.NewLeaderboardService(users, nil, 0, nil)
	return router.NewAPIEngine(nil, router.Options{},
		NewHealthHandler(users, nil),
		NewUserHandler(service.NewReconcileService(users, boards, nil), service.NewScoreService(users, boards), users, nil),
		NewLeaderboardHandler(boards),
	)
}

func do(t *testing.T, r http.Handler, method, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var out map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w.Code, out
}

func TestUpsertCreatesThenMerges(t *testing.T) {
	r := newTestEngine(t)

	code, body := do(t, r, http.MethodPost, "/api/users/upsert",
		`{"id":"u1","name":"Ana","email":"ana@x.br","password":"p","university":"USP"}`)
	require.Equal(t, http.StatusCreated, code, body)
	assert.Equal(t, "u1", body["id"])
	assert.Equal(t, "Ana", body["name"])
	assert.Equal(t, "user", body["role"])
	assert.Equal(t, float64(0), body["score"])
	assert.Equal(t, "USP", body["university"])
	assert.Nil(t, body["avatarUrl"])
	assert.NotContains(t, body, "password")
	assert.Contains(t, body, "created_at")

	code, body = do(t, r, http.MethodPost, "/api/users/upsert",
		`{"id":"u1","name":"Ana Maria","email":"ana@x.br","role":"admin","score":99}`)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "u1", body["id"])
	assert.Equal(t, "Ana Maria", body["name"])
	assert.Equal(t, "admin", body["role"])
	assert.Equal(t, "USP", body["university"])
	assert.Equal(t, float64(0), body["score"])
}

func TestUpsertGeneratesID(t *testing.T) {
	r := newTestEngine(t)
	code, body := do(t, r, http.MethodPost, "/api/users/upsert", `{"name":"Bo","email":"bo@x.br"}`)
	require.Equal(t, http.StatusCreated, code)
	assert.Len(t, body["id"], 36)
}

func TestUpsertRejectsBadInput(t *testing.T) {
	r := newTestEngine(t)

	code, body := do(t, r, http.MethodPost, "/api/users/upsert", `{"name":"Ana"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.NotEmpty(t, body["error"])

	code, _ = do(t, r, http.MethodPost, "/api/users/upsert", `{"name":"Ana","email":"   "}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = do(t, r, http.MethodPost, "/api/users/upsert", `{"name":`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.NotEmpty(t, body["error"])
}

func TestBulkUpsert(t *testing.T) {
	r := newTestEngine(t)

	code, body := do(t, r, http.MethodPost, "/api/users/bulk-upsert", `[
		{"id":"a","name":"A","email":"a@x"},
		{"name":"no email"},
		5,
		{"id":"b","name":"B","email":"b@x"},
		{"id":"zzz","name":"A2","email":"a@x"}
	]`)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, float64(3), body["count"])
	users := body["users"].([]any)
	require.Len(t, users, 3)
	assert.Equal(t, "a", users[2].(map[string]any)["id"])
	assert.Equal(t, "A2", users[2].(map[string]any)["name"])

	code, body = do(t, r, http.MethodPost, "/api/users/bulk-upsert", `{"name":"x"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "array body required", body["error"])

	code, _ = do(t, r, http.MethodPost, "/api/users/bulk-upsert", ``)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = do(t, r, http.MethodPost, "/api/users/bulk-upsert", `[]`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(0), body["count"])
	assert.Equal(t, []any{}, body["users"])
}

func TestScoreRoutes(t *testing.T) {
	r := newTestEngine(t)
	code, _ := do(t, r, http.MethodPost, "/api/users/upsert", `{"id":"u1","name":"Ana","email":"ana@x.br"}`)
	require.Equal(t, http.StatusCreated, code)

	code, body := do(t, r, http.MethodPost, "/api/users/u1/score", `{"delta":5}`)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, float64(5), body["score"])

	code, body = do(t, r, http.MethodPost, "/api/users/u1/score", `{"delta":"3"}`)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, float64(8), body["score"])

	code, body = do(t, r, http.MethodPost, "/api/users/u1/score", ``)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, float64(8), body["score"])

	code, body = do(t, r, http.MethodPost, "/api/users/u1/score", `{"delta":-10}`)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, float64(-2), body["score"])

	code, body = do(t, r, http.MethodPost, "/api/users/u1/score", `{"delta":"abc"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid id or delta", body["error"])

	code, body = do(t, r, http.MethodPost, "/api/users/ghost/score", `{"delta":1}`)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "user not found", body["error"])

	code, body = do(t, r, http.MethodPost, "/api/users/by-email/ana@x.br/score", `{"delta":12}`)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, float64(10), body["score"])
	assert.Equal(t, "u1", body["id"])

	code, body = do(t, r, http.MethodPost, "/api/users/by-email/%20ana@x.br%20/score", `{"delta":1}`)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, float64(11), body["score"])

	code, body = do(t, r, http.MethodPost, "/api/users/by-email/nobody@x.br/score", `{"delta":1}`)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "user not found", body["error"])

	code, body = do(t, r, http.MethodPost, "/api/users/by-email/%20/score", `{"delta":1}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid email or delta", body["error"])
}

func TestScoreRejectsOverflowingDelta(t *testing.T) {
	r := newTestEngine(t)
	do(t, r, http.MethodPost, "/api/users/upsert", `{"id":"u1","name":"Ana","email":"ana@x.br","university":"USP","score":5}`)

	code, body := do(t, r, http.MethodPost, "/api/users/u1/score", `{"delta":9223372036854775807}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid id or delta", body["error"])
	code, _ = do(t, r, http.MethodPost, "/api/users/by-email/ana@x.br/score", `{"delta":"-9223372036854775808"}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = do(t, r, http.MethodPost, "/api/users/u1/score", `{"delta":9007199254740992}`)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, float64(9007199254740997), body["score"])

	code, body = do(t, r, http.MethodGet, "/api/users/u1", "")
	require.Equal(t, http.StatusOK, code, body)
	code, _ = do(t, r, http.MethodGet, "/api/leaderboard", "")
	assert.Equal(t, http.StatusOK, code)
	code, _ = do(t, r, http.MethodGet, "/api/leaderboard/universities", "")
	assert.Equal(t, http.StatusOK, code)
}

func TestBulkUpsertCoercesLooseTypes(t *testing.T) {
	r := newTestEngine(t)

	code, body := do(t, r, http.MethodPost, "/api/users/bulk-upsert", `[
		{"id":42,"name":"Num","email":"num@x","score":10.5},
		{"name":"Str","email":"str@x","score":"7"},
		{"name":"Obj","email":"obj@x","score":{"x":1}},
		"not an object"
	]`)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, float64(2), body["count"])
	users := body["users"].([]any)
	first := users[0].(map[string]any)
	assert.Equal(t, "42", first["id"])
	assert.Equal(t, float64(11), first["score"])
	assert.Equal(t, float64(7), users[1].(map[string]any)["score"])
}

func TestGetUser(t *testing.T) {
	r := newTestEngine(t)
	do(t, r, http.MethodPost, "/api/users/upsert", `{"id":"u1","name":"Ana","email":"ana@x.br"}`)

	code, body := do(t, r, http.MethodGet, "/api/users/u1", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ana@x.br", body["email"])

	code, body = do(t, r, http.MethodGet, "/api/users/nope", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "not found", body["error"])
}

func TestLeaderboardRoutes(t *testing.T) {
	r := newTestEngine(t)
	do(t, r, http.MethodPost, "/api/users/bulk-upsert", `[
		{"id":"a","name":"A","email":"a@x","university":"U1","score":100},
		{"id":"b","name":"B","email":"b@x","university":"U1","score":50},
		{"id":"c","name":"C","email":"c@x","university":"U2","score":75},
		{"id":"d","name":"D","email":"d@x","score":0}
	]`)

	code, body := do(t, r, http.MethodGet, "/api/leaderboard", "")
	require.Equal(t, http.StatusOK, code)
	users := body["users"].([]any)
	require.Len(t, users, 3)
	first := users[0].(map[string]any)
	assert.Equal(t, "a", first["id"])
	assert.Equal(t, float64(1), first["rank"])
	assert.Contains(t, first, "avatarUrl")
	assert.NotContains(t, first, "email")
	assert.Equal(t, "c", users[1].(map[string]any)["id"])

	_, body = do(t, r, http.MethodGet, "/api/leaderboard?limit=0", "")
	assert.Len(t, body["users"], 1)

	_, body = do(t, r, http.MethodGet, "/api/leaderboard?limit=abc", "")
	assert.Len(t, body["users"], 3)

	code, body = do(t, r, http.MethodGet, "/api/leaderboard/universities", "")
	require.Equal(t, http.StatusOK, code)
	unis := body["universities"].([]any)
	require.Len(t, unis, 2)
	u1 := unis[0].(map[string]any)
	assert.Equal(t, "U1", u1["university"])
	assert.Equal(t, float64(150), u1["totalScore"])
	assert.Equal(t, float64(2), u1["userCount"])
	assert.Equal(t, float64(75), u1["averageScore"])
	assert.Equal(t, float64(1), u1["rank"])
	assert.Equal(t, float64(2), unis[1].(map[string]any)["rank"])
}

func TestLeaderboardEmpty(t *testing.T) {
	r := newTestEngine(t)
	code, body := do(t, r, http.MethodGet, "/api/leaderboard", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []any{}, body["users"])
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealth(t *testing.T) {
	r := newTestEngine(t)
	code, body := do(t, r, http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["ok"])

	gin.SetMode(gin.TestMode)
	down := gin.New()
	NewHealthHandler(pingerFunc(func(context.Context) error { return errors.New("down") }), nil).MountAPI(down.Group("/api"))
	code, body = do(t, down, http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["ok"])
}

func TestUnknownAPIPath(t *testing.T) {
	r := newTestEngine(t)
	code, body := do(t, r, http.MethodGet, "/api/nope", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.NotEmpty(t, body["error"])
}

func TestParseDelta(t *testing.T) {
	cases := []struct {
		body    string
		want    int64
		wantErr bool
	}{
		{``, 0, false},
		{`{}`, 0, false},
		{`{"delta":null}`, 0, false},
		{`{"delta":7}`, 7, false},
		{`{"delta":-3}`, -3, false},
		{`{"delta":"42"}`, 42, false},
		{`{"delta":" 5 "}`, 5, false},
		{`{"delta":""}`, 0, false},
		{`{"delta":2.0}`, 2, false},
		{`{"delta":1e3}`, 1000, false},
		{`{"delta":9007199254740992}`, 1 << 53, false},
		{`{"delta":9007199254740993}`, 0, true},
		{`{"delta":9223372036854775807}`, 0, true},
		{`{"delta":"-9223372036854775808"}`, 0, true},
		{`{"delta":1.5}`, 0, true},
		{`{"delta":"x"}`, 0, true},
		{`{"delta":true}`, 0, true},
		{`{"delta":"NaN"}`, 0, true},
		{`{"delta":"Infinity"}`, 0, true},
		{`[1]`, 0, true},
		{`{"delta":`, 0, true},
	}
	for _, tc := range cases {
		got, err := parseDelta([]byte(tc.body))
		if tc.wantErr {
			assert.Error(t, err, tc.body)
			continue
		}
		assert.NoError(t, err, tc.body)
		assert.Equal(t, tc.want, got, tc.body)
	}
}

func TestParseLimit(t *testing.T) {
	cases := map[string]int{
		"":     10,
		"abc":  10,
		"5":    5,
		"0":    1,
		"-4":   1,
		"1000": 100,
		"100":  100,
		"7.9":  7,
		" 3 ":  3,
	}
	for in, want := range cases {
		assert.Equal(t, want, parseLimit(in), in)
	}
}
