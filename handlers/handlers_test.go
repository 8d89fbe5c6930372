package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"bithrah-early-access/db"
	"bithrah-early-access/handlers"
	"bithrah-early-access/models"
	"bithrah-early-access/services"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const adminToken = "test-admin-token"

type stubEvaluator struct{}

func (stubEvaluator) Evaluate(context.Context, *models.Idea) (*services.Evaluation, error) {
	return &services.Evaluation{
		Score:           81,
		Summary:         "فكرة قوية",
		Strengths:       []string{"طلب واضح"},
		Weaknesses:      []string{},
		Recommendations: []string{"ابدأ بنموذج أولي"},
		Model:           "stub",
	}, nil
}

type memUploader struct {
	mu   sync.Mutex
	keys []string
}

func (m *memUploader) Upload(_ context.Context, key string, _ []byte, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys = append(m.keys, key)
	return "mem://" + key, nil
}

type testEnv struct {
	app      *fiber.App
	db       *gorm.DB
	uploader *memUploader
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	conn, err := db.Open("sqlite://" + filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	require.NoError(t, db.Migrate(conn))
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	up := &memUploader{}
	app := handlers.NewApp(handlers.Deps{
		DB:             conn,
		Ledger:         services.NewLedgerService(conn, 1, "https://bithrah.com"),
		Ideas:          services.NewIdeaService(conn, stubEvaluator{}),
		Exporter:       services.NewExportService(conn, up),
		AdminToken:     adminToken,
		AllowedOrigins: "http://localhost:3000",
	})
	return &testEnv{app: app, db: conn, uploader: up}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers ...string) (int, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	out := map[string]any{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func (e *testEnv) register(t *testing.T, n int, ref string) map[string]any {
	t.Helper()
	status, body := e.do(t, http.MethodPost, "/early-access/register", map[string]any{
		"email":     fmt.Sprintf("user%d@bithrah.test", n),
		"username":  fmt.Sprintf("user%d", n),
		"full_name": fmt.Sprintf("مستخدم %d", n),
		"ref":       ref,
	})
	require.Equal(t, http.StatusCreated, status, body)
	return body
}

func userField(body map[string]any, key string) any {
	return body["user"].(map[string]any)[key]
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	status, body := env.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "ok", body["status"])
}

func TestRegisterFlow(t *testing.T) {
	env := newTestEnv(t)

	first := env.register(t, 1, "")
	require.Equal(t, "none", first["referral_status"])
	code := userField(first, "referral_code").(string)
	require.Equal(t, "https://bithrah.com/early-access?ref="+code, userField(first, "referral_link"))

	second := env.register(t, 2, code)
	require.Equal(t, "applied", second["referral_status"])
	require.EqualValues(t, 1, second["referrer"].(map[string]any)["referral_count"])

	unknown := env.register(t, 3, "ZZZZ9999")
	require.Equal(t, "unknown_code", unknown["referral_status"])
	require.Nil(t, unknown["referrer"])
}

func TestRegisterReadsRefFromQuery(t *testing.T) {
	env := newTestEnv(t)
	code := userField(env.register(t, 1, ""), "referral_code").(string)

	status, body := env.do(t, http.MethodPost, "/early-access/register?ref="+code, map[string]any{
		"email":     "q@bithrah.test",
		"username":  "query_user",
		"full_name": "Query User",
	})
	require.Equal(t, http.StatusCreated, status)
	require.Equal(t, "applied", body["referral_status"])
}

func TestRegisterErrors(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, 1, "")

	status, body := env.do(t, http.MethodPost, "/early-access/register", map[string]any{
		"email":     "USER1@bithrah.test",
		"username":  "someone_else",
		"full_name": "Someone",
	})
	require.Equal(t, http.StatusConflict, status)
	require.NotEmpty(t, body["request_id"])

	status, body = env.do(t, http.MethodPost, "/early-access/register", map[string]any{
		"email":    "not-an-email",
		"username": "x",
	})
	require.Equal(t, http.StatusBadRequest, status)
	fields := body["fields"].(map[string]any)
	require.Contains(t, fields, "email")
	require.Contains(t, fields, "username")
	require.Contains(t, fields, "full_name")

	// Valid-looking input that NFKC expands into spaces and past the column width.
	status, body = env.do(t, http.MethodPost, "/early-access/register", map[string]any{
		"email":     "expand@bithrah.test",
		"username":  "ab" + strings.Repeat("\uFDFA", 48),
		"full_name": "Expand",
	})
	require.Equal(t, http.StatusBadRequest, status, body)
	require.Contains(t, body["fields"].(map[string]any), "username")

	var stored int64
	require.NoError(t, env.db.Model(&models.EarlyAccessUser{}).Where("email = ?", "expand@bithrah.test").Count(&stored).Error)
	require.Zero(t, stored)

	status, _ = env.do(t, http.MethodPost, "/early-access/register", map[string]any{
		"email":     "arabic@bithrah.test",
		"username":  "سارة_1",
		"full_name": "سارة",
	})
	require.Equal(t, http.StatusCreated, status)
}

func TestStatsReferralsAndLeaderboard(t *testing.T) {
	env := newTestEnv(t)

	first := env.register(t, 1, "")
	id := int(userField(first, "id").(float64))
	code := userField(first, "referral_code").(string)
	for i := 2; i <= 6; i++ {
		env.register(t, i, code)
	}

	status, stats := env.do(t, http.MethodGet, fmt.Sprintf("/early-access/users/%d/stats", id), nil)
	require.Equal(t, http.StatusOK, status)
	require.EqualValues(t, 5, stats["referral_count"])
	require.EqualValues(t, 1, stats["bonus_years"])
	require.EqualValues(t, 5, stats["referrals_to_next_year"])

	status, refs := env.do(t, http.MethodGet, fmt.Sprintf("/early-access/users/%d/referrals", id), nil)
	require.Equal(t, http.StatusOK, status)
	require.EqualValues(t, 5, refs["total"])

	status, board := env.do(t, http.MethodGet, "/early-access/leaderboard?limit=5", nil)
	require.Equal(t, http.StatusOK, status)
	entries := board["leaderboard"].([]any)
	require.Len(t, entries, 1)
	require.Equal(t, "user1", entries[0].(map[string]any)["user"].(map[string]any)["username"])

	status, card := env.do(t, http.MethodGet, "/early-access/codes/"+code, nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, code, card["referral_code"])

	status, _ = env.do(t, http.MethodGet, "/early-access/leaderboard?limit=500", nil)
	require.Equal(t, http.StatusBadRequest, status)
	status, _ = env.do(t, http.MethodGet, "/early-access/users/abc/stats", nil)
	require.Equal(t, http.StatusBadRequest, status)
	status, _ = env.do(t, http.MethodGet, "/early-access/users/999/stats", nil)
	require.Equal(t, http.StatusNotFound, status)
	status, _ = env.do(t, http.MethodGet, "/early-access/codes/NOPE2345", nil)
	require.Equal(t, http.StatusNotFound, status)
}

func TestBonusPreview(t *testing.T) {
	env := newTestEnv(t)

	status, body := env.do(t, http.MethodGet, "/early-access/bonus?count=9", nil)
	require.Equal(t, http.StatusOK, status)
	require.EqualValues(t, 1, body["bonus_years"])
	require.EqualValues(t, 1, body["referrals_to_next_year"])

	status, _ = env.do(t, http.MethodGet, "/early-access/bonus?count=-1", nil)
	require.Equal(t, http.StatusBadRequest, status)
}

func TestIdeaRoutes(t *testing.T) {
	env := newTestEnv(t)

	status, idea := env.do(t, http.MethodPost, "/ideas", map[string]any{
		"owner_email":  "owner@bithrah.test",
		"title":        "Smart Farming App",
		"description":  "An app that lets farmers rent equipment by the hour.",
		"category":     "agritech",
		"funding_goal": 150000,
	})
	require.Equal(t, http.StatusCreated, status, idea)
	require.Equal(t, "smart-farming-app", idea["slug"])
	require.Equal(t, "submitted", idea["status"])

	status, fetched := env.do(t, http.MethodGet, "/ideas/smart-farming-app", nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, idea["id"], fetched["id"])

	status, evaluated := env.do(t, http.MethodPost, fmt.Sprintf("/ideas/%s/evaluate", idea["id"]), nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "evaluated", evaluated["status"])
	require.EqualValues(t, 81, evaluated["score"])

	status, _ = env.do(t, http.MethodPost, "/ideas", map[string]any{"owner_email": "owner@bithrah.test", "title": "x"})
	require.Equal(t, http.StatusBadRequest, status)
	status, _ = env.do(t, http.MethodGet, "/ideas/missing", nil)
	require.Equal(t, http.StatusNotFound, status)
}

func TestAdminRoutes(t *testing.T) {
	env := newTestEnv(t)

	first := env.register(t, 1, "")
	code := userField(first, "referral_code").(string)
	second := env.register(t, 2, code)
	secondID := int(userField(second, "id").(float64))

	status, _ := env.do(t, http.MethodPost, "/admin/early-access/reconcile", nil)
	require.Equal(t, http.StatusUnauthorized, status)
	status, _ = env.do(t, http.MethodPost, "/admin/early-access/reconcile", nil, "Authorization", "Bearer wrong")
	require.Equal(t, http.StatusUnauthorized, status)

	auth := []string{"Authorization", "Bearer " + adminToken}

	status, report := env.do(t, http.MethodPost, "/admin/early-access/reconcile", nil, auth...)
	require.Equal(t, http.StatusOK, status)
	require.EqualValues(t, 0, report["repaired"])

	status, export := env.do(t, http.MethodPost, "/admin/early-access/export", nil, auth...)
	require.Equal(t, http.StatusCreated, status)
	require.EqualValues(t, 2, export["total"])
	require.Len(t, env.uploader.keys, 1)

	status, _ = env.do(t, http.MethodDelete, fmt.Sprintf("/admin/early-access/users/%d", secondID), nil, auth...)
	require.Equal(t, http.StatusNoContent, status)

	var referrer models.EarlyAccessUser
	require.NoError(t, env.db.Where("referral_code = ?", code).First(&referrer).Error)
	require.Zero(t, referrer.ReferralCount)

	status, _ = env.do(t, http.MethodDelete, fmt.Sprintf("/admin/early-access/users/%d", secondID), nil, auth...)
	require.Equal(t, http.StatusNotFound, status)
}
