package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"lgtmagic/internal/domain"
	"lgtmagic/internal/handler"
	"lgtmagic/internal/repository"
	"lgtmagic/internal/service"
)

type memStore struct {
	objects []domain.StoredObject
	deleted []string
}

func (m *memStore) UploadFile(context.Context, string, []byte, string) error { return nil }

func (m *memStore) ListFiles(context.Context, string) ([]domain.StoredObject, error) {
	return m.objects, nil
}

func (m *memStore) DeleteFile(_ context.Context, key string) error {
	m.deleted = append(m.deleted, key)
	return nil
}

func (m *memStore) PublicURL(key string) string {
	return repository.JoinPublicURL("https://cdn.example.com/lgtm", key)
}

type staticIP struct{}

func (staticIP) PublicIP(context.Context) (string, error) { return "203.0.113.9", nil }

func newTestRouter(t *testing.T, opts RouterOptions) (*gin.Engine, *memStore, repository.QuotaRepository) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := zap.NewNop()

	admin, err := service.NewAdminService("hunter2", "key", 30*time.Minute, nil, log)
	require.NoError(t, err)

	quotaRepo := repository.NewMemoryQuotaRepository()
	store := &memStore{objects: []domain.StoredObject{{Name: "a.webp", CreatedAt: time.Now()}}}
	svc := handler.Services{
		Gallery:  service.NewGalleryService(store, 100, log),
		Quota:    service.NewQuotaService(quotaRepo, 5, nil, log),
		Admin:    admin,
		Identity: service.NewIdentityResolver(staticIP{}, time.UTC, log),
	}
	h := handler.NewHandler(svc, 1<<20, false, log)
	return NewRouter(h, svc, opts, log), store, quotaRepo
}

func login(t *testing.T, r *gin.Engine) *http.Cookie {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/admin/session", bytes.NewBufferString(`{"password":"hunter2"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	for _, c := range w.Result().Cookies() {
		if c.Name == handler.AdminCookieName {
			return c
		}
	}
	t.Fatal("no session cookie")
	return nil
}

func TestRouter_Health(t *testing.T) {
	r, _, _ := newTestRouter(t, RouterOptions{LoginPerMinute: 5})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"OK"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))
}

func TestRouter_PropagatesRequestID(t *testing.T) {
	r, _, _ := newTestRouter(t, RouterOptions{LoginPerMinute: 5})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "req-42")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "req-42", w.Header().Get(requestIDHeader))
}

func TestRouter_Gallery(t *testing.T) {
	r, _, _ := newTestRouter(t, RouterOptions{LoginPerMinute: 5})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/images", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Images []domain.GalleryItem `json:"images"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Images, 1)
	assert.Equal(t, "https://cdn.example.com/lgtm/a.webp", resp.Images[0].URL)
}

func TestRouter_DeleteRequiresAdmin(t *testing.T) {
	r, store, _ := newTestRouter(t, RouterOptions{LoginPerMinute: 5})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/images/a.webp", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, store.deleted)

	cookie := login(t, r)
	req := httptest.NewRequest(http.MethodDelete, "/api/images/a.webp", nil)
	req.AddCookie(cookie)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"a.webp"}, store.deleted)

	req = httptest.NewRequest(http.MethodDelete, "/api/images?url=https%3A%2F%2Fcdn.example.com%2Flgtm%2Fb.webp", nil)
	req.AddCookie(cookie)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"a.webp", "b.webp"}, store.deleted)
}

func TestRouter_LoginIsRateLimited(t *testing.T) {
	r, _, _ := newTestRouter(t, RouterOptions{LoginPerMinute: 2})

	codes := make([]int, 0, 3)
	for range 3 {
		req := httptest.NewRequest(http.MethodPost, "/api/admin/session", bytes.NewBufferString(`{"password":"wrong"}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
		if w.Code == http.StatusTooManyRequests {
			assert.NotEmpty(t, w.Header().Get("Retry-After"))
		}
	}

	assert.Equal(t, []int{http.StatusUnauthorized, http.StatusUnauthorized, http.StatusTooManyRequests}, codes)
}

func TestRouter_Metrics(t *testing.T) {
	r, _, _ := newTestRouter(t, RouterOptions{LoginPerMinute: 5})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestRateLimiter_DropsIdleEntries(t *testing.T) {
	rl := NewRateLimiter(rate.Every(time.Minute), 1)
	now := time.Now()

	first := rl.getLimiter("198.51.100.1", now)
	assert.True(t, first.Allow())
	assert.False(t, rl.getLimiter("198.51.100.1", now).Allow())

	later := now.Add(10 * time.Minute)
	rl.getLimiter("198.51.100.2", later)
	assert.Len(t, rl.limiters, 1)
	assert.True(t, rl.getLimiter("198.51.100.1", later).Allow())
}

func loginAttempt(r *gin.Engine, remoteAddr, forwardedFor string) int {
	req := httptest.NewRequest(http.MethodPost, "/api/admin/session", bytes.NewBufferString(`{"password":"wrong"}`))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = remoteAddr
	if forwardedFor != "" {
		req.Header.Set("X-Forwarded-For", forwardedFor)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestRouter_IgnoresForwardedForFromUntrustedPeers(t *testing.T) {
	r, _, quotaRepo := newTestRouter(t, RouterOptions{LoginPerMinute: 2})

	codes := make([]int, 0, 6)
	for i := range 6 {
		codes = append(codes, loginAttempt(r, "8.8.8.8:4000", fmt.Sprintf("198.51.100.%d", i+1)))
	}
	assert.Equal(t, []int{
		http.StatusUnauthorized, http.StatusUnauthorized,
		http.StatusTooManyRequests, http.StatusTooManyRequests,
		http.StatusTooManyRequests, http.StatusTooManyRequests,
	}, codes)

	day := time.Now().UTC().Format("2006-01-02")
	_, err := quotaRepo.Increment(context.Background(), "8.8.8.8", day)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/quota", nil)
	req.RemoteAddr = "8.8.8.8:4000"
	req.Header.Set("X-Forwarded-For", "198.51.100.77")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var status domain.QuotaStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, 1, status.Count)
}

func TestRouter_TrustedProxyForwardsClientIP(t *testing.T) {
	r, _, _ := newTestRouter(t, RouterOptions{LoginPerMinute: 1, TrustedProxies: []string{"10.0.0.0/8"}})

	assert.Equal(t, http.StatusUnauthorized, loginAttempt(r, "10.0.0.5:4000", "198.51.100.1"))
	assert.Equal(t, http.StatusUnauthorized, loginAttempt(r, "10.0.0.5:4000", "198.51.100.2"))
	assert.Equal(t, http.StatusTooManyRequests, loginAttempt(r, "10.0.0.5:4000", "198.51.100.1"))
}

func TestRouter_InvalidTrustedProxiesTrustNobody(t *testing.T) {
	r, _, _ := newTestRouter(t, RouterOptions{LoginPerMinute: 1, TrustedProxies: []string{"not-a-cidr"}})

	assert.Equal(t, http.StatusUnauthorized, loginAttempt(r, "8.8.8.8:4000", "198.51.100.1"))
	assert.Equal(t, http.StatusTooManyRequests, loginAttempt(r, "8.8.8.8:4000", "198.51.100.2"))
}
