package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"lgtmagic/internal/config"
	"lgtmagic/internal/domain"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("AWS_CONFIG_FILE", "/nonexistent")
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", "/nonexistent")

	s3 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(s3.Close)

	return &config.Config{
		S3: config.S3Config{
			Endpoint:        s3.URL,
			AccessKeyID:     "test",
			SecretAccessKey: "test",
			BucketName:      "lgtm-images",
			Region:          "us-east-1",
			PublicBaseURL:   "https://cdn.example.com/lgtm-images",
		},
		Quota: config.QuotaConfig{
			Backend:    config.QuotaBackendMemory,
			DailyLimit: 3,
			Timezone:   "UTC",
		},
		Admin: config.AdminConfig{Password: "hunter2", SessionSecret: "key", SessionTTL: domain.DefaultAdminTTL},
		App: config.AppConfig{
			MaxUploadSize: domain.DefaultMaxUpload,
			OutputFormat:  domain.MIMEWebP,
			OutputQuality: domain.DefaultQuality,
			GalleryLimit:  10,
		},
	}
}

func TestNew_MemoryBackend(t *testing.T) {
	cfg := testConfig(t)

	a, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, 3, a.Services.Quota.Limit())
	assert.Equal(t, "https://cdn.example.com/lgtm-images/x.webp", a.Store.PublicURL("x.webp"))

	ok, err := a.Services.Admin.Verify(context.Background(), "hunter2")
	require.NoError(t, err)
	assert.True(t, ok)

	status, err := a.Services.Quota.Check(context.Background(), domain.Caller{Identity: "203.0.113.1"})
	require.NoError(t, err)
	assert.Equal(t, 3, status.Remaining)
}

func TestNew_RedisBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.Quota.Backend = config.QuotaBackendRedis
	cfg.Quota.RedisURL = "redis://" + mr.Addr() + "/0"

	a, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	caller := domain.Caller{Identity: "203.0.113.1"}
	n, err := a.Services.Quota.Increment(context.Background(), caller)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, mr.Keys(), 1)
}

func TestNew_RedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := testConfig(t)
	cfg.Quota.Backend = config.QuotaBackendRedis
	cfg.Quota.RedisURL = "redis://" + addr + "/0"

	_, err := New(context.Background(), cfg, zap.NewNop())
	assert.ErrorContains(t, err, "connect redis")
}

func TestNew_UnknownBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Quota.Backend = "sqlite"

	_, err := New(context.Background(), cfg, zap.NewNop())
	assert.Error(t, err)
}
