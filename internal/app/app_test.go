package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/ellenzeng3/lda-filing-bot/internal/auth"
	"github.com/ellenzeng3/lda-filing-bot/internal/config"
	"github.com/ellenzeng3/lda-filing-bot/internal/domain"
	"github.com/ellenzeng3/lda-filing-bot/internal/notify"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
	cfg.Store.Driver = "memory"
	cfg.Auth.JWTSecret = "test-secret"
	return cfg
}

func newTestApp(t *testing.T, cfg config.Config) *App {
	t.Helper()
	logger, _ := test.NewNullLogger()
	a, err := New(context.Background(), cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestNewWithoutNotifiers(t *testing.T) {
	a := newTestApp(t, testConfig(t))
	require.Nil(t, a.Notifier)
	require.Nil(t, a.SlackNotifier())
	require.NotNil(t, a.Runner)
}

func notifierNames(t *testing.T, n notify.Notifier) []string {
	t.Helper()
	multi, ok := n.(notify.Multi)
	require.True(t, ok, "notifier is %T", n)
	var names []string
	for _, inner := range multi {
		named, ok := inner.(notify.Named)
		require.True(t, ok)
		names = append(names, named.Name())
	}
	return names
}

func TestSlackOnlyPostsDirectly(t *testing.T) {
	cfg := testConfig(t)
	cfg.Slack.Token = "xoxb-test"
	cfg.Slack.SigningSecret = "shh"

	a := newTestApp(t, cfg)
	require.Equal(t, []string{"slack"}, notifierNames(t, a.Notifier))
}

func TestKafkaLeavesSlackToRelay(t *testing.T) {
	cfg := testConfig(t)
	cfg.Slack.Token = "xoxb-test"
	cfg.Slack.SigningSecret = "shh"
	cfg.Kafka.Brokers = []string{"localhost:9092"}

	a := newTestApp(t, cfg)
	require.NotNil(t, a.SlackNotifier())
	names := notifierNames(t, a.Notifier)
	require.Equal(t, []string{"kafka"}, names)
	require.NotContains(t, names, "slack")
}

func TestNewRejectsMissingWatchlist(t *testing.T) {
	cfg := testConfig(t)
	cfg.WatchlistPath = filepath.Join(t.TempDir(), "missing.yaml")
	logger, _ := test.NewNullLogger()
	_, err := New(context.Background(), cfg, logger)
	require.Error(t, err)
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	_, err := OpenStore(ctx, config.StoreConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "nope", "filings.db")})
	require.ErrorIs(t, err, domain.ErrStorageUnavailable)

	_, err = OpenStore(ctx, config.StoreConfig{Driver: "cassandra"})
	require.ErrorIs(t, err, domain.ErrStorageUnavailable)

	store, err := OpenStore(ctx, config.StoreConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "filings.db")})
	require.NoError(t, err)
	require.NoError(t, store.Close())
}

func TestHandlerAuthentication(t *testing.T) {
	cfg := testConfig(t)
	a := newTestApp(t, cfg)
	h, wait := a.Handler()
	defer wait()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/filings?period=first_quarter&year=2025", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := auth.Issue(auth.Config{Secret: cfg.Auth.JWTSecret, Issuer: cfg.Auth.JWTIssuer}, "ops",
		[]string{auth.ScopeFilingsRead}, time.Hour, time.Now())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/v1/filings?period=first_quarter&year=2025", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestSchedulerDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Schedule.Enabled = false
	s, err := newTestApp(t, cfg).Scheduler()
	require.NoError(t, err)
	require.Nil(t, s)

	cfg.Schedule.Enabled = true
	s, err = newTestApp(t, cfg).Scheduler()
	require.NoError(t, err)
	require.NotNil(t, s)
}
