package cmd

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-record-locks/app/controller"
	"github.com/vibast-solutions/ms-go-record-locks/app/lock"
	"github.com/vibast-solutions/ms-go-record-locks/app/middleware"
	"github.com/vibast-solutions/ms-go-record-locks/app/repository"
	"github.com/vibast-solutions/ms-go-record-locks/app/service"
	"github.com/vibast-solutions/ms-go-record-locks/config"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newLockTestServer(t *testing.T, cfg *config.Config) *http.Server {
	t.Helper()
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	store, err := buildLockStore(cfg, nil, quietLogger())
	if err != nil {
		t.Fatalf("buildLockStore: %v", err)
	}
	lockService := service.NewLockService(store, repository.NewRecordRepository(db), nil, nil, quietLogger())

	identityMW, _, err := buildIdentity(cfg)
	if err != nil {
		t.Fatalf("buildIdentity: %v", err)
	}
	e := setupHTTPServer(controller.NewLockController(lockService, quietLogger()), identityMW, middleware.NewHolderLimiter(0, 0))
	return &http.Server{Handler: e}
}

func tokenConfig() *config.Config {
	return &config.Config{
		LockBackend: config.LockBackendMemory,
		LockLease:   lock.DefaultLease,
		AuthMode:    config.AuthModeTokens,
		AuthTokens:  "tok-a=alice,tok-ops=ops:admin",
	}
}

func TestSetupHTTPServerHealthRouteIsPublic(t *testing.T) {
	server := newLockTestServer(t, tokenConfig())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	server.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Fatalf("unexpected health payload: %s", rec.Body.String())
	}
}

func TestSetupHTTPServerLockRoutesRequireToken(t *testing.T) {
	server := newLockTestServer(t, tokenConfig())

	req := httptest.NewRequest(http.MethodGet, "/records/1/lock/status", nil)
	rec := httptest.NewRecorder()
	server.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/records/1/lock/status", nil)
	req.Header.Set("Authorization", "Bearer tok-a")
	rec = httptest.NewRecorder()
	server.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"is_locked":false`) {
		t.Fatalf("unexpected status payload: %s", rec.Body.String())
	}
}

func TestSetupHTTPServerGatewayMode(t *testing.T) {
	cfg := tokenConfig()
	cfg.AuthMode = config.AuthModeGateway
	server := newLockTestServer(t, cfg)

	req := httptest.NewRequest(http.MethodDelete, "/records/1/lock", nil)
	req.Header.Set(middleware.HeaderUserID, "alice")
	rec := httptest.NewRecorder()
	server.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
}

func TestBuildIdentityRejectsEmptyTokens(t *testing.T) {
	cfg := tokenConfig()
	cfg.AuthTokens = ""
	if _, _, err := buildIdentity(cfg); err == nil {
		t.Fatalf("expected error for empty token table")
	}

	cfg.AuthTokens = "broken"
	if _, _, err := buildIdentity(cfg); err == nil {
		t.Fatalf("expected error for malformed token table")
	}
}

func TestBuildLockStoreRejectsUnknownBackend(t *testing.T) {
	cfg := tokenConfig()
	cfg.LockBackend = "zookeeper"
	if _, err := buildLockStore(cfg, nil, quietLogger()); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}
