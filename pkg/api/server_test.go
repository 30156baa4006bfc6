package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/marmos91/fixgate/pkg/api/auth"
	fixauth "github.com/marmos91/fixgate/pkg/auth"
	"github.com/marmos91/fixgate/pkg/engine"
	"github.com/marmos91/fixgate/pkg/store/memory"
)

func testRouter(t *testing.T) http.Handler {
	t.Helper()

	eng := engine.New(engine.Config{}, engine.Deps{
		Store: memory.New(),
		Auth:  fixauth.AllowAll{},
	})
	require.NoError(t, eng.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = eng.Stop(ctx)
	})

	hash, err := bcrypt.GenerateFromPassword([]byte("hunter22"), bcrypt.MinCost)
	require.NoError(t, err)

	cfg := Config{
		JWTSecret:         "test-secret",
		AdminUser:         "admin",
		AdminPasswordHash: string(hash),
	}
	jwtService := auth.NewJWTService(cfg.JWTSecret, time.Hour)
	return NewRouter(eng, jwtService, cfg)
}

func doJSON(t *testing.T, router http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func login(t *testing.T, router http.Handler) string {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/api/v1/auth/login", "",
		map[string]string{"username": "admin", "password": "hunter22"})
	require.Equal(t, http.StatusOK, rec.Code)

	var env struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.NotEmpty(t, env.Data.Token)
	return env.Data.Token
}

func TestHealthEndpoints(t *testing.T) {
	router := testRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLoginFlow(t *testing.T) {
	router := testRouter(t)

	t.Run("wrong password refused", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/api/v1/auth/login", "",
			map[string]string{"username": "admin", "password": "wrong"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("valid login issues a token", func(t *testing.T) {
		token := login(t, router)
		assert.NotEmpty(t, token)
	})
}

func TestSessionsRequireAuth(t *testing.T) {
	router := testRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/sessions/", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/sessions/", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token := login(t, router)
	rec = doJSON(t, router, http.MethodGet, "/api/v1/sessions/", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSessionNotFound(t *testing.T) {
	router := testRouter(t)
	token := login(t, router)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/sessions/NO:BODY/", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
