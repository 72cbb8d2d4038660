package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainfund/backend/internal/utils"
)

const testJWTSecret = "test-signing-secret"

func setupAuthRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.GET("/protected", AuthMiddleware(testJWTSecret), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	router.GET("/admin", AuthMiddleware(testJWTSecret), AdminMiddleware(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return router
}

func doRequest(router *gin.Engine, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	router := setupAuthRouter()

	t.Run("missing token is rejected", func(t *testing.T) {
		w := doRequest(router, "/protected", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("garbage token is rejected", func(t *testing.T) {
		w := doRequest(router, "/protected", "not-a-jwt")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("valid token is accepted", func(t *testing.T) {
		token, err := utils.GenerateToken(uuid.New(), "ops@example.com", false, time.Hour, testJWTSecret)
		require.NoError(t, err)

		w := doRequest(router, "/protected", token)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("token signed with another secret is rejected", func(t *testing.T) {
		token, err := utils.GenerateToken(uuid.New(), "ops@example.com", false, time.Hour, "other-secret")
		require.NoError(t, err)

		w := doRequest(router, "/protected", token)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("expired token is rejected", func(t *testing.T) {
		token, err := utils.GenerateToken(uuid.New(), "ops@example.com", false, -time.Minute, testJWTSecret)
		require.NoError(t, err)

		w := doRequest(router, "/protected", token)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestAdminMiddleware(t *testing.T) {
	router := setupAuthRouter()

	t.Run("non-admin token is forbidden", func(t *testing.T) {
		token, err := utils.GenerateToken(uuid.New(), "ops@example.com", false, time.Hour, testJWTSecret)
		require.NoError(t, err)

		w := doRequest(router, "/admin", token)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("admin token is accepted", func(t *testing.T) {
		token, err := utils.GenerateToken(uuid.New(), "ops@example.com", true, time.Hour, testJWTSecret)
		require.NoError(t, err)

		w := doRequest(router, "/admin", token)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}
