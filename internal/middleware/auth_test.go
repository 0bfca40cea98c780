package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"notification-hub/internal/auth"
)

func newProtectedRouter(roles ...string) (*gin.Engine, *auth.Manager) {
	gin.SetMode(gin.TestMode)
	tokens := auth.NewManager("middleware-test-secret", "hub", "clients", time.Hour)

	r := gin.New()
	r.Use(JWTAuthMiddleware(tokens))
	handlers := []gin.HandlerFunc{}
	if len(roles) > 0 {
		handlers = append(handlers, RequireRole(roles...))
	}
	handlers = append(handlers, func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("role"))
	})
	r.GET("/protected", handlers...)
	return r, tokens
}

func TestJWTAuthMiddleware_Success(t *testing.T) {
	r, tokens := newProtectedRouter()

	token, err := tokens.GenerateToken("user-1", "alice", "admin")
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "admin", w.Body.String())
}

func TestJWTAuthMiddleware_QueryToken(t *testing.T) {
	r, tokens := newProtectedRouter()

	token, err := tokens.GenerateToken("user-1", "alice", "member")
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/protected?token="+token, nil)
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestJWTAuthMiddleware_MissingHeader(t *testing.T) {
	r, _ := newProtectedRouter()

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireRole_Forbidden(t *testing.T) {
	r, tokens := newProtectedRouter("admin", "publisher")

	token, err := tokens.GenerateToken("user-1", "alice", "member")
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusForbidden, w.Code)
}
