package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestJWTRoundTrip(t *testing.T) {
	h := NewJWTHandler(testSecret, time.Minute)

	token, err := h.GenerateAccessToken("line-3", "technician")
	require.NoError(t, err)

	claims, err := h.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "line-3", claims.Subject)
	assert.Equal(t, "technician", claims.Role)

	_, err = h.GenerateAccessToken("x", "root")
	assert.Error(t, err)
}

func TestJWTRejects(t *testing.T) {
	h := NewJWTHandler(testSecret, time.Minute)
	token, err := h.GenerateAccessToken("x", "admin")
	require.NoError(t, err)

	other := NewJWTHandler("another-secret-another-secret-xx", time.Minute)
	_, err = other.ValidateAccessToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := NewJWTHandler(testSecret, -time.Minute)
	old, err := expired.GenerateAccessToken("x", "admin")
	require.NoError(t, err)
	_, err = h.ValidateAccessToken(old)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = h.ValidateAccessToken("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRoleToPermissions(t *testing.T) {
	assert.Equal(t, []Permission{PermOperator}, RoleToPermissions("operator"))
	assert.Equal(t, []Permission{PermOperator}, RoleToPermissions("guest"))
	assert.Contains(t, RoleToPermissions("technician"), PermTechnician)
	assert.NotContains(t, RoleToPermissions("technician"), PermAdmin)
	assert.Contains(t, RoleToPermissions("admin"), PermAdmin)
}

func newRouter(a *Authenticator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(a.AuthMiddleware())
	r.GET("/read", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.PUT("/write", RequirePermission(PermTechnician), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	return r
}

func TestMiddleware(t *testing.T) {
	h := NewJWTHandler(testSecret, time.Minute)
	r := newRouter(NewAuthenticator(h, true))

	operator, err := h.GenerateAccessToken("hmi", "operator")
	require.NoError(t, err)
	technician, err := h.GenerateAccessToken("svc", "technician")
	require.NoError(t, err)

	tests := []struct {
		name   string
		method string
		path   string
		header string
		want   int
	}{
		{"no token", http.MethodGet, "/read", "", http.StatusUnauthorized},
		{"malformed header", http.MethodGet, "/read", "Token abc", http.StatusUnauthorized},
		{"bad token", http.MethodGet, "/read", "Bearer abc", http.StatusUnauthorized},
		{"operator reads", http.MethodGet, "/read", "Bearer " + operator, http.StatusOK},
		{"operator cannot write", http.MethodPut, "/write", "Bearer " + operator, http.StatusForbidden},
		{"technician writes", http.MethodPut, "/write", "Bearer " + technician, http.StatusNoContent},
		{"query token", http.MethodGet, "/read?token=" + operator, "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestMiddlewareDisabled(t *testing.T) {
	r := newRouter(NewAuthenticator(nil, false))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/write", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}
