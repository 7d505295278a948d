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
)

const testSecret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func whoami(c *gin.Context) {
	id, ok := GetUserID(c)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"user_id": ""})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": id.String(), "username": GetUsername(c)})
}

func request(r http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestTokenRoundTrip(t *testing.T) {
	id := uuid.New()
	token, err := GenerateToken(id.String(), "alice", testSecret, time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, id.String(), claims.UserID)
	assert.Equal(t, "alice", claims.Username)

	_, err = ParseToken(token, "other-secret")
	assert.Error(t, err)

	expired, err := GenerateToken(id.String(), "alice", testSecret, -time.Minute)
	require.NoError(t, err)
	_, err = ParseToken(expired, testSecret)
	assert.Error(t, err)

	bogus, err := GenerateToken("not-a-uuid", "alice", testSecret, time.Hour)
	require.NoError(t, err)
	_, err = ParseToken(bogus, testSecret)
	assert.Error(t, err)
}

func TestJWTAuthRequiresToken(t *testing.T) {
	r := gin.New()
	r.GET("/", NewJWTAuth(&JWTConfig{Secret: testSecret}), whoami)

	assert.Equal(t, http.StatusUnauthorized, request(r, "").Code)
	assert.Equal(t, http.StatusUnauthorized, request(r, "garbage").Code)

	id := uuid.New()
	token, err := GenerateToken(id.String(), "alice", testSecret, time.Hour)
	require.NoError(t, err)

	w := request(r, token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), id.String())
	assert.Contains(t, w.Body.String(), "alice")
}

func TestOptionalJWTAuthAllowsAnonymous(t *testing.T) {
	r := gin.New()
	r.GET("/", OptionalJWTAuth(&JWTConfig{Secret: testSecret}), whoami)

	w := request(r, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user_id":""}`, w.Body.String())

	w = request(r, "garbage")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user_id":""}`, w.Body.String())

	id := uuid.New()
	token, err := GenerateToken(id.String(), "bob", testSecret, time.Hour)
	require.NoError(t, err)
	w = request(r, token)
	assert.Contains(t, w.Body.String(), id.String())
}

func TestRateLimitRejectsBurst(t *testing.T) {
	require.NoError(t, InitSentinel("short-video-test", t.TempDir()))

	limit, err := NewRateLimit("test-upload", 1)
	require.NoError(t, err)

	r := gin.New()
	r.GET("/", limit, func(c *gin.Context) { c.Status(http.StatusOK) })

	rejected := 0
	for i := 0; i < 10; i++ {
		if request(r, "").Code == http.StatusTooManyRequests {
			rejected++
		}
	}
	assert.Greater(t, rejected, 0)
}

func TestRateLimitDisabled(t *testing.T) {
	limit, err := NewRateLimit("unused", 0)
	require.NoError(t, err)

	r := gin.New()
	r.GET("/", limit, func(c *gin.Context) { c.Status(http.StatusOK) })
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, request(r, "").Code)
	}
}
