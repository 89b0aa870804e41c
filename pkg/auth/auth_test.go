package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPair(t *testing.T, expiry time.Duration) (*JWTGenerator, *JWTValidator) {
	t.Helper()
	gen, err := NewJWTGenerator(JWTGeneratorConfig{
		SigningMethod: "HS256",
		SecretKey:     "test-secret",
		Issuer:        "mindmap-test",
		Audience:      []string{"mindmap"},
		ExpiryTime:    expiry,
	})
	require.NoError(t, err)
	val, err := NewJWTValidator(JWTConfig{
		SigningMethod: "HS256",
		SecretKey:     "test-secret",
		Issuer:        "mindmap-test",
		Audience:      []string{"mindmap"},
	})
	require.NoError(t, err)
	return gen, val
}

func TestJWT_RoundTrip(t *testing.T) {
	gen, val := newPair(t, time.Hour)

	token, err := gen.GenerateToken("user-1", "Ada", "ada@example.com")
	require.NoError(t, err)

	claims, err := val.ValidateToken("Bearer " + token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "Ada", claims.Name)
	assert.Equal(t, "ada@example.com", claims.Email)
}

func TestJWT_Rejections(t *testing.T) {
	_, val := newPair(t, time.Hour)

	t.Run("expired", func(t *testing.T) {
		expired, _ := newPair(t, -time.Minute)
		token, err := expired.GenerateToken("user-1", "", "")
		require.NoError(t, err)
		_, err = val.ValidateToken(token)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other, err := NewJWTGenerator(JWTGeneratorConfig{SecretKey: "other", Issuer: "mindmap-test", Audience: []string{"mindmap"}})
		require.NoError(t, err)
		token, err := other.GenerateToken("user-1", "", "")
		require.NoError(t, err)
		_, err = val.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("wrong audience", func(t *testing.T) {
		other, err := NewJWTGenerator(JWTGeneratorConfig{SecretKey: "test-secret", Issuer: "mindmap-test", Audience: []string{"elsewhere"}})
		require.NoError(t, err)
		token, err := other.GenerateToken("user-1", "", "")
		require.NoError(t, err)
		_, err = val.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidClaims)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := val.ValidateToken("Bearer ")
		assert.ErrorIs(t, err, ErrMissingToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := val.ValidateToken("not-a-jwt")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestExtractToken(t *testing.T) {
	tests := []struct {
		name  string
		setup func(r *http.Request)
		want  string
	}{
		{"header", func(r *http.Request) { r.Header.Set("Authorization", "Bearer abc") }, "abc"},
		{"non-bearer header", func(r *http.Request) { r.Header.Set("Authorization", "Basic abc") }, ""},
		{"query", func(r *http.Request) { r.URL.RawQuery = "token=q" }, "q"},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "auth_token", Value: "c"}) }, "c"},
		{"none", func(r *http.Request) {}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			tt.setup(r)
			assert.Equal(t, tt.want, ExtractToken(r))
		})
	}
}

func TestTokenBucketLimiter(t *testing.T) {
	l := NewTokenBucketLimiter(2, time.Second)
	defer l.Stop()

	now := time.Unix(1700000000, 0)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("1.2.3.4"))
	assert.True(t, l.Allow("1.2.3.4"))
	assert.False(t, l.Allow("1.2.3.4"))
	assert.True(t, l.Allow("5.6.7.8"), "buckets are per key")

	now = now.Add(1500 * time.Millisecond)
	assert.True(t, l.Allow("1.2.3.4"))
	assert.False(t, l.Allow("1.2.3.4"))

	l.Reset("1.2.3.4")
	assert.True(t, l.Allow("1.2.3.4"))
}
