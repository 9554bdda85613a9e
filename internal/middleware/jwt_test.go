package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/seelix/docqa/internal/pkg/jwt"
)

func TestJWTAuth_ValidToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	secret := []byte("test-secret")
	token, err := jwt.GenerateToken("user-1", []int64{1, 2}, secret, time.Hour)
	require.NoError(t, err)

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/api/v1/documents", nil)
	c.Request.Header.Set("Authorization", "Bearer "+token)

	JWTAuth(secret)(c)
	require.False(t, c.IsAborted())
	require.Equal(t, "user-1", c.GetString(ContextUserIDKey))
	grants, ok := c.Get(ContextFoldersKey)
	require.True(t, ok)
	require.Equal(t, []int64{1, 2}, grants)
}

func TestJWTAuth_Rejects(t *testing.T) {
	gin.SetMode(gin.TestMode)
	secret := []byte("test-secret")
	wrongSecret, err := jwt.GenerateToken("user-1", nil, []byte("other"), time.Hour)
	require.NoError(t, err)
	expired, err := jwt.GenerateToken("user-1", nil, secret, -time.Hour)
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
	}{
		{name: "missing header", header: ""},
		{name: "not bearer", header: "Basic abc"},
		{name: "garbage token", header: "Bearer not-a-token"},
		{name: "wrong secret", header: "Bearer " + wrongSecret},
		{name: "expired", header: "Bearer " + expired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest("GET", "/api/v1/documents", nil)
			if tc.header != "" {
				c.Request.Header.Set("Authorization", tc.header)
			}
			JWTAuth(secret)(c)
			require.True(t, c.IsAborted())
		})
	}
}
