package service_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vultisig/vultiwallet/service"
)

func TestGenerateToken(t *testing.T) {
	testCases := []struct {
		name   string
		secret string
	}{
		{name: "Valid secret", secret: "secret-key-for-testing"},
		{name: "Empty secret", secret: ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			authService := service.NewAuthService(tc.secret)
			token, err := authService.GenerateToken("copayer", "session", time.Hour)
			require.NoError(t, err)
			assert.NotEmpty(t, token)

			claims, err := authService.ValidateToken(token)
			require.NoError(t, err)
			assert.Equal(t, "copayer", claims.CopayerID)
			assert.Equal(t, "session", claims.SessionID)
		})
	}
}

func TestValidateToken(t *testing.T) {
	secret := "test-secret-key"
	wrongSecret := "wrong-secret-key"

	signed := func(claims *service.Claims) string {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
		tokenString, _ := token.SignedString([]byte(secret))
		return tokenString
	}

	testCases := []struct {
		name        string
		setupToken  func() string
		secret      string
		shouldError bool
	}{
		{
			name: "Valid token",
			setupToken: func() string {
				token, _ := service.NewAuthService(secret).GenerateToken("c1", "s1", time.Hour)
				return token
			},
			secret:      secret,
			shouldError: false,
		},
		{
			name: "Expired token",
			setupToken: func() string {
				return signed(&service.Claims{
					CopayerID: "c1",
					SessionID: "s1",
					StandardClaims: jwt.StandardClaims{
						ExpiresAt: time.Now().Add(-1 * time.Hour).Unix(),
					},
				})
			},
			secret:      secret,
			shouldError: true,
		},
		{
			name: "No session",
			setupToken: func() string {
				return signed(&service.Claims{
					CopayerID: "c1",
					StandardClaims: jwt.StandardClaims{
						ExpiresAt: time.Now().Add(time.Hour).Unix(),
					},
				})
			},
			secret:      secret,
			shouldError: true,
		},
		{
			name: "Invalid signing method",
			setupToken: func() string {
				claims := &service.Claims{
					CopayerID: "c1",
					SessionID: "s1",
					StandardClaims: jwt.StandardClaims{
						ExpiresAt: time.Now().Add(24 * time.Hour).Unix(),
					},
				}
				token := jwt.NewWithClaims(jwt.SigningMethodNone, claims)
				tokenString, _ := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
				return tokenString
			},
			secret:      secret,
			shouldError: true,
		},
		{
			name: "Wrong secret",
			setupToken: func() string {
				token, _ := service.NewAuthService(secret).GenerateToken("c1", "s1", time.Hour)
				return token
			},
			secret:      wrongSecret,
			shouldError: true,
		},
		{
			name: "Malformed token",
			setupToken: func() string {
				return "not-a-valid-token"
			},
			secret:      secret,
			shouldError: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tokenString := tc.setupToken()
			authService := service.NewAuthService(tc.secret)

			claims, err := authService.ValidateToken(tokenString)

			if tc.shouldError {
				assert.Error(t, err)
				assert.Nil(t, claims)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, claims)
				assert.True(t, claims.ExpiresAt > time.Now().Unix())
			}
		})
	}
}
