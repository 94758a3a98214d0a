package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
)

// Claims bind a bearer token to a copayer's login session.
type Claims struct {
	CopayerID string `json:"copayerId"`
	SessionID string `json:"sessionId"`
	jwt.StandardClaims
}

type AuthService struct {
	JWTSecret []byte
	now       func() time.Time
}

func NewAuthService(secret string) *AuthService {
	return &AuthService{
		JWTSecret: []byte(secret),
		now:       time.Now,
	}
}

func (a *AuthService) GenerateToken(copayerID, sessionID string, ttl time.Duration) (string, error) {
	now := a.now()
	claims := &Claims{
		CopayerID: copayerID,
		SessionID: sessionID,
		StandardClaims: jwt.StandardClaims{
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(ttl).Unix(),
			Subject:   copayerID,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.JWTSecret)
}

func (a *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return a.JWTSecret, nil
	})
	if err != nil || !token.Valid {
		return nil, errors.New("invalid or expired token")
	}
	if claims.CopayerID == "" || claims.SessionID == "" {
		return nil, errors.New("token carries no session")
	}
	return claims, nil
}
