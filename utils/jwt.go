package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"taskflow/config"
	"taskflow/models"
)

// Claims represents the JWT claims
type Claims struct {
	UserID       uint        `json:"user_id"`
	Role         models.Role `json:"role"`
	TokenVersion int         `json:"token_version"` // must match users.token_version
	jwt.RegisteredClaims
}

// GenerateJWTToken issues an access token for the user, valid for JWT_EXPIRY.
func GenerateJWTToken(user *models.User) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(config.AppConfig.JWTExpiry)
	claims := &Claims{
		UserID:       user.ID,
		Role:         user.Role,
		TokenVersion: user.TokenVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(config.AppConfig.JWTSecret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ParseJWTToken verifies the signature and expiry and returns the claims.
func ParseJWTToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(config.AppConfig.JWTSecret), nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}
