package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims identify a terminal or device. Customer tokens are printed on a
// table's QR code and carry that table's number; staff tokens leave it zero.
type Claims struct {
	Role        string `json:"role"`
	TableNumber int32  `json:"table_number,omitempty"`
	jwt.RegisteredClaims
}

func GenerateToken(secret, subject, role string, tableNumber int32, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role:        role,
		TableNumber: tableNumber,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func ValidateToken(secret, tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.Role == "" {
		return nil, fmt.Errorf("token has no role")
	}
	return claims, nil
}
