package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Roles carried by arena tokens. Arena tokens drive predictions; operator
// tokens additionally open the monitor stream.
const (
	RoleArena    = "arena"
	RoleOperator = "operator"
)

type Claims struct {
	ArenaID string `json:"arenaId"`
	Role    string `json:"role"`
	jwt.RegisteredClaims
}

func GenerateToken(secret, arenaID, role string, duration time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		ArenaID: arenaID,
		Role:    role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(duration)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func ParseToken(secret, tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}
