package auth

import (
	"fmt"
	"time"

	"github.com/converge-im/realtime/internal/types"
	"github.com/golang-jwt/jwt"
)

const (
	userIdClaim   = "user-id"
	nicknameClaim = "nickname"
	expClaim      = "exp"
)

// TokenVerifier is the identity-verification capability consumed by the
// chat server: token in, authenticated identity out.
type TokenVerifier interface {
	Verify(tokenString string) (types.User, error)
}

type JWTVerifier struct {
	signingKey []byte
}

func NewJWTVerifier(signingKey []byte) *JWTVerifier {
	return &JWTVerifier{signingKey: signingKey}
}

func (v *JWTVerifier) Verify(tokenString string) (types.User, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.signingKey, nil
	})
	if err != nil {
		return types.User{}, fmt.Errorf("parse token: %w", err)
	}

	if !token.Valid {
		return types.User{}, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return types.User{}, fmt.Errorf("invalid token claims")
	}

	userId, ok := claims[userIdClaim].(string)
	if !ok || userId == "" {
		return types.User{}, fmt.Errorf("invalid user id claim")
	}

	nickname, _ := claims[nicknameClaim].(string)

	return types.User{
		Id:       userId,
		Nickname: nickname,
	}, nil
}

// NewToken mints a signed token for a user. Token issuance belongs to
// the auth service; this exists for tests and local tooling.
func NewToken(signingKey []byte, user types.User, exp time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		userIdClaim:   user.Id,
		nicknameClaim: user.Nickname,
		expClaim:      time.Now().Add(exp).Unix(),
	})

	return token.SignedString(signingKey)
}
