package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt"
)

const (
	userIdClaim = "user-id"
	roleClaim   = "role"
)

// Roles the platform's auth service issues. Service tokens identify
// internal subsystems rather than end users.
const (
	RoleAdmin   = "admin"
	RoleService = "service"
)

// Identity is the verified result of a bearer credential.
type Identity struct {
	Id   int
	Role string
}

// AuthenticationError indicates a missing or invalid credential. It is
// raised at the connection handshake or request-header stage, never inside
// business logic.
type AuthenticationError struct {
	Reason string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}

// TokenVerifier validates an opaque bearer credential and yields a stable
// user identity. The messaging core consumes this boundary; it never
// issues credentials.
type TokenVerifier interface {
	Verify(token string) (Identity, error)
}

// JWTVerifier verifies HS256 tokens issued by the platform's auth service.
type JWTVerifier struct {
	signingKey []byte
}

func NewJWTVerifier(signingKey []byte) *JWTVerifier {
	return &JWTVerifier{signingKey: signingKey}
}

func (v *JWTVerifier) Verify(tokenString string) (Identity, error) {
	if tokenString == "" {
		return Identity{}, &AuthenticationError{Reason: "missing token"}
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.signingKey, nil
	})
	if err != nil {
		return Identity{}, &AuthenticationError{Reason: err.Error()}
	}

	if !token.Valid {
		return Identity{}, &AuthenticationError{Reason: "invalid token"}
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, &AuthenticationError{Reason: "invalid token claims"}
	}

	userId, ok := claims[userIdClaim].(float64)
	if !ok {
		return Identity{}, &AuthenticationError{Reason: "invalid user id claim"}
	}

	role, _ := claims[roleClaim].(string)

	return Identity{Id: int(userId), Role: role}, nil
}
