package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims are the only supported JWT claims shape for this service.
// The registered ID (jti) is what logout revokes.
type Claims struct {
	jwt.RegisteredClaims

	CounselorID string    `json:"counselor_id"`
	Role        string    `json:"role"`
	TokenType   TokenType `json:"token_type"`
}
