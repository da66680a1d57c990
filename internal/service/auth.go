package service

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sofragment/fragment/internal/apperr"
	"github.com/sofragment/fragment/internal/model"
)

// TokenTTL is how long an issued token stays valid.
const TokenTTL = 24 * time.Hour

const tokenIssuer = "fragment"

// Token validation failures. All of them surface as AuthenticationError.
var (
	ErrTokenMissing = apperr.Authentication("Authentication token is required")
	ErrTokenInvalid = apperr.Authentication("Invalid token")
	ErrTokenExpired = apperr.Authentication("Token expired")
)

// Claims is the payload carried by a session token. Subject holds the user ID.
type Claims struct {
	Email string     `json:"email"`
	Role  model.Role `json:"role"`
	jwt.RegisteredClaims
}

// UserID returns the subject of the token.
func (c *Claims) UserID() string {
	return c.Subject
}

// AuthService issues and verifies HS256 session tokens.
type AuthService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewAuthService(jwtSecret string) *AuthService {
	return &AuthService{
		secret: []byte(jwtSecret),
		ttl:    TokenTTL,
		now:    time.Now,
	}
}

// IssueToken creates a signed token for u valid for TokenTTL.
func (s *AuthService) IssueToken(u *model.User) (string, error) {
	now := s.now()
	claims := Claims{
		Email: u.Email,
		Role:  u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			Issuer:    tokenIssuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", apperr.Internal("Failed to issue token", err)
	}
	return signed, nil
}

// ValidateToken verifies the signature, issuer and expiry of tokenStr.
func (s *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	if tokenStr == "" {
		return nil, ErrTokenMissing
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	},
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if !token.Valid || claims.Subject == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
