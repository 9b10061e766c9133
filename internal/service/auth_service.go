package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"wellpath/internal/model"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

// tokenTTL bounds subject tokens issued by Login
const tokenTTL = 24 * time.Hour

// AuthService issues and checks subject tokens. The subject is the interview
// owner; it is derived from the username so it is stable across logins.
type AuthService struct {
	username  string
	password  string
	jwtSecret []byte
}

// NewAuthService creates a new auth service
func NewAuthService(username, password, secret string) *AuthService {
	return &AuthService{
		username:  username,
		password:  password,
		jwtSecret: []byte(secret),
	}
}

// OwnerIDFor maps a username to its owner id
func OwnerIDFor(username string) string {
	return "owner_" + uuid.NewSHA1(uuid.NameSpaceOID, []byte(username)).String()[:8]
}

// Login validates credentials and returns a subject token
func (s *AuthService) Login(username, password string) (*model.LoginResponse, error) {
	if username == "" || username != s.username || password != s.password {
		return nil, ErrInvalidCredentials
	}

	ownerID := OwnerIDFor(username)
	token, err := s.IssueToken(ownerID, tokenTTL)
	if err != nil {
		return nil, err
	}

	return &model.LoginResponse{
		Token:   token,
		OwnerID: ownerID,
	}, nil
}

// IssueToken signs a token for ownerID. A zero ttl issues a token without expiry.
func (s *AuthService) IssueToken(ownerID string, ttl time.Duration) (string, error) {
	if ownerID == "" {
		return "", fmt.Errorf("owner id is required")
	}
	now := time.Now()
	claims := &model.SubjectClaims{
		OwnerID: ownerID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  ownerID,
			IssuedAt: jwt.NewNumericDate(now),
			ID:       uuid.NewString(),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// ValidateToken validates a subject JWT and returns claims
func (s *AuthService) ValidateToken(tokenString string) (*model.SubjectClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &model.SubjectClaims{}, func(token *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*model.SubjectClaims)
	if !ok || !token.Valid || claims.OwnerID == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
