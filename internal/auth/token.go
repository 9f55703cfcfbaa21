package auth

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// TokenManager handles issuing and validating JWT tokens.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenManager builds a new manager.
func NewTokenManager(secret string, ttlMinutes int) *TokenManager {
	if ttlMinutes <= 0 {
		ttlMinutes = 60
	}
	return &TokenManager{secret: []byte(secret), ttl: time.Duration(ttlMinutes) * time.Minute, now: time.Now}
}

// Claims describes JWT payload.
type Claims struct {
	Subject domain.SubjectType `json:"subject"`
	Role    *domain.StaffRole  `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// GenerateToken builds and signs a JWT for the subject.
func (tm *TokenManager) GenerateToken(subjectID string, subject domain.SubjectType, role *domain.StaffRole) (string, time.Time, error) {
	if subjectID == "" {
		return "", time.Time{}, errors.New("subject id is required")
	}
	if subject != domain.SubjectTypeClient && subject != domain.SubjectTypeStaff {
		return "", time.Time{}, errors.New("subject must be CLIENT or STAFF")
	}
	if subject == domain.SubjectTypeStaff && (role == nil || !role.Valid()) {
		return "", time.Time{}, errors.New("staff tokens need a valid role")
	}
	if subject == domain.SubjectTypeClient {
		role = nil
	}

	issuedAt := tm.now()
	expiresAt := issuedAt.Add(tm.ttl)
	claims := &Claims{
		Subject: subject,
		Role:    role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(tm.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, expiresAt, nil
}

// ParseToken validates and returns claims.
func (tm *TokenManager) ParseToken(tokenStr string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return tm.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// Actor converts verified claims into the actor the services trust.
func (c *Claims) Actor() (domain.Actor, error) {
	if c.RegisteredClaims.Subject == "" {
		return domain.Actor{}, errors.New("token has no subject")
	}
	switch c.Subject {
	case domain.SubjectTypeClient:
		return domain.Actor{Type: domain.SubjectTypeClient, ID: c.RegisteredClaims.Subject}, nil
	case domain.SubjectTypeStaff:
		if c.Role == nil || !c.Role.Valid() {
			return domain.Actor{}, errors.New("staff token without a valid role")
		}
		role := *c.Role
		return domain.Actor{Type: domain.SubjectTypeStaff, ID: c.RegisteredClaims.Subject, Role: &role}, nil
	}
	return domain.Actor{}, errors.New("unknown subject")
}
