package auth

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/chikezeogu/fundflow/internal/domain"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims carried in session tokens. Subject holds the member id.
type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Manager signs and verifies HMAC session tokens.
type Manager struct {
	secret []byte
	issuer string
}

func NewManager(secret, issuer string) *Manager {
	return &Manager{secret: []byte(secret), issuer: issuer}
}

func (m *Manager) Sign(memberID int64, username string, role domain.Role, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Username: username,
		Role:     string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(memberID, 10),
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Verify parses the token and returns the actor it identifies.
func (m *Manager) Verify(tokenStr string) (domain.Actor, error) {
	claims := new(Claims)
	parser := jwt.NewParser(
		jwt.WithIssuer(m.issuer),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)

	token, err := parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		return domain.Actor{}, ErrInvalidToken
	}

	memberID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || memberID <= 0 {
		return domain.Actor{}, ErrInvalidToken
	}
	role, ok := domain.ParseRole(claims.Role)
	if !ok {
		return domain.Actor{}, ErrInvalidToken
	}

	return domain.Actor{MemberID: memberID, Username: claims.Username, Role: role}, nil
}
