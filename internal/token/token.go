package token

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// Claims describes the unlock credential payload. The order id and door
// number are bound together with the expiry under the process secret, so
// the sweep and the confirmation path can re-derive the expiry without a
// store lookup.
type Claims struct {
	OrderID string `json:"orderId"`
	Door    int    `json:"door"`
	jwt.RegisteredClaims
}

// Manager issues and verifies signed unlock credentials.
type Manager struct {
	secret []byte
	ttl    time.Duration
}

// NewManager builds a new manager.
func NewManager(secret string, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Manager{secret: []byte(secret), ttl: ttl}
}

// Issue signs a single-use credential for the (order, door) pair.
func (m *Manager) Issue(orderID string, door int) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(m.ttl)
	claims := &Claims{
		OrderID: orderID,
		Door:    door,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, expiresAt, nil
}

// Verify validates the signature and expiry and returns the claims.
// Tampered, wrong-algorithm and expired tokens all fail here.
func (m *Manager) Verify(tokenStr string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
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
