package gateway

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the bearer token payload: a bound subject and its validity
// window, nothing else. There is no user database -- the single
// configured credential pair is checked at issue time only.
type Claims struct {
	Subject string `json:"sub"`
	jwt.RegisteredClaims
}

// Authenticator issues and validates HS256 bearer tokens against a
// single static credential pair and secret, per the local emulator's
// single-tenant auth model.
type Authenticator struct {
	secret      []byte
	credentials map[string]string // client_id -> client_secret
	ttl         time.Duration
}

// NewAuthenticator builds an Authenticator. ttl defaults to 1h when zero.
func NewAuthenticator(secret []byte, credentials map[string]string, ttl time.Duration) *Authenticator {
	if ttl == 0 {
		ttl = time.Hour
	}
	return &Authenticator{secret: secret, credentials: credentials, ttl: ttl}
}

// Issue checks clientID/clientSecret against the configured pair and, on
// match, returns a signed bearer token.
func (a *Authenticator) Issue(clientID, clientSecret string) (string, time.Time, error) {
	want, ok := a.credentials[clientID]
	if !ok || want != clientSecret {
		return "", time.Time{}, fmt.Errorf("invalid credentials")
	}

	now := time.Now()
	expiresAt := now.Add(a.ttl)
	claims := &Claims{
		Subject: clientID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Validate parses and verifies a bearer token, returning its subject.
func (a *Authenticator) Validate(tokenString string) (subject string, err error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("invalid token")
	}
	return claims.Subject, nil
}
