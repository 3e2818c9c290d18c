package auth

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/FACorreiaa/go-ohms-auth/config"
	"github.com/FACorreiaa/go-ohms-auth/internal/types"
)

// SessionClaims is the payload of the session cookie. The cookie only points
// at a server-side session; role and status are always read from the store.
type SessionClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// SessionSigner signs and verifies session cookies with HS256.
type SessionSigner struct {
	secret []byte
	issuer string
}

func NewSessionSigner(secret, issuer string) *SessionSigner {
	return &SessionSigner{secret: []byte(secret), issuer: issuer}
}

// Sign produces the cookie value for sess.
func (s *SessionSigner) Sign(sess *types.Session) (string, error) {
	claims := SessionClaims{
		SessionID: sess.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sess.UserID.String(),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(sess.CreatedAt),
			ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("signing session token: %w", err)
	}
	return signed, nil
}

// Parse verifies the signature, issuer and expiry of a cookie value. Every
// failure wraps types.ErrUnauthenticated.
func (s *SessionSigner) Parse(tokenString string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		reason := "invalid session token"
		if errors.Is(err, jwt.ErrTokenExpired) {
			reason = "session token expired"
		}
		return nil, fmt.Errorf("%s: %w", reason, types.ErrUnauthenticated)
	}
	if !token.Valid || claims.SessionID == "" {
		return nil, fmt.Errorf("invalid session token: %w", types.ErrUnauthenticated)
	}
	return claims, nil
}

// SetSessionCookie writes the session cookie. Non-remembered sessions get a
// browser-session cookie.
func SetSessionCookie(w http.ResponseWriter, cfg config.AuthConfig, token string, sess *types.Session) {
	c := &http.Cookie{
		Name:     cfg.CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   cfg.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	}
	if sess.Remember {
		c.Expires = sess.ExpiresAt
		c.MaxAge = int(time.Until(sess.ExpiresAt).Seconds())
	}
	http.SetCookie(w, c)
}

func ClearSessionCookie(w http.ResponseWriter, cfg config.AuthConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     cfg.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cfg.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}
