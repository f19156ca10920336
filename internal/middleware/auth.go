// Package middleware provides request-scoped middleware: sessions, logging, tracing and rate limiting.
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"yatube/internal/config"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	sessionIssuer   = "yatube-api"
	sessionAudience = "yatube-web"
)

// Locals keys set by LoadSession.
const (
	LocalUserID   = "userID"
	LocalUsername = "username"
	LocalSession  = "session"
)

// ErrInvalidSession is returned for tokens that fail signature, claim or revocation checks.
var ErrInvalidSession = errors.New("invalid or expired session")

// RevocationStore remembers logged-out session IDs until they would have expired anyway.
type RevocationStore interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// SessionClaims are the JWT claims of a login session.
type SessionClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim.
func (c *SessionClaims) UserID() (uint, error) {
	id, err := strconv.ParseUint(c.Subject, 10, 32)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid subject %q", c.Subject)
	}
	return uint(id), nil
}

// SessionManager issues, parses and revokes signed session tokens.
type SessionManager struct {
	secret     []byte
	ttl        time.Duration
	cookieName string
	secure     bool
	revoked    RevocationStore
}

// NewSessionManager creates a session manager. revoked may be nil, which disables logout revocation checks.
func NewSessionManager(cfg *config.Config, revoked RevocationStore) *SessionManager {
	name := cfg.SessionCookieName
	if name == "" {
		name = "sessionid"
	}
	return &SessionManager{
		secret:     []byte(cfg.JWTSecret),
		ttl:        cfg.SessionTTL(),
		cookieName: name,
		secure:     cfg.IsProduction(),
		revoked:    revoked,
	}
}

// Issue signs a new session for the user.
func (m *SessionManager) Issue(userID uint, username string) (string, *SessionClaims, error) {
	now := time.Now()
	claims := &SessionClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(userID), 10),
			Issuer:    sessionIssuer,
			Audience:  jwt.ClaimStrings{sessionAudience},
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", nil, err
	}
	return token, claims, nil
}

// Parse validates a token and its revocation state.
func (m *SessionManager) Parse(ctx context.Context, raw string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithAudience(sessionAudience),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidSession
	}
	if _, err := claims.UserID(); err != nil {
		return nil, ErrInvalidSession
	}
	if claims.ID == "" {
		return nil, ErrInvalidSession
	}

	if m.revoked != nil {
		revoked, err := m.revoked.IsRevoked(ctx, claims.ID)
		if err != nil {
			// Revocation store outage keeps sessions usable.
			Logger.WarnContext(ctx, "session revocation check failed", slog.String("error", err.Error()))
		} else if revoked {
			return nil, ErrInvalidSession
		}
	}
	return claims, nil
}

// Revoke blacklists the session until its natural expiry.
func (m *SessionManager) Revoke(ctx context.Context, claims *SessionClaims) error {
	if m.revoked == nil || claims == nil || claims.ExpiresAt == nil {
		return nil
	}
	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl <= 0 {
		return nil
	}
	return m.revoked.Revoke(ctx, claims.ID, ttl)
}

// SetCookie stores the session token in an HTTP-only cookie.
func (m *SessionManager) SetCookie(c *fiber.Ctx, token string, claims *SessionClaims) {
	c.Cookie(&fiber.Cookie{
		Name:     m.cookieName,
		Value:    token,
		Path:     "/",
		Expires:  claims.ExpiresAt.Time,
		HTTPOnly: true,
		Secure:   m.secure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

// ClearCookie expires the session cookie.
func (m *SessionManager) ClearCookie(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     m.cookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		HTTPOnly: true,
		Secure:   m.secure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

func (m *SessionManager) tokenFromRequest(c *fiber.Ctx) string {
	if auth := c.Get(fiber.HeaderAuthorization); auth != "" {
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			return strings.TrimSpace(parts[1])
		}
	}
	return c.Cookies(m.cookieName)
}

// LoadSession resolves the request's session, if any, into c.Locals.
// Invalid tokens are dropped and the request continues anonymously.
func (m *SessionManager) LoadSession() fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := m.tokenFromRequest(c)
		if raw == "" {
			return c.Next()
		}

		claims, err := m.Parse(c.UserContext(), raw)
		if err != nil {
			if c.Cookies(m.cookieName) != "" {
				m.ClearCookie(c)
			}
			return c.Next()
		}

		userID, _ := claims.UserID()
		c.Locals(LocalUserID, userID)
		c.Locals(LocalUsername, claims.Username)
		c.Locals(LocalSession, claims)
		return c.Next()
	}
}

// CurrentUserID returns the authenticated user's ID or 0 for anonymous requests.
func CurrentUserID(c *fiber.Ctx) uint {
	if id, ok := c.Locals(LocalUserID).(uint); ok {
		return id
	}
	return 0
}

// CurrentSession returns the parsed session claims, if any.
func CurrentSession(c *fiber.Ctx) *SessionClaims {
	if claims, ok := c.Locals(LocalSession).(*SessionClaims); ok {
		return claims
	}
	return nil
}

// LoginRequired redirects anonymous requests to loginURL with the original path in "next".
func LoginRequired(loginURL string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if CurrentUserID(c) != 0 {
			return c.Next()
		}
		return c.Redirect(LoginRedirectURL(loginURL, c.OriginalURL()), fiber.StatusFound)
	}
}

// LoginRedirectURL builds "<loginURL>?next=<next>", leaving slashes readable.
func LoginRedirectURL(loginURL, next string) string {
	escaped := strings.ReplaceAll(url.QueryEscape(next), "%2F", "/")
	sep := "?"
	if strings.Contains(loginURL, "?") {
		sep = "&"
	}
	return loginURL + sep + "next=" + escaped
}

// SafeNext returns next when it is a local absolute path, otherwise fallback.
func SafeNext(next, fallback string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return fallback
	}
	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return fallback
	}
	return next
}
