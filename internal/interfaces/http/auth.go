package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	actorContextKey = "actor_id"
	// ActorHeader identifies the caller when token auth is disabled
	ActorHeader = "X-Actor-ID"
)

// AuthConfig holds authentication settings. An empty secret disables
// token verification and trusts the ActorHeader.
type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

// Authenticator resolves the calling actor of a request
type Authenticator struct {
	secret []byte
	issuer string
}

// NewAuthenticator creates an authenticator from config
func NewAuthenticator(cfg AuthConfig) *Authenticator {
	return &Authenticator{
		secret: []byte(cfg.JWTSecret),
		issuer: cfg.Issuer,
	}
}

// Enabled reports whether bearer tokens are required
func (a *Authenticator) Enabled() bool {
	return len(a.secret) > 0
}

// Middleware aborts with 401 when no actor can be established
func (a *Authenticator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		actorID, err := a.actorFrom(c.Request)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, Response{
				Success: false,
				Error:   err.Error(),
				Code:    "unauthenticated",
			})
			return
		}
		c.Set(actorContextKey, actorID)
		c.Next()
	}
}

func (a *Authenticator) actorFrom(r *http.Request) (string, error) {
	if !a.Enabled() {
		actorID := strings.TrimSpace(r.Header.Get(ActorHeader))
		if actorID == "" {
			return "", errors.New("missing " + ActorHeader + " header")
		}
		return actorID, nil
	}

	header := r.Header.Get("Authorization")
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		return "", errors.New("missing bearer token")
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(strings.TrimSpace(raw), claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return "", errors.New("invalid token")
	}
	if claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}

// IssueToken signs a token whose subject is the actor id
func (a *Authenticator) IssueToken(actorID string, ttl time.Duration) (string, error) {
	if !a.Enabled() {
		return "", errors.New("token auth is disabled")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   actorID,
		Issuer:    a.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// ActorID returns the authenticated actor of the request
func ActorID(c *gin.Context) string {
	return c.GetString(actorContextKey)
}
