package auth

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// TokenDuration is the validity period of issued tokens
const TokenDuration = 24 * time.Hour

// Claims represents JWT claims
type Claims struct {
	UserID       int64        `json:"user_id"`
	Capabilities []Capability `json:"caps"`
	jwt.RegisteredClaims
}

// Middleware authenticates requests. With a secret it requires a bearer
// token. Without one it trusts the X-User-ID and X-Capabilities headers of
// a fronting proxy.
type Middleware struct {
	secret []byte
	logger *zap.Logger
}

// NewMiddleware creates the authentication middleware
func NewMiddleware(secret string, logger *zap.Logger) *Middleware {
	return &Middleware{secret: []byte(secret), logger: logger}
}

// IssueToken signs a token for the actor
func IssueToken(secret string, actor *Actor, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("jwt secret is not configured")
	}
	now := time.Now()
	claims := Claims{
		UserID:       actor.UserID,
		Capabilities: actor.Capabilities,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(actor.UserID, 10),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "badgecerts",
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseToken validates a token and returns the actor it names
func (m *Middleware) ParseToken(tokenString string) (*Actor, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID <= 0 {
		return nil, ErrUnauthorized
	}
	return &Actor{UserID: claims.UserID, Capabilities: claims.Capabilities}, nil
}

// Handler returns the gin middleware
func (m *Middleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var (
			actor *Actor
			err   error
		)
		if len(m.secret) > 0 {
			actor, err = m.fromBearer(c)
		} else {
			actor, err = fromHeaders(c)
		}
		if err != nil {
			m.logger.Warn("Rejected request", zap.Error(err), zap.String("path", c.Request.URL.Path))
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			c.Abort()
			return
		}

		c.Set(ActorContextKey, actor)
		c.Next()
	}
}

func (m *Middleware) fromBearer(c *gin.Context) (*Actor, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return nil, fmt.Errorf("missing authorization")
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return nil, fmt.Errorf("invalid authorization header format")
	}
	actor, err := m.ParseToken(parts[1])
	if err != nil {
		m.logger.Debug("Invalid token", zap.Error(err))
		return nil, fmt.Errorf("invalid or expired token")
	}
	return actor, nil
}

func fromHeaders(c *gin.Context) (*Actor, error) {
	userID, err := strconv.ParseInt(c.GetHeader("X-User-ID"), 10, 64)
	if err != nil || userID <= 0 {
		return nil, fmt.Errorf("missing or invalid X-User-ID header")
	}

	actor := &Actor{UserID: userID}
	for _, raw := range strings.Split(c.GetHeader("X-Capabilities"), ",") {
		if capability := strings.TrimSpace(raw); capability != "" {
			actor.Capabilities = append(actor.Capabilities, Capability(capability))
		}
	}
	return actor, nil
}

// Require aborts with 403 unless authz grants the site level capability
func Require(authz Authorizer, capability Capability, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": ErrUnauthorized.Error()})
			c.Abort()
			return
		}

		allowed, err := authz.Allowed(c.Request.Context(), actor, capability, 0)
		if err != nil {
			logger.Error("Failed to check capability", zap.Error(err), zap.String("capability", string(capability)))
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			c.Abort()
			return
		}
		if !allowed {
			c.JSON(http.StatusForbidden, gin.H{"error": fmt.Sprintf("missing capability %s", capability)})
			c.Abort()
			return
		}
		c.Next()
	}
}
