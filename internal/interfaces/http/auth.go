package http

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	appwf "github.com/garyjia/formflow/internal/application/workflow"
	domainwf "github.com/garyjia/formflow/internal/domain/workflow"
)

const identityKey = "identity"

// ErrInvalidToken is returned for a missing, malformed or unverifiable bearer token
var ErrInvalidToken = errors.New("invalid token")

// AuthConfig holds token verification settings
type AuthConfig struct {
	// Secret verifies HS256 tokens
	Secret []byte

	// PublicKey verifies RS256 tokens; takes precedence over Secret
	PublicKey *rsa.PublicKey

	Issuer   string
	Audience string

	// AdminRole gates template and workflow management and export
	AdminRole string
}

// LoadPublicKey reads a PEM encoded RSA public key
func LoadPublicKey(path string) (*rsa.PublicKey, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM(pem)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	return key, nil
}

// Claims is the subset of an identity provider token the service reads
type Claims struct {
	PreferredUsername string      `json:"preferred_username,omitempty"`
	RealmAccess       RealmAccess `json:"realm_access"`
	jwt.RegisteredClaims
}

// RealmAccess carries the realm roles of the token holder
type RealmAccess struct {
	Roles []string `json:"roles"`
}

// TokenVerifier validates bearer tokens and extracts the actor
type TokenVerifier struct {
	cfg    AuthConfig
	parser *jwt.Parser
}

// NewTokenVerifier creates a verifier; one of Secret or PublicKey is required
func NewTokenVerifier(cfg AuthConfig) (*TokenVerifier, error) {
	var opts []jwt.ParserOption
	switch {
	case cfg.PublicKey != nil:
		opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))
	case len(cfg.Secret) > 0:
		opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	default:
		return nil, fmt.Errorf("a signing secret or public key is required")
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	return &TokenVerifier{cfg: cfg, parser: jwt.NewParser(opts...)}, nil
}

// Verify parses the token and returns the actor it identifies
func (v *TokenVerifier) Verify(raw string) (appwf.Actor, error) {
	var claims Claims
	_, err := v.parser.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		if v.cfg.PublicKey != nil {
			return v.cfg.PublicKey, nil
		}
		return v.cfg.Secret, nil
	})
	if err != nil {
		return appwf.Actor{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	id := strings.TrimSpace(claims.PreferredUsername)
	if id == "" {
		id = strings.TrimSpace(claims.Subject)
	}
	if id == "" {
		return appwf.Actor{}, fmt.Errorf("%w: token carries no subject", ErrInvalidToken)
	}

	return appwf.Actor{ID: id, Roles: domainwf.NormalizeRoles(claims.RealmAccess.Roles)}, nil
}

// authMiddleware rejects requests without a valid bearer token
func authMiddleware(verifier *TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		parts := strings.Fields(header)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, Response{
				Success: false,
				Error:   "missing or malformed authorization header",
			})
			return
		}

		actor, err := verifier.Verify(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, Response{
				Success: false,
				Error:   ErrInvalidToken.Error(),
			})
			return
		}

		c.Set(identityKey, actor)
		c.Next()
	}
}

// requireRole rejects callers that do not hold role
func requireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !domainwf.ContainsRole(actorFrom(c).Roles, role) {
			c.AbortWithStatusJSON(http.StatusForbidden, Response{
				Success: false,
				Error:   fmt.Sprintf("role %s required", role),
			})
			return
		}
		c.Next()
	}
}

func actorFrom(c *gin.Context) appwf.Actor {
	if v, ok := c.Get(identityKey); ok {
		if actor, ok := v.(appwf.Actor); ok {
			return actor
		}
	}
	return appwf.Actor{}
}
