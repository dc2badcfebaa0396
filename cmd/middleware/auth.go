package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc"
	"github.com/gin-gonic/gin"

	"github.com/petmarket/media-service/internal/logger"
)

// Claims are the token fields the service relies on.
type Claims struct {
	Subject         string `json:"sub"`
	AuthorizedParty string `json:"azp"`
}

// TokenVerifier checks a raw bearer token and returns its claims.
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (Claims, error)
}

type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewOIDCVerifier discovers the issuer. An empty clientID skips the audience check, the
// authorized party is checked by RequireAuth instead.
func NewOIDCVerifier(ctx context.Context, issuerURL, clientID string) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery: %w", err)
	}
	cfg := &oidc.Config{ClientID: clientID, SkipClientIDCheck: clientID == ""}
	return &OIDCVerifier{verifier: provider.Verifier(cfg)}, nil
}

func (v *OIDCVerifier) Verify(ctx context.Context, rawToken string) (Claims, error) {
	idToken, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return Claims{}, err
	}
	var claims Claims
	if err := idToken.Claims(&claims); err != nil {
		return Claims{}, fmt.Errorf("claim parse failed: %w", err)
	}
	return claims, nil
}

// RequireAuth rejects requests without a valid bearer token. When authorizedParty is set
// the token's azp claim must match it. The subject is stored as "user_id".
func RequireAuth(verifier TokenVerifier, authorizedParty string, log *logger.Logger) gin.HandlerFunc {
	log = log.With("component", "auth")
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "missing auth"})
			return
		}

		tokenStr := strings.TrimPrefix(auth, "Bearer ")
		if tokenStr == auth || tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "invalid format"})
			return
		}

		claims, err := verifier.Verify(c.Request.Context(), tokenStr)
		if err != nil {
			log.Warn("Token verification failed", "path", c.FullPath(), "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "invalid token"})
			return
		}

		if authorizedParty != "" && claims.AuthorizedParty != authorizedParty {
			log.Warn("Token rejected", "azp", claims.AuthorizedParty, "expected", authorizedParty)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "invalid client"})
			return
		}

		c.Set("user_id", claims.Subject)
		c.Next()
	}
}
