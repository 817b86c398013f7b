package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/valyala/fasthttp"

	"github.com/fluxorio/carwash/pkg/web"
)

// JWTConfig configures JWT authentication
type JWTConfig struct {
	// SecretKey is the HMAC secret for verifying tokens
	SecretKey string

	// ValidMethods is the list of accepted JWT signing algorithms.
	// Default: ["HS256"].
	ValidMethods []string

	// Issuer requires a matching `iss` claim when set.
	Issuer string

	// Leeway allows small clock skew for exp/nbf/iat validation.
	Leeway time.Duration

	// ClaimsKey is the key to store claims in request context
	ClaimsKey string

	// AuthScheme is the authorization scheme (default: "Bearer")
	AuthScheme string
}

// DefaultJWTConfig returns a default JWT configuration
func DefaultJWTConfig(secretKey string) JWTConfig {
	return JWTConfig{
		SecretKey:    secretKey,
		ClaimsKey:    "operator",
		AuthScheme:   "Bearer",
		ValidMethods: []string{"HS256"},
	}
}

// JWT middleware validates bearer tokens from the Authorization header
func JWT(config JWTConfig) web.Middleware {
	if config.SecretKey == "" {
		panic("JWT: SecretKey must be provided")
	}

	validMethods := config.ValidMethods
	if len(validMethods) == 0 {
		validMethods = []string{"HS256"}
	}
	authScheme := config.AuthScheme
	if authScheme == "" {
		authScheme = "Bearer"
	}
	claimsKey := config.ClaimsKey
	if claimsKey == "" {
		claimsKey = "operator"
	}

	keyFunc := func(token *jwt.Token) (interface{}, error) {
		// Validate signing method family for HMAC secrets.
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return []byte(config.SecretKey), nil
	}

	options := []jwt.ParserOption{jwt.WithValidMethods(validMethods)}
	if config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(config.Leeway))
	}
	if config.Issuer != "" {
		options = append(options, jwt.WithIssuer(config.Issuer))
	}

	unauthorized := func(ctx *web.RequestContext) error {
		ctx.RequestCtx.Response.Header.Set("WWW-Authenticate", fmt.Sprintf(`%s realm="carwash", error="invalid_token"`, authScheme))
		// Do not reflect internal errors to the caller.
		return ctx.Fail(fasthttp.StatusUnauthorized, "unauthorized", "invalid or missing token")
	}

	return func(next web.Handler) web.Handler {
		return func(ctx *web.RequestContext) error {
			authHeader := string(ctx.RequestCtx.Request.Header.Peek("Authorization"))
			scheme, tokenString, ok := strings.Cut(authHeader, " ")
			if !ok || scheme != authScheme || tokenString == "" {
				return unauthorized(ctx)
			}

			token, err := jwt.ParseWithClaims(tokenString, jwt.MapClaims{}, keyFunc, options...)
			if err != nil || !token.Valid {
				return unauthorized(ctx)
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				return unauthorized(ctx)
			}

			// Store claims in context
			ctx.Set(claimsKey, claims)
			return next(ctx)
		}
	}
}

// GetClaims extracts JWT claims from request context
func GetClaims(ctx *web.RequestContext, key string) (jwt.MapClaims, error) {
	claims, ok := ctx.Get(key).(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("claims not found in context")
	}
	return claims, nil
}

// Subject returns the `sub` claim of the authenticated operator.
func Subject(ctx *web.RequestContext, key string) (string, error) {
	claims, err := GetClaims(ctx, key)
	if err != nil {
		return "", err
	}
	return claims.GetSubject()
}

// NewToken signs an HS256 token for subject, valid for ttl.
func NewToken(secretKey, subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})
	return token.SignedString([]byte(secretKey))
}
