package middleware

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"github.com/tphakala/floranet-go/internal/errors"
)

// Security configuration constants.
const (
	// HSTSMaxAge is the max-age value for HSTS header (1 year in seconds).
	HSTSMaxAge = 31536000

	// AdminRealm is the basic auth realm of the moderation routes.
	AdminRealm = "FloraNet moderation"

	rateLimitExpiry = 3 * time.Minute
)

// SecurityConfig holds configuration for security middleware.
type SecurityConfig struct {
	AllowedOrigins   []string
	AllowCredentials bool

	HSTSMaxAge            int
	HSTSExcludeSubdomains bool

	ContentSecurityPolicy string
}

// DefaultSecurityConfig returns a SecurityConfig with sensible defaults.
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		AllowedOrigins: []string{"*"},
		HSTSMaxAge:     HSTSMaxAge,
	}
}

// NewCORS creates a CORS middleware with the given configuration.
func NewCORS(config SecurityConfig) echo.MiddlewareFunc {
	return middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: config.AllowedOrigins,
		AllowMethods: []string{
			http.MethodGet,
			http.MethodHead,
			http.MethodPatch,
			http.MethodPost,
			http.MethodOptions,
		},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
			echo.HeaderAuthorization,
			echo.HeaderXRequestID,
		},
		AllowCredentials: config.AllowCredentials,
	})
}

// NewSecureHeaders creates a middleware that sets security-related HTTP headers.
func NewSecureHeaders(config SecurityConfig) echo.MiddlewareFunc {
	return middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "SAMEORIGIN",
		HSTSMaxAge:            config.HSTSMaxAge,
		HSTSExcludeSubdomains: config.HSTSExcludeSubdomains,
		ContentSecurityPolicy: config.ContentSecurityPolicy,
	})
}

// NewBodyLimit creates a middleware that limits the request body to limit bytes.
func NewBodyLimit(limit int64) echo.MiddlewareFunc {
	kib := (limit + 1023) / 1024
	return middleware.BodyLimit(fmt.Sprintf("%dK", kib))
}

// NewAdminAuth guards the moderation routes with HTTP basic auth checked
// against a bcrypt hash. Without a configured hash every request is refused.
func NewAdminAuth(username, passwordHash string) echo.MiddlewareFunc {
	if passwordHash == "" {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error {
				return c.JSON(http.StatusForbidden, map[string]string{
					"error": "admin access is not configured",
					"kind":  "forbidden",
				})
			}
		}
	}

	hash := []byte(passwordHash)
	return middleware.BasicAuthWithConfig(middleware.BasicAuthConfig{
		Realm: AdminRealm,
		Validator: func(user, password string, _ echo.Context) (bool, error) {
			userOK := subtle.ConstantTimeCompare([]byte(user), []byte(username)) == 1
			// Always run bcrypt so a wrong user name costs the same time
			passErr := bcrypt.CompareHashAndPassword(hash, []byte(password))
			return userOK && passErr == nil, nil
		},
	})
}

// HashPassword returns the bcrypt hash stored as security.admin.passwordhash.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New(errors.NewStd("password must not be empty")).
			Component("api").
			Category(errors.CategoryValidation).
			Build()
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// NewRateLimit limits each client IP to perSecond sustained requests with
// the given burst.
func NewRateLimit(perSecond float64, burst int) echo.MiddlewareFunc {
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Skipper: middleware.DefaultSkipper,
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(perSecond),
				Burst:     burst,
				ExpiresIn: rateLimitExpiry,
			},
		),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return c.JSON(http.StatusForbidden, map[string]string{
				"error": "client could not be identified",
				"kind":  "forbidden",
			})
		},
		DenyHandler: func(c echo.Context, _ string, _ error) error {
			return c.JSON(http.StatusTooManyRequests, map[string]string{
				"error": "too many submissions, please wait before trying again",
				"kind":  "rate-limited",
			})
		},
	})
}
