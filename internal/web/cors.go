package web

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var (
	errNoAllowedOrigins = errors.New("web.cors.no_allowed_origins")
	errWildcardOrigin   = errors.New("web.cors.wildcard_origin")
	errMalformedOrigin  = errors.New("web.cors.malformed_origin")
)

// ConfigureCORS enables credentialed cross-origin reads for the supplied origins.
func ConfigureCORS(logger *zap.Logger, allowedOrigins []string) (gin.HandlerFunc, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	sanitized, err := sanitizeOrigins(logger, allowedOrigins)
	if err != nil {
		return nil, err
	}
	config := cors.Config{
		AllowOrigins:     sanitized,
		AllowMethods:     []string{"GET", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Accept", "Content-Type", "Authorization", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Type", WorkoutDatesStatusHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	return cors.New(config), nil
}

// sanitizeOrigins normalizes origins to scheme://host in configured order, dropping blanks and
// duplicates.
func sanitizeOrigins(logger *zap.Logger, allowed []string) ([]string, error) {
	seen := make(map[string]struct{}, len(allowed))
	var sanitized []string
	for _, candidate := range allowed {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		origin, secure, err := normalizeOrigin(candidate)
		if err != nil {
			return nil, err
		}
		if _, duplicate := seen[origin]; duplicate {
			continue
		}
		seen[origin] = struct{}{}
		if !secure {
			logger.Warn("plain http origin allowed for a non-local host",
				zap.String("code", "web.cors.insecure_origin"),
				zap.String("origin", origin))
		}
		sanitized = append(sanitized, origin)
	}
	if len(sanitized) == 0 {
		return nil, errNoAllowedOrigins
	}
	return sanitized, nil
}

// normalizeOrigin reports whether the origin is https or a local http dev server.
func normalizeOrigin(candidate string) (string, bool, error) {
	if candidate == "*" {
		return "", false, errWildcardOrigin
	}
	parsed, err := url.Parse(candidate)
	if err != nil || parsed.Host == "" {
		return "", false, fmt.Errorf("%w: %q", errMalformedOrigin, candidate)
	}
	if (parsed.Path != "" && parsed.Path != "/") || parsed.RawQuery != "" || parsed.Fragment != "" {
		return "", false, fmt.Errorf("%w: %q carries more than scheme and host", errMalformedOrigin, candidate)
	}
	scheme := strings.ToLower(parsed.Scheme)
	switch scheme {
	case "https":
		return scheme + "://" + parsed.Host, true, nil
	case "http":
		hostname := parsed.Hostname()
		local := hostname == "localhost" || hostname == "127.0.0.1"
		return scheme + "://" + parsed.Host, local, nil
	default:
		return "", false, fmt.Errorf("%w: %q must use http or https", errMalformedOrigin, candidate)
	}
}
