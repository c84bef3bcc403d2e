package util

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// MaxTenantIDLength bounds tenant ids so they fit in bucket names and
// cache keys.
const MaxTenantIDLength = 63

// tenantIDRegex allows lowercase alphanumerics with inner dashes,
// underscores and dots.
var tenantIDRegex = regexp.MustCompile(`^[a-z0-9]([a-z0-9._-]*[a-z0-9])?$`)

// ValidateURL validates a URL string.
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("URL cannot be empty")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if parsed.Scheme == "" {
		return fmt.Errorf("URL must have a scheme (http or https)")
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got: %s", parsed.Scheme)
	}

	if parsed.Host == "" {
		return fmt.Errorf("URL must have a host")
	}

	return nil
}

// ValidatePort validates a port number.
func ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got: %d", port)
	}
	return nil
}

// ValidateListenAddr validates a host:port listen address. The host may be
// empty.
func ValidateListenAddr(addr string) error {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid listen address %q: %w", addr, err)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid port %q", portStr)
	}
	return ValidatePort(port)
}

// ValidateFraction validates a ratio between 0 and 1 inclusive.
func ValidateFraction(value float64) error {
	if value < 0 || value > 1 {
		return fmt.Errorf("value must be between 0 and 1, got: %g", value)
	}
	return nil
}

// ValidateNonEmpty validates that a string is not empty.
func ValidateNonEmpty(value, name string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}
	return nil
}

// ValidateTenantID validates a tenant identifier.
func ValidateTenantID(id string) error {
	if id == "" {
		return fmt.Errorf("tenant id cannot be empty")
	}
	if len(id) > MaxTenantIDLength {
		return fmt.Errorf("tenant id too long: %d characters (max %d)", len(id), MaxTenantIDLength)
	}
	if !tenantIDRegex.MatchString(id) {
		return fmt.Errorf("invalid tenant id %q", id)
	}
	return nil
}
