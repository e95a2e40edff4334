package validation

import (
	"net"
	"net/url"
	"strings"

	apperrors "github.com/anime-shed/id-capture-go/internal/errors"
)

// EndpointValidator checks the URL captured documents are posted to.
// Plain http is accepted for loopback hosts only when TLS is required.
type EndpointValidator struct {
	allowedHosts []string
	requireTLS   bool
}

// NewEndpointValidator accepts any http or https endpoint.
func NewEndpointValidator() EndpointValidator {
	return EndpointValidator{}
}

// WithAllowedHosts restricts endpoints to the given host names. Empty means any host.
func (v EndpointValidator) WithAllowedHosts(hosts ...string) EndpointValidator {
	v.allowedHosts = nil
	for _, h := range hosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			v.allowedHosts = append(v.allowedHosts, h)
		}
	}
	return v
}

// WithRequireTLS rejects plain http endpoints outside loopback.
func (v EndpointValidator) WithRequireTLS(require bool) EndpointValidator {
	v.requireTLS = require
	return v
}

// Validate returns a validation error describing why endpoint is unusable.
func (v EndpointValidator) Validate(endpoint string) error {
	if strings.TrimSpace(endpoint) == "" {
		return apperrors.NewValidationError("upload endpoint cannot be empty", nil)
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return apperrors.NewValidationError("invalid upload endpoint", err)
	}
	if u.Host == "" || u.Hostname() == "" {
		return apperrors.NewValidationError("upload endpoint must have a host", nil)
	}
	// Credentials in the URL would end up in logs and error messages.
	if u.User != nil {
		return apperrors.NewValidationError("upload endpoint must not embed credentials", nil)
	}
	if u.Fragment != "" {
		return apperrors.NewValidationError("upload endpoint must not contain a fragment", nil)
	}

	host := strings.ToLower(u.Hostname())
	switch u.Scheme {
	case "https":
	case "http":
		if v.requireTLS && !isLoopback(host) {
			return apperrors.NewValidationError("upload endpoint must use https", nil)
		}
	default:
		return apperrors.NewValidationError("upload endpoint scheme must be http or https", nil)
	}

	if !v.hostAllowed(host) {
		return apperrors.NewValidationError("upload endpoint host not allowed", nil)
	}
	return nil
}

func (v EndpointValidator) hostAllowed(host string) bool {
	if len(v.allowedHosts) == 0 {
		return true
	}
	for _, allowed := range v.allowedHosts {
		if host == allowed {
			return true
		}
	}
	return false
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
