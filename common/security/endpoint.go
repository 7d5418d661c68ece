package security

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// LookupFunc resolves a hostname to its addresses
type LookupFunc func(host string) ([]net.IP, error)

// EndpointValidator vets service endpoints published in identity documents
// before the service dials them. Identity documents are user-controlled, so
// an endpoint pointing at internal infrastructure must be refused.
type EndpointValidator struct {
	blockedHostnames map[string]bool
	ipValidator      *IPValidator
	lookup           LookupFunc
	allowPrivate     bool
}

// NewEndpointValidator creates a validator. allowPrivate skips host checks
// and exists for local development against a PDS on localhost.
func NewEndpointValidator(allowPrivate bool) *EndpointValidator {
	return &EndpointValidator{
		blockedHostnames: map[string]bool{
			"localhost":             true,
			"localhost.localdomain": true,
			"ip6-localhost":         true,
		},
		ipValidator:  NewIPValidator(),
		lookup:       net.LookupIP,
		allowPrivate: allowPrivate,
	}
}

// WithLookup replaces DNS resolution, used by tests
func (v *EndpointValidator) WithLookup(fn LookupFunc) *EndpointValidator {
	v.lookup = fn
	return v
}

// Validate parses raw and returns the normalised origin (scheme://host[:port])
func (v *EndpointValidator) Validate(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("invalid URL format: %w", err)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("protocol %q is not allowed (only http/https permitted)", u.Scheme)
	}
	if u.User != nil {
		return "", fmt.Errorf("credentials in endpoint URL are not allowed")
	}
	if u.Path != "" && u.Path != "/" {
		return "", fmt.Errorf("endpoint must be an origin, got path %q", u.Path)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return "", fmt.Errorf("endpoint must not carry a query or fragment")
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("hostname is required")
	}

	origin := scheme + "://" + strings.ToLower(u.Host)
	if v.allowPrivate {
		return origin, nil
	}

	if v.blockedHostnames[host] {
		return "", fmt.Errorf("hostname %q is blocked", host)
	}

	if ip := net.ParseIP(host); ip != nil {
		if err := v.ipValidator.Validate(ip); err != nil {
			return "", err
		}
		return origin, nil
	}

	ips, err := v.lookup(host)
	if err != nil {
		// Unresolvable hosts fail at dial time, where DialControl checks
		// whatever address the name finally resolves to.
		return origin, nil
	}
	if err := v.ipValidator.ValidateAll(ips); err != nil {
		return "", err
	}

	return origin, nil
}
