package security

import (
	"fmt"
	"net"
	"net/http"
	"syscall"
	"time"
)

// MaxRedirects bounds redirect chains on outbound identity and repo calls
const MaxRedirects = 5

// HTTPClient builds a client for hosts named in identity documents. Every
// redirect hop is validated like the original endpoint, and every dial checks
// the address DNS actually returned. transport replaces the guarded
// transport when non-nil.
func (v *EndpointValidator) HTTPClient(timeout time.Duration, transport http.RoundTripper) *http.Client {
	if transport == nil {
		transport = v.Transport()
	}
	return &http.Client{
		Timeout:       timeout,
		Transport:     transport,
		CheckRedirect: v.CheckRedirect,
	}
}

// Transport returns a transport whose dialer refuses blocked addresses.
// Proxies are not used: the proxy address would be the one checked.
func (v *EndpointValidator) Transport() *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.Proxy = nil
	t.DialContext = (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
		Control:   v.DialControl,
	}).DialContext
	return t
}

// CheckRedirect re-validates the target of each redirect
func (v *EndpointValidator) CheckRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= MaxRedirects {
		return fmt.Errorf("stopped after %d redirects", MaxRedirects)
	}
	if _, err := v.Validate(req.URL.Scheme + "://" + req.URL.Host); err != nil {
		return fmt.Errorf("redirect to %s refused: %w", req.URL.Host, err)
	}
	return nil
}

// DialControl runs after name resolution, so it sees the address about to
// be connected to even when DNS answered differently at validation time.
func (v *EndpointValidator) DialControl(network, address string, _ syscall.RawConn) error {
	if v.allowPrivate {
		return nil
	}
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("dial %s refused: %w", address, err)
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return fmt.Errorf("dial %s refused: not an IP address", address)
	}
	return v.ipValidator.Validate(ip)
}
