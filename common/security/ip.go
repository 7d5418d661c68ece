package security

import (
	"fmt"
	"net"
)

// IPValidator rejects addresses a public-facing fetcher must never dial
type IPValidator struct{}

// NewIPValidator creates a new IP validator
func NewIPValidator() *IPValidator {
	return &IPValidator{}
}

// Validate blocks loopback, private, link-local, multicast and unspecified addresses
func (v *IPValidator) Validate(ip net.IP) error {
	if ip == nil {
		return fmt.Errorf("IP address is nil")
	}

	switch {
	case ip.IsLoopback():
		return fmt.Errorf("IP %s is blocked: loopback address", ip)
	case ip.IsPrivate():
		return fmt.Errorf("IP %s is blocked: private network", ip)
	case ip.IsLinkLocalUnicast(), ip.IsLinkLocalMulticast():
		// 169.254.169.254 is the cloud metadata service
		return fmt.Errorf("IP %s is blocked: link-local address", ip)
	case ip.IsMulticast():
		return fmt.Errorf("IP %s is blocked: multicast address", ip)
	case ip.IsUnspecified():
		return fmt.Errorf("IP %s is blocked: unspecified address", ip)
	}

	return nil
}

// ValidateAll checks all IPs in a list
func (v *IPValidator) ValidateAll(ips []net.IP) error {
	if len(ips) == 0 {
		return fmt.Errorf("no IP addresses to validate")
	}

	for _, ip := range ips {
		if err := v.Validate(ip); err != nil {
			return err
		}
	}

	return nil
}
