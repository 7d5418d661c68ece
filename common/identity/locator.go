package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const (
	pdsServiceID   = "#atproto_pds"
	pdsServiceType = "AtprotoPersonalDataServer"
)

// Location is where a DID's repository is hosted
type Location struct {
	DID    string `json:"did"`
	PDS    string `json:"pds"`
	Handle string `json:"handle,omitempty"`
}

// Document is the subset of a DID document the locator reads
type Document struct {
	ID          string    `json:"id"`
	AlsoKnownAs []string  `json:"alsoKnownAs"`
	Service     []Service `json:"service"`
}

// Service is a DID document service entry. The endpoint is kept raw because
// the DID core spec allows strings, maps and arrays there.
type Service struct {
	ID              string          `json:"id"`
	Type            string          `json:"type"`
	ServiceEndpoint json.RawMessage `json:"serviceEndpoint"`
}

// EndpointChecker vets a service endpoint and returns its normalised origin
type EndpointChecker interface {
	Validate(raw string) (string, error)
}

// Locator finds the PDS for a DID from its DID document
type Locator struct {
	http      Doer
	plcURL    string
	endpoints EndpointChecker
}

// NewLocator creates a locator. plcURL is the did:plc directory base.
func NewLocator(http Doer, plcURL string, endpoints EndpointChecker) *Locator {
	return &Locator{http: http, plcURL: plcURL, endpoints: endpoints}
}

// Locate fetches the DID document and returns the repository host
func (l *Locator) Locate(ctx context.Context, did string) (*Location, error) {
	docURL, err := l.documentURL(did)
	if err != nil {
		return nil, err
	}

	doc, err := l.fetchDocument(ctx, did, docURL)
	if err != nil {
		return nil, err
	}

	raw, err := doc.PDSEndpoint()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrIdentityUnresolvable, did, err)
	}

	origin, err := l.endpoints.Validate(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: pds endpoint rejected: %w", ErrIdentityUnresolvable, did, err)
	}

	return &Location{DID: did, PDS: origin, Handle: doc.Handle()}, nil
}

func (l *Locator) documentURL(did string) (string, error) {
	switch {
	case strings.HasPrefix(did, "did:plc:"):
		return l.plcURL + "/" + url.PathEscape(did), nil
	case strings.HasPrefix(did, "did:web:"):
		host, err := url.PathUnescape(strings.TrimPrefix(did, "did:web:"))
		if err != nil || host == "" || strings.Contains(host, "/") {
			return "", fmt.Errorf("%w: %s: malformed did:web", ErrIdentityUnresolvable, did)
		}
		scheme := "https"
		if h, _, ok := strings.Cut(host, ":"); ok {
			// Ports are only meaningful for local testing; colons otherwise mark did:web paths.
			if h != "localhost" {
				return "", fmt.Errorf("%w: %s: did:web paths are not supported", ErrIdentityUnresolvable, did)
			}
			scheme = "http"
		}
		origin, err := l.endpoints.Validate(scheme + "://" + host)
		if err != nil {
			return "", fmt.Errorf("%w: %s: did:web host rejected: %w", ErrIdentityUnresolvable, did, err)
		}
		return origin + "/.well-known/did.json", nil
	default:
		return "", fmt.Errorf("%w: %s: unsupported did method", ErrIdentityUnresolvable, did)
	}
}

func (l *Locator) fetchDocument(ctx context.Context, did, docURL string) (*Document, error) {
	resp, err := l.http.DoRequest(ctx, http.MethodGet, docURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: fetch did document: %w", ErrIdentityUnresolvable, did, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s: did document returned %d", ErrIdentityUnresolvable, did, resp.StatusCode)
	}

	var doc Document
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxIdentityBody)).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %s: decode did document: %w", ErrIdentityUnresolvable, did, err)
	}

	if doc.ID != did {
		return nil, fmt.Errorf("%w: %s: document is for %q", ErrIdentityUnresolvable, did, doc.ID)
	}

	return &doc, nil
}

// PDSEndpoint returns the endpoint of the service tagged for repository
// hosting. Entries with other ids or types are ignored regardless of order.
func (d *Document) PDSEndpoint() (string, error) {
	for _, svc := range d.Service {
		if svc.ID != pdsServiceID && svc.ID != d.ID+pdsServiceID {
			continue
		}
		if svc.Type != pdsServiceType {
			continue
		}
		var endpoint string
		if err := json.Unmarshal(svc.ServiceEndpoint, &endpoint); err != nil || endpoint == "" {
			return "", fmt.Errorf("pds service endpoint is not a URL string")
		}
		return endpoint, nil
	}
	return "", fmt.Errorf("no %s service entry", pdsServiceID)
}

// Handle returns the first at:// alias, unverified
func (d *Document) Handle() string {
	for _, aka := range d.AlsoKnownAs {
		if h, ok := strings.CutPrefix(aka, "at://"); ok && IsHandle(h) {
			return strings.ToLower(h)
		}
	}
	return ""
}
