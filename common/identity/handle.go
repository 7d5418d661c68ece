package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// Doer executes outbound requests; satisfied by clients.HTTPClient
type Doer interface {
	DoRequest(ctx context.Context, method, url string, body io.Reader) (*http.Response, error)
}

const maxIdentityBody = 64 << 10

// HandleResolver maps handles to DIDs through com.atproto.identity.resolveHandle
type HandleResolver struct {
	http    Doer
	baseURL string
}

// NewHandleResolver creates a resolver that queries the XRPC service at baseURL
func NewHandleResolver(http Doer, baseURL string) *HandleResolver {
	return &HandleResolver{http: http, baseURL: baseURL}
}

type resolveHandleResponse struct {
	DID string `json:"did"`
}

// Resolve performs a single lookup. It does not retry.
func (r *HandleResolver) Resolve(ctx context.Context, handle string) (string, error) {
	endpoint := r.baseURL + "/xrpc/com.atproto.identity.resolveHandle?handle=" + url.QueryEscape(handle)

	resp, err := r.http.DoRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrResolutionFailed, handle, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: %s: resolver returned %d", ErrResolutionFailed, handle, resp.StatusCode)
	}

	var out resolveHandleResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxIdentityBody)).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: %s: decode response: %w", ErrResolutionFailed, handle, err)
	}

	if !IsDID(out.DID) {
		return "", fmt.Errorf("%w: %s: resolver returned %q", ErrResolutionFailed, handle, out.DID)
	}

	return out.DID, nil
}
