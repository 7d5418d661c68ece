package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"

	"github.com/atmopics/share/common/identity"
)

// Doer executes outbound requests; satisfied by clients.HTTPClient
type Doer interface {
	DoRequest(ctx context.Context, method, url string, body io.Reader) (*http.Response, error)
}

const maxRecordBody = 1 << 20

var (
	nsidPattern = regexp.MustCompile(`^[a-zA-Z]([a-zA-Z0-9-]{0,62})?(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,62})?)+(\.[a-zA-Z]([a-zA-Z0-9]{0,62})?)$`)
	rkeyPattern = regexp.MustCompile(`^[a-zA-Z0-9._:~-]{1,512}$`)
)

// ValidRecordKey reports whether rkey is a syntactically valid record key
func ValidRecordKey(rkey string) bool {
	return rkey != "." && rkey != ".." && rkeyPattern.MatchString(rkey)
}

// ValidCollection reports whether s is a syntactically valid NSID
func ValidCollection(s string) bool {
	return len(s) <= 317 && nsidPattern.MatchString(s)
}

// Fetcher reads single records from a repository host
type Fetcher struct {
	http Doer
}

// NewFetcher creates a record fetcher
func NewFetcher(http Doer) *Fetcher {
	return &Fetcher{http: http}
}

type xrpcError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// GetRecord issues exactly one com.atproto.repo.getRecord call
func (f *Fetcher) GetRecord(ctx context.Context, loc *identity.Location, addr Address) (*Record, error) {
	if !ValidCollection(addr.Collection) || !ValidRecordKey(addr.RKey) {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, addr.URI())
	}

	q := url.Values{}
	q.Set("repo", addr.DID)
	q.Set("collection", addr.Collection)
	q.Set("rkey", addr.RKey)
	endpoint := loc.PDS + "/xrpc/com.atproto.repo.getRecord?" + q.Encode()

	resp, err := f.http.DoRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrHostUnreachable, loc.PDS, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRecordBody+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: read body: %w", ErrHostUnreachable, loc.PDS, err)
	}
	if len(body) > maxRecordBody {
		return nil, fmt.Errorf("%w: record body exceeds %d bytes", ErrInvalidResponse, maxRecordBody)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, addr.URI())
	case resp.StatusCode == http.StatusBadRequest:
		// PDS implementations report missing records and missing repos as 400s.
		var xe xrpcError
		if json.Unmarshal(body, &xe) == nil {
			switch xe.Error {
			case "RecordNotFound", "RepoNotFound", "RepoDeactivated", "RepoTakendown":
				return nil, fmt.Errorf("%w: %s: %s", ErrRecordNotFound, addr.URI(), xe.Error)
			}
		}
		return nil, fmt.Errorf("%w: status 400: %s", ErrInvalidResponse, truncate(body))
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: %s: status %d", ErrHostUnreachable, loc.PDS, resp.StatusCode)
	default:
		return nil, fmt.Errorf("%w: unexpected status %d", ErrInvalidResponse, resp.StatusCode)
	}

	var rec Record
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, fmt.Errorf("%w: decode record: %w", ErrInvalidResponse, err)
	}
	if len(rec.Value) == 0 || string(rec.Value) == "null" {
		return nil, fmt.Errorf("%w: record has no value", ErrInvalidResponse)
	}
	if rec.URI == "" {
		rec.URI = addr.URI()
	}

	return &rec, nil
}

func truncate(b []byte) string {
	if len(b) > 200 {
		return string(b[:200]) + "..."
	}
	return string(b)
}
