package repo

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Address identifies one record in one repository
type Address struct {
	DID        string
	Collection string
	RKey       string
}

// URI renders the at:// form of the address
func (a Address) URI() string {
	return fmt.Sprintf("at://%s/%s/%s", a.DID, a.Collection, a.RKey)
}

// ParseURI splits an at://authority/collection/rkey URI. The authority may be
// a DID or a handle; it is not resolved here.
func ParseURI(uri string) (Address, error) {
	rest, ok := strings.CutPrefix(uri, "at://")
	if !ok {
		return Address{}, fmt.Errorf("not an at:// uri: %q", uri)
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return Address{}, fmt.Errorf("at:// uri must name authority, collection and rkey: %q", uri)
	}
	return Address{DID: parts[0], Collection: parts[1], RKey: parts[2]}, nil
}

// Record is a fetched record with its commit reference
type Record struct {
	URI   string          `json:"uri"`
	CID   string          `json:"cid,omitempty"`
	Value json.RawMessage `json:"value"`
}

// Fields decodes the record value as a generic field map
func (r *Record) Fields() (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(r.Value, &fields); err != nil {
		return nil, fmt.Errorf("%w: record value is not an object: %w", ErrInvalidResponse, err)
	}
	return fields, nil
}
