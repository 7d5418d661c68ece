package blob

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ipfs/go-cid"
)

// TypeBlob is the discriminator carried by every blob reference
const TypeBlob = "blob"

var (
	// ErrBlobAbsent means the field is missing or null: the media was never attached
	ErrBlobAbsent = errors.New("blob absent")

	// ErrBlobMalformed means the field is present but is not a valid blob reference
	ErrBlobMalformed = errors.New("blob malformed")
)

// Ref is a validated reference to immutable binary content
type Ref struct {
	Type     string `json:"$type"`
	Link     string `json:"-"`
	MimeType string `json:"mimeType,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

type wireLink struct {
	Link string `json:"$link"`
}

type wireRef struct {
	Type     string    `json:"$type"`
	Ref      *wireLink `json:"ref"`
	MimeType string    `json:"mimeType,omitempty"`
	Size     int64     `json:"size,omitempty"`
}

// MarshalJSON renders the lexicon wire form
func (r Ref) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireRef{Type: r.Type, Ref: &wireLink{Link: r.Link}, MimeType: r.MimeType, Size: r.Size})
}

// UnmarshalJSON parses the wire form without validating it; use Parse for that
func (r *Ref) UnmarshalJSON(data []byte) error {
	var w wireRef
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	r.Type, r.MimeType, r.Size = w.Type, w.MimeType, w.Size
	r.Link = ""
	if w.Ref != nil {
		r.Link = w.Ref.Link
	}
	return nil
}

// CID parses the content link
func (r Ref) CID() (cid.Cid, error) {
	return cid.Decode(r.Link)
}

// Parse validates raw as a blob reference carrying the expected discriminator
func Parse(raw json.RawMessage, expectedType string) (Ref, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Ref{}, ErrBlobAbsent
	}
	if trimmed[0] != '{' {
		return Ref{}, fmt.Errorf("%w: not an object", ErrBlobMalformed)
	}

	var ref Ref
	if err := json.Unmarshal(trimmed, &ref); err != nil {
		return Ref{}, fmt.Errorf("%w: %w", ErrBlobMalformed, err)
	}
	if ref.Type != expectedType {
		return Ref{}, fmt.Errorf("%w: $type %q, want %q", ErrBlobMalformed, ref.Type, expectedType)
	}
	if ref.Link == "" {
		return Ref{}, fmt.Errorf("%w: missing ref.$link", ErrBlobMalformed)
	}
	if _, err := ref.CID(); err != nil {
		return Ref{}, fmt.Errorf("%w: ref.$link is not a CID: %w", ErrBlobMalformed, err)
	}
	if ref.Size < 0 {
		return Ref{}, fmt.Errorf("%w: negative size", ErrBlobMalformed)
	}

	return ref, nil
}

// Extract looks up field in a record's field map and validates it
func Extract(fields map[string]json.RawMessage, field, expectedType string) (Ref, error) {
	raw, ok := fields[field]
	if !ok {
		return Ref{}, fmt.Errorf("%w: field %q", ErrBlobAbsent, field)
	}
	ref, err := Parse(raw, expectedType)
	if err != nil {
		return Ref{}, fmt.Errorf("field %q: %w", field, err)
	}
	return ref, nil
}
