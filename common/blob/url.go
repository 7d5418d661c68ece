package blob

import (
	"errors"
	"fmt"
	"net/url"
)

// ErrInvalidVariant is returned for delivery variants the synthesizer cannot build
var ErrInvalidVariant = errors.New("invalid blob delivery variant")

// Format is a CDN output encoding
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatWebP Format = "webp"
)

// Preset is a CDN transcoding preset
type Preset string

const (
	PresetFullsize  Preset = "feed_fullsize"
	PresetThumbnail Preset = "feed_thumbnail"
)

type variantKind int

const (
	kindRaw variantKind = iota + 1
	kindCDN
)

// Variant selects how a blob is delivered
type Variant struct {
	kind   variantKind
	host   string
	preset Preset
	format Format
}

// Raw delivers the original bytes straight from the repository host
func Raw(pds string) Variant {
	return Variant{kind: kindRaw, host: pds}
}

// CDN delivers a transcoded image at full size
func CDN(format Format) Variant {
	return Variant{kind: kindCDN, preset: PresetFullsize, format: format}
}

// CDNPreset delivers a transcoded image with an explicit preset
func CDNPreset(preset Preset, format Format) Variant {
	return Variant{kind: kindCDN, preset: preset, format: format}
}

// Synthesizer builds blob URLs. It holds no mutable state.
type Synthesizer struct {
	cdnBase string
}

// NewSynthesizer creates a synthesizer for the image CDN at cdnBase
func NewSynthesizer(cdnBase string) *Synthesizer {
	return &Synthesizer{cdnBase: cdnBase}
}

// URL returns the delivery URL. Identical inputs always produce identical
// output, so responses keyed by it are cacheable indefinitely.
func (s *Synthesizer) URL(did string, ref Ref, v Variant) (string, error) {
	if did == "" || ref.Link == "" {
		return "", fmt.Errorf("%w: did and content link are required", ErrInvalidVariant)
	}

	switch v.kind {
	case kindRaw:
		if v.host == "" {
			return "", fmt.Errorf("%w: raw delivery needs a repository host", ErrInvalidVariant)
		}
		q := url.Values{}
		q.Set("did", did)
		q.Set("cid", ref.Link)
		return v.host + "/xrpc/com.atproto.sync.getBlob?" + q.Encode(), nil
	case kindCDN:
		switch v.format {
		case FormatJPEG, FormatPNG, FormatWebP:
		default:
			return "", fmt.Errorf("%w: format %q", ErrInvalidVariant, v.format)
		}
		switch v.preset {
		case PresetFullsize, PresetThumbnail:
		default:
			return "", fmt.Errorf("%w: preset %q", ErrInvalidVariant, v.preset)
		}
		return fmt.Sprintf("%s/img/%s/plain/%s/%s@%s",
			s.cdnBase, v.preset, url.PathEscape(did), url.PathEscape(ref.Link), v.format), nil
	default:
		return "", fmt.Errorf("%w: unset variant", ErrInvalidVariant)
	}
}
