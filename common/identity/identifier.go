package identity

import (
	"fmt"
	"regexp"
	"strings"
)

// Kind tells which grammar an identifier matched
type Kind int

const (
	KindDID Kind = iota + 1
	KindHandle
)

func (k Kind) String() string {
	switch k {
	case KindDID:
		return "did"
	case KindHandle:
		return "handle"
	default:
		return "unknown"
	}
}

const (
	maxDIDLength    = 2048
	maxHandleLength = 253
)

var (
	didPattern    = regexp.MustCompile(`^did:[a-z]+:[a-zA-Z0-9._:%-]*[a-zA-Z0-9._-]$`)
	handlePattern = regexp.MustCompile(`^([a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)+[a-zA-Z]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?$`)
)

// Identifier is a classified public identifier
type Identifier struct {
	Kind  Kind
	Value string
}

func (i Identifier) String() string {
	return i.Value
}

// IsDID reports whether s matches the DID grammar
func IsDID(s string) bool {
	return len(s) <= maxDIDLength && didPattern.MatchString(s)
}

// IsHandle reports whether s matches the handle grammar
func IsHandle(s string) bool {
	return len(s) <= maxHandleLength && handlePattern.MatchString(s)
}

// Classify decides whether s is a DID or a handle without touching the network.
// Handles are case-insensitive and returned lower-cased.
func Classify(s string) (Identifier, error) {
	switch {
	case IsDID(s):
		return Identifier{Kind: KindDID, Value: s}, nil
	case IsHandle(s):
		return Identifier{Kind: KindHandle, Value: strings.ToLower(s)}, nil
	default:
		return Identifier{}, fmt.Errorf("%w: %q", ErrUnrecognizedIdentifier, s)
	}
}
