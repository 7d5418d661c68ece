package identity

import "errors"

var (
	// ErrUnrecognizedIdentifier means the input is neither a DID nor a handle.
	// It is terminal: callers answer not-found and never retry.
	ErrUnrecognizedIdentifier = errors.New("not a recognized identifier")

	// ErrResolutionFailed means a handle has no bound DID or the resolver could not be reached
	ErrResolutionFailed = errors.New("handle resolution failed")

	// ErrIdentityUnresolvable means the DID document could not be fetched or has no usable PDS endpoint
	ErrIdentityUnresolvable = errors.New("identity unresolvable")
)
