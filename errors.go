package weft

import (
	"errors"

	"github.com/casualjim/weft/provider"
)

// Errors returned by calls in this package. They are defined in the provider
// package so that model implementations can return them too.
type (
	APICallError                 = provider.APICallError
	StreamError                  = provider.StreamError
	AbortError                   = provider.AbortError
	RetryError                   = provider.RetryError
	UnsupportedModelVersionError = provider.UnsupportedModelVersionError
	NoSuchModelError             = provider.NoSuchModelError
	NoSuchProviderError          = provider.NoSuchProviderError
	InvalidArgumentError         = provider.InvalidArgumentError
	TypeValidationError          = provider.TypeValidationError
	NoSuchToolError              = provider.NoSuchToolError
	InvalidToolInputError        = provider.InvalidToolInputError
	ToolCallRepairError          = provider.ToolCallRepairError
	NoObjectGeneratedError       = provider.NoObjectGeneratedError
	NoContentGeneratedError      = provider.NoContentGeneratedError
)

// ErrNoOutputSpecified is returned when a structured output call has no
// schema to work with.
var ErrNoOutputSpecified = provider.ErrNoOutputSpecified

// IsAbort reports whether err was caused by cancelling the call's context.
func IsAbort(err error) bool { return provider.IsAbort(err) }

// IsNoObjectGenerated reports whether err is a *NoObjectGeneratedError and
// returns it.
func IsNoObjectGenerated(err error) (*NoObjectGeneratedError, bool) {
	var target *NoObjectGeneratedError
	ok := errors.As(err, &target)
	return target, ok
}

// IsNoSuchTool reports whether err is a *NoSuchToolError.
func IsNoSuchTool(err error) bool {
	var target *NoSuchToolError
	return errors.As(err, &target)
}
