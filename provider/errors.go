package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNoOutputSpecified is returned when structured output is requested
// without a schema or output strategy.
var ErrNoOutputSpecified = errors.New("no output specified")

// APICallError is a failed request to a provider API.
type APICallError struct {
	URL         string
	StatusCode  int
	Body        string
	IsRetryable bool
	Cause       error
}

func (e *APICallError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("api call to %s failed with status %d: %v", e.URL, e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("api call to %s failed with status %d", e.URL, e.StatusCode)
}

func (e *APICallError) Unwrap() error { return e.Cause }

// RetryableStatus reports whether an HTTP status code is worth retrying.
func RetryableStatus(code int) bool {
	return code == 408 || code == 409 || code == 429 || code >= 500
}

// IsRetryable reports whether err is an APICallError marked retryable.
func IsRetryable(err error) bool {
	var apiErr *APICallError
	return errors.As(err, &apiErr) && apiErr.IsRetryable
}

// StreamError wraps a provider or network failure that ended a stream.
type StreamError struct {
	Err error
}

func (e *StreamError) Error() string { return fmt.Sprintf("stream failed: %v", e.Err) }
func (e *StreamError) Unwrap() error { return e.Err }

// AbortError reports a call that was cancelled through its context.
// errors.Is(err, context.Canceled) holds for a cancelled context.
type AbortError struct {
	Err error
}

func (e *AbortError) Error() string { return fmt.Sprintf("aborted: %v", e.Err) }
func (e *AbortError) Unwrap() error { return e.Err }

// IsAbort reports whether err stems from context cancellation or deadline.
func IsAbort(err error) bool {
	var abort *AbortError
	return errors.As(err, &abort) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

type RetryReason string

const (
	RetryReasonMaxRetriesExceeded RetryReason = "maxRetriesExceeded"
	RetryReasonErrorNotRetryable  RetryReason = "errorNotRetryable"
	RetryReasonAbort              RetryReason = "abort"
)

// RetryError collects every failure of a retried call.
type RetryError struct {
	Reason    RetryReason
	Errors    []error
	LastError error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("failed after %d attempts (%s): %v", len(e.Errors), e.Reason, e.LastError)
}

func (e *RetryError) Unwrap() error { return e.LastError }

type UnsupportedModelVersionError struct {
	Version  string
	Provider string
	ModelID  string
}

func (e *UnsupportedModelVersionError) Error() string {
	return fmt.Sprintf("unsupported model version %q for %s:%s, expected %q", e.Version, e.Provider, e.ModelID, SpecificationV2)
}

type NoSuchModelError struct {
	ModelID   string
	ModelType string
}

func (e *NoSuchModelError) Error() string {
	return fmt.Sprintf("no such %s model: %s", e.ModelType, e.ModelID)
}

type NoSuchProviderError struct {
	ProviderID         string
	AvailableProviders []string
}

func (e *NoSuchProviderError) Error() string {
	return fmt.Sprintf("no such provider: %s (available: %s)", e.ProviderID, strings.Join(e.AvailableProviders, ", "))
}

type InvalidArgumentError struct {
	Argument string
	Message  string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid argument %s: %s", e.Argument, e.Message)
}

// TypeValidationError is a value that does not match its schema.
type TypeValidationError struct {
	Value any
	Cause error
}

func (e *TypeValidationError) Error() string {
	return fmt.Sprintf("type validation failed: %v", e.Cause)
}

func (e *TypeValidationError) Unwrap() error { return e.Cause }

// NoSuchToolError is a tool call naming a tool that is not registered.
type NoSuchToolError struct {
	ToolName       string
	AvailableTools []string
}

func (e *NoSuchToolError) Error() string {
	if len(e.AvailableTools) == 0 {
		return fmt.Sprintf("model tried to call unavailable tool %q, no tools are available", e.ToolName)
	}
	return fmt.Sprintf("model tried to call unavailable tool %q, available tools: %s", e.ToolName, strings.Join(e.AvailableTools, ", "))
}

// InvalidToolInputError is a tool call whose input does not parse or does
// not match the tool's input schema.
type InvalidToolInputError struct {
	ToolName  string
	ToolInput string
	Cause     error
}

func (e *InvalidToolInputError) Error() string {
	return fmt.Sprintf("invalid input for tool %s: %v", e.ToolName, e.Cause)
}

func (e *InvalidToolInputError) Unwrap() error { return e.Cause }

// ToolCallRepairError is a failed attempt to repair a tool call.
type ToolCallRepairError struct {
	OriginalErr error
	Cause       error
}

func (e *ToolCallRepairError) Error() string {
	return fmt.Sprintf("error repairing tool call: %v (original: %v)", e.Cause, e.OriginalErr)
}

func (e *ToolCallRepairError) Unwrap() []error { return []error{e.Cause, e.OriginalErr} }

// NoObjectGeneratedError reports a structured generation that produced no
// valid object. It keeps the raw text and response details for diagnostics.
type NoObjectGeneratedError struct {
	Text         string
	Response     ResponseInfo
	Usage        Usage
	FinishReason FinishReason
	Cause        error
}

func (e *NoObjectGeneratedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("no object generated: %v", e.Cause)
	}
	return "no object generated"
}

func (e *NoObjectGeneratedError) Unwrap() error { return e.Cause }

// NoContentGeneratedError reports a media call that returned nothing.
type NoContentGeneratedError struct {
	Kind      string
	Responses []ResponseInfo
}

func (e *NoContentGeneratedError) Error() string {
	return fmt.Sprintf("no %s generated", e.Kind)
}
