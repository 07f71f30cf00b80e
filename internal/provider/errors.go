package provider

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a provider failure. Retry and failover decisions key off the
// kind, never off provider-specific status codes.
type Kind int

const (
	// KindTransient covers network failures and 5xx responses. Retryable.
	KindTransient Kind = iota
	// KindRateLimited marks a 429. Retryable after backoff.
	KindRateLimited
	// KindSchema marks a payload that failed validation or decoding. The same
	// call would fail again, so it is never retried.
	KindSchema
	// KindNotFound marks a token the provider does not know.
	KindNotFound
	// KindUnsupported marks a chain the provider cannot serve.
	KindUnsupported
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindRateLimited:
		return "rate_limited"
	case KindSchema:
		return "schema"
	case KindNotFound:
		return "not_found"
	case KindUnsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// Error is the uniform failure type returned by every provider client.
type Error struct {
	Provider string
	Op       string
	Kind     Kind
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %s: %v", e.Provider, e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Permanent reports whether retrying the identical call cannot succeed.
func (e *Error) Permanent() bool {
	return e.Kind == KindSchema || e.Kind == KindNotFound || e.Kind == KindUnsupported
}

func newError(providerName, op string, kind Kind, err error) *Error {
	return &Error{Provider: providerName, Op: op, Kind: kind, Err: err}
}

func schemaError(providerName, op string, err error) *Error {
	return newError(providerName, op, KindSchema, err)
}

func notFoundError(providerName, op, what string) *Error {
	return newError(providerName, op, KindNotFound, errors.New(what))
}

func unsupportedError(providerName, op string, chain string) *Error {
	return newError(providerName, op, KindUnsupported, fmt.Errorf("chain %s not served", chain))
}

// classifyStatus maps a non-200 response to an Error. 429 is rate limited,
// 404 is not found, remaining 4xx are permanent schema failures (the request
// itself is wrong), everything else is transient.
func classifyStatus(providerName, op string, status int, body []byte) *Error {
	err := fmt.Errorf("status %d: %s", status, truncate(body, 200))
	switch {
	case status == http.StatusTooManyRequests:
		return newError(providerName, op, KindRateLimited, err)
	case status == http.StatusNotFound:
		return newError(providerName, op, KindNotFound, err)
	case status >= 400 && status < 500:
		return newError(providerName, op, KindSchema, err)
	default:
		return newError(providerName, op, KindTransient, err)
	}
}

func kindOf(err error) (Kind, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return 0, false
}

func IsSchema(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindSchema
}

func IsNotFound(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindNotFound
}

func IsRateLimited(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindRateLimited
}

func IsUnsupported(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindUnsupported
}

func truncate(body []byte, n int) string {
	if len(body) <= n {
		return string(body)
	}
	return string(body[:n]) + "..."
}
