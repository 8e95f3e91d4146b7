package types

import "errors"

// Error taxonomy for the pipeline. Providers wrap their failures in one of
// these so callers can pick a policy without knowing the vendor.
var (
	// ErrProviderTransient marks timeouts and rate limits. Retried per policy.
	ErrProviderTransient = errors.New("provider transient error")

	// ErrProviderMalformed marks unparseable provider output. Treated as an
	// empty or default result, never retried.
	ErrProviderMalformed = errors.New("malformed provider response")

	// ErrValidation marks a bad ingestion entry or filter key, rejected before
	// any write happens.
	ErrValidation = errors.New("validation error")

	// ErrNotFound marks a missing resource, like an absent entry file.
	ErrNotFound = errors.New("no relevant documents found")

	// ErrPersistence marks ledger store failures, surfaced to the operator.
	ErrPersistence = errors.New("persistence error")
)

// IsTransient reports whether err is worth a fallback-tier attempt.
func IsTransient(err error) bool {
	return errors.Is(err, ErrProviderTransient)
}

// IsMalformed reports whether err came from unparseable provider output.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrProviderMalformed)
}
