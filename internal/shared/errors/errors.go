package errors

import "errors"

// Error codes attached with oops.Code so callers and logs can tell the
// failure classes apart.
const (
	CodeUpstreamUnavailable = "upstream_unavailable"
	CodePersistenceFailure  = "persistence_failure"
	CodeUnsupportedFormat   = "unsupported_format"
)

var (
	ErrMissingRepositoryURL = errors.New("REPOSITORY_URL environment variable is required")
	ErrUpstreamUnavailable  = errors.New("listing source unavailable")
	ErrCacheNotFound        = errors.New("cache entry not found")
	ErrUnsupportedFormat    = errors.New("unsupported feed format")
	ErrInvalidCacheKey      = errors.New("invalid cache key")
)
