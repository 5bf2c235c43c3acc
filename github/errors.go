package github

import (
	"context"
	"errors"
)

// Classified remote failures. Every error returned by Client.Fetch wraps
// exactly one of these (RemoteUnavailable may additionally wrap RateLimited).
var (
	ErrUnauthorized      = errors.New("unauthorized")
	ErrNotFound          = errors.New("not found")
	ErrRateLimited       = errors.New("rate limited")
	ErrRemoteUnavailable = errors.New("remote unavailable")
)

// Error kinds as reported to callers.
const (
	KindUnauthorized      = "unauthorized"
	KindNotFound          = "not_found"
	KindRateLimited       = "rate_limited"
	KindRemoteUnavailable = "remote_unavailable"
	KindCancelled         = "cancelled"
	KindInternal          = "internal"
)

// KindOf maps an error onto the taxonomy above.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCancelled
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrRemoteUnavailable):
		return KindRemoteUnavailable
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	default:
		return KindInternal
	}
}
