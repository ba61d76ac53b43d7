package publisher

import (
	"errors"
	"fmt"

	"github.com/bachasia/schedy-sub001/internal/models"
)

// ErrorKind classifies a publish failure by what re-attempting would achieve,
// not by transport detail. Every adapter maps its platform's errors into
// exactly one kind; the queue only ever reasons about retryability.
type ErrorKind string

const (
	KindTokenExpired     ErrorKind = "token_expired"
	KindRateLimited      ErrorKind = "rate_limited"
	KindInvalidMedia     ErrorKind = "invalid_media"
	KindPermissionDenied ErrorKind = "permission_denied"
	KindSpamOrQuotaRisk  ErrorKind = "spam_or_quota_risk"
	KindUnknown          ErrorKind = "unknown"
)

type Error struct {
	Kind     ErrorKind
	Platform models.Platform
	Message  string
	Err      error

	// Structural marks a pre-dispatch policy rejection (text-only post on a
	// media-only network, say). The content itself can never publish, so no
	// retry budget is spent on it regardless of Kind.
	Structural bool
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Platform, e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Platform, e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(platform models.Platform, kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Platform: platform, Message: message, Err: err}
}

// NewStructuralError reports a policy violation caught before any network
// call was made.
func NewStructuralError(platform models.Platform, kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Platform: platform, Message: message, Structural: true}
}

// IsStructural reports whether err is a pre-dispatch policy rejection.
func IsStructural(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Structural
}

// KindOf extracts the classification from any error chain; unclassified
// failures (network, decode, ...) count as Unknown.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnknown
}

// AttemptContext carries immutable attempt bookkeeping into retry decisions.
// Attempt is 1-based: the first delivery of a job is attempt 1.
type AttemptContext struct {
	Attempt     int
	MaxAttempts int
}

// Retryable decides whether the queue should re-schedule after err.
// TokenExpired is only conditionally retryable (a refresh has to succeed
// first); the worker resolves that before consulting this table, so here it
// follows the ordinary budget. SpamOrQuotaRisk and PermissionDenied never
// retry: burning budget on them cannot help.
func Retryable(err error, ac AttemptContext) bool {
	if ac.Attempt >= ac.MaxAttempts {
		return false
	}
	if IsStructural(err) {
		return false
	}
	switch KindOf(err) {
	case KindRateLimited, KindUnknown, KindTokenExpired:
		return true
	case KindInvalidMedia:
		// One retry covers a transient CDN hiccup; after that the media
		// itself is the problem.
		return ac.Attempt < 2
	default:
		return false
	}
}
