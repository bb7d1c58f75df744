package resilience

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"
	"time"
)

// Category is the fixed error taxonomy used to drive retry and reporting.
type Category string

const (
	// CategoryValidation covers client-shaped 4xx responses excluding auth.
	CategoryValidation Category = "validation"
	// CategoryAuthorization covers 401/403 responses.
	CategoryAuthorization Category = "authorization"
	// CategoryRateLimit covers 429 responses; carries a retry-after hint.
	CategoryRateLimit Category = "rate_limit"
	// CategoryUpstream covers 5xx responses from the downstream service.
	CategoryUpstream Category = "upstream"
	// CategoryTransient covers network and timeout failures with no response.
	CategoryTransient Category = "transient"
	// CategoryFatal covers local misconfiguration such as invalid credentials.
	CategoryFatal Category = "fatal"
	// CategoryUnknown is anything unrecognized. Never retried blindly.
	CategoryUnknown Category = "unknown"
)

// Classification tags an error with its category, whether a retry can help,
// whether the message is safe to surface to a user, and an optional
// rate-limit retry-after hint.
type Classification struct {
	Category   Category
	Retryable  bool
	UserFacing bool
	RetryAfter time.Duration
}

var classifications = map[Category]Classification{
	CategoryValidation:    {Category: CategoryValidation, Retryable: false, UserFacing: true},
	CategoryAuthorization: {Category: CategoryAuthorization, Retryable: false, UserFacing: true},
	CategoryRateLimit:     {Category: CategoryRateLimit, Retryable: true, UserFacing: true},
	CategoryUpstream:      {Category: CategoryUpstream, Retryable: true, UserFacing: false},
	CategoryTransient:     {Category: CategoryTransient, Retryable: true, UserFacing: false},
	CategoryFatal:         {Category: CategoryFatal, Retryable: false, UserFacing: false},
	CategoryUnknown:       {Category: CategoryUnknown, Retryable: false, UserFacing: false},
}

// ClassifiedError carries an explicit category through an error chain.
type ClassifiedError struct {
	Err        error
	Category   Category
	StatusCode int
	RetryAfter time.Duration
}

func (e *ClassifiedError) Error() string {
	return e.Err.Error()
}

func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// NewClassifiedError tags err with an explicit category.
func NewClassifiedError(err error, category Category) *ClassifiedError {
	return &ClassifiedError{Err: err, Category: category}
}

// statusCoder is implemented by errors that carry an HTTP status code,
// such as API client errors. Keeps client packages decoupled from this one.
type statusCoder interface {
	HTTPStatus() int
}

// retryAfterHinter is implemented by errors that carry a server-supplied
// retry-after hint.
type retryAfterHinter interface {
	RetryAfterHint() time.Duration
}

// CategoryForStatus maps an HTTP status code into the taxonomy.
func CategoryForStatus(status int) Category {
	switch {
	case status == 401 || status == 403:
		return CategoryAuthorization
	case status == 429:
		return CategoryRateLimit
	case status >= 400 && status < 500:
		return CategoryValidation
	case status >= 500:
		return CategoryUpstream
	default:
		return CategoryUnknown
	}
}

// FromHTTPStatus wraps err as a ClassifiedError according to the status code.
func FromHTTPStatus(err error, status int, retryAfter time.Duration) *ClassifiedError {
	return &ClassifiedError{
		Err:        err,
		Category:   CategoryForStatus(status),
		StatusCode: status,
		RetryAfter: retryAfter,
	}
}

// Classify maps any error into the fixed taxonomy. Unrecognized errors are
// CategoryUnknown and not retryable.
func Classify(err error) Classification {
	if err == nil {
		return Classification{}
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		cls := classifications[ce.Category]
		if ce.RetryAfter > 0 {
			cls.RetryAfter = ce.RetryAfter
		}
		return cls
	}

	var sc statusCoder
	if errors.As(err, &sc) {
		cls := classifications[CategoryForStatus(sc.HTTPStatus())]
		var rh retryAfterHinter
		if errors.As(err, &rh) && rh.RetryAfterHint() > 0 {
			cls.RetryAfter = rh.RetryAfterHint()
		}
		return cls
	}

	if isTransport(err) {
		return classifications[CategoryTransient]
	}

	return classifications[CategoryUnknown]
}

// IsRetryable reports whether a retry can help with err.
func IsRetryable(err error) bool {
	return Classify(err).Retryable
}

// isTransport returns true for network-level failures where no response was
// received: timeouts, connection resets, DNS failures.
func isTransport(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// String-based heuristics for wrapped errors from HTTP clients.
	msg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
		"transport connection broken",
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}
