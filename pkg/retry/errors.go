package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"syscall"

	"github.com/aretw0/waypoint/pkg/domain"
)

// CircuitOpenError is returned without invoking the wrapped function while a
// service's breaker is open.
type CircuitOpenError struct {
	Service string
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker open for %s", e.Service)
}

func (e *CircuitOpenError) Unwrap() error {
	return domain.ErrCircuitOpen
}

// RetryableCodes are the error codes treated as transient.
var RetryableCodes = map[string]bool{
	"ECONNRESET":          true,
	"ETIMEDOUT":           true,
	"ECONNREFUSED":        true,
	"EPIPE":               true,
	"ENOTFOUND":           true,
	"EAI_AGAIN":           true,
	"RATE_LIMIT_EXCEEDED": true,
	"SERVICE_UNAVAILABLE": true,
}

// RetryableStatuses are the HTTP statuses treated as transient.
var RetryableStatuses = map[int]bool{
	429: true,
	500: true,
	502: true,
	503: true,
	504: true,
}

var retryableMessage = regexp.MustCompile(`(?i)timeout|network|connection|rate limit`)

var retryableErrnos = []error{
	syscall.ECONNRESET,
	syscall.ECONNREFUSED,
	syscall.ETIMEDOUT,
	syscall.EPIPE,
}

// IsRetryable reports whether err is worth another attempt.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, domain.ErrCircuitOpen) || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var remote *domain.RemoteError
	if errors.As(err, &remote) {
		if RetryableCodes[remote.Code] || RetryableStatuses[remote.Status] {
			return true
		}
		// A known non-retryable status is final regardless of its message.
		if remote.Status >= 400 {
			return false
		}
	}

	for _, errno := range retryableErrnos {
		if errors.Is(err, errno) {
			return true
		}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return retryableMessage.MatchString(err.Error())
}
