package model

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hupe1980/raaf/core"
)

// ClassifyHTTP maps a provider HTTP status into the core taxonomy. cause is
// kept in the chain so callers can still errors.As the vendor error.
func ClassifyHTTP(status int, header http.Header, cause error) error {
	if cause == nil {
		cause = fmt.Errorf("status %d", status)
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: %w", core.ErrAuthenticationFailed, cause)
	case status == http.StatusTooManyRequests:
		rl := &core.RateLimitError{Cause: cause}
		if d, ok := ParseRetryAfter(header, time.Now()); ok {
			rl.RetryAfter = d
		}
		return rl
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return fmt.Errorf("%w: %w", core.ErrTimeout, cause)
	case status >= 500:
		return fmt.Errorf("%w: %w", core.ErrProviderUnavailable, cause)
	case status == http.StatusBadRequest || status == http.StatusNotFound || status == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %w", core.ErrInvalidArgument, cause)
	}
	return cause
}

// ClassifyError maps transport level failures (no HTTP status) into the core
// taxonomy. Errors that already carry a taxonomy kind pass through.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}
	if core.KindOf(err) != "Internal" {
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, core.ErrTimeout) {
			return fmt.Errorf("%w: %w", core.ErrTimeout, err)
		}
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return fmt.Errorf("%w: %w", core.ErrTimeout, err)
		}
		return fmt.Errorf("%w: %w", core.ErrProviderUnavailable, err)
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "connection refused") || strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "eof") || strings.Contains(msg, "no such host") {
		return fmt.Errorf("%w: %w", core.ErrProviderUnavailable, err)
	}
	return err
}

// ParseRetryAfter reads Retry-After (seconds or HTTP date) and the
// retry-after-ms extension some providers send.
func ParseRetryAfter(header http.Header, now time.Time) (time.Duration, bool) {
	if header == nil {
		return 0, false
	}
	if v := header.Get("Retry-After-Ms"); v != "" {
		if ms, err := strconv.ParseFloat(v, 64); err == nil && ms >= 0 {
			return time.Duration(ms * float64(time.Millisecond)), true
		}
	}
	v := strings.TrimSpace(header.Get("Retry-After"))
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil && secs >= 0 {
		return time.Duration(secs * float64(time.Second)), true
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d, true
		}
		return 0, true
	}
	return 0, false
}
