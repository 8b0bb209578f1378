package httpx

import (
	"net/http"
	"time"
)

// RetryPolicy describes retries of server errors. The first retry waits
// BaseDelay and every further retry waits twice as long, up to MaxDelay.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

func (p RetryPolicy) Normalize() RetryPolicy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = time.Second
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 30 * time.Second
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	return p
}

// Delay returns the wait before retry number retry (1-based).
func (p RetryPolicy) Delay(retry int) time.Duration {
	p = p.Normalize()
	d := p.BaseDelay
	for i := 1; i < retry; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return d
}

func IsServerError(status int) bool {
	return status >= 500 && status <= 599
}

func IsSuccess(status int) bool {
	return status >= 200 && status <= 299
}

func IsAuthFailure(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}
