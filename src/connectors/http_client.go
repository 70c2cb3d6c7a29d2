package connectors

import (
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	defaultRetryBaseDelay  = 300 * time.Millisecond
	defaultRetryMaxBackoff = 3 * time.Second
)

func isRetryableResp(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}

	if r == nil {
		return false
	}

	code := r.StatusCode()

	if code >= 500 && code <= 599 {
		return true
	}
	if code == 429 {
		return true
	}
	if code == 408 {
		return true
	}
	return false
}

// newRestyClient builds a JSON client for read-only upstream APIs.
// retries <= 0 disables retrying.
func newRestyClient(baseURL string, timeout time.Duration, retries int) *resty.Client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	if retries > 0 {
		c.SetRetryCount(retries).
			SetRetryWaitTime(defaultRetryBaseDelay).
			SetRetryMaxWaitTime(defaultRetryMaxBackoff).
			AddRetryCondition(isRetryableResp)
	}
	return c
}

// isTransientStatus reports HTTP statuses worth trying again on a later cycle.
func isTransientStatus(code int) bool {
	return code >= 500 || code == 429 || code == 408
}
