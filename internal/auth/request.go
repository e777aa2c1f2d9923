package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrMissingAuth is returned when the endpoint answers without an auth field.
var ErrMissingAuth = errors.New("auth endpoint returned no auth signature")

// EndpointError is a non-2xx answer from the auth endpoint.
type EndpointError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *EndpointError) Error() string {
	return fmt.Sprintf("auth endpoint error %d: %s", e.StatusCode, e.Message)
}

// IsRetryable returns true if the error should trigger a retry.
func (e *EndpointError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// doRequest posts form to the endpoint.
func (a *Authorizer) doRequest(ctx context.Context, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	for k, vs := range a.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		return nil, &EndpointError{
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
			Body:       body,
		}
	}

	return body, nil
}

// doWithRetry performs a request with exponential backoff retry.
func (a *Authorizer) doWithRetry(ctx context.Context, form url.Values) ([]byte, error) {
	var lastErr error
	backoff := a.retryBackoff

	for attempt := 0; attempt <= a.maxRetries; attempt++ {
		if attempt > 0 {
			// backoff * (0.5 to 1.5)
			jitter := backoff / 2
			if backoff > 0 {
				jitter += time.Duration(rand.Int64N(int64(backoff)))
			}
			a.logger.Debug("retrying auth request",
				"attempt", attempt,
				"backoff", jitter,
				"channel", form.Get("channel_name"),
			)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(jitter):
			}

			backoff *= 2
		}

		body, err := a.doRequest(ctx, form)
		if err == nil {
			return body, nil
		}

		lastErr = err

		var endpointErr *EndpointError
		if !errors.As(err, &endpointErr) || !endpointErr.IsRetryable() {
			return nil, err
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}
