package resilience

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"
)

// HTTPClient sends requests to one upstream with a per-attempt timeout, bounded retries and
// an optional circuit breaker. Network errors, 429 and 5xx responses are retried.
type HTTPClient struct {
	Client      *http.Client
	Breaker     *Breaker
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	Timeout     time.Duration
}

// StatusError reports a retryable upstream status that survived every attempt.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return "resilience: upstream responded " + e.Status
}

// Do sends req, replaying its body on every attempt. The returned response belongs to the
// caller, who must close its body.
func (cl HTTPClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if cl.Client == nil {
		return nil, errors.New("resilience: http client not configured")
	}
	body, err := bufferBody(req)
	if err != nil {
		return nil, err
	}
	attempts := max(cl.MaxAttempts, 1)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if !cl.Breaker.Allow(ctx) {
			if lastErr != nil {
				return nil, errors.Join(ErrOpenCircuit, lastErr)
			}
			return nil, ErrOpenCircuit
		}
		resp, err := cl.send(ctx, req, body)
		wait, reason := cl.retryAfter(resp, err, attempt)
		if reason == "" {
			cl.Breaker.Report(ctx, true)
			return resp, nil
		}
		cl.Breaker.Report(ctx, false)
		if err != nil {
			lastErr = err
		} else {
			lastErr = &StatusError{Code: resp.StatusCode, Status: resp.Status}
			discard(resp)
		}
		if attempt == attempts {
			break
		}
		UpstreamRetries.WithLabelValues(cl.Breaker.Target(), reason).Inc()
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, errors.Join(ctx.Err(), lastErr)
		case <-timer.C:
		}
	}
	return nil, lastErr
}

// retryAfter classifies one attempt. An empty reason means the response is final.
func (cl HTTPClient) retryAfter(resp *http.Response, err error, attempt int) (time.Duration, string) {
	wait := cl.backoff(attempt)
	switch {
	case err != nil:
		return wait, "transport"
	case resp.StatusCode == http.StatusTooManyRequests:
		if secs, convErr := strconv.Atoi(resp.Header.Get("Retry-After")); convErr == nil && secs > 0 {
			wait = min(time.Duration(secs)*time.Second, cl.maxBackoff())
		}
		return wait, "throttled"
	case resp.StatusCode >= 500:
		return wait, "server_error"
	default:
		return 0, ""
	}
}

// backoff doubles from BaseBackoff per attempt with up to 20% jitter either way.
func (cl HTTPClient) backoff(attempt int) time.Duration {
	base := cl.BaseBackoff
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	d := base << (attempt - 1)
	d += time.Duration((rand.Float64()*0.4 - 0.2) * float64(d))
	return min(d, cl.maxBackoff())
}

func (cl HTTPClient) maxBackoff() time.Duration {
	if cl.MaxBackoff > 0 {
		return cl.MaxBackoff
	}
	return 5 * time.Second
}

func (cl HTTPClient) send(ctx context.Context, req *http.Request, body []byte) (*http.Response, error) {
	timeout := cl.Timeout
	if timeout <= 0 {
		timeout = cl.Client.Timeout
	}
	var (
		callCtx context.Context
		cancel  context.CancelFunc
	)
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		callCtx, cancel = context.WithCancel(ctx)
	}
	attempt := req.Clone(callCtx)
	if body != nil {
		attempt.Body = io.NopCloser(bytes.NewReader(body))
		attempt.ContentLength = int64(len(body))
	}
	resp, err := cl.Client.Do(attempt)
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// cancelOnClose keeps the attempt context alive until the caller closes the body.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

func bufferBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	defer func() { _ = req.Body.Close() }()
	return io.ReadAll(req.Body)
}

func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
