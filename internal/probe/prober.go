// Package probe implements HTTP readiness probing for managed services.
//
// A probe is a bounded GET against the service's readiness endpoint. Any
// connection failure, timeout, or non-2xx status is NotReady - an expected
// condition while a service boots, not an error. Only a response the prober
// cannot make sense of is classified as a probe error, and even then it is
// treated as NotReady for scheduling purposes.
package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Result classifies one probe attempt.
type Result int

const (
	NotReady Result = iota
	Ready
	ProbeError
)

func (r Result) String() string {
	switch r {
	case Ready:
		return "Ready"
	case NotReady:
		return "NotReady"
	case ProbeError:
		return "ProbeError"
	default:
		return "Unknown"
	}
}

// ErrTimedOut is returned by AwaitReady when the deadline elapses before the
// service reports ready.
var ErrTimedOut = errors.New("timed out waiting for service to become ready")

// Prober polls a single readiness URL.
type Prober struct {
	// Interval is the polling period for AwaitReady.
	Interval time.Duration

	client *http.Client
}

// New creates a prober. Each request is bounded by requestTimeout so a hung
// endpoint cannot stall the polling loop past its interval.
func New(interval, requestTimeout time.Duration) *Prober {
	if interval <= 0 {
		interval = time.Second
	}
	if requestTimeout <= 0 {
		requestTimeout = interval
	}
	return &Prober{
		Interval: interval,
		client: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

// Probe issues a single readiness request. The returned error carries the
// diagnostic detail for NotReady and ProbeError results; it is nil for Ready.
func (p *Prober) Probe(ctx context.Context, url string) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ProbeError, fmt.Errorf("failed to build probe request for %s: %w", url, err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		// Connection refused, reset, DNS failure, timeout: the service is
		// simply not ready yet.
		return NotReady, fmt.Errorf("probe %s: %w", url, err)
	}
	defer resp.Body.Close()

	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return ProbeError, fmt.Errorf("probe %s: reading response: %w", url, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return Ready, nil
	}
	return NotReady, fmt.Errorf("probe %s: status %d", url, resp.StatusCode)
}

// AwaitReady polls until the endpoint reports Ready or ctx is done. The
// caller supplies the deadline via ctx; expiry maps to ErrTimedOut (wrapped
// with the last observation, so failures name what was seen). A probe error
// is logged no differently from NotReady here: both just mean "keep polling".
func (p *Prober) AwaitReady(ctx context.Context, url string) error {
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	var lastErr error
	for {
		result, err := p.Probe(ctx, url)
		if result == Ready {
			return nil
		}
		lastErr = err

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				if lastErr != nil {
					return fmt.Errorf("%w (last: %v)", ErrTimedOut, lastErr)
				}
				return ErrTimedOut
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
