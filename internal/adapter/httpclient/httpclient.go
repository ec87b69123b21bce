// Package httpclient holds the pieces shared by the backend clients: the HTTP client, the
// circuit breaker and the request observer.
package httpclient

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

const (
	breakerConsecutiveFailures = 5
	breakerOpenTimeout         = 30 * time.Second
	breakerHalfOpenRequests    = 1
)

// Request outcomes reported to an Observer.
const (
	OutcomeSuccess     = "success"
	OutcomeRejected    = "rejected"
	OutcomeError       = "error"
	OutcomeBreakerOpen = "breaker_open"
)

// Observer receives request timings and breaker transitions. metrics.BackendMetrics satisfies it.
type Observer interface {
	ObserveRequest(backend, operation, outcome string, d time.Duration)
	SetBreakerState(component string, state float64)
}

type nopObserver struct{}

func (nopObserver) ObserveRequest(string, string, string, time.Duration) {}
func (nopObserver) SetBreakerState(string, float64)                     {}

// OrNop returns o, or an observer that discards everything when o is nil.
func OrNop(o Observer) Observer {
	if o == nil {
		return nopObserver{}
	}
	return o
}

// New returns an HTTP client whose requests are bounded by timeout.
func New(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        20,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// StatusError reports a non-2xx response without a usable body.
type StatusError struct {
	Backend    string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s backend responded with status %d", e.Backend, e.StatusCode)
}

// NewBreaker creates a circuit breaker that opens after consecutive failures and probes again
// after breakerOpenTimeout. Breaker transitions are logged and reported to the observer.
func NewBreaker(name string, observer Observer) *gobreaker.CircuitBreaker {
	observer = OrNop(observer)
	observer.SetBreakerState(name, StateValue(gobreaker.StateClosed))

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: breakerHalfOpenRequests,
		Timeout:     breakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Circuit breaker state changed",
				"component", name,
				"from", from.String(),
				"to", to.String(),
			)
			observer.SetBreakerState(name, StateValue(to))
		},
	})
}

// StateValue maps a breaker state to the gauge value (0=closed, 1=half-open, 2=open).
func StateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// IsBreakerOpen reports whether err came from a breaker refusing the call.
func IsBreakerOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// Outcome classifies err for an Observer.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case IsBreakerOpen(err):
		return OutcomeBreakerOpen
	default:
		return OutcomeError
	}
}
