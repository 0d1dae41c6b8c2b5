package resilience

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/openai/openai-go"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
)

// Settings configures a Guard.
type Settings struct {
	Name              string
	RequestsPerMinute int           // 0 disables rate limiting
	Timeout           time.Duration // per call, 0 disables
}

// Guard protects calls to an external service with a rate limiter, a
// per-call timeout and a circuit breaker.
type Guard struct {
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	timeout time.Duration
}

func NewGuard(s Settings, log logrus.FieldLogger) *Guard {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		// caller mistakes and cancellations say nothing about service health
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("circuit breaker state changed")
		},
	})

	var limiter *rate.Limiter
	if s.RequestsPerMinute > 0 {
		burst := s.RequestsPerMinute / 10
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(float64(s.RequestsPerMinute)/60.0), burst)
	}

	return &Guard{breaker: breaker, limiter: limiter, timeout: s.Timeout}
}

// Do waits for the rate limiter, then runs fn through the circuit breaker
// with the per-call timeout applied to ctx.
func Do[T any](ctx context.Context, g *Guard, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return zero, ctx.Err()
			}
			// the deadline is too close to ever get a token
			return zero, errors.Join(err, context.DeadlineExceeded)
		}
	}

	result, err := g.breaker.Execute(func() (interface{}, error) {
		callCtx := ctx
		if g.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, g.timeout)
			defer cancel()
		}
		return fn(callCtx)
	})
	if err != nil {
		return zero, err
	}
	return result.(T), nil
}

// State exposes the breaker state for health reporting.
func (g *Guard) State() string {
	return g.breaker.State().String()
}

// Retryable reports whether a provider error is transient: timeouts,
// network failures, rate limiting, server errors and an open breaker.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, gobreaker.ErrOpenState) ||
		errors.Is(err, gobreaker.ErrTooManyRequests) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return retryableStatus(gerr.Code)
	}

	var oerr *openai.Error
	if errors.As(err, &oerr) {
		return retryableStatus(oerr.StatusCode)
	}

	return false
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
