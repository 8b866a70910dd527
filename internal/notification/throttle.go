package notification

import (
	"context"
	"errors"
	"log"
	"time"

	"golang.org/x/time/rate"
)

// ErrThrottled is returned when an alert is dropped by the rate limiter.
var ErrThrottled = errors.New("notify: alert rate limit exceeded")

// Throttled wraps a Notifier with a token-bucket limit. Critical alerts
// bypass the limiter.
type Throttled struct {
	next    Notifier
	limiter *rate.Limiter

	// OnDrop is called for every alert the limiter rejects.
	OnDrop func(Alert)
}

// NewThrottled allows perMinute alerts per minute with a burst of the same
// size. A non-positive perMinute disables the limit.
func NewThrottled(next Notifier, perMinute int) *Throttled {
	lim := rate.NewLimiter(rate.Inf, 0)
	if perMinute > 0 {
		lim = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
	}
	return &Throttled{next: next, limiter: lim}
}

func (t *Throttled) Send(ctx context.Context, alert Alert) error {
	if alert.Level != AlertCritical && !t.limiter.Allow() {
		if t.OnDrop != nil {
			t.OnDrop(alert)
		} else {
			log.Printf("[notify] throttled: %s", alert.Text())
		}
		return ErrThrottled
	}
	return t.next.Send(ctx, alert)
}
