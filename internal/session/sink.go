package session

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/andreyvoland980-afk/xrp-analysis-spa/internal/metrics"
	"github.com/andreyvoland980-afk/xrp-analysis-spa/internal/model"
	"github.com/andreyvoland980-afk/xrp-analysis-spa/internal/notification"
)

const sinkTimeout = 5 * time.Second

// AlertFor maps an event to the alert it should raise, if any.
func AlertFor(e Event) (notification.Alert, bool) {
	switch e.Type {
	case EventPosition:
		if e.Position != nil {
			return notification.EntryAlert(*e.Position), true
		}
	case EventExit:
		if e.Exit != nil {
			return notification.ExitAlert(*e.Exit), true
		}
	case EventCross:
		if e.Cross != nil {
			return notification.CrossAlert(*e.Cross), true
		}
	}
	return notification.Alert{}, false
}

// Alerter delivers alerts for position and level events.
type Alerter struct {
	notifier notification.Notifier
	metrics  *metrics.Metrics
}

// NewAlerter creates an Alerter. m may be nil.
func NewAlerter(n notification.Notifier, m *metrics.Metrics) *Alerter {
	return &Alerter{notifier: n, metrics: m}
}

// Run consumes events until the channel closes or ctx is cancelled.
func (a *Alerter) Run(ctx context.Context, events <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			alert, ok := AlertFor(e)
			if !ok {
				continue
			}
			a.send(ctx, alert)
		}
	}
}

func (a *Alerter) send(ctx context.Context, alert notification.Alert) {
	sctx, cancel := context.WithTimeout(ctx, sinkTimeout)
	defer cancel()

	err := a.notifier.Send(sctx, alert)
	switch {
	case err == nil:
		if a.metrics != nil {
			a.metrics.AlertsSent.Inc()
		}
	case errors.Is(err, notification.ErrThrottled):
		if a.metrics != nil {
			a.metrics.AlertsThrottled.Inc()
		}
	default:
		if a.metrics != nil {
			a.metrics.AlertsFailed.Inc()
		}
		log.Printf("[alerter] send %q: %v", alert.Title, err)
	}
}

// MirrorStore is the external store the Mirror writes to.
type MirrorStore interface {
	model.EvaluationPublisher
	PublishExit(ctx context.Context, ev model.ExitEvent) error
}

// Mirror copies evaluations and exits to an external store for other
// processes. The open position is written by the session itself.
type Mirror struct {
	store MirrorStore
}

// NewMirror creates a Mirror writing to store.
func NewMirror(store MirrorStore) *Mirror {
	return &Mirror{store: store}
}

// Run consumes events until the channel closes or ctx is cancelled.
func (m *Mirror) Run(ctx context.Context, events <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if err := m.apply(ctx, e); err != nil {
				log.Printf("[mirror] %s event: %v", e.Type, err)
			}
		}
	}
}

func (m *Mirror) apply(ctx context.Context, e Event) error {
	ctx, cancel := context.WithTimeout(ctx, sinkTimeout)
	defer cancel()

	switch e.Type {
	case EventEvaluation:
		return m.store.PublishEvaluation(ctx, e.Evaluation)
	case EventExit:
		return m.store.PublishExit(ctx, *e.Exit)
	}
	return nil
}
