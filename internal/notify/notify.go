package notify

import (
	"context"
	"sync"
	"time"

	"github.com/bureauboudoir-web/boudoir-bloom-theme-sub004/internal/securelog"
)

type Kind string

const (
	KindInvitationIssued   Kind = "invitation.issued"
	KindSetupCompleted     Kind = "invitation.setup_completed"
	KindAccessLevelChanged Kind = "access.level_changed"
	KindMeetingConfirmed   Kind = "meeting.confirmed"
)

// Event is the envelope handed to the email/notification service.
type Event struct {
	Kind       Kind              `json:"kind"`
	UserID     string            `json:"user_id"`
	Email      string            `json:"email,omitempty"`
	Data       map[string]string `json:"data,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// Notifier delivers one event to a downstream collaborator.
type Notifier interface {
	Notify(ctx context.Context, evt Event) error
}

// Publisher is what domain services depend on. Publish never reports
// failure back to the caller.
type Publisher interface {
	Publish(ctx context.Context, evt Event)
}

// Dispatcher hands events to a Notifier on a background goroutine so the
// triggering operation never waits on, or rolls back because of, delivery.
type Dispatcher struct {
	notifier Notifier
	log      *securelog.Logger
	timeout  time.Duration
	wg       sync.WaitGroup
}

func NewDispatcher(notifier Notifier, log *securelog.Logger, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Dispatcher{notifier: notifier, log: log, timeout: timeout}
}

func (d *Dispatcher) Publish(ctx context.Context, evt Event) {
	if d == nil || d.notifier == nil {
		return
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}
	base := context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		sendCtx, cancel := context.WithTimeout(base, d.timeout)
		defer cancel()
		if err := d.notifier.Notify(sendCtx, evt); err != nil {
			d.log.Failure("notify."+string(evt.Kind), err)
		}
	}()
}

// Wait blocks until every in-flight delivery has finished.
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}

// LogNotifier records events in the log. Used when no bus is configured.
type LogNotifier struct {
	Log *securelog.Logger
}

func (n LogNotifier) Notify(_ context.Context, evt Event) error {
	n.Log.Info("notification", "kind", string(evt.Kind), "user_id", evt.UserID)
	return nil
}
