package notify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"

	"github.com/addonbump/addonbump/pkg/config"
	"github.com/addonbump/addonbump/pkg/report"
	"github.com/addonbump/addonbump/pkg/types"
)

// failurePriority is the minimum gotify priority of a failed run.
const failurePriority = 8

// newBackOff yields the retry schedule for a transient delivery failure.
var newBackOff = func() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxElapsedTime = 15 * time.Second
	return backoff.WithMaxRetries(b, 1)
}

// Channel delivers one composed message.
type Channel interface {
	Send(ctx context.Context, msg report.Message) error
}

// Notifier announces run summaries on the configured channel.
type Notifier struct {
	channel  Channel
	skipIdle bool
	timeout  time.Duration
}

// New builds a Notifier. A disabled or endpoint-less configuration yields a
// Notifier that only logs.
func New(cfg config.NotifyConfig) (*Notifier, error) {
	n := &Notifier{skipIdle: cfg.SkipIdle, timeout: cfg.Timeout}
	if !cfg.Enabled || cfg.Endpoint == "" {
		return n, nil
	}

	client := &http.Client{Timeout: cfg.Timeout}
	switch cfg.Kind {
	case "gotify":
		n.channel = NewGotify(client, cfg.Endpoint, cfg.Token, cfg.Priority)
	case "discord":
		ch, err := NewDiscord(client, cfg.Endpoint)
		if err != nil {
			return nil, err
		}
		n.channel = ch
	default:
		return nil, fmt.Errorf("unsupported notification channel %q", cfg.Kind)
	}
	return n, nil
}

// NewWithChannel returns a Notifier delivering through ch.
func NewWithChannel(ch Channel, skipIdle bool, timeout time.Duration) *Notifier {
	return &Notifier{channel: ch, skipIdle: skipIdle, timeout: timeout}
}

// Notify delivers s at most once. Transient failures are retried once.
func (n *Notifier) Notify(ctx context.Context, s *types.RunSummary) error {
	if !s.MarkNotified() {
		return ErrAlreadyNotified
	}
	if n.channel == nil {
		log.Debug("notifications disabled")
		return nil
	}
	if n.skipIdle && s.Idle() {
		log.Debug("idle run, notification skipped")
		return nil
	}

	msg := report.Compose(s)
	send := func() error {
		sendCtx, cancel := n.withTimeout(ctx)
		defer cancel()
		err := n.channel.Send(sendCtx, msg)
		if err != nil && !types.IsTransient(classify(err)) {
			return backoff.Permanent(err)
		}
		return err
	}
	if err := backoff.Retry(send, backoff.WithContext(newBackOff(), ctx)); err != nil {
		return fmt.Errorf("delivering notification: %w", err)
	}
	log.Infof("notification sent: %s", msg.Title)
	return nil
}

func (n *Notifier) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if n.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, n.timeout)
}

// statusError is a non-2xx answer of a notification endpoint.
type statusError struct {
	StatusCode int
	Body       string
}

func (e *statusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

func classify(err error) error {
	if types.IsTransient(err) {
		return err
	}
	var serr *statusError
	if errors.As(err, &serr) && (serr.StatusCode == http.StatusTooManyRequests || serr.StatusCode >= 500) {
		return &types.TransientNetworkError{Op: "notification", Err: err}
	}
	var nerr net.Error
	if errors.As(err, &nerr) || errors.Is(err, context.DeadlineExceeded) {
		return &types.TransientNetworkError{Op: "notification", Err: err}
	}
	return err
}
