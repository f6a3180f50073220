// Package notification alerts administrators about observations that need
// review. Alerts go out through shoutrrr service URLs.
package notification

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/nicholas-fedor/shoutrrr"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/tphakala/floranet-go/internal/conf"
	"github.com/tphakala/floranet-go/internal/errors"
	"github.com/tphakala/floranet-go/internal/events"
	"github.com/tphakala/floranet-go/internal/logger"
)

// DefaultTimeout bounds one send to all services.
const DefaultTimeout = 10 * time.Second

// Title is the notification title used for review alerts.
const Title = "FloraNet review needed"

// Sender delivers a message to every configured service and returns one
// error slot per service, in URL order.
type Sender interface {
	Send(message string, params *stypes.Params) []error
}

// DeliveryRecorder receives one call per alert.
type DeliveryRecorder interface {
	RecordDelivery(duration time.Duration, failedServices []string)
}

// Notifier turns auto-flagged ingestions into review alerts. It is an
// events.Consumer.
type Notifier struct {
	sender   Sender
	services []string // scheme per URL, never the URL itself
	timeout  time.Duration
	breaker  *CircuitBreaker
	metrics  DeliveryRecorder
	log      logger.Logger
}

// New builds a Notifier from settings. Invalid URLs are a configuration
// error. m may be nil.
func New(s *conf.NotificationSettings, m DeliveryRecorder, l logger.Logger) (*Notifier, error) {
	if len(s.URLs) == 0 {
		return nil, errors.New(errors.NewStd("at least one notification URL is required")).
			Component("notification").
			Category(errors.CategoryConfiguration).
			Build()
	}

	router, err := shoutrrr.CreateSender(s.URLs...)
	if err != nil {
		return nil, errors.New(fmt.Errorf("invalid notification URL: %s", scrub(err.Error(), s.URLs))).
			Component("notification").
			Category(errors.CategoryConfiguration).
			Build()
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	router.Timeout = timeout
	router.SetLogger(log.New(io.Discard, "", 0))

	return NewWithSender(router, schemes(s.URLs), timeout, m, l), nil
}

// NewWithSender creates a Notifier around an existing sender. services names
// each destination for metrics and logs.
func NewWithSender(sender Sender, services []string, timeout time.Duration, m DeliveryRecorder, l logger.Logger) *Notifier {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if l == nil {
		l = logger.Global().Module("notification")
	}
	return &Notifier{
		sender:   sender,
		services: slices.Clone(services),
		timeout:  timeout,
		breaker:  NewCircuitBreaker(DefaultCircuitBreakerConfig(), l),
		metrics:  m,
		log:      l,
	}
}

// Name implements events.Consumer.
func (n *Notifier) Name() string {
	return "notification"
}

// ProcessEvent sends a review alert for auto-flagged ingestions and ignores
// every other event.
func (n *Notifier) ProcessEvent(ctx context.Context, e events.Event) error {
	if e.Kind != events.KindObservationIngested || !e.AutoFlagged {
		return nil
	}
	return n.Notify(ctx, ReviewMessage(e))
}

// ReviewMessage renders the alert for an auto-flagged observation.
func ReviewMessage(e events.Event) string {
	name := e.ScientificName
	if name == "" {
		name = "unknown species"
	}
	return fmt.Sprintf("Observation #%d needs review: %s (%.0f%%)", e.ObservationID, name, e.Confidence*100)
}

// Notify sends message to all services. A send that outlives the timeout is
// abandoned and reported as failed for every service.
func (n *Notifier) Notify(ctx context.Context, message string) error {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	start := time.Now()
	var failed []string
	err := n.breaker.Call(ctx, func(ctx context.Context) error {
		errs, err := n.send(ctx, message)
		if err != nil {
			failed = slices.Clone(n.services)
			return err
		}
		var sendErrs []error
		for i, e := range errs {
			if e == nil {
				continue
			}
			failed = append(failed, n.serviceName(i))
			sendErrs = append(sendErrs, fmt.Errorf("%s: %s", n.serviceName(i), e.Error()))
		}
		if len(sendErrs) == len(n.services) && len(sendErrs) > 0 {
			return errors.Join(sendErrs...)
		}
		if len(sendErrs) > 0 {
			n.log.Warn("notification partially delivered",
				logger.Any("failed_services", failed),
				logger.Error(errors.Join(sendErrs...)))
		}
		return nil
	})

	if n.metrics != nil {
		n.metrics.RecordDelivery(time.Since(start), failed)
	}
	if err != nil {
		return errors.New(err).
			Component("notification").
			Category(errors.CategoryNetwork).
			Build()
	}
	n.log.Debug("review alert sent", logger.Duration("duration", time.Since(start)))
	return nil
}

func (n *Notifier) send(ctx context.Context, message string) ([]error, error) {
	params := stypes.Params{}
	params.SetTitle(Title)

	done := make(chan []error, 1)
	go func() { done <- n.sender.Send(message, &params) }()

	select {
	case errs := <-done:
		return errs, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (n *Notifier) serviceName(i int) string {
	if i < len(n.services) {
		return n.services[i]
	}
	return "unknown"
}

// schemes returns the service scheme of each URL.
func schemes(urls []string) []string {
	out := make([]string, len(urls))
	for i, raw := range urls {
		out[i] = "unknown"
		if u, err := url.Parse(raw); err == nil && u.Scheme != "" {
			out[i] = u.Scheme
		}
	}
	return out
}

// scrub removes service URLs, which carry tokens, from msg.
func scrub(msg string, urls []string) string {
	for i, raw := range urls {
		if raw != "" {
			msg = strings.ReplaceAll(msg, raw, schemes(urls)[i]+"://***")
		}
	}
	return msg
}
