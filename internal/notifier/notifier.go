package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/y0f/rankwatch/internal/config"
	"github.com/y0f/rankwatch/internal/storage"
)

// Alert lifecycle events.
const (
	EventAlertCreated      = "alert.created"
	EventAlertAcknowledged = "alert.acknowledged"
	EventAlertResolved     = "alert.resolved"
	EventTest              = "test"
)

const sendTimeout = 10 * time.Second

// Channel is one configured notification target.
type Channel struct {
	Name       string
	Type       string // webhook, slack
	URL        string
	Secret     string
	Severities []string // empty means all
}

// Sender sends a notification via a specific channel type.
type Sender interface {
	Type() string
	Send(ctx context.Context, ch *Channel, payload *Payload) error
}

// Payload contains the notification data.
type Payload struct {
	EventType string         `json:"event_type"`
	Alert     *storage.Alert `json:"alert,omitempty"`
	SentAt    time.Time      `json:"sent_at"`
}

// Dispatcher fans alert events out to the configured channels. Sends run in
// background goroutines and never block the caller.
type Dispatcher struct {
	channels []Channel
	senders  map[string]Sender
	logger   *slog.Logger
	wg       sync.WaitGroup
}

func NewDispatcher(channels []Channel, allowPrivate bool, logger *slog.Logger) *Dispatcher {
	d := &Dispatcher{
		channels: channels,
		senders:  make(map[string]Sender),
		logger:   logger,
	}
	d.RegisterSender(&WebhookSender{AllowPrivate: allowPrivate})
	d.RegisterSender(&SlackSender{})
	return d
}

// ChannelsFromConfig flattens the notifications config section.
func ChannelsFromConfig(cfg config.NotificationsConfig) []Channel {
	var out []Channel
	for _, w := range cfg.Webhooks {
		out = append(out, Channel{Name: w.Name, Type: "webhook", URL: w.URL, Secret: w.Secret, Severities: w.Severities})
	}
	for _, s := range cfg.Slack {
		out = append(out, Channel{Name: s.Name, Type: "slack", URL: s.WebhookURL, Severities: s.Severities})
	}
	return out
}

// RegisterSender adds or replaces the sender for a channel type.
func (d *Dispatcher) RegisterSender(s Sender) {
	d.senders[s.Type()] = s
}

// Notify sends an alert event to every channel subscribed to its severity.
func (d *Dispatcher) Notify(eventType string, a *storage.Alert) {
	if d == nil || a == nil {
		return
	}
	payload := &Payload{EventType: eventType, Alert: a, SentAt: time.Now().UTC()}

	for i := range d.channels {
		ch := &d.channels[i]
		if !matchesSeverity(ch.Severities, a.Severity) {
			continue
		}
		sender, ok := d.senders[ch.Type]
		if !ok {
			d.logger.Warn("no sender for channel type", "type", ch.Type)
			continue
		}

		d.wg.Add(1)
		go func(ch *Channel) {
			defer d.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
			defer cancel()
			if err := sender.Send(ctx, ch, payload); err != nil {
				d.logger.Error("notification send failed",
					"channel", ch.Name,
					"channel_type", ch.Type,
					"alert_id", a.ID,
					"error", err,
				)
				return
			}
			d.logger.Debug("notification sent", "channel", ch.Name, "event", eventType, "alert_id", a.ID)
		}(ch)
	}
}

// Wait blocks until in-flight sends finish. Used on shutdown and in tests.
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}

// SendTest sends a test notification through one channel synchronously.
func (d *Dispatcher) SendTest(ctx context.Context, ch *Channel) error {
	sender, ok := d.senders[ch.Type]
	if !ok {
		return fmt.Errorf("no sender for type: %s", ch.Type)
	}
	return sender.Send(ctx, ch, &Payload{EventType: EventTest, SentAt: time.Now().UTC()})
}

func matchesSeverity(severities []string, severity string) bool {
	if len(severities) == 0 {
		return true
	}
	for _, s := range severities {
		if s == severity {
			return true
		}
	}
	return false
}

// FormatMessage creates a human-readable notification message.
func FormatMessage(p *Payload) string {
	if p.EventType == EventTest {
		return "[TEST] This is a test notification from rankwatch"
	}
	if p.Alert == nil {
		return fmt.Sprintf("[%s] Notification event", p.EventType)
	}
	a := p.Alert
	var prefix string
	switch p.EventType {
	case EventAlertCreated:
		prefix = "[" + severityTag(a.Severity) + "]"
	case EventAlertAcknowledged:
		prefix = "[ACK]"
	case EventAlertResolved:
		prefix = "[RESOLVED]"
	default:
		prefix = "[" + p.EventType + "]"
	}
	msg := fmt.Sprintf("%s Alert #%d %s: %s", prefix, a.ID, a.Type, a.Title)
	if a.Message != nil && *a.Message != "" {
		msg += "\n" + *a.Message
	}
	return msg
}

func severityTag(s string) string {
	switch s {
	case "critical":
		return "CRITICAL"
	case "warning":
		return "WARNING"
	default:
		return "INFO"
	}
}

func marshalPayload(p *Payload) []byte {
	b, _ := json.Marshal(p)
	return b
}
