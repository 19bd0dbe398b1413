package alert

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/y0f/rankwatch/internal/metrics"
	"github.com/y0f/rankwatch/internal/notifier"
	"github.com/y0f/rankwatch/internal/storage"
)

// Notifier receives alert lifecycle events. *notifier.Dispatcher satisfies it.
type Notifier interface {
	Notify(eventType string, a *storage.Alert)
}

// Manager handles alert lifecycle.
type Manager struct {
	store    storage.Store
	notifier Notifier
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

func NewManager(store storage.Store, n Notifier, m *metrics.Metrics, logger *slog.Logger) *Manager {
	return &Manager{
		store:    store,
		notifier: n,
		metrics:  m,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateAlert stores a new active alert. It returns nil instead of an error
// when the alert cannot be stored; alert creation is a side effect and must
// never fail the operation that triggered it. metadata is marshalled to JSON
// and may be nil.
func (m *Manager) CreateAlert(ctx context.Context, alertType, severity, title string, message *string, metadata any) *storage.Alert {
	if !ValidType(alertType) || !ValidSeverity(severity) || title == "" {
		m.logger.Error("create alert: invalid alert", "type", alertType, "severity", severity, "title", title)
		return nil
	}

	raw := json.RawMessage("{}")
	if metadata != nil {
		b, err := json.Marshal(metadata)
		if err != nil {
			m.logger.Error("create alert: marshal metadata", "type", alertType, "error", err)
			return nil
		}
		raw = b
	}

	a := &storage.Alert{
		Type:     alertType,
		Severity: severity,
		Title:    title,
		Message:  message,
		Metadata: raw,
		Status:   StatusActive,
	}
	if err := m.store.CreateAlert(ctx, a); err != nil {
		m.logger.Error("create alert", "type", alertType, "error", err)
		return nil
	}

	m.metrics.AlertCreated(alertType, severity)
	m.logger.Info("alert created", "alert_id", a.ID, "type", alertType, "severity", severity, "title", title)
	m.notify(notifier.EventAlertCreated, a)
	return a
}

// AcknowledgeAlert moves an active alert to acknowledged. Acknowledging an
// already-acknowledged alert succeeds; a resolved or missing alert fails.
func (m *Manager) AcknowledgeAlert(ctx context.Context, id int64) bool {
	before, err := m.store.GetAlert(ctx, id)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			m.logger.Error("acknowledge alert: load", "alert_id", id, "error", err)
		}
		return false
	}
	if before.Status == StatusResolved {
		return false
	}

	ok, err := m.store.AcknowledgeAlert(ctx, id, m.now())
	if err != nil {
		m.logger.Error("acknowledge alert", "alert_id", id, "error", err)
		return false
	}
	if !ok {
		// resolved between the read and the update
		return false
	}

	if before.Status == StatusActive {
		m.logger.Info("alert acknowledged", "alert_id", id)
		m.notifyByID(ctx, notifier.EventAlertAcknowledged, id)
	}
	return true
}

// ResolveAlert moves an active or acknowledged alert to resolved. Resolving
// an already-resolved alert succeeds and leaves resolved_at untouched.
func (m *Manager) ResolveAlert(ctx context.Context, id int64) bool {
	before, err := m.store.GetAlert(ctx, id)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			m.logger.Error("resolve alert: load", "alert_id", id, "error", err)
		}
		return false
	}
	if before.Status == StatusResolved {
		return true
	}

	ok, err := m.store.ResolveAlert(ctx, id, m.now())
	if err != nil {
		m.logger.Error("resolve alert", "alert_id", id, "error", err)
		return false
	}
	if !ok {
		// a concurrent resolve won; the alert is resolved either way
		return true
	}

	m.logger.Info("alert resolved", "alert_id", id)
	m.notifyByID(ctx, notifier.EventAlertResolved, id)
	return true
}

// GetActiveAlerts returns every active or acknowledged alert, newest first.
func (m *Manager) GetActiveAlerts(ctx context.Context) ([]*storage.Alert, error) {
	var out []*storage.Alert
	for page := 1; ; page++ {
		res, err := m.store.ListAlerts(ctx, []string{StatusActive, StatusAcknowledged},
			storage.Pagination{Page: page, PerPage: 200})
		if err != nil {
			return nil, err
		}
		batch, _ := res.Data.([]*storage.Alert)
		out = append(out, batch...)
		if page >= res.TotalPages || len(batch) == 0 {
			break
		}
	}
	if out == nil {
		out = []*storage.Alert{}
	}
	return out, nil
}

// ListAlerts pages through alerts filtered by status.
func (m *Manager) ListAlerts(ctx context.Context, statuses []string, p storage.Pagination) (*storage.PaginatedResult, error) {
	return m.store.ListAlerts(ctx, statuses, p)
}

func (m *Manager) notifyByID(ctx context.Context, event string, id int64) {
	a, err := m.store.GetAlert(ctx, id)
	if err != nil {
		m.logger.Warn("reload alert for notification", "alert_id", id, "error", err)
		return
	}
	m.notify(event, a)
}

func (m *Manager) notify(event string, a *storage.Alert) {
	if m.notifier != nil {
		m.notifier.Notify(event, a)
	}
}
