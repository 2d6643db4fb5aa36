package alerts

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/nightwatch/internal/events"
)

// Manager accepts alerts from any subsystem and dispatches them to
// severity-appropriate channels subject to rate limiting, deduplication,
// quiet hours, and escalation, grounded on
// original_source/services/alerts/alert_manager.py's AlertManager.
type Manager struct {
	cfg    Config
	logger log.Logger
	bus    *events.Bus

	senders map[Channel]sender

	mu            sync.Mutex
	history       []Alert
	hourCount     int
	hourResetAt   time.Time
	lastSentAt    map[string]time.Time // key: source|message
	dedupSentAt   map[string]time.Time // key: source|level|message
	lastEmailAt   map[string]time.Time // key: source|level, per spec.md's per-type email rate limit
	escalations   map[string]context.CancelFunc
	callbacks     []func(Alert)
}

// NewManager constructs a Manager with the standard channel senders
// wired. logger and bus may be nil.
func NewManager(cfg Config, logger log.Logger, bus *events.Bus) *Manager {
	return &Manager{
		cfg:    cfg,
		logger: logger,
		bus:    bus,
		senders: map[Channel]sender{
			ChannelLog:     &logSender{logger: logger},
			ChannelEmail:   &emailSender{cfg: cfg},
			ChannelPush:    newPushSender(cfg),
			ChannelSMS:     &smsSender{cfg: cfg},
			ChannelCall:    &callSender{cfg: cfg},
			ChannelWebhook: newWebhookSender(cfg),
		},
		lastSentAt:  make(map[string]time.Time),
		dedupSentAt: make(map[string]time.Time),
		lastEmailAt: make(map[string]time.Time),
		escalations: make(map[string]context.CancelFunc),
		hourResetAt: time.Now().Add(time.Hour),
	}
}

// logSender writes the alert through the component logger at a level
// matching the alert's severity.
type logSender struct{ logger log.Logger }

func (s *logSender) send(ctx context.Context, a Alert) error {
	kv := []any{"source", a.Source, "alert_id", a.ID}
	switch a.Level {
	case LevelDebug, LevelInfo:
		s.logger.Info(ctx, a.Message, kv...)
	case LevelWarning:
		s.logger.Warn(ctx, a.Message, kv...)
	default:
		s.logger.Error(ctx, fmt.Errorf("%s", a.Message), "alert raised", kv...)
	}
	return nil
}

// RegisterCallback adds a callback invoked (panic-isolated) on every
// raised alert, regardless of suppression.
func (m *Manager) RegisterCallback(cb func(Alert)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, cb)
}

// RaiseFromTemplate formats a named template with args and raises it.
func (m *Manager) RaiseFromTemplate(ctx context.Context, name, source string, args ...any) (*Alert, error) {
	tmpl, ok := DefaultTemplates[name]
	if !ok {
		return nil, fmt.Errorf("alerts: unknown template %q", name)
	}
	a := Alert{
		ID:      newAlertID(),
		Level:   tmpl.Level,
		Source:  source,
		Message: formatTemplate(tmpl, args...),
		At:      time.Now(),
	}
	m.raise(ctx, a, tmpl.Channels)
	return &a, nil
}

// RaiseAlert raises an arbitrary alert using the default channel routing
// for its level. Returns false if the alert was suppressed (rate limit,
// dedup, or quiet hours) rather than dispatched.
func (m *Manager) RaiseAlert(ctx context.Context, a Alert) bool {
	if a.ID == "" {
		a.ID = newAlertID()
	}
	if a.At.IsZero() {
		a.At = time.Now()
	}
	return m.raise(ctx, a, nil)
}

func (m *Manager) raise(ctx context.Context, a Alert, channels []Channel) bool {
	dispatched := m.admit(a)

	m.mu.Lock()
	m.history = append(m.history, a)
	cbs := append([]func(Alert){}, m.callbacks...)
	m.mu.Unlock()

	m.notifyCallbacks(cbs, a)
	if m.bus != nil {
		m.bus.Emit(ctx, events.Event{
			Kind:    events.KindAlertRaised,
			Source:  a.Source,
			Message: a.Message,
			At:      a.At,
			Data:    map[string]any{"id": a.ID, "level": a.Level.String(), "dispatched": dispatched},
		})
	}
	if !dispatched {
		return false
	}

	if channels == nil {
		channels = defaultChannelRouting[a.Level]
	}
	a.ChannelsSent = m.dispatch(ctx, a, channels)
	m.updateHistoryChannels(a.ID, a.ChannelsSent)

	if a.Level == LevelCritical || a.Level == LevelEmergency {
		m.startEscalation(a, channels)
	}
	return true
}

// admit applies deduplication, the per-(source,message) min interval, the
// hourly cap, and quiet hours, in that order. The hourly counter and the
// min-interval and dedup timestamps are recorded only when the alert passes
// every gate; a suppressed alert does not count.
func (m *Manager) admit(a Alert) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := a.At
	if now.After(m.hourResetAt) {
		m.hourCount = 0
		m.hourResetAt = now.Add(time.Hour)
	}

	dedupKey := fmt.Sprintf("%s|%s|%s", a.Source, a.Level, a.Message)
	if last, ok := m.dedupSentAt[dedupKey]; ok && now.Sub(last) < m.cfg.DedupWindow {
		return false
	}

	minKey := a.Source + "|" + a.Message
	if last, ok := m.lastSentAt[minKey]; ok && now.Sub(last) < m.cfg.MinIntervalSeconds {
		return false
	}

	if m.hourCount >= m.cfg.MaxAlertsPerHour {
		return false
	}

	if m.inQuietHours(now) && a.Level < m.cfg.QuietHoursMinLevel {
		return false
	}

	m.hourCount++
	m.lastSentAt[minKey] = now
	m.dedupSentAt[dedupKey] = now
	return true
}

// inQuietHours handles the overnight wraparound case (start > end, e.g.
// 22:00-07:00 spans midnight).
func (m *Manager) inQuietHours(at time.Time) bool {
	if !m.cfg.QuietHoursEnabled {
		return false
	}
	hour := at.Hour()
	start, end := m.cfg.QuietHoursStart, m.cfg.QuietHoursEnd
	if start == end {
		return false
	}
	if start < end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}

// dispatch sends the alert through each channel independently; one
// channel's failure never blocks or is masked by another's.
func (m *Manager) dispatch(ctx context.Context, a Alert, channels []Channel) []Channel {
	var sent []Channel
	for _, ch := range channels {
		s, ok := m.senders[ch]
		if !ok {
			continue
		}
		if ch == ChannelEmail && !m.admitEmail(a) {
			continue
		}
		if err := s.send(ctx, a); err != nil {
			m.logger.Error(ctx, err, "alert channel delivery failed", "channel", string(ch), "alert_id", a.ID)
			if partial, ok := err.(*partialEmailFailure); ok {
				m.raisePartialEmailWarning(ctx, a, partial)
			}
			continue
		}
		sent = append(sent, ch)
	}
	return sent
}

// raisePartialEmailWarning implements the Open Question decision recorded
// in DESIGN.md: a partial SMTP failure (some recipients sent, some not)
// raises a summarizing warning alert rather than failing silently.
func (m *Manager) raisePartialEmailWarning(ctx context.Context, a Alert, partial *partialEmailFailure) {
	m.RaiseAlert(ctx, Alert{
		ID:      newAlertID(),
		Level:   LevelWarning,
		Source:  "alerts.email",
		Message: fmt.Sprintf("email delivery for alert %s failed for recipients: %s", a.ID, strings.Join(partial.recipients, ", ")),
		At:      time.Now(),
	})
}

// admitEmail applies the per-(source,level) email rate limit, separate
// from the general min-interval. It runs before the send, so a failed
// per-recipient send still counts as "sent" for this limit.
func (m *Manager) admitEmail(a Alert) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := a.Source + "|" + a.Level.String()
	if last, ok := m.lastEmailAt[key]; ok && a.At.Sub(last) < m.cfg.EmailMinIntervalPerType {
		return false
	}
	m.lastEmailAt[key] = a.At
	return true
}

func (m *Manager) updateHistoryChannels(id string, channels []Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.history {
		if m.history[i].ID == id {
			m.history[i].ChannelsSent = channels
			return
		}
	}
}

// startEscalation re-sends the alert's high-impact channels
// (push/sms/call) after cfg.EscalationTimeout if it remains
// unacknowledged, cancelled by Acknowledge.
func (m *Manager) startEscalation(a Alert, channels []Channel) {
	var highImpact []Channel
	for _, c := range channels {
		if c == ChannelPush || c == ChannelSMS || c == ChannelCall {
			highImpact = append(highImpact, c)
		}
	}
	if len(highImpact) == 0 {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	m.escalations[a.ID] = cancel
	m.mu.Unlock()

	go func() {
		timer := time.NewTimer(m.cfg.EscalationTimeout)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		m.mu.Lock()
		delete(m.escalations, a.ID)
		acked := m.isAcknowledged(a.ID)
		m.mu.Unlock()
		if acked {
			return
		}

		m.logger.Warn(context.Background(), "escalating unacknowledged alert", "alert_id", a.ID, "source", a.Source)
		m.dispatch(context.Background(), a, highImpact)
	}()
}

func (m *Manager) isAcknowledged(id string) bool {
	for _, a := range m.history {
		if a.ID == id {
			return a.Acknowledged
		}
	}
	return false
}

// Acknowledge marks an alert acknowledged and cancels its escalation
// timer, if any. Idempotent.
func (m *Manager) Acknowledge(id, user string) bool {
	m.mu.Lock()

	found := false
	var acked Alert
	for i := range m.history {
		if m.history[i].ID == id {
			if m.history[i].Acknowledged {
				m.mu.Unlock()
				return false
			}
			m.history[i].Acknowledged = true
			m.history[i].AcknowledgedBy = user
			m.history[i].AcknowledgedAt = time.Now()
			acked = m.history[i]
			found = true
			break
		}
	}
	if !found {
		m.mu.Unlock()
		return false
	}
	if cancel, ok := m.escalations[id]; ok {
		cancel()
		delete(m.escalations, id)
	}
	cbs := append([]func(Alert){}, m.callbacks...)
	m.mu.Unlock()

	m.notifyCallbacks(cbs, acked)
	return true
}

// GetUnacknowledged returns alerts not yet acknowledged, oldest first.
func (m *Manager) GetUnacknowledged() []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Alert
	for _, a := range m.history {
		if !a.Acknowledged {
			out = append(out, a)
		}
	}
	return out
}

// GetRecent returns alerts raised within the last `since` duration.
func (m *Manager) GetRecent(since time.Duration) []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-since)
	var out []Alert
	for _, a := range m.history {
		if a.At.After(cutoff) {
			out = append(out, a)
		}
	}
	return out
}

func (m *Manager) notifyCallbacks(cbs []func(Alert), a Alert) {
	for _, cb := range cbs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error(context.Background(), fmt.Errorf("%v", r), "alert callback panicked")
				}
			}()
			cb(a)
		}()
	}
}
