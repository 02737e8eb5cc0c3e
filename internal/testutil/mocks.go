package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/burnwatch/burnwatch/internal/domain/alert"
	"github.com/burnwatch/burnwatch/internal/domain/budget"
)

// MockDispatcher records triggers instead of routing them. It
// implements alert.Dispatcher.
type MockDispatcher struct {
	mu       sync.Mutex
	Triggers []alert.Trigger
	Resolved []string
	nextID   int
}

func NewMockDispatcher() *MockDispatcher {
	return &MockDispatcher{}
}

func (m *MockDispatcher) Trigger(t alert.Trigger) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Triggers = append(m.Triggers, t)
	m.nextID++
	return fmt.Sprintf("mock-alert-%d", m.nextID)
}

func (m *MockDispatcher) Resolve(id, note string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Resolved = append(m.Resolved, id)
	return true
}

func (m *MockDispatcher) AddRule(rule alert.Rule) (string, error)  { return rule.ID, nil }
func (m *MockDispatcher) UpdateRule(rule alert.Rule) (bool, error) { return false, nil }
func (m *MockDispatcher) RemoveRule(id string) bool                { return false }
func (m *MockDispatcher) GetRules() []alert.Rule                   { return nil }
func (m *MockDispatcher) GetActiveAlerts() []alert.Alert           { return nil }
func (m *MockDispatcher) GetAlertHistory(limit int) []alert.Alert  { return nil }
func (m *MockDispatcher) GetAlertStats(w time.Duration) alert.Stats {
	return alert.Stats{}
}

// TriggersOfType returns recorded triggers matching the given type.
func (m *MockDispatcher) TriggersOfType(alertType string) []alert.Trigger {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []alert.Trigger
	for _, t := range m.Triggers {
		if t.Type == alertType {
			out = append(out, t)
		}
	}
	return out
}

// Count returns the total number of recorded triggers.
func (m *MockDispatcher) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Triggers)
}

// MockNotifier records channel deliveries. It implements the
// dispatcher's Notifier dependency.
type MockNotifier struct {
	mu        sync.Mutex
	Delivered []MockDelivery
	SendError error
}

type MockDelivery struct {
	Channel string
	Alert   alert.Alert
}

func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

func (m *MockNotifier) Send(ctx context.Context, channel string, a alert.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SendError != nil {
		return m.SendError
	}
	m.Delivered = append(m.Delivered, MockDelivery{Channel: channel, Alert: a})
	return nil
}

// Deliveries returns a snapshot of recorded deliveries.
func (m *MockNotifier) Deliveries() []MockDelivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockDelivery, len(m.Delivered))
	copy(out, m.Delivered)
	return out
}

// MockAlertRepository is an in-memory alert.Repository.
type MockAlertRepository struct {
	mu        sync.Mutex
	Alerts    map[string]alert.Alert
	SaveError error
}

func NewMockAlertRepository() *MockAlertRepository {
	return &MockAlertRepository{Alerts: make(map[string]alert.Alert)}
}

func (m *MockAlertRepository) SaveAlert(ctx context.Context, a alert.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveError != nil {
		return m.SaveError
	}
	m.Alerts[a.ID] = a
	return nil
}

func (m *MockAlertRepository) MarkResolved(ctx context.Context, id string, resolvedAt time.Time, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.Alerts[id]; ok {
		a.Resolved = true
		a.ResolvedAt = &resolvedAt
		a.Resolution = note
		m.Alerts[id] = a
	}
	return nil
}

func (m *MockAlertRepository) ListAlerts(ctx context.Context, limit int) ([]alert.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []alert.Alert
	for _, a := range m.Alerts {
		out = append(out, a)
	}
	return out, nil
}

func (m *MockAlertRepository) PruneAlerts(ctx context.Context, cutoff time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, a := range m.Alerts {
		if a.CreatedAt.Before(cutoff) {
			delete(m.Alerts, id)
		}
	}
	return nil
}

// MockCostRepository is an in-memory budget.Repository.
type MockCostRepository struct {
	mu     sync.Mutex
	Events []budget.Event
}

func NewMockCostRepository() *MockCostRepository {
	return &MockCostRepository{}
}

func (m *MockCostRepository) SaveEvent(ctx context.Context, e budget.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, e)
	return nil
}

func (m *MockCostRepository) ListEvents(ctx context.Context, since time.Time) ([]budget.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []budget.Event
	for _, e := range m.Events {
		if !e.Timestamp.Before(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MockCostRepository) PruneEvents(ctx context.Context, cutoff time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.Events[:0]
	for _, e := range m.Events {
		if !e.Timestamp.Before(cutoff) {
			kept = append(kept, e)
		}
	}
	m.Events = kept
	return nil
}
