package mqtt

import (
	"fmt"
	"sync"
	"time"

	coremqtt "github.com/dispatchsim/engine/core/mqtt"
)

// Client mirrors the core mqtt.Client interface.
type Client = coremqtt.Client

// MockPublisher is a simple publisher used in tests.
type MockPublisher struct {
	Orders     map[string]string // unit id -> mission id
	FailIDs    map[string]bool
	AckResults map[string]bool
	mu         sync.Mutex
}

// NewMockPublisher creates a new MockPublisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{
		Orders:     make(map[string]string),
		FailIDs:    make(map[string]bool),
		AckResults: make(map[string]bool),
	}
}

// SendOrder records the order or returns an error if configured to fail.
func (m *MockPublisher) SendOrder(unitID, missionID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailIDs[unitID] {
		return "", fmt.Errorf("publish failed")
	}
	m.Orders[unitID] = missionID
	orderID := fmt.Sprintf("order-%s", unitID)
	m.AckResults[orderID] = !m.FailIDs[unitID]
	return orderID, nil
}

// WaitForAck simulates an immediate acknowledgment based on the stored
// result.
func (m *MockPublisher) WaitForAck(orderID string, timeout time.Duration) (bool, error) {
	m.mu.Lock()
	ok, exists := m.AckResults[orderID]
	m.mu.Unlock()
	if !exists {
		return false, fmt.Errorf("unknown order")
	}
	return ok, nil
}
