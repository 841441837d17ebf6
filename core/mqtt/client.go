package mqtt

import "time"

// Client represents an MQTT client capable of alerting units with dispatch
// orders and waiting for acknowledgments from their crews.
type Client interface {
	// SendOrder publishes a dispatch order to the given unit and returns the
	// order identifier used to track the acknowledgment.
	SendOrder(unitID, missionID string) (orderID string, err error)

	// WaitForAck waits for an acknowledgment for the provided order
	// identifier or until the timeout expires.
	WaitForAck(orderID string, timeout time.Duration) (bool, error)
}
