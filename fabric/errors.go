package fabric

import "fmt"

// QueueNotFoundError indicates an operation referenced a queue that was
// never declared with DeclareQueue.
type QueueNotFoundError struct {
	Queue string
}

func (e *QueueNotFoundError) Error() string {
	return fmt.Sprintf("fabric: queue %q not found", e.Queue)
}

// AlreadyDeclaredError indicates a queue name was declared twice.
type AlreadyDeclaredError struct {
	Queue string
}

func (e *AlreadyDeclaredError) Error() string {
	return fmt.Sprintf("fabric: queue %q already declared", e.Queue)
}

// TimeoutError indicates an RPC call exceeded its configured time limit.
type TimeoutError struct {
	CorrelationID string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("fabric: RPC call %s timed out", e.CorrelationID)
}

// BrokerClosedError indicates an operation was attempted after Close.
type BrokerClosedError struct{}

func (e *BrokerClosedError) Error() string {
	return "fabric: broker is closed"
}
