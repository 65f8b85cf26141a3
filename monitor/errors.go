package monitor

import "fmt"

// NotFoundError indicates a TransactionRecord or SubRecord lookup found
// nothing matching the given key.
type NotFoundError struct {
	Kind string // "transaction" or "sub_record"
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("monitor: %s %q not found", e.Kind, e.Key)
}

// UnsupportedEngineError indicates monitor_q.db_engine named an engine this
// build does not register.
type UnsupportedEngineError struct {
	Engine string
}

func (e *UnsupportedEngineError) Error() string {
	return fmt.Sprintf("monitor: unsupported db_engine %q", e.Engine)
}
