package audit

import "time"

// Action names the workflow step an event records.
type Action string

const (
	ActionSubmit   Action = "registration_submit"
	ActionValidate Action = "registration_validate"
	ActionTable    Action = "reference_table_fetch"
)

// Event records the terminal state of one portal interaction. It carries
// counts, codes and correlation IDs only; guest data never appears here.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	BatchID   string    `json:"batch_id"`
	Username  string    `json:"username"`
	Action    Action    `json:"action"`
	State     string    `json:"state"`
	Success   bool      `json:"success"`
	Accepted  int       `json:"accepted"`
	Total     int       `json:"total"`
	ErrorKind string    `json:"error_kind,omitempty"`
	ErrorCode string    `json:"error_code,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
}
