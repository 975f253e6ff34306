package submission

import (
	"errors"
	"time"

	"alloggiati/internal/portal/outcome"
	"alloggiati/internal/portal/portalerr"
	"alloggiati/internal/portal/schedina"
)

// State is a step of the batch lifecycle. Each state names the last step that
// produced a result; a negative result moves the batch to StateRejected.
type State string

const (
	StateEncoded       State = "Encoded"
	StateTokenAcquired State = "TokenAcquired"
	StateValidated     State = "Validated"
	StateSubmitted     State = "Submitted"
	StateAcknowledged  State = "Acknowledged"
	StateRejected      State = "Rejected"
)

// Terminal reports whether no further transition can follow s.
func (s State) Terminal() bool {
	return s == StateAcknowledged || s == StateRejected
}

// Transition is one edge taken by a batch.
type Transition struct {
	From   State     `json:"from,omitempty"`
	To     State     `json:"to"`
	At     time.Time `json:"at"`
	Reason string    `json:"reason,omitempty"`
}

// RecordError is a field-level encoding failure of one guest.
type RecordError struct {
	Index   int    `json:"index"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// Result is the aggregate outcome of one workflow run.
type Result struct {
	BatchID          string                `json:"batch_id"`
	Operation        string                `json:"operation"`
	State            State                 `json:"state"`
	Success          bool                  `json:"success"`
	Accepted         int                   `json:"accepted"`
	Total            int                   `json:"total"`
	ErrorKind        portalerr.Kind        `json:"error_kind,omitempty"`
	ErrorCode        string                `json:"error_code,omitempty"`
	ErrorDescription string                `json:"error_description,omitempty"`
	ErrorDetail      string                `json:"error_detail,omitempty"`
	RecordErrors     []RecordError         `json:"record_errors,omitempty"`
	LineFailures     []outcome.LineFailure `json:"line_failures,omitempty"`
	Transitions      []Transition          `json:"transitions"`
}

func (r *Result) advance(to State, at time.Time) {
	r.Transitions = append(r.Transitions, Transition{From: r.State, To: to, At: at})
	r.State = to
}

func (r *Result) reject(err error, at time.Time) {
	r.Transitions = append(r.Transitions, Transition{From: r.State, To: StateRejected, At: at, Reason: err.Error()})
	r.State = StateRejected
	r.Success = false
	r.ErrorKind = portalerr.KindOf(err)

	var pe *portalerr.Error
	if errors.As(err, &pe) {
		if pe.Code != "" {
			r.ErrorCode = pe.Code
		}
		if r.ErrorDescription == "" {
			r.ErrorDescription = pe.Message
		}
		if r.ErrorDetail == "" {
			r.ErrorDetail = pe.Detail
		}
	}
	if r.ErrorDescription == "" {
		r.ErrorDescription = err.Error()
	}
}

func recordErrors(lineErrs []schedina.LineError) []RecordError {
	var out []RecordError
	for _, le := range lineErrs {
		for _, err := range flatten(le.Err) {
			re := RecordError{Index: le.Index, Message: err.Error()}
			var fe *portalerr.FieldError
			if errors.As(err, &fe) {
				re.Field = fe.Field
				re.Message = fe.Err.Error()
			}
			out = append(out, re)
		}
	}
	return out
}

func flatten(err error) []error {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []error
		for _, e := range joined.Unwrap() {
			out = append(out, flatten(e)...)
		}
		return out
	}
	return []error{err}
}
