package engine

import (
	"fmt"

	"github.com/nikitkaralius/weeklypoll/internal/models"
)

type Kind string

const (
	KindSent    Kind = "sent"
	KindSkipped Kind = "skipped"
	KindClosed  Kind = "closed"
)

// Outcome is a state change made during an evaluation.
type Outcome struct {
	PollID    int64
	Title     string
	Kind      Kind
	MessageID int
}

type Failure struct {
	PollID int64
	Title  string
	Err    error
}

// Report summarizes a tick or a single poll evaluation.
type Report struct {
	Polls    int
	Outcomes []Outcome
	Failures []Failure
	// Deferred holds polls left for the next tick after the tick timeout.
	Deferred []int64
	// Err is set when the poll list itself could not be read.
	Err error
}

// Changed reports whether stored poll state was modified.
func (r Report) Changed() bool { return len(r.Outcomes) > 0 }

func (r *Report) add(p *models.Poll, kind Kind, msgID int) {
	r.Outcomes = append(r.Outcomes, Outcome{PollID: p.ID, Title: p.Title, Kind: kind, MessageID: msgID})
}

func (r *Report) fail(id int64, title string, err error) {
	r.Failures = append(r.Failures, Failure{PollID: id, Title: title, Err: err})
}

func (r *Report) merge(o Report) {
	r.Outcomes = append(r.Outcomes, o.Outcomes...)
	r.Failures = append(r.Failures, o.Failures...)
	r.Deferred = append(r.Deferred, o.Deferred...)
}

func (r Report) Count(kind Kind) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Kind == kind {
			n++
		}
	}
	return n
}

type Op string

const (
	OpSend Op = "send"
	OpStop Op = "stop"
)

// DeliveryError is a failed call to the messaging platform. Nothing was
// persisted and the action is retried on the next evaluation.
type DeliveryError struct {
	Op     Op
	PollID int64
	Err    error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s poll %d: %v", e.Op, e.PollID, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// PersistenceError means the platform call succeeded but recording it failed
// after retries. The chat and the store now disagree.
type PersistenceError struct {
	PollID int64
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("save state of poll %d: %v", e.PollID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
