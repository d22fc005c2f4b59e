// Package voice implements the voice loop and its supporting single-operator
// state: the Utterance lifecycle, the rolling session context, persisted
// memory, the clarification bridge, and the task-completion rendezvous
// (spec.md §3, §4.5). Grounded on the teacher's internal/session package for
// the bounded-deque and persisted-store shapes, generalized from Discord NPC
// conversation turns to single-operator voice utterances.
package voice

import (
	"sync/atomic"
	"time"

	"github.com/vox-cua/agent/internal/desktop"
)

// ResultStatus is the terminal outcome of an Utterance's action task.
type ResultStatus int

const (
	// ResultPending means the task has not yet concluded.
	ResultPending ResultStatus = iota
	// ResultDone means the task completed normally.
	ResultDone
	// ResultClarify means the task is suspended awaiting a clarification answer.
	ResultClarify
	// ResultCancelled means the task was cancelled (new utterance, "stop", or
	// a fatal permission error).
	ResultCancelled
	// ResultError means the task ended in an unrecoverable error, already
	// absorbed into a user-visible summary.
	ResultError
)

// Utterance is one monotonically numbered voice turn (spec.md §3).
type Utterance struct {
	ID     int
	Start  time.Time
	Raw    string // raw transcript as returned by STT
	Clean  string // cleaned transcript (email-address whitespace fix applied)
	Screen desktop.Frame
	Status ResultStatus
	Result string // the spoken/summary text associated with Status
}

// counter is the process-wide utterance id source (spec.md §9 global mutable
// singletons: process-scoped, initialized once, accessed only through this
// atomic).
var counter int64

// NextUtteranceID returns the next monotonically increasing utterance id.
func NextUtteranceID() int {
	return int(atomic.AddInt64(&counter, 1))
}

// NewUtterance creates an Utterance with a fresh id and the given start time.
func NewUtterance(start time.Time) *Utterance {
	return &Utterance{ID: NextUtteranceID(), Start: start, Status: ResultPending}
}
