package voice

import "sync"

// TaskCompletionBox is a single-writer, multi-read completion flag the voice
// loop polls at 200ms intervals (spec.md §4.5 "wait-for-done semantics")
// instead of opening the microphone while an action task runs.
type TaskCompletionBox struct {
	mu     sync.Mutex
	done   bool
	status ResultStatus
	result string
}

// NewTaskCompletionBox returns an unset box.
func NewTaskCompletionBox() *TaskCompletionBox {
	return &TaskCompletionBox{}
}

// Complete marks the box done with the given status and result text. Only
// the first call has effect.
func (b *TaskCompletionBox) Complete(status ResultStatus, result string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done {
		return
	}
	b.done = true
	b.status = status
	b.result = result
}

// Poll reports whether the task has completed, and if so its status and
// result text.
func (b *TaskCompletionBox) Poll() (done bool, status ResultStatus, result string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.done, b.status, b.result
}
