package exec

// Status is the lifecycle state of a command buffer. Transitions are
// monotonic: a buffer only ever moves to a strictly larger status, and
// ends in exactly one of Completed or Error.
type Status int32

const (
	// NotEnqueued is the initial state of a fresh command buffer.
	NotEnqueued Status = iota
	// Enqueued means the buffer has reserved its place on the queue.
	Enqueued
	// Committed means the buffer is sealed; no further encoding or
	// handler registration is accepted.
	Committed
	// Scheduled means the dispatcher has picked the buffer up and its
	// scheduled handlers have started firing.
	Scheduled
	// Completed means all encoded work finished successfully.
	Completed
	// Error means execution failed; the buffer's Err method has the
	// cause.
	Error
)

func (s Status) String() string {
	switch s {
	case NotEnqueued:
		return "not-enqueued"
	case Enqueued:
		return "enqueued"
	case Committed:
		return "committed"
	case Scheduled:
		return "scheduled"
	case Completed:
		return "completed"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status is an end state.
func (s Status) Terminal() bool {
	return s == Completed || s == Error
}
