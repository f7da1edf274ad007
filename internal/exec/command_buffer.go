package exec

import (
	"fmt"
	"sync"

	"github.com/weft-ml/weft/internal/tensor"
)

// encodedRun is one executable invocation recorded on a command buffer.
// The buffer retains every referenced value until its completion
// handlers have returned.
type encodedRun struct {
	exe     *Executable
	inputs  []*tensor.TensorData
	outputs []*tensor.TensorData // optional preallocated destinations
}

// CommandBuffer records work against a queue and tracks it through a
// monotonic lifecycle: NotEnqueued, Enqueued, Committed, Scheduled,
// then exactly one of Completed or Error. Encoding and handler
// registration are only accepted before Commit.
//
// A buffer is used by two parties: the submitting goroutine up to
// Commit, and the queue dispatcher afterwards. WaitUntilCompleted and
// Status are safe from any goroutine at any time.
type CommandBuffer struct {
	queue *CommandQueue
	label string

	mu     sync.Mutex
	status Status
	runs   []encodedRun

	scheduledHandlers  []ScheduledHandler
	completionHandlers []CompletionHandler

	prefetchWorkloadSize int

	results []*tensor.TensorData
	err     error
	done    chan struct{}
}

// Label returns the buffer's label.
func (cb *CommandBuffer) Label() string { return cb.label }

// Status returns the current lifecycle state.
func (cb *CommandBuffer) Status() Status {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.status
}

// encode records a run. Called through Executable.Encode, which has
// already validated the values.
func (cb *CommandBuffer) encode(exe *Executable, inputs, outputs []*tensor.TensorData, desc *ExecutionDescriptor) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.status >= Committed {
		return fmt.Errorf("%w: cannot encode on %q", ErrAlreadyCommitted, cb.label)
	}

	run := encodedRun{exe: exe}
	for _, td := range inputs {
		run.inputs = append(run.inputs, td.Retain())
	}
	for _, td := range outputs {
		run.outputs = append(run.outputs, td.Retain())
	}
	cb.runs = append(cb.runs, run)

	if desc != nil {
		cb.scheduledHandlers = append(cb.scheduledHandlers, desc.scheduledHandlers...)
		cb.completionHandlers = append(cb.completionHandlers, desc.completionHandlers...)
	}
	return nil
}

// Enqueue reserves the buffer's place on the queue without committing.
// Optional; Commit enqueues implicitly.
func (cb *CommandBuffer) Enqueue() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.status >= Committed {
		return fmt.Errorf("%w: cannot enqueue %q", ErrAlreadyCommitted, cb.label)
	}
	if cb.status < Enqueued {
		cb.status = Enqueued
	}
	return nil
}

// Commit seals the buffer and submits it for execution. Committing
// twice is an error.
func (cb *CommandBuffer) Commit() error {
	cb.mu.Lock()
	if cb.status >= Committed {
		cb.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrAlreadyCommitted, cb.label)
	}
	cb.status = Committed
	cb.mu.Unlock()

	if err := cb.queue.submit(cb); err != nil {
		cb.finish(nil, err)
		return err
	}
	return nil
}

// CommitAndContinue commits this buffer and returns a fresh one on the
// same queue, so the caller can keep encoding while the committed work
// runs behind it.
func (cb *CommandBuffer) CommitAndContinue() (*CommandBuffer, error) {
	if err := cb.Commit(); err != nil {
		return nil, err
	}
	return cb.queue.CommandBuffer(), nil
}

// AddScheduledHandler registers a handler fired when the dispatcher
// picks the buffer up. Only accepted before Commit.
func (cb *CommandBuffer) AddScheduledHandler(h ScheduledHandler) error {
	if h == nil {
		return nil
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.status >= Committed {
		return fmt.Errorf("%w: cannot add handler on %q", ErrAlreadyCommitted, cb.label)
	}
	cb.scheduledHandlers = append(cb.scheduledHandlers, h)
	return nil
}

// AddCompletionHandler registers a handler fired exactly once at the
// terminal state. Only accepted before Commit.
func (cb *CommandBuffer) AddCompletionHandler(h CompletionHandler) error {
	if h == nil {
		return nil
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.status >= Committed {
		return fmt.Errorf("%w: cannot add handler on %q", ErrAlreadyCommitted, cb.label)
	}
	cb.completionHandlers = append(cb.completionHandlers, h)
	return nil
}

// SetPrefetchWorkloadSize hints how much follow-on work the submitter
// intends to encode after this buffer. The engine may use it to keep
// the device saturated; it never changes results.
func (cb *CommandBuffer) SetPrefetchWorkloadSize(n int) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if n >= 0 {
		cb.prefetchWorkloadSize = n
	}
}

// WaitUntilCompleted blocks until the buffer is terminal and returns
// its error, if any. Waiting on a buffer that was never committed
// returns ErrNotCommitted instead of blocking forever.
func (cb *CommandBuffer) WaitUntilCompleted() error {
	cb.mu.Lock()
	committed := cb.status >= Committed
	cb.mu.Unlock()
	if !committed {
		return fmt.Errorf("%w: %q", ErrNotCommitted, cb.label)
	}
	<-cb.done
	return cb.err
}

// Err returns the terminal error. Valid once the buffer is terminal.
func (cb *CommandBuffer) Err() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.err
}

// Results returns the target values of the last encoded run, in target
// order, once the buffer completed successfully. The buffer keeps its
// own references; callers retain what they want to keep.
func (cb *CommandBuffer) Results() ([]*tensor.TensorData, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if !cb.status.Terminal() {
		return nil, fmt.Errorf("command buffer %q has not completed", cb.label)
	}
	if cb.err != nil {
		return nil, cb.err
	}
	return cb.results, nil
}

// execute runs on the queue dispatcher goroutine.
func (cb *CommandBuffer) execute() {
	cb.mu.Lock()
	cb.status = Scheduled
	scheduled := cb.scheduledHandlers
	runs := cb.runs
	cb.mu.Unlock()

	for _, h := range scheduled {
		h()
	}

	accel := cb.queue.device.Accelerator()
	var results []*tensor.TensorData
	var err error

	for _, run := range runs {
		var outs []*tensor.TensorData
		outs, err = run.exe.runWith(accel, run.inputs)
		if err != nil {
			break
		}
		if run.outputs != nil {
			for i, out := range outs {
				if cerr := run.outputs[i].CopyFrom(out); cerr != nil {
					err = cerr
					break
				}
			}
			for _, out := range outs {
				out.Release()
			}
			if err != nil {
				break
			}
			outs = make([]*tensor.TensorData, len(run.outputs))
			for i, o := range run.outputs {
				outs[i] = o.Retain()
			}
		}
		// Later runs overwrite: Results reports the last encoded run.
		for _, r := range results {
			r.Release()
		}
		results = outs
	}
	if err == nil {
		err = accel.Synchronize()
	}

	cb.finish(results, err)
}

// finish moves the buffer to its terminal state, fires completion
// handlers once and releases every retained value.
func (cb *CommandBuffer) finish(results []*tensor.TensorData, err error) {
	cb.mu.Lock()
	if cb.status.Terminal() {
		cb.mu.Unlock()
		return
	}
	if err != nil {
		cb.status = Error
		for _, r := range results {
			r.Release()
		}
		results = nil
	} else {
		cb.status = Completed
	}
	cb.err = err
	cb.results = results
	handlers := cb.completionHandlers
	cb.completionHandlers = nil
	runs := cb.runs
	cb.runs = nil
	cb.mu.Unlock()

	for _, h := range handlers {
		h(results, err)
	}

	// Handlers have returned; the buffer drops its input and output
	// references now.
	for _, run := range runs {
		for _, td := range run.inputs {
			td.Release()
		}
		for _, td := range run.outputs {
			td.Release()
		}
	}

	close(cb.done)
}
