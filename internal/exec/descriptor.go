package exec

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/weft-ml/weft/internal/tensor"
)

// OptimizationLevel selects how aggressively the compiler rewrites the
// program. It is a hint: both levels produce identical results.
type OptimizationLevel int

const (
	// OptimizationLevel0 compiles the graph as written.
	OptimizationLevel0 OptimizationLevel = iota
	// OptimizationLevel1 additionally prunes dead operations and folds
	// trivial reshapes.
	OptimizationLevel1
)

// ScheduledHandler fires when a command buffer's work is picked up by
// the queue dispatcher, before any kernel runs.
type ScheduledHandler func()

// CompletionHandler fires exactly once when a command buffer reaches a
// terminal state. On success it receives the target values in target
// order and a nil error; on failure results is nil.
//
// The handler signature deliberately exposes only the results, not the
// command buffer, so a registered handler cannot keep its own buffer
// alive.
type CompletionHandler func(results []*tensor.TensorData, err error)

// CompilationDescriptor configures Compile. The zero value is a valid
// default; a nil descriptor behaves like the zero value.
type CompilationDescriptor struct {
	// OptimizationLevel is a compilation hint.
	OptimizationLevel OptimizationLevel
	// DebugCompile logs every compiled instruction on Logger.
	DebugCompile bool
	// Logger receives compile-time debug logging. nil disables it.
	Logger *zap.Logger

	callables map[string]*Executable
}

// AddCallable registers a compiled executable under a symbol, making it
// available to call operations in graphs compiled with this descriptor.
func (d *CompilationDescriptor) AddCallable(symbol string, exe *Executable) error {
	if symbol == "" {
		return fmt.Errorf("callable symbol must not be empty")
	}
	if exe == nil {
		return fmt.Errorf("callable %q: nil executable", symbol)
	}
	if d.callables == nil {
		d.callables = make(map[string]*Executable)
	}
	if _, exists := d.callables[symbol]; exists {
		return fmt.Errorf("callable %q already registered", symbol)
	}
	d.callables[symbol] = exe
	return nil
}

// RemoveCallable unregisters a symbol. Removing an unknown symbol is a
// no-op.
func (d *CompilationDescriptor) RemoveCallable(symbol string) {
	delete(d.callables, symbol)
}

// Callables returns the registered symbol table as a copy.
func (d *CompilationDescriptor) Callables() map[string]*Executable {
	out := make(map[string]*Executable, len(d.callables))
	for k, v := range d.callables {
		out[k] = v
	}
	return out
}

// ExecutionDescriptor configures a single run. The zero value requests
// the default scheduling (asynchronous, no handlers).
type ExecutionDescriptor struct {
	waitUntilCompleted bool
	preferSync         bool

	scheduledHandlers  []ScheduledHandler
	completionHandlers []CompletionHandler
}

// PreferSynchronousExecution asks the engine to block the submitting
// goroutine until the work completes.
func (d *ExecutionDescriptor) PreferSynchronousExecution() {
	d.preferSync = true
}

// PreferAsynchronousExecution restores the default scheduling.
func (d *ExecutionDescriptor) PreferAsynchronousExecution() {
	d.preferSync = false
}

// SetWaitUntilCompleted makes the run wait for completion before
// returning, independent of the scheduling preference.
func (d *ExecutionDescriptor) SetWaitUntilCompleted(wait bool) {
	d.waitUntilCompleted = wait
}

// AddScheduledHandler registers a handler fired when the work is
// scheduled.
func (d *ExecutionDescriptor) AddScheduledHandler(h ScheduledHandler) {
	if h != nil {
		d.scheduledHandlers = append(d.scheduledHandlers, h)
	}
}

// AddCompletionHandler registers a handler fired once at completion.
func (d *ExecutionDescriptor) AddCompletionHandler(h CompletionHandler) {
	if h != nil {
		d.completionHandlers = append(d.completionHandlers, h)
	}
}

func (d *ExecutionDescriptor) synchronous() bool {
	if d == nil {
		return false
	}
	return d.preferSync || d.waitUntilCompleted
}

// SerializationDescriptor configures SerializeToPackage.
type SerializationDescriptor struct {
	// Append allows writing into an existing package directory,
	// replacing its contents. Without it an existing directory is an
	// error.
	Append bool
	// DeploymentTarget is recorded in the manifest for provenance; it
	// does not affect the written program.
	DeploymentTarget string
}
