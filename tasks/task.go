package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

type Task interface {
	Describe() string
	Execute(context.Context) error
}

type funcTask struct {
	title string
	fn    func(context.Context) error
}

// Func wraps fn as a Task titled title
func Func(title string, fn func(context.Context) error) Task {
	return funcTask{title: title, fn: fn}
}

func (t funcTask) Describe() string {
	return t.title
}

func (t funcTask) Execute(ctx context.Context) error {
	return t.fn(ctx)
}

type ExecutionStatus string

const (
	Pending   = ExecutionStatus("pending")
	Running   = ExecutionStatus("running")
	Completed = ExecutionStatus("completed")
	Error     = ExecutionStatus("error")
)

type TaskID uint64

type Execution struct {
	ID        TaskID          `json:"id"`
	Title     string          `json:"title"`
	Status    ExecutionStatus `json:"status"`
	Submitted time.Time       `json:"submitted,omitempty"`
	Completed time.Time       `json:"completed,omitempty"`
	Error     error           `json:"-"`
	task      Task
	callback  func(Execution)
}

func (e Execution) MarshalJSON() ([]byte, error) {
	type plain Execution
	out := struct {
		plain
		Error string `json:"error,omitempty"`
	}{plain: plain(e)}
	if e.Error != nil {
		out.Error = e.Error.Error()
	}
	return json.Marshal(out)
}

// Done reports whether the execution reached a final status
func (e Execution) Done() bool {
	return e.Status == Completed || e.Status == Error
}

type TaskExecutor interface {
	Submit(context.Context, Task) (Execution, error)
	SubmitWithCallback(context.Context, Task, func(Execution)) (Execution, error)
	ListTasks(context.Context) []Execution
}

var ErrExecutorNotRunning = errors.New("TaskExecutor is not running")

type boundTask struct {
	Task
	parent context.Context
}

// WithContext binds task to parent: once started, the task is cancelled as
// soon as either parent or the executor's context is done
func WithContext(parent context.Context, task Task) Task {
	return boundTask{Task: task, parent: parent}
}

func (t boundTask) Execute(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if t.parent.Err() != nil {
		cancel()
	} else {
		stop := context.AfterFunc(t.parent, cancel)
		defer stop()
	}
	return t.Task.Execute(ctx)
}
