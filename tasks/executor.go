package tasks

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"bitbucket.org/kleinnic74/pinphotos/logging"
)

const historySize = 100

type taskSubmission struct {
	task      Task
	callback  func(Execution)
	exec      chan<- Execution
	submitted time.Time
}

type executionQuery chan<- []Execution

// Executor runs tasks on a fixed number of workers. Completion callbacks
// are all invoked on the goroutine running DrainTasks.
type Executor struct {
	workers  int
	submitCh chan taskSubmission
	queryCh  chan executionQuery
	done     chan struct{}
}

func NewExecutor(workers int) *Executor {
	if workers < 1 {
		workers = 1
	}
	return &Executor{
		workers:  workers,
		submitCh: make(chan taskSubmission),
		queryCh:  make(chan executionQuery),
		done:     make(chan struct{}),
	}
}

func (t *Executor) Submit(ctx context.Context, task Task) (Execution, error) {
	return t.SubmitWithCallback(ctx, task, nil)
}

// SubmitWithCallback queues task, callback is called once the task
// terminated. Blocks until the executor accepted the task.
func (t *Executor) SubmitWithCallback(ctx context.Context, task Task, callback func(Execution)) (Execution, error) {
	ch := make(chan Execution, 1)
	s := taskSubmission{task: task, callback: callback, exec: ch, submitted: time.Now()}
	select {
	case t.submitCh <- s:
	case <-t.done:
		return Execution{}, ErrExecutorNotRunning
	case <-ctx.Done():
		return Execution{}, ctx.Err()
	}
	return <-ch, nil
}

func (t *Executor) ListTasks(ctx context.Context) []Execution {
	resCh := make(chan []Execution, 1)
	select {
	case t.queryCh <- resCh:
	case <-t.done:
		return nil
	case <-ctx.Done():
		return nil
	}
	return <-resCh
}

// DrainTasks executes submitted tasks until ctx is done. onCompleted, if
// not nil, is called for every terminated execution.
func (t *Executor) DrainTasks(ctx context.Context, onCompleted func(Execution)) {
	logger, ctx := logging.SubFrom(ctx, "tasks")
	defer close(t.done)

	queue := make(map[TaskID]Execution)
	var history []Execution
	var ids TaskID
	taskCh := make(chan Execution)
	resCh := make(chan Execution, t.workers)
	for i := 0; i < t.workers; i++ {
		go func(worker int) {
			log := logger.With(zap.Int("worker", worker))
			for e := range taskCh {
				log.Info("Executing task", zap.Uint64("taskID", uint64(e.ID)), zap.String("title", e.Title))
				e.Error = e.task.Execute(ctx)
				if e.Error != nil {
					e.Status = Error
				} else {
					e.Status = Completed
				}
				e.Completed = time.Now()
				resCh <- e
			}
		}(i)
	}
	defer close(taskCh)

	var pending []Execution
	idle := t.workers
	for {
		select {
		case s := <-t.submitCh:
			id := ids
			ids++
			e := Execution{ID: id, Status: Pending, Submitted: s.submitted, task: s.task, callback: s.callback, Title: s.task.Describe()}
			logger.Info("Task submitted", zap.Uint64("taskID", uint64(id)), zap.String("title", e.Title))
			if idle > 0 {
				e.Status = Running
				taskCh <- e
				idle--
			} else {
				pending = append(pending, e)
			}
			queue[id] = e
			s.exec <- e
		case res := <-resCh:
			idle++
			logger.Info("Task completed",
				zap.Uint64("taskID", uint64(res.ID)),
				zap.String("taskStatus", string(res.Status)),
				zap.Error(res.Error))
			delete(queue, res.ID)
			history = append(history, res)
			if len(history) > historySize {
				history = history[len(history)-historySize:]
			}
			if res.callback != nil {
				res.callback(res)
			}
			if onCompleted != nil {
				onCompleted(res)
			}
			if len(pending) > 0 {
				e := pending[0]
				pending = pending[1:]
				e.Status = Running
				taskCh <- e
				idle--
				queue[e.ID] = e
			}
		case q := <-t.queryCh:
			executions := make([]Execution, 0, len(queue)+len(history))
			executions = append(executions, history...)
			for _, v := range queue {
				executions = append(executions, v)
			}
			sort.Slice(executions, func(i, j int) bool { return executions[i].ID < executions[j].ID })
			q <- executions
		case <-ctx.Done():
			logger.Info("Task executor interrupted", zap.Int("pending", len(pending)))
			return
		}
	}
}
