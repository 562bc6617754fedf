package library

import (
	"context"
	"fmt"

	"bitbucket.org/kleinnic74/pinphotos/failure"
	"bitbucket.org/kleinnic74/pinphotos/tasks"
)

// Async runs PhotoCache operations on a task executor. Callbacks are
// invoked on the goroutine draining the executor, one at a time.
//
// The context given to every operation bounds both the submission and the
// execution: once it is done, a pending or running operation stops, writes
// nothing and reports a failure.Cancelled error to its callback. Callers
// wanting a job to outlive them pass context.WithoutCancel.
type Async struct {
	cache    *PhotoCache
	executor tasks.TaskExecutor
}

func NewAsync(cache *PhotoCache, executor tasks.TaskExecutor) *Async {
	return &Async{cache: cache, executor: executor}
}

func (a *Async) EnsurePhotosForPin(ctx context.Context, id PinID, callback func(*PhotoSet, error)) (tasks.Execution, error) {
	return a.submitSet(ctx, fmt.Sprintf("Load photos of pin %s", id), func(ctx context.Context) (*PhotoSet, error) {
		return a.cache.EnsurePhotosForPin(ctx, id)
	}, callback)
}

func (a *Async) Refresh(ctx context.Context, id PinID, callback func(*PhotoSet, error)) (tasks.Execution, error) {
	return a.submitSet(ctx, fmt.Sprintf("Refresh photos of pin %s", id), func(ctx context.Context) (*PhotoSet, error) {
		return a.cache.Refresh(ctx, id)
	}, callback)
}

func (a *Async) Materialize(ctx context.Context, photo *Photo, callback func([]byte, error)) (tasks.Execution, error) {
	var data []byte
	return a.submit(ctx, fmt.Sprintf("Download photo %s", photo.ID), func(ctx context.Context) (err error) {
		data, err = a.cache.Materialize(ctx, photo)
		return
	}, func(err error) {
		if callback != nil {
			callback(data, err)
		}
	})
}

func (a *Async) Prefetch(ctx context.Context, id PinID, callback func(*PrefetchReport, error)) (tasks.Execution, error) {
	var report *PrefetchReport
	return a.submit(ctx, fmt.Sprintf("Download all photos of pin %s", id), func(ctx context.Context) (err error) {
		report, err = a.cache.Prefetch(ctx, id)
		return
	}, func(err error) {
		if callback != nil {
			callback(report, err)
		}
	})
}

func (a *Async) DeletePin(ctx context.Context, id PinID, callback func(error)) (tasks.Execution, error) {
	return a.submit(ctx, fmt.Sprintf("Delete pin %s", id), func(ctx context.Context) error {
		return a.cache.DeletePin(ctx, id)
	}, callback)
}

func (a *Async) DeletePhoto(ctx context.Context, id PhotoID, callback func(error)) (tasks.Execution, error) {
	return a.submit(ctx, fmt.Sprintf("Delete photo %s", id), func(ctx context.Context) error {
		return a.cache.DeletePhoto(ctx, id)
	}, callback)
}

// DeletePhotos reports the number of photos actually removed
func (a *Async) DeletePhotos(ctx context.Context, ids []PhotoID, callback func(int, error)) (tasks.Execution, error) {
	var deleted int
	return a.submit(ctx, fmt.Sprintf("Delete %d photos", len(ids)), func(ctx context.Context) (err error) {
		deleted, err = a.cache.DeletePhotos(ctx, ids)
		return
	}, func(err error) {
		if callback != nil {
			callback(deleted, err)
		}
	})
}

func (a *Async) submitSet(ctx context.Context, title string, fn func(context.Context) (*PhotoSet, error), callback func(*PhotoSet, error)) (tasks.Execution, error) {
	var set *PhotoSet
	return a.submit(ctx, title, func(ctx context.Context) (err error) {
		set, err = fn(ctx)
		return
	}, func(err error) {
		if callback != nil {
			callback(set, err)
		}
	})
}

func (a *Async) submit(ctx context.Context, title string, fn func(context.Context) error, done func(error)) (tasks.Execution, error) {
	task := tasks.Func(title, func(taskCtx context.Context) error {
		if err := failure.FromContext(ctx, "async"); err != nil {
			return err
		}
		return fn(taskCtx)
	})
	return a.executor.SubmitWithCallback(ctx, tasks.WithContext(ctx, task), func(e tasks.Execution) {
		if done != nil {
			done(e.Error)
		}
	})
}
