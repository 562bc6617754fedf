package app

import (
	"context"

	"go.uber.org/zap"

	"bitbucket.org/kleinnic74/pinphotos/events"
	"bitbucket.org/kleinnic74/pinphotos/library"
	"bitbucket.org/kleinnic74/pinphotos/logging"
	"bitbucket.org/kleinnic74/pinphotos/tasks"
)

// launchStartupTasks loads the persisted pins so that clients connected to
// the event stream can show them right away
func launchStartupTasks(ctx context.Context, cache *library.PhotoCache, executor tasks.TaskExecutor, bus events.Publisher) {
	task := tasks.Func("Load persisted pins", func(ctx context.Context) error {
		pins, err := cache.Pins(ctx)
		if err != nil {
			return err
		}
		logging.From(ctx).Info("Pins loaded", zap.Int("count", len(pins)))
		bus.Publish(events.Event{Name: "pins", Action: "loaded", Data: pins})
		return nil
	})
	if _, err := executor.Submit(ctx, task); err != nil {
		logging.From(ctx).Warn("StartupTasks", zap.Error(err))
	}
}
