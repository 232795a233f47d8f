package scheduler

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module provides the scheduler for on-demand runs.
var Module = fx.Module("scheduler",
	fx.Provide(ProvideConfig),
	fx.Provide(New),
)

// RunnerModule starts the periodic billing loop with the application lifecycle.
var RunnerModule = fx.Module("scheduler.runner",
	fx.Invoke(StartRunner),
)

// StartRunner runs RunForever between OnStart and OnStop. OnStop waits for the
// in-flight run to observe cancellation, bounded by the stop context.
func StartRunner(lc fx.Lifecycle, sched *Scheduler, log *zap.Logger) {
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)
	log = log.Named("scheduler.runner")

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			var runCtx context.Context
			runCtx, cancel = context.WithCancel(context.Background())
			done = make(chan struct{})

			go func() {
				defer close(done)
				sched.RunForever(runCtx)
			}()

			log.Info("billing loop started", zap.Duration("interval", sched.cfg.RunInterval))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel == nil {
				return nil
			}
			cancel()
			select {
			case <-done:
				log.Info("billing loop stopped")
				return nil
			case <-ctx.Done():
				log.Warn("billing loop did not stop before shutdown deadline")
				return ctx.Err()
			}
		},
	})
}
