package scheduler

import "github.com/me/ossim/pkg/model"

// fail logs a fatal error. Run's deferred release does the teardown.
func (l *Loop) fail(err error) error {
	l.logger.Error("scheduler failed",
		"kind", model.KindOf(err),
		"error", err,
		"clock", l.clock.Now(),
		"live", l.table.Live(),
	)
	return err
}

// release kills every worker, then releases the dispatch channel and the
// clock. It runs once, on every exit path of Run.
func (l *Loop) release() {
	l.releaseOnce.Do(func() {
		l.launcher.KillAll()
		if err := l.mailbox.Close(); err != nil {
			l.logger.Warn("release dispatch channel", "error", err)
		}
		if err := l.clock.Close(); err != nil {
			l.logger.Warn("release clock", "error", err)
		}
		l.launcher.Wait()
		l.logger.Debug("resources released", "live", l.table.Live())
	})
}
