package poller

import (
	"log/slog"

	"github.com/robfig/cron/v3"
)

// cronLogger adapts slog to cron.Logger. Cron's per-tick info messages are
// logged at debug level.
type cronLogger struct {
	l *slog.Logger
}

var _ cron.Logger = cronLogger{}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error("cron: "+msg, append(keysAndValues, "err", err)...)
}
