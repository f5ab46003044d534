package jobs

import (
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
)

// asynqLogger routes Asynq server and scheduler logs through slog.
type asynqLogger struct {
	logger *slog.Logger
}

func newAsynqLogger(logger *slog.Logger) asynq.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return asynqLogger{logger: logger.With(slog.String("component", "asynq"))}
}

func (l asynqLogger) Debug(args ...any) { l.logger.Debug(fmt.Sprint(args...)) }

func (l asynqLogger) Info(args ...any) { l.logger.Info(fmt.Sprint(args...)) }

func (l asynqLogger) Warn(args ...any) { l.logger.Warn(fmt.Sprint(args...)) }

func (l asynqLogger) Error(args ...any) { l.logger.Error(fmt.Sprint(args...)) }

// Fatal logs at error level; Asynq exits the process after calling it.
func (l asynqLogger) Fatal(args ...any) {
	l.logger.Error(fmt.Sprint(args...), slog.Bool("fatal", true))
}
