package schedule

import (
	"fmt"
	"log/slog"
	"os"
)

// slogLogger routes asynq's logs into slog.
type slogLogger struct{}

func (slogLogger) Debug(args ...any) { slog.Debug("asynq: " + fmt.Sprint(args...)) }
func (slogLogger) Info(args ...any)  { slog.Info("asynq: " + fmt.Sprint(args...)) }
func (slogLogger) Warn(args ...any)  { slog.Warn("asynq: " + fmt.Sprint(args...)) }
func (slogLogger) Error(args ...any) { slog.Error("asynq: " + fmt.Sprint(args...)) }

func (slogLogger) Fatal(args ...any) {
	slog.Error("asynq: " + fmt.Sprint(args...))
	os.Exit(1)
}
