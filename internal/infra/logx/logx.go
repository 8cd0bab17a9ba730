package logx

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Logger 是调试日志（stderr）。面向用户的输出只走 run.Sink，不走这里。
type Logger struct {
	*slog.Logger
}

type Config struct {
	// Level: debug / info / warn / error
	Level string
	// Format: text / json
	Format string
	// Output 默认 os.Stderr
	Output io.Writer
}

func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	opts := &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.UTC().Format(time.RFC3339Nano))
				}
			}
			return a
		},
	}

	var h slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		h = slog.NewJSONHandler(cfg.Output, opts)
	} else {
		h = slog.NewTextHandler(cfg.Output, opts)
	}
	return &Logger{Logger: slog.New(h)}
}

// Nop 丢弃所有日志（未开启 --debug 时使用）。
func Nop() *Logger {
	return New(Config{Level: "error", Output: io.Discard})
}

func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{Logger: l.Logger.With(slog.String("component", component))}
}

// With 与 slog.Logger.With 相同，但保持 *Logger 类型。
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

func (l *Logger) WithRunID(id string) *Logger {
	return &Logger{Logger: l.Logger.With(slog.String("run_id", id))}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
