package journal

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/nlds-storage/nlds/config"
)

// NewLogger builds a structured slog.Logger for a stage worker, grounded on
// the teacher's tasks.go pattern of constructing a slog.JSONHandler at
// startup (there over os.Stdout; here over a lumberjack rotating writer when
// logging_q names a log file, falling back to stdout otherwise).
//
// worker identifies the calling stage (e.g. "transfer-put", "catalog") and
// is attached to every record so a shared log stream can be filtered per
// stage.
func NewLogger(worker string) *slog.Logger {
	level := parseLevel(config.LoggingQ.Level)

	var out io.Writer = os.Stdout
	if len(config.LoggingQ.LogFiles) > 0 && config.LoggingQ.LogFiles[0] != "" {
		out = &lumberjack.Logger{
			Filename:   config.LoggingQ.LogFiles[0],
			MaxSize:    maxMegabytes(config.LoggingQ.MaxBytes),
			MaxBackups: config.LoggingQ.BackupCount,
		}
	}

	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})
	return slog.New(handler).With(slog.String("worker", worker))
}

func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// maxMegabytes converts logging_q.max_bytes to lumberjack's MB-denominated
// MaxSize, rounding up so a non-zero byte ceiling never rounds down to 0
// (which lumberjack treats as "unlimited").
func maxMegabytes(maxBytes int) int {
	const mb = 1 << 20
	if maxBytes <= 0 {
		return 100
	}
	mbSize := maxBytes / mb
	if maxBytes%mb != 0 {
		mbSize++
	}
	if mbSize == 0 {
		mbSize = 1
	}
	return mbSize
}
