package logging

import (
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
)

type LogCode string

const (
	SYSTEM LogCode = "SYSTEM"
	AUTH   LogCode = "AUTH"

	COMPANY  LogCode = "COMPANY"
	CLIENT   LogCode = "CLIENT"
	CONTRACT LogCode = "CONTRACT"
	EVENT    LogCode = "EVENT"

	// Automatic state changes on a parent entity (client activation, contract signing, ...).
	LIFECYCLE LogCode = "LIFECYCLE"
)

// Formats the time key so log shippers don't need to parse RFC3339 with nanoseconds.
func formatTimeKey(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey && len(groups) == 0 {
		return slog.Attr{Key: slog.TimeKey, Value: slog.StringValue(a.Value.Time().Format("2006-01-02 15:04:05"))}
	}
	return a
}

func GetJsonLogOptions(addSource bool) *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level:       slog.LevelDebug,
		ReplaceAttr: formatTimeKey,
		AddSource:   addSource,
	}
}

// InitLogging sends structured json logs to logFile and human readable logs to stderr.
func InitLogging(logFile io.Writer, service string) {
	var jsonHandler slog.Handler = slog.NewJSONHandler(logFile, GetJsonLogOptions(true))
	jsonHandler = jsonHandler.WithAttrs([]slog.Attr{slog.String("service_type", service)})

	textHandler := slog.NewTextHandler(os.Stderr, nil)

	logger := slog.New(slogmulti.Fanout(jsonHandler, textHandler))
	slog.SetDefault(logger)
}
