package logger

import (
	"context"
	"log/slog"
	"os"
)

// Attribute keys that must never reach log output. Agent credentials travel
// from the directory through the stream handshake into the realtime dial;
// redaction here is the backstop if one is ever passed to a log call.
var secretKeys = map[string]bool{
	"openai_api_key": true,
	"api_key":        true,
	"auth_token":     true,
	"authorization":  true,
}

// New returns the service-wide structured logger: JSON to stdout, debug level
// in local and dev environments, secret attributes redacted.
func New(appEnv string) *slog.Logger {
	level := slog.LevelInfo
	if appEnv == "local" || appEnv == "dev" {
		level = slog.LevelDebug
	}

	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if secretKeys[a.Key] {
				a.Value = slog.StringValue("[redacted]")
			}
			return a
		},
	})
	return slog.New(h)
}

type ctxKey struct{}

// With stores a logger in context.
func With(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// From gets a logger from context, falling back to slog.Default().
func From(ctx context.Context) *slog.Logger {
	if v := ctx.Value(ctxKey{}); v != nil {
		if l, ok := v.(*slog.Logger); ok && l != nil {
			return l
		}
	}
	return slog.Default()
}
