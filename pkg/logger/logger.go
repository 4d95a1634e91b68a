package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// New returns the service's JSON logger. LOG_LEVEL overrides the level
// derived from the environment.
func New(appEnv string) *slog.Logger {
	level := slog.LevelInfo
	if appEnv == "local" || appEnv == "dev" {
		level = slog.LevelDebug
	}
	if v := strings.TrimSpace(os.Getenv("LOG_LEVEL")); v != "" {
		var parsed slog.Level
		if err := parsed.UnmarshalText([]byte(v)); err == nil {
			level = parsed
		}
	}

	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(h).With("service", "sales-dialer", "env", appEnv)
}

// ForAgent scopes a logger to one agent's calling session.
func ForAgent(l *slog.Logger, agentID string) *slog.Logger {
	if l == nil {
		l = slog.Default()
	}
	return l.With("agent_id", agentID)
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
