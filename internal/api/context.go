package api

import (
	"context"

	"bidsia.com/bids-assistant/internal/core"
)

// contextKey is a custom type used for context keys to avoid collisions.
type contextKey string

const sessionKey contextKey = "session"

func withSession(ctx context.Context, sess *core.Session) context.Context {
	return context.WithValue(ctx, sessionKey, sess)
}

// sessionFromContext returns the session resolved by SessionAuthMiddleware.
func sessionFromContext(ctx context.Context) (*core.Session, bool) {
	sess, ok := ctx.Value(sessionKey).(*core.Session)
	return sess, ok
}
