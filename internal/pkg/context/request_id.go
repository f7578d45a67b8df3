// Package context carries the request-scoped ids that service code logs:
// the request id and the signed-in caller.
package context

import "context"

type key uint8

const (
	requestIDKey key = iota + 1
	actorIDKey
)

const maxRequestIDLen = 64

// CleanRequestID returns id when it is safe to echo and log, else "".
// Accepted ids are at most 64 bytes of [A-Za-z0-9._-].
func CleanRequestID(id string) string {
	if id == "" || len(id) > maxRequestIDLen {
		return ""
	}
	for i := 0; i < len(id); i++ {
		switch c := id[i]; {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-' || c == '_' || c == '.':
		default:
			return ""
		}
	}
	return id
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

func GetRequestID(ctx context.Context) string {
	return stringValue(ctx, requestIDKey)
}

// WithActorID records the authenticated user behind the request.
func WithActorID(ctx context.Context, userID string) context.Context {
	if userID == "" {
		return ctx
	}
	return context.WithValue(ctx, actorIDKey, userID)
}

func ActorID(ctx context.Context) string {
	return stringValue(ctx, actorIDKey)
}

func stringValue(ctx context.Context, k key) string {
	if ctx == nil {
		return ""
	}
	s, _ := ctx.Value(k).(string)
	return s
}
