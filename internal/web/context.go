package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/schemafix/internal/core"
)

// withRequestMetadata adds client IP and actor to ctx for promotion logs.
// The actor is the last four characters of the API key when one was sent,
// otherwise the User-Agent.
func withRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	ctx = core.ContextWithIPAddress(ctx, clientIP(r))

	actor := r.UserAgent()
	if key := r.Header.Get("X-API-Key"); len(key) >= 4 {
		actor = "key:..." + key[len(key)-4:]
	}
	return core.ContextWithActor(ctx, actor)
}
