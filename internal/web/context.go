package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/ddrcsv/internal/core"
)

// WithRequestMetadata adds the client address and User-Agent to ctx for
// import history. RemoteAddr has already been rewritten by TrustedRealIP.
func WithRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	ctx = core.ContextWithIPAddress(ctx, r.RemoteAddr)
	return core.ContextWithUserAgent(ctx, r.Header.Get("User-Agent"))
}
