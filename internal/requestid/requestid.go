// Package requestid generates and propagates per-request correlation
// identifiers. The HTTP layer stamps every request with one; the
// admission service reads it back out of the context so decision
// records and published events carry the same identifier the caller
// saw in the response.
package requestid

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"time"
)

type contextKey struct{}

// Generate returns a 16-character hex identifier. Falls back to a
// timestamp if the system entropy source fails, so a request is never
// left without an identifier.
func Generate() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 10)
	}
	return hex.EncodeToString(b)
}

// NewContext returns a context carrying the given request identifier.
func NewContext(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the request identifier stored in the context,
// or an empty string when none was set.
func FromContext(ctx context.Context) string {
	if id, ok := ctx.Value(contextKey{}).(string); ok {
		return id
	}
	return ""
}
