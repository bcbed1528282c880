// Package requestcontext provides HTTP-independent accessors for request-scoped
// values. Middleware writes them; services read them without importing net/http.
//
//	subject := requestcontext.SubjectID(ctx)
//	now := requestcontext.Now(ctx)
//
// Tests inject values directly:
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
package requestcontext

import (
	"context"
	"time"
)

type (
	subjectIDKey   struct{}
	roleKey        struct{}
	clientIPKey    struct{}
	userAgentKey   struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// RoleAdmin is the role claim granted to operators.
const RoleAdmin = "admin"

// SubjectID returns the authenticated subject, or "" for anonymous requests.
func SubjectID(ctx context.Context) string {
	v, _ := ctx.Value(subjectIDKey{}).(string)
	return v
}

// WithSubject injects the authenticated subject and its role.
func WithSubject(ctx context.Context, subjectID, role string) context.Context {
	ctx = context.WithValue(ctx, subjectIDKey{}, subjectID)
	return context.WithValue(ctx, roleKey{}, role)
}

// Role returns the role claim of the authenticated subject.
func Role(ctx context.Context) string {
	v, _ := ctx.Value(roleKey{}).(string)
	return v
}

// IsAdmin reports whether the caller carries the admin role.
func IsAdmin(ctx context.Context) bool {
	return Role(ctx) == RoleAdmin
}

// ClientIP returns the client address captured by the metadata middleware.
func ClientIP(ctx context.Context) string {
	v, _ := ctx.Value(clientIPKey{}).(string)
	return v
}

// UserAgent returns the User-Agent captured by the metadata middleware.
func UserAgent(ctx context.Context) string {
	v, _ := ctx.Value(userAgentKey{}).(string)
	return v
}

// WithClientMetadata injects client IP and User-Agent.
func WithClientMetadata(ctx context.Context, clientIP, userAgent string) context.Context {
	ctx = context.WithValue(ctx, clientIPKey{}, clientIP)
	return context.WithValue(ctx, userAgentKey{}, userAgent)
}

// RequestID returns the correlation id for the request.
func RequestID(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey{}).(string)
	return v
}

// WithRequestID injects a correlation id.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// Now returns the request-scoped time, falling back to time.Now for workers
// and other non-HTTP callers.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime pins "now" for everything downstream of ctx.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}

// Actor describes who performed an action, for ledger records. Anonymous
// callers are identified by client IP.
func Actor(ctx context.Context) string {
	if s := SubjectID(ctx); s != "" {
		return s
	}
	if ip := ClientIP(ctx); ip != "" {
		return "ip:" + ip
	}
	return "system"
}
