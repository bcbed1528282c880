package testutil

import (
	"context"
	"net/http"
	"sync"
	"time"

	"aegis/pkg/requestcontext"
)

// WithSubject simulates the auth middleware on a request.
func WithSubject(req *http.Request, subjectID, role string) *http.Request {
	return req.WithContext(requestcontext.WithSubject(req.Context(), subjectID, role))
}

// Clock is a settable time source for services that accept func() time.Time.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(t time.Time) *Clock { return &Clock{now: t} }

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Ctx returns a context pinned to the clock's current time.
func (c *Clock) Ctx(ctx context.Context) context.Context {
	return requestcontext.WithTime(ctx, c.Now())
}
