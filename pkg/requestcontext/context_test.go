package requestcontext

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNowFallsBackToWallClock(t *testing.T) {
	before := time.Now()
	got := Now(context.Background())
	assert.False(t, got.Before(before))

	fixed := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, fixed, Now(WithTime(context.Background(), fixed)))
}

func TestActor(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, "system", Actor(ctx))

	ctx = WithClientMetadata(ctx, "10.0.0.1", "curl/8.0")
	assert.Equal(t, "ip:10.0.0.1", Actor(ctx))

	ctx = WithSubject(ctx, "user-1", RoleAdmin)
	assert.Equal(t, "user-1", Actor(ctx))
	assert.True(t, IsAdmin(ctx))
}
