package scheduler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddJob_RejectsBadSpec(t *testing.T) {
	s := NewScheduler()

	assert.NoError(t, s.AddJob("0 * * * *", "reaper", func(context.Context) {}))
	assert.Error(t, s.AddJob("every hour", "broken", func(context.Context) {}))
}

func TestStartStop(t *testing.T) {
	s := NewScheduler()
	assert.NoError(t, s.AddJob("@every 1h", "noop", func(context.Context) {}))

	s.Start(context.Background())
	s.Stop()
	assert.Error(t, s.ctx.Err())
}
