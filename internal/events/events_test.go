package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failing struct{ err error }

func (f failing) Publish(context.Context, Event) error { return f.err }

func TestMulti_PublishesToAllAndJoinsErrors(t *testing.T) {
	t.Parallel()

	a, b := &Recorder{}, &Recorder{}
	boom := errors.New("broker down")
	m := Multi{a, failing{err: boom}, b}

	ev := New(UserLoggedIn, "u1", "u@example.com", time.Now())
	err := m.Publish(context.Background(), ev)

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []Type{UserLoggedIn}, a.Types())
	assert.Equal(t, []Type{UserLoggedIn}, b.Types())
}

func TestNew(t *testing.T) {
	t.Parallel()

	ev := New(UserRegistered, "u1", "u@example.com", time.Date(2024, 1, 1, 12, 0, 0, 0, time.FixedZone("X", 3600)))
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, time.UTC, ev.OccurredAt.Location())
	assert.NoError(t, Nop{}.Publish(context.Background(), ev))
}
