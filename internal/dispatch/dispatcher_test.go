package dispatch

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/buildmesh/internal/foundation/errors"
)

type pushed struct{ Ref string }

func (p *pushed) Describe() string { return "push " + p.Ref }

type describer interface{ Describe() string }

func TestDispatch_FansOutInOrder(t *testing.T) {
	d := New(nil)
	var calls []string
	Subscribe(d, "first", func(_ context.Context, e *pushed) error {
		calls = append(calls, "first:"+e.Ref)
		return nil
	})
	Subscribe(d, "second", func(_ context.Context, e *pushed) error {
		calls = append(calls, "second:"+e.Ref)
		return nil
	})
	Subscribe(d, "iface", func(_ context.Context, e describer) error {
		calls = append(calls, "iface:"+e.Describe())
		return nil
	})

	require.NoError(t, d.Dispatch(t.Context(), "k", &pushed{Ref: "main"}))
	assert.Equal(t, []string{"first:main", "second:main", "iface:push main"}, calls)
	assert.False(t, d.Errored("k"))
	assert.Equal(t, 3, HandlerCount[*pushed](d))
}

func TestDispatch_FailureIsolatedAndMarked(t *testing.T) {
	d := New(nil)
	ran := false
	Subscribe(d, "boom", func(context.Context, *pushed) error { return errors.New("boom") })
	Subscribe(d, "panics", func(context.Context, *pushed) error { panic("oops") })
	Subscribe(d, "sibling", func(context.Context, *pushed) error {
		ran = true
		return nil
	})

	err := d.Dispatch(t.Context(), "PushEvent#1", &pushed{})
	require.NoError(t, err, "ordinary failures are not returned")
	assert.True(t, ran)
	assert.True(t, d.Errored("PushEvent#1"))

	d.Forget("PushEvent#1")
	assert.False(t, d.Errored("PushEvent#1"))
}

func TestDispatch_NonRetryablePropagates(t *testing.T) {
	d := New(nil)
	cause := errors.New("kill failed")
	Subscribe(d, "killer", func(context.Context, *pushed) error {
		return fmt.Errorf("cancel: %w", ferrors.NonRetryable(cause))
	})

	err := d.Dispatch(t.Context(), "k", &pushed{})
	require.Error(t, err)
	assert.True(t, ferrors.IsNonRetryable(err))
	assert.ErrorIs(t, err, cause)
}

func TestDispatch_UnregisteredTypeIsNoop(t *testing.T) {
	d := New(nil)
	require.NoError(t, d.Dispatch(t.Context(), "k", struct{}{}))
	assert.False(t, d.Errored("k"))
	assert.True(t, ferrors.IsNonRetryable(d.Dispatch(t.Context(), "k", nil)))
}
