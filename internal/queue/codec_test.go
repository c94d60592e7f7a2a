package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/buildmesh/internal/foundation/errors"
)

type pingEvent struct {
	Repo string `json:"repo"`
}

func TestCodec_RoundTripThroughTag(t *testing.T) {
	c := NewCodec()
	Register[pingEvent](c, "PingEvent")

	tag, payload, err := c.Encode(&pingEvent{Repo: "acme/api"})
	require.NoError(t, err)
	assert.Equal(t, "PingEvent", tag)

	v, err := c.Decode(tag, payload)
	require.NoError(t, err)
	assert.Equal(t, &pingEvent{Repo: "acme/api"}, v)
}

func TestCodec_FailuresAreNonRetryable(t *testing.T) {
	c := NewCodec()
	Register[pingEvent](c, "PingEvent")

	_, err := c.Decode("NopeEvent", []byte(`{}`))
	require.Error(t, err)
	assert.True(t, ferrors.IsNonRetryable(err))

	_, err = c.Decode("PingEvent", []byte(`{not json`))
	require.Error(t, err)
	assert.True(t, ferrors.IsNonRetryable(err))
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryQueue))

	_, _, err = c.Encode(struct{}{})
	require.Error(t, err)
	assert.False(t, ferrors.IsNonRetryable(err))
}
