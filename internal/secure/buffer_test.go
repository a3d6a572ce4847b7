package secure_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/credsync/internal/secure"
)

func TestBufferRoundTrip(t *testing.T) {
	t.Parallel()

	buf := secure.NewBufferFromString("s3cr3t-material")
	defer buf.Destroy()

	locked, err := buf.Open()
	require.NoError(t, err)
	defer locked.Destroy()

	assert.Equal(t, "s3cr3t-material", locked.String())
}

func TestWithValueWipesAfterUse(t *testing.T) {
	t.Parallel()

	buf := secure.NewBufferFromString("one-shot")
	defer buf.Destroy()

	var seen string
	err := buf.WithValue(func(value string) error {
		seen = string([]byte(value)) // copy before the buffer is wiped
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "one-shot", seen)

	// The buffer remains usable for subsequent calls.
	err = buf.WithValue(func(value string) error {
		assert.Equal(t, "one-shot", value)
		return nil
	})
	require.NoError(t, err)
}

func TestDestroyIsIdempotent(t *testing.T) {
	t.Parallel()

	buf := secure.NewBufferFromString("gone")
	buf.Destroy()
	buf.Destroy()

	_, err := buf.Open()
	assert.ErrorIs(t, err, secure.ErrDestroyed)

	err = buf.WithValue(func(string) error { return nil })
	assert.ErrorIs(t, err, secure.ErrDestroyed)
}
