package session

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/virtualbrainlab/ephys-link/internal/bindings/fake"
	"github.com/virtualbrainlab/ephys-link/internal/platform"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSecondConcurrentConnectionIsRefused(t *testing.T) {
	g := New(platform.New(fake.New(), nil), discardLogger())

	assert.True(t, g.Connect("x"))
	assert.False(t, g.Connect("y"))
}

func TestReconnectAfterDisconnectIsAcceptedWithEmptyRegistry(t *testing.T) {
	facade := platform.New(fake.New(), nil)
	g := New(facade, discardLogger())

	require.True(t, g.Connect("x"))
	require.NoError(t, facade.Register(context.Background(), "1"))

	g.Disconnect(context.Background(), "x")

	assert.True(t, g.Connect("y"))
	resp := facade.GetPosition(context.Background(), "1")
	assert.NotEmpty(t, resp.Error, "registry should be empty after reset")
}

func TestDisconnectOfNonCurrentSessionIsIgnored(t *testing.T) {
	facade := platform.New(fake.New(), nil)
	g := New(facade, discardLogger())

	require.True(t, g.Connect("x"))
	g.Disconnect(context.Background(), "someone-else")

	assert.Equal(t, "x", g.Current())
}
