package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/authwire/internal/failure"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Not parallel: the signal reaches every registered channel in the process.
func TestShutdownContext_FirstSignalCancels(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	defer cancel()

	ctx := shutdownContext(parent, quietLogger())

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGINT))

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		require.Fail(t, "context not canceled within 2s of SIGINT")
	}

	assert.NoError(t, parent.Err(), "parent must survive the signal")
}

func TestShutdownContext_ParentCancelPropagates(t *testing.T) {
	t.Parallel()

	parent, cancel := context.WithCancel(context.Background())
	ctx := shutdownContext(parent, quietLogger())

	cancel()

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		require.Fail(t, "context not canceled after parent cancel")
	}
}

func TestIsSessionTerminal(t *testing.T) {
	t.Parallel()

	callErr := failure.NewCallError("GET /api/items", 401, "", "invalid signature")

	assert.True(t, isSessionTerminal(failure.RefreshFailed(errors.New("refresh rejected"))))
	assert.True(t, isSessionTerminal(failure.Terminal(failure.SignatureInvalid, callErr)))
	assert.False(t, isSessionTerminal(callErr))
	assert.False(t, isSessionTerminal(context.Canceled))
}
