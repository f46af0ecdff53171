package util

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetrySucceedsEventually(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("busy")
		}
		return nil
	}, 5, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryReturnsLastError(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), func() error {
		calls++
		return errors.Errorf("attempt %d", calls)
	}, 3, time.Millisecond)
	require.EqualError(t, err, "attempt 3")
	assert.Equal(t, 3, calls)
}

func TestRetryIfStopsOnPermanentError(t *testing.T) {
	permanent := errors.New("permanent")
	calls := 0
	err := RetryIf(context.Background(), func() error {
		calls++
		return permanent
	}, func(err error) bool { return !errors.Is(err, permanent) }, 5, time.Millisecond)
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestRetryHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, func() error { return errors.New("busy") }, 5, time.Second)
	assert.ErrorIs(t, err, ErrRetryTimeout)
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("UNDELPART_LOG_DIR", "/var/log/undelpart")
	assert.Equal(t, "/var/log/undelpart/a.log", ExpandEnv("$UNDELPART_LOG_DIR/a.log"))
	assert.Equal(t, "/var/log/undelpart/a.log", ExpandEnv("%UNDELPART_LOG_DIR%/a.log"))
	assert.Equal(t, "$", ExpandEnv("$$"))
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "undelpart.log"), ExpandPath("~/undelpart.log"))
	assert.Equal(t, "", ExpandPath(""))
	assert.Equal(t, "/tmp/x", ExpandPath("/tmp//x/"))
}
