package gateway_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bjaus/gateway"
)

func TestSupervisor_cleanStop(t *testing.T) {
	t.Parallel()

	var exitCode atomic.Int32
	exitCode.Store(-1)
	sup := gateway.NewSupervisor(discardLogger(), gateway.WithExit(func(code int) {
		exitCode.Store(int32(code))
	}))
	sup.Go("server", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	sup.Go("worker", func(context.Context) error { return nil })

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	require.NoError(t, sup.Run(ctx))
	assert.Equal(t, int32(-1), exitCode.Load(), "exit is not called on a clean stop")
}

func TestSupervisor_taskFailureExits(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		run     func(ctx context.Context) error
		message string
		stack   bool
	}{
		"error": {
			run:     func(context.Context) error { return errors.New("listener died") },
			message: "task server: listener died",
		},
		"panic": {
			run:     func(context.Context) error { panic("nil map") },
			message: "task server: panic: nil map",
			stack:   true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			logs, logger := newLogBuffer()
			var exitCode atomic.Int32
			exitCode.Store(-1)
			sup := gateway.NewSupervisor(logger, gateway.WithExit(func(code int) {
				exitCode.Store(int32(code))
			}))

			var siblingStopped atomic.Bool
			sup.Go("server", tc.run)
			sup.Go("sibling", func(ctx context.Context) error {
				<-ctx.Done()
				siblingStopped.Store(true)
				return ctx.Err()
			})

			err := sup.Run(context.Background())
			require.Error(t, err)

			var taskErr *gateway.TaskError
			require.ErrorAs(t, err, &taskErr)
			assert.Equal(t, "server", taskErr.Task)
			assert.Contains(t, err.Error(), tc.message)
			assert.Equal(t, tc.stack, len(taskErr.Stack) > 0)

			assert.Equal(t, int32(1), exitCode.Load())
			assert.True(t, siblingStopped.Load(), "other tasks are cancelled")
			assert.Contains(t, logs.String(), "fatal failure, exiting")
		})
	}
}
