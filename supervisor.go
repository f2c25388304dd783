package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"

	"golang.org/x/sync/errgroup"
)

// Supervisor owns the process lifetime. It runs named long-lived tasks; a
// task that fails or panics is logged with full detail and the process is
// terminated with status 1. Cancelling the Run context is a clean stop.
//
// Request failures never reach the Supervisor: they end in the pipeline's
// terminal stage.
type Supervisor struct {
	logger *slog.Logger
	exit   func(code int)
	tasks  []task
}

type task struct {
	name string
	run  func(ctx context.Context) error
}

// SupervisorOption configures a Supervisor.
type SupervisorOption func(*Supervisor)

// WithExit replaces os.Exit, for tests.
func WithExit(exit func(code int)) SupervisorOption {
	return func(s *Supervisor) {
		s.exit = exit
	}
}

// NewSupervisor returns a Supervisor logging to logger.
func NewSupervisor(logger *slog.Logger, opts ...SupervisorOption) *Supervisor {
	s := &Supervisor{logger: logger, exit: os.Exit}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Go adds a task. Tasks start when Run is called.
func (s *Supervisor) Go(name string, fn func(ctx context.Context) error) {
	s.tasks = append(s.tasks, task{name: name, run: fn})
}

// Run starts every task and waits. When any task fails, the others are
// cancelled, the failure is logged, and the exit function is called with 1.
// Run returns the failure for callers whose exit function returns.
func (s *Supervisor) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, t := range s.tasks {
		g.Go(func() error {
			return s.guard(gctx, t)
		})
	}

	err := g.Wait()
	if err == nil || (errors.Is(err, context.Canceled) && ctx.Err() != nil) {
		s.logger.InfoContext(ctx, "supervisor stopped")
		return nil
	}

	s.logger.ErrorContext(context.WithoutCancel(ctx), "fatal failure, exiting", "error", err)
	s.exit(1)
	return err
}

func (s *Supervisor) guard(ctx context.Context, t task) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &TaskError{Task: t.name, Err: fmt.Errorf("panic: %v", rec), Stack: debug.Stack()}
		}
	}()
	if runErr := t.run(ctx); runErr != nil {
		if errors.Is(runErr, context.Canceled) && ctx.Err() != nil {
			return nil
		}
		return &TaskError{Task: t.name, Err: runErr}
	}
	return nil
}

// TaskError is a failure that escaped a supervised task.
type TaskError struct {
	Task  string
	Err   error
	Stack []byte
}

func (e *TaskError) Error() string {
	if len(e.Stack) > 0 {
		return fmt.Sprintf("task %s: %v\n%s", e.Task, e.Err, e.Stack)
	}
	return fmt.Sprintf("task %s: %v", e.Task, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }
