package main

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"

	"github.com/bjaus/gateway/config"
)

// newLogger builds a JSON logger writing to stderr plus the configured file
// and remote collector. The returned closer releases both.
func newLogger(cfg config.LoggerConfig) (*slog.Logger, io.Closer, error) {
	writers := []io.Writer{os.Stderr}
	var closers multiCloser

	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) //nolint:gosec // operator-provided path
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		writers = append(writers, f)
		closers = append(closers, f)
	}

	if cfg.RemoteLogTarget != "" {
		network, addr, _ := strings.Cut(cfg.RemoteLogTarget, "://")
		conn, err := net.Dial(network, addr)
		if err != nil {
			closers.Close() //nolint:errcheck,gosec // already failing
			return nil, nil, fmt.Errorf("dialing remote log target: %w", err)
		}
		writers = append(writers, conn)
		closers = append(closers, conn)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}

	h := slog.NewJSONHandler(io.MultiWriter(writers...), &slog.HandlerOptions{Level: level})
	return slog.New(h), closers, nil
}

type multiCloser []io.Closer

func (m multiCloser) Close() error {
	var first error
	for _, c := range m {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
