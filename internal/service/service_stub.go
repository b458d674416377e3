//go:build !windows

// Package service runs the collector in the foreground on platforms without
// a Windows service manager.
package service

import (
	"context"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
)

// Name is the service name used on Windows.
const Name = "DataCollector"

// CollectorService runs the wrapped function until SIGINT or SIGTERM.
type CollectorService struct {
	logger *zap.Logger
	run    func(ctx context.Context) error
}

// New wraps run, which must block until its context is cancelled.
func New(logger *zap.Logger, run func(ctx context.Context) error) *CollectorService {
	return &CollectorService{
		logger: logger,
		run:    run,
	}
}

// IsWindowsService always returns false outside Windows.
func IsWindowsService() bool {
	return false
}

// Run calls the wrapped function with a context cancelled on SIGINT or SIGTERM.
func (s *CollectorService) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.run(ctx)
}
