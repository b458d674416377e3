//go:build windows

// Package service runs the collector under the Windows Service Control
// Manager. Started from a terminal, the collector runs in the foreground.
package service

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sys/windows/svc"
)

// Name is the service name registered with the SCM.
const Name = "DataCollector"

// CollectorService adapts a blocking run function to svc.Handler.
type CollectorService struct {
	logger *zap.Logger
	run    func(ctx context.Context) error
	err    error
}

// New wraps run, which must block until its context is cancelled.
func New(logger *zap.Logger, run func(ctx context.Context) error) *CollectorService {
	return &CollectorService{
		logger: logger,
		run:    run,
	}
}

// IsWindowsService reports whether the process was started by the SCM.
func IsWindowsService() bool {
	isService, err := svc.IsWindowsService()
	if err != nil {
		return false
	}
	return isService
}

// Run enters the SCM control loop when started by the SCM and returns once the
// service stopped. From a terminal it runs the wrapped function until an
// interrupt. The error is the one returned by the wrapped function, if any.
func (s *CollectorService) Run() error {
	if !IsWindowsService() {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return s.run(ctx)
	}
	if err := svc.Run(Name, s); err != nil {
		return err
	}
	return s.err
}

// Execute implements svc.Handler.
func (s *CollectorService) Execute(_ []string, r <-chan svc.ChangeRequest, changes chan<- svc.Status) (bool, uint32) {
	changes <- svc.Status{State: svc.StartPending}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.run(ctx) }()

	changes <- svc.Status{
		State:   svc.Running,
		Accepts: svc.AcceptStop | svc.AcceptShutdown,
	}
	s.logger.Info("Windows service started")

	for {
		select {
		case err := <-done:
			// The collector stopped on its own.
			s.err = err
			if err != nil {
				return true, 1
			}
			return false, 0
		case c := <-r:
			switch c.Cmd {
			case svc.Interrogate:
				changes <- c.CurrentStatus
			case svc.Stop, svc.Shutdown:
				s.logger.Info("Windows service stopping")
				changes <- svc.Status{State: svc.StopPending}
				cancel()
				s.err = <-done
				return false, 0
			default:
				s.logger.Warn("Unexpected service control request",
					zap.Uint32("cmd", uint32(c.Cmd)))
			}
		}
	}
}
