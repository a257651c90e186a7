package wakeful

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/brizzai/postman/internal/config"
	"github.com/brizzai/postman/internal/logger"
	"github.com/brizzai/postman/internal/requester"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ErrServiceStopped is returned by Send after Stop
var ErrServiceStopped = errors.New("wakeful service stopped")

// ServiceParams holds the parameters for creating a Service
type ServiceParams struct {
	fx.In

	Config   *config.Config
	Lock     Lock
	Executor requester.RequestExecutor
}

// Service executes submitted commands one at a time on a single worker.
// The lock is acquired when a command is submitted and released after the
// command finishes, however it finishes.
type Service struct {
	lock     Lock
	executor requester.RequestExecutor
	queue    chan *requester.Command

	// sendMu is held shared by Send and exclusively by Stop, so once Stop
	// owns it no Send is in flight.
	sendMu   sync.RWMutex
	stopped  bool
	stop     chan struct{}
	stopOnce sync.Once

	startMu sync.Mutex
	started bool
	done    chan struct{}
	cancel  context.CancelFunc
}

func NewService(params ServiceParams) *Service {
	size := 16
	if params.Config != nil && params.Config.Service.QueueSize > 0 {
		size = params.Config.Service.QueueSize
	}
	return &Service{
		lock:     params.Lock,
		executor: params.Executor,
		queue:    make(chan *requester.Command, size),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Send acquires the lock and queues cmd. The lock is released again if the
// command cannot be queued.
func (s *Service) Send(ctx context.Context, cmd *requester.Command) error {
	if cmd == nil {
		return requester.ErrNoPrimaryStrategy
	}

	s.sendMu.RLock()
	defer s.sendMu.RUnlock()
	if s.stopped {
		return ErrServiceStopped
	}

	s.lock.Acquire()
	select {
	case s.queue <- cmd:
		logger.Debug("Queued command", zap.String("command", cmd.ID))
		return nil
	case <-s.stop:
		s.lock.Release()
		return ErrServiceStopped
	case <-ctx.Done():
		s.lock.Release()
		return ctx.Err()
	}
}

// Start launches the worker
func (s *Service) Start(context.Context) error {
	s.startMu.Lock()
	defer s.startMu.Unlock()
	if s.started {
		return fmt.Errorf("wakeful service already started")
	}
	select {
	case <-s.stop:
		return ErrServiceStopped
	default:
	}
	s.started = true

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.run(ctx)

	logger.Info("Wakeful service started", zap.Int("queue_size", cap(s.queue)))
	return nil
}

// Stop lets the running command finish, or cancels it once ctx is done.
// Commands still queued are dropped and their lock holds released.
func (s *Service) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stop) })

	s.sendMu.Lock()
	already := s.stopped
	s.stopped = true
	s.sendMu.Unlock()
	if already {
		return nil
	}

	s.startMu.Lock()
	started := s.started
	s.startMu.Unlock()

	if started {
		select {
		case <-s.done:
		case <-ctx.Done():
			logger.Warn("Cancelling running command", zap.Error(ctx.Err()))
			s.cancel()
			<-s.done
		}
		s.cancel()
	}

	s.drain()
	logger.Info("Wakeful service stopped")
	return nil
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)
	for {
		// A closed stop channel wins over queued work
		select {
		case <-s.stop:
			return
		default:
		}

		select {
		case <-s.stop:
			return
		case cmd := <-s.queue:
			s.handle(ctx, cmd)
		}
	}
}

// handle executes one command and always releases its lock hold
func (s *Service) handle(ctx context.Context, cmd *requester.Command) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Command panicked", zap.String("command", cmd.ID), zap.Any("panic", r))
		}
		s.lock.Release()
	}()

	if err := s.executor.Execute(ctx, cmd); err != nil {
		logger.Debug("Command finished with error", zap.String("command", cmd.ID), zap.Error(err))
	}
}

func (s *Service) drain() {
	for {
		select {
		case cmd := <-s.queue:
			logger.Warn("Dropping queued command", zap.String("command", cmd.ID))
			s.lock.Release()
		default:
			return
		}
	}
}

// Module provides the lock and the service and ties the worker to the app lifecycle
var Module = fx.Module("wakeful",
	fx.Provide(
		fx.Annotate(
			func() *RefCountedLock {
				return NewRefCountedLock(
					WithOnHeld(func() { logger.Debug("Wake lock held") }),
					WithOnReleased(func() { logger.Debug("Wake lock released") }),
				)
			},
			fx.As(new(Lock)),
		),
		NewService,
	),
	fx.Invoke(func(lc fx.Lifecycle, s *Service) {
		lc.Append(fx.Hook{
			OnStart: s.Start,
			OnStop:  s.Stop,
		})
	}),
)
