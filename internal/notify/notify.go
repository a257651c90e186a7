// Package notify delivers the terminal result of a command.
package notify

import (
	"context"

	"github.com/brizzai/postman/internal/logger"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// OkMessage is the message of a successful notification
const OkMessage = "Ok"

// Notification is the single terminal result of a command execution
type Notification struct {
	CommandID string
	Success   bool
	Message   string
}

// Sink receives notifications
type Sink interface {
	Notify(ctx context.Context, n Notification)
}

// SinkFunc adapts a function to a Sink
type SinkFunc func(ctx context.Context, n Notification)

func (f SinkFunc) Notify(ctx context.Context, n Notification) { f(ctx, n) }

// LogSink writes notifications to the global logger
type LogSink struct{}

func NewLogSink() *LogSink { return &LogSink{} }

func (LogSink) Notify(_ context.Context, n Notification) {
	if n.Success {
		logger.Info("Command completed", zap.String("command", n.CommandID))
		return
	}
	logger.Warn("Command failed",
		zap.String("command", n.CommandID),
		zap.String("message", n.Message),
	)
}

type multiSink []Sink

// Multi fans a notification out to every sink in order
func Multi(sinks ...Sink) Sink {
	return multiSink(sinks)
}

func (m multiSink) Notify(ctx context.Context, n Notification) {
	for _, s := range m {
		if s != nil {
			s.Notify(ctx, n)
		}
	}
}

// ChannelSink delivers notifications on a channel so callers can wait for
// results of work running elsewhere.
type ChannelSink struct {
	ch chan Notification
}

// NewChannelSink creates a ChannelSink buffering up to size notifications
func NewChannelSink(size int) *ChannelSink {
	return &ChannelSink{ch: make(chan Notification, size)}
}

// Notify blocks until the notification is buffered or ctx is done
func (c *ChannelSink) Notify(ctx context.Context, n Notification) {
	select {
	case c.ch <- n:
	case <-ctx.Done():
		logger.Warn("Dropped notification",
			zap.String("command", n.CommandID),
			zap.Error(ctx.Err()),
		)
	}
}

// C returns the receive side of the sink
func (c *ChannelSink) C() <-chan Notification {
	return c.ch
}

// Module provides the logging sink as the default Sink
var Module = fx.Module("notify",
	fx.Provide(
		fx.Annotate(
			NewLogSink,
			fx.As(new(Sink)),
		),
	),
)
