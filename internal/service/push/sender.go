package push

import (
	"context"

	"truck-dispatch/internal/logx"
)

// LogSender writes messages to the log instead of an SMS or push gateway.
type LogSender struct {
	logger logx.Logger
}

// NewLogSender creates a LogSender.
func NewLogSender(logger logx.Logger) *LogSender {
	if logger == nil {
		logger = logx.Nop()
	}
	return &LogSender{logger: logger}
}

// Send logs the message.
func (s *LogSender) Send(_ context.Context, to Recipient, message string) error {
	s.logger.Info("push sent",
		logx.String("recipient_kind", to.Kind),
		logx.String("recipient_id", to.ID),
		logx.String("message", message),
	)
	return nil
}
