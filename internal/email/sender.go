package email

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// Sender define la interfaz de despacho de correos.
type Sender interface {
	Send(ctx context.Context, toEmail, subject, body string) error
}

type disabledSender struct {
	reason string
}

func NewDisabledSender(reason string) Sender {
	return &disabledSender{reason: reason}
}

func (s *disabledSender) Send(_ context.Context, _, _, _ string) error {
	if s.reason == "" {
		return errors.New("email sender disabled")
	}
	return errors.New(s.reason)
}

// logSender escribe los correos en el log. Solo para desarrollo local.
type logSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) Sender {
	return &logSender{logger: logger}
}

func (s *logSender) Send(_ context.Context, toEmail, subject, body string) error {
	s.logger.Debug("email not sent (log sender)",
		zap.String("to", toEmail),
		zap.String("subject", subject),
		zap.String("body", body),
	)
	return nil
}
