package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	gomail "gopkg.in/gomail.v2"

	jobmetrics "github.com/residuos-hospitalarios/residuos/internal/jobs"
)

// Mailer delivers one message.
type Mailer interface {
	Send(ctx context.Context, msg SendEmailPayload) error
}

// SMTPConfig configures SMTPMailer.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPMailer sends plain-text mail through an SMTP relay.
type SMTPMailer struct {
	cfg  SMTPConfig
	send func(m *gomail.Message) error
}

// NewSMTPMailer constructs an SMTPMailer. Credentials are optional; relays
// such as Mailpit accept unauthenticated mail.
func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	var dialer *gomail.Dialer
	if cfg.Username != "" {
		dialer = gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	} else {
		dialer = &gomail.Dialer{Host: cfg.Host, Port: cfg.Port}
	}
	return &SMTPMailer{cfg: cfg, send: func(m *gomail.Message) error { return dialer.DialAndSend(m) }}
}

// Send implements Mailer.
func (m *SMTPMailer) Send(ctx context.Context, msg SendEmailPayload) error {
	if m.cfg.Host == "" {
		return errors.New("smtp: host not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.send(m.compose(msg))
}

func (m *SMTPMailer) compose(msg SendEmailPayload) *gomail.Message {
	out := gomail.NewMessage()
	out.SetHeader("From", m.cfg.From)
	out.SetHeader("To", msg.To)
	out.SetHeader("Subject", msg.Subject)
	out.SetBody("text/plain", msg.Body)
	return out
}

// SendEmailJob delivers queued mail.
type SendEmailJob struct {
	mailer  Mailer
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewSendEmailJob constructs the mail handler.
func NewSendEmailJob(mailer Mailer, logger *slog.Logger, metrics *jobmetrics.Metrics) *SendEmailJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &SendEmailJob{mailer: mailer, logger: logger, metrics: metrics}
}

// Handle processes TaskTypeSendEmail tasks.
func (j *SendEmailJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.To == "" {
		j.logger.Error("discard malformed mail task", slog.Any("error", err))
		return fmt.Errorf("mail: malformed payload: %w", asynq.SkipRetry)
	}
	tracker := j.metrics.Track(TaskTypeSendEmail)
	err := j.mailer.Send(ctx, payload)
	if err != nil {
		j.logger.Warn("send mail", slog.String("to", payload.To), slog.Any("error", err))
	}
	return tracker.End(err)
}
