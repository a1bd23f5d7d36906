package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
	// TaskTypePurgeSessions removes expired login session rows.
	TaskTypePurgeSessions = "auth:sessions:purge"
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// PurgeSessionsPayload carries the cut-off grace period.
type PurgeSessionsPayload struct {
	Grace time.Duration `json:"grace"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data, asynq.Queue(QueueDefault), asynq.MaxRetry(5)), nil
}

// NewPurgeSessionsTask constructs the scheduled purge task.
func NewPurgeSessionsTask(grace time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(PurgeSessionsPayload{Grace: grace})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypePurgeSessions, data, asynq.Queue(QueueDefault)), nil
}
