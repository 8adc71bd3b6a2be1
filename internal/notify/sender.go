package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Sender delivers a message. Implementations must honour ctx.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// ErrCircuitOpen is wrapped by DeliveryError when sends are short-circuited.
var ErrCircuitOpen = errors.New("mail relay circuit open")

// DeliveryError reports that a message was not delivered. The dispatcher
// leaves the document unmarked so it is retried next cycle.
type DeliveryError struct {
	DocumentID string
	Recipient  string
	Err        error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver document %s to %s: %v", e.DocumentID, e.Recipient, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// LogSender writes messages to the log instead of sending them. It is used
// when no SMTP host is configured.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	attachment := ""
	size := 0
	if msg.Attachment != nil {
		attachment = msg.Attachment.Filename
		size = len(msg.Attachment.Content)
	}
	s.logger.InfoContext(ctx, "notification (not sent, no SMTP relay configured)",
		"document_id", msg.DocumentID,
		"to", msg.To,
		"subject", msg.Subject,
		"approve_url", msg.Links.Approve,
		"reject_url", msg.Links.Reject,
		"attachment", attachment,
		"attachment_bytes", size,
	)
	return nil
}
