// Package notify delivers approval requests to approvers.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"approvals/internal/document/models"
	"approvals/internal/snapshot"
	"approvals/pkg/platform/circuit"
)

// Notifier turns a document and its snapshot into a message and sends it.
type Notifier struct {
	sender      Sender
	baseURL     string
	subjects    map[models.Kind]string
	breaker     *circuit.Breaker
	sendTimeout time.Duration
	logger      *slog.Logger
}

type Option func(*Notifier)

// WithSubjects sets the subject prefix per kind.
func WithSubjects(subjects map[models.Kind]string) Option {
	return func(n *Notifier) {
		n.subjects = subjects
	}
}

// WithBreaker fails sends fast while the relay is known to be down.
func WithBreaker(b *circuit.Breaker) Option {
	return func(n *Notifier) {
		n.breaker = b
	}
}

// WithSendTimeout bounds each send.
func WithSendTimeout(d time.Duration) Option {
	return func(n *Notifier) {
		n.sendTimeout = d
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(n *Notifier) {
		n.logger = logger
	}
}

func New(sender Sender, baseURL string, opts ...Option) *Notifier {
	n := &Notifier{sender: sender, baseURL: baseURL}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Notify sends the approval request for doc with artifact attached. Every
// failure, including a timeout or an open circuit, is a *DeliveryError.
func (n *Notifier) Notify(ctx context.Context, doc *models.Document, artifact *snapshot.Artifact) error {
	fail := func(err error) error {
		return &DeliveryError{DocumentID: doc.ID, Recipient: doc.ApproverContact, Err: err}
	}

	msg, err := BuildMessage(doc, artifact, n.baseURL, n.subjects[doc.Kind])
	if err != nil {
		return fail(err)
	}

	if n.breaker != nil && !n.breaker.Allow() {
		return fail(ErrCircuitOpen)
	}

	if err := n.send(ctx, msg); err != nil {
		n.recordFailure(ctx)
		return fail(err)
	}
	n.recordSuccess(ctx)
	return nil
}

// send enforces the timeout even against a sender that ignores ctx.
func (n *Notifier) send(ctx context.Context, msg Message) error {
	if n.sendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.sendTimeout)
		defer cancel()
	}
	done := make(chan error, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- fmt.Errorf("sender panic: %v", p)
			}
		}()
		done <- n.sender.Send(ctx, msg)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("send aborted: %w", ctx.Err())
	}
}

func (n *Notifier) recordFailure(ctx context.Context) {
	if n.breaker == nil {
		return
	}
	if _, change := n.breaker.RecordFailure(); change.Opened && n.logger != nil {
		n.logger.WarnContext(ctx, "mail relay circuit opened", "breaker", n.breaker.Name())
	}
}

func (n *Notifier) recordSuccess(ctx context.Context) {
	if n.breaker == nil {
		return
	}
	if _, change := n.breaker.RecordSuccess(); change.Closed && n.logger != nil {
		n.logger.InfoContext(ctx, "mail relay circuit closed", "breaker", n.breaker.Name())
	}
}
