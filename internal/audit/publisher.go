package audit

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/mssola/useragent"

	"approvals/pkg/requestcontext"
)

// Store is an append-only audit sink.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// Lister is implemented by sinks that can read events back.
type Lister interface {
	ListByDocument(ctx context.Context, documentID string) ([]Event, error)
}

// ErrBufferFull is returned by Emit in async mode when the buffer is full.
var ErrBufferFull = errors.New("audit buffer full")

// Publisher enriches events with request metadata and writes them to a
// Store, either inline or through a bounded buffer drained by one goroutine.
type Publisher struct {
	store  Store
	logger *slog.Logger

	buffer chan Event
	wg     sync.WaitGroup
	once   sync.Once
}

type Option func(*Publisher)

// WithAsyncBuffer decouples Emit from the sink. Events that do not fit in
// the buffer are dropped with ErrBufferFull.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		if size > 0 {
			p.buffer = make(chan Event, size)
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func NewPublisher(store Store, opts ...Option) *Publisher {
	p := &Publisher{store: store}
	for _, opt := range opts {
		opt(p)
	}
	if p.buffer != nil {
		p.wg.Add(1)
		go p.drain()
	}
	return p
}

// Emit records an event. Missing id, timestamp and request metadata are
// filled from ctx.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	event = enrich(ctx, event)
	if p.buffer == nil {
		return p.store.Append(ctx, event)
	}
	select {
	case p.buffer <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		if p.logger != nil {
			p.logger.WarnContext(ctx, "audit event dropped",
				"event", event.Type,
				"document_id", event.DocumentID,
			)
		}
		return ErrBufferFull
	}
}

// List reads events back when the store supports it.
func (p *Publisher) List(ctx context.Context, documentID string) ([]Event, error) {
	lister, ok := p.store.(Lister)
	if !ok {
		return nil, errors.New("audit store does not support listing")
	}
	return lister.ListByDocument(ctx, documentID)
}

// Close stops accepting async events and waits for the buffer to drain.
func (p *Publisher) Close() {
	p.once.Do(func() {
		if p.buffer != nil {
			close(p.buffer)
			p.wg.Wait()
		}
	})
}

func (p *Publisher) drain() {
	defer p.wg.Done()
	for event := range p.buffer {
		// The request that produced the event may already be gone.
		if err := p.store.Append(context.Background(), event); err != nil && p.logger != nil {
			p.logger.Error("failed to append audit event",
				"event", event.Type,
				"document_id", event.DocumentID,
				"error", err,
			)
		}
	}
}

func enrich(ctx context.Context, event Event) Event {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	if event.CycleID == "" {
		event.CycleID = requestcontext.CycleID(ctx)
	}
	if event.ClientIP == "" {
		event.ClientIP = requestcontext.ClientIP(ctx)
	}
	if ua := requestcontext.UserAgent(ctx); ua != "" && event.Browser == "" {
		event.Browser, event.OS = describeUserAgent(ua)
	}
	return event
}

// describeUserAgent reduces a User-Agent header to "Name Version" and OS.
func describeUserAgent(header string) (browser, os string) {
	ua := useragent.New(header)
	name, version := ua.Browser()
	browser = strings.TrimSpace(name + " " + version)
	return browser, ua.OS()
}
